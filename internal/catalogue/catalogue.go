// Package catalogue defines the upstream collaborator that resolves alias
// names to inference configuration (spec §3 "Alias", §6 "catalogue
// service"). The control plane only consumes the Service interface; a real
// deployment backs it with persistent storage (out of scope here). The
// provided MemoryService is the minimal concrete collaborator needed to
// boot the binary and to exercise the router/engine in tests, in the same
// spirit as the teacher keeping its Ollama client small and concrete
// rather than introducing a repository abstraction it doesn't need.
package catalogue

import (
	"sync"

	"github.com/modelgate/modelgate/internal/apierr"
)

// AliasKind distinguishes the two local alias sub-kinds, which share a
// shape but differ in router precedence (spec §4.3).
type AliasKind int

const (
	AliasUser AliasKind = iota
	AliasModel
)

// ModelRef locates a model file: a repository identifier, a filename
// within it, and an immutable snapshot identifier.
type ModelRef struct {
	Repo     string
	Filename string
	Snapshot string
}

// RequestParams are the request-parameter defaults an alias applies to an
// incoming chat-completion body, filling in only fields the caller left
// absent (spec §4.1 "Request preparation"). Pointer fields distinguish
// "absent" from a legitimate zero value.
type RequestParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        []string
	Seed        *int
}

// Alias is a local, named inference configuration (spec §3).
type Alias struct {
	Name          string
	Kind          AliasKind
	Model         ModelRef
	RequestParams RequestParams
	// ContextParams are free-form server-argument tokens, merged at the
	// highest precedence (spec §4.2 "alias" source).
	ContextParams []string
}

// RemoteAlias is a named reference to an external OpenAI-compatible
// endpoint (spec §3 "Alias (remote API)"). The credential itself is
// never logged or returned by Service; callers resolve it lazily via
// CredentialResolver so a real secrets backend can be swapped in without
// this package ever holding a live secret longer than one call.
type RemoteAlias struct {
	Name     string
	BaseURL  string
	Models   []string
	resolver CredentialResolver
}

// CredentialResolver returns the bearer credential for a remote alias at
// call time.
type CredentialResolver func() (string, error)

// Credential resolves this alias's API credential.
func (r RemoteAlias) Credential() (string, error) {
	if r.resolver == nil {
		return "", nil
	}
	return r.resolver()
}

// ResolvedAlias is the result of a name lookup: exactly one of Local or
// Remote is non-nil (spec §4.3's Local/Remote destination tagging is
// applied one layer up, in internal/router; this type just carries the
// underlying record).
type ResolvedAlias struct {
	Local  *Alias
	Remote *RemoteAlias
}

// Service is the upstream catalogue collaborator (spec §6).
type Service interface {
	// FindAlias performs a total, precedence-ordered lookup: User alias,
	// then Model alias, then Remote alias membership (spec §4.3 steps 1-3).
	FindAlias(name string) (ResolvedAlias, bool)
	// FindLocalFile resolves a model locator to a filesystem path.
	FindLocalFile(repo, filename, snapshot string) (string, error)
	// ListNames enumerates every name FindAlias can resolve: User and
	// Model alias names, then each Remote alias's served model ids. Used
	// by the /v1/models listing only — name resolution itself never
	// calls this.
	ListNames() []string
}

// MemoryService is an in-process, mutex-protected Service implementation.
type MemoryService struct {
	mu      sync.RWMutex
	user    map[string]Alias
	model   map[string]Alias
	remotes []RemoteAlias
	files   map[ModelRef]string
}

// NewMemoryService returns an empty catalogue ready for population via
// PutUserAlias / PutModelAlias / PutRemoteAlias / PutFile.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		user:  map[string]Alias{},
		model: map[string]Alias{},
		files: map[ModelRef]string{},
	}
}

func (m *MemoryService) PutUserAlias(a Alias) {
	a.Kind = AliasUser
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user[a.Name] = a
}

func (m *MemoryService) PutModelAlias(a Alias) {
	a.Kind = AliasModel
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model[a.Name] = a
}

func (m *MemoryService) PutRemoteAlias(r RemoteAlias, resolver CredentialResolver) {
	r.resolver = resolver
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remotes = append(m.remotes, r)
}

func (m *MemoryService) PutFile(ref ModelRef, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref] = path
}

// FindAlias implements Service's precedence: User > Model > Remote
// (first enumeration match), matching spec §4.3 steps 1-3 exactly.
func (m *MemoryService) FindAlias(name string) (ResolvedAlias, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.user[name]; ok {
		return ResolvedAlias{Local: &a}, true
	}
	if a, ok := m.model[name]; ok {
		return ResolvedAlias{Local: &a}, true
	}
	for i := range m.remotes {
		r := m.remotes[i]
		for _, mid := range r.Models {
			if mid == name {
				return ResolvedAlias{Remote: &r}, true
			}
		}
	}
	return ResolvedAlias{}, false
}

// ListNames enumerates every resolvable name: User aliases, then Model
// aliases, then each Remote alias's served model ids. Remote ids follow
// insertion order; the order of names within the User and Model groups
// is not defined.
func (m *MemoryService) ListNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.user)+len(m.model))
	for name := range m.user {
		names = append(names, name)
	}
	for name := range m.model {
		names = append(names, name)
	}
	for _, r := range m.remotes {
		names = append(names, r.Models...)
	}
	return names
}

func (m *MemoryService) FindLocalFile(repo, filename, snapshot string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref := ModelRef{Repo: repo, Filename: filename, Snapshot: snapshot}
	if p, ok := m.files[ref]; ok {
		return p, nil
	}
	return "", apierr.Wrapf(apierr.ErrModelFileMissing, "repo=%s filename=%s snapshot=%s", repo, filename, snapshot)
}
