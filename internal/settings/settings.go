// Package settings defines the upstream settings collaborator (spec §6
// "settings service"): the source of the setting-level and variant-level
// argument lists fed into internal/argmerge, plus the current execution
// variant identifier (spec §3 "Execution variant").
package settings

import (
	"sync"

	"github.com/modelgate/modelgate/internal/cpu"
)

// Service is the upstream settings collaborator.
type Service interface {
	// SettingArgs returns the arguments applied to every spawn, regardless
	// of execution variant.
	SettingArgs() []string
	// VariantArgs returns the arguments specific to one execution variant.
	VariantArgs(variant string) []string
	// ExecVariant returns the currently configured execution variant.
	ExecVariant() string
	// SetExecVariant updates the current execution variant. Does not
	// itself restart anything; internal/engine decides what to do with
	// the new value (spec §4.1 set_exec_variant).
	SetExecVariant(variant string)
}

// StaticService is a Service backed by a flags/file-derived struct loaded
// once at boot. It has no persistence of its own — spec.md §1 excludes
// persistent storage from the core — it just holds what the CLI bootstrap
// parsed.
type StaticService struct {
	mu          sync.RWMutex
	settingArgs []string
	variantArgs map[string][]string
	execVariant string
}

// Option configures a StaticService at construction.
type Option func(*StaticService)

// WithSettingArgs sets the arguments applied to every spawn.
func WithSettingArgs(args []string) Option {
	return func(s *StaticService) { s.settingArgs = args }
}

// WithVariantArgs registers the arguments for one named execution variant.
func WithVariantArgs(variant string, args []string) Option {
	return func(s *StaticService) { s.variantArgs[variant] = args }
}

// WithExecVariant pins the initial execution variant, bypassing
// DefaultExecVariant's CPU-topology detection.
func WithExecVariant(variant string) Option {
	return func(s *StaticService) { s.execVariant = variant }
}

// NewStaticService builds a StaticService. When no WithExecVariant option
// is given, the initial variant is chosen by DefaultExecVariant, using CPU
// topology detection the way the teacher's dashboard surfaced it
// cosmetically — here the same detection instead picks a real default.
func NewStaticService(opts ...Option) *StaticService {
	s := &StaticService{variantArgs: map[string][]string{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.execVariant == "" {
		s.execVariant = DefaultExecVariant()
	}
	return s
}

// DefaultExecVariant picks a sane execution variant from detected CPU
// features: AVX-512 > AVX2 > baseline. Detection failure falls back to
// the conservative baseline build.
func DefaultExecVariant() string {
	topo, err := cpu.Detect()
	if err != nil {
		return "cpu-baseline"
	}
	switch {
	case topo.HasAVX512:
		return "cpu-avx512"
	case topo.HasAVX2:
		return "cpu-avx2"
	default:
		return "cpu-baseline"
	}
}

func (s *StaticService) SettingArgs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.settingArgs...)
}

func (s *StaticService) VariantArgs(variant string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.variantArgs[variant]...)
}

func (s *StaticService) ExecVariant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execVariant
}

func (s *StaticService) SetExecVariant(variant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execVariant = variant
}
