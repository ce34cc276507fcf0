// Package argflags manages runtime-toggleable performance flags, the way
// the teacher's internal/features.Store managed Ollama-environment
// toggles — but this domain has no sidecar env file to rewrite. Instead
// each enabled flag contributes extra server-argument tokens, fed into
// internal/argmerge at alias precedence (spec §4.1 "Spawn arguments"), so
// toggling a flag takes effect on the next Load/DropAndLoad without any
// restart protocol of its own.
//
// Flags are stored in memory only — they reset on restart, matching the
// teacher's store.
package argflags

import (
	"strconv"
	"sync"

	"github.com/modelgate/modelgate/internal/cpu"
)

// FeatureID is a unique key for a feature flag.
type FeatureID string

const (
	FlashAttn     FeatureID = "flash_attn"
	MlockWeights  FeatureID = "mlock_weights"
	MmapWeights   FeatureID = "mmap_weights"
	NoMmapWeights FeatureID = "no_mmap_weights"
	LeanContext   FeatureID = "lean_context"
	ThreadHint    FeatureID = "thread_hint"
)

// Info describes a feature flag for display by an admin endpoint.
type Info struct {
	ID          FeatureID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
}

var descriptions = []Info{
	{ID: FlashAttn, Name: "Flash Attention", Description: "Appends --flash-attn to the next spawn's server arguments."},
	{ID: MlockWeights, Name: "Lock Weights in RAM", Description: "Appends --mlock so model weights are pinned and never swapped."},
	{ID: MmapWeights, Name: "Memory-Map Weights", Description: "Leaves weight mapping on the default (mmap) path."},
	{ID: NoMmapWeights, Name: "Disable mmap", Description: "Appends --no-mmap, forcing weights to be read into RAM up front."},
	{ID: LeanContext, Name: "Lean Context Window", Description: "Appends --ctx-size 512 to shrink the KV cache footprint."},
	{ID: ThreadHint, Name: "Thread Affinity Hint", Description: "Appends --threads <OptimalThreadCount> to avoid efficiency cores."},
}

// Store holds the current enabled/disabled state of all feature flags.
type Store struct {
	mu    sync.RWMutex
	flags map[FeatureID]bool
	topo  *cpu.Topology
}

// NewStore creates a Store with all flags disabled by default. topo is
// used only by ThreadHint's token generation; it may be nil, in which
// case ThreadHint emits a fixed "--threads 4".
func NewStore(topo *cpu.Topology) *Store {
	return &Store{
		flags: map[FeatureID]bool{
			FlashAttn:     false,
			MlockWeights:  false,
			MmapWeights:   false,
			NoMmapWeights: false,
			LeanContext:   false,
			ThreadHint:    false,
		},
		topo: topo,
	}
}

// IsEnabled returns true if the given flag is currently on.
func (s *Store) IsEnabled(id FeatureID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[id]
}

// Set enables or disables a flag. Returns false if the id is unknown.
func (s *Store) Set(id FeatureID, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[id]; !ok {
		return false
	}
	s.flags[id] = enabled
	return true
}

// All returns Info for every known flag, in declaration order.
func (s *Store) All() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, len(descriptions))
	for i, d := range descriptions {
		d.Enabled = s.flags[d.ID]
		out[i] = d
	}
	return out
}

// Args renders the currently-enabled flags as server-argument tokens,
// suitable for placing ahead of an alias's ContextParams before the merge
// (spec §4.1 mergedArgs / §4.2 precedence), so an explicit alias flag
// still wins on collision. Order is declaration order,
// so repeated calls are deterministic.
func (s *Store) Args() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	if s.flags[FlashAttn] {
		out = append(out, "--flash-attn")
	}
	if s.flags[MlockWeights] {
		out = append(out, "--mlock")
	}
	if s.flags[NoMmapWeights] {
		out = append(out, "--no-mmap")
	}
	if s.flags[LeanContext] {
		out = append(out, "--ctx-size", "512")
	}
	if s.flags[ThreadHint] {
		out = append(out, "--threads", threadCount(s.topo))
	}
	return out
}

func threadCount(topo *cpu.Topology) string {
	if topo == nil {
		return "4"
	}
	n := cpu.OptimalThreadCount(topo)
	if n <= 0 {
		n = 1
	}
	return strconv.Itoa(n)
}
