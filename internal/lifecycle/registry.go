package lifecycle

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

type Phase string

const (
	PhaseParsed     Phase = "parsed"
	PhaseInstalling Phase = "installing"
	PhaseInstalled  Phase = "installed"
	PhaseActivating Phase = "activating"
	PhaseActivated  Phase = "activated"
	PhaseRedundant  Phase = "redundant"
)

// Registry is the process-wide view of cache generations: written by install
// and activate, read by every intercepted request.
type Registry struct {
	mu          sync.RWMutex
	version     string
	phase       Phase
	generations []string
	controlling bool
	installedAt time.Time
	activatedAt time.Time
}

type Snapshot struct {
	Version     string    `json:"version"`
	Phase       Phase     `json:"phase"`
	Generations []string  `json:"generations"`
	Controlling bool      `json:"controlling"`
	InstalledAt time.Time `json:"installed_at,omitzero"`
	ActivatedAt time.Time `json:"activated_at,omitzero"`
}

func NewRegistry(version string) *Registry {
	return &Registry{version: version, phase: PhaseParsed}
}

func (r *Registry) Version() string {
	return r.version
}

// Controlling returns the generation requests are served from, and false
// until clients have been claimed.
func (r *Registry) Controlling() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.controlling {
		return "", false
	}
	return r.version, true
}

func (r *Registry) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Version:     r.version,
		Phase:       r.phase,
		Generations: slices.Clone(r.generations),
		Controlling: r.controlling,
		InstalledAt: r.installedAt,
		ActivatedAt: r.activatedAt,
	}
}

func (r *Registry) transition(from, to Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrPhase, from, to, r.phase)
	}
	r.phase = to
	return nil
}

func (r *Registry) setPhase(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = p
}

func (r *Registry) installed(generations []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseInstalled
	r.generations = generations
	r.installedAt = time.Now().UTC()
}

func (r *Registry) claim() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseActivated
	r.generations = []string{r.version}
	r.controlling = true
	r.activatedAt = time.Now().UTC()
}
