package skill

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrCapabilityUnavailable = errors.New("capability unavailable")

// Capability names a collaborator a flow depends on. The value is also what
// the robot says when it is missing.
type Capability string

const (
	CapQueue      Capability = "patient queue"
	CapPatients   Capability = "patient records"
	CapRooms      Capability = "room directory"
	CapNavigation Capability = "navigation"
	CapMotion     Capability = "motion"
	CapArm        Capability = "arm"
	CapCamera     Capability = "camera"
	CapDiagnosis  Capability = "skin diagnosis"
	CapIdentity   Capability = "patient identification"
	CapDialog     Capability = "symptom dialog"
	CapNLU        Capability = "language understanding"
)

type slot struct {
	handle any
	reason string
}

// Registry records, for every capability, either the handle that serves it
// or the reason it could not be set up.
type Registry struct {
	mu    sync.RWMutex
	slots map[Capability]slot
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[Capability]slot)}
}

// Provide marks c present. A nil handle is recorded as absent.
func (r *Registry) Provide(c Capability, handle any) {
	if handle == nil {
		r.Absent(c, "no handle")
		return
	}
	r.mu.Lock()
	r.slots[c] = slot{handle: handle}
	r.mu.Unlock()
}

// Absent marks c unavailable; reason ends up in the log whenever a flow
// needs it.
func (r *Registry) Absent(c Capability, reason string) {
	if reason == "" {
		reason = "not configured"
	}
	r.mu.Lock()
	r.slots[c] = slot{reason: reason}
	r.mu.Unlock()
}

// Get returns the handle for c or an error wrapping ErrCapabilityUnavailable.
func (r *Registry) Get(c Capability) (any, error) {
	r.mu.RLock()
	s, ok := r.slots[c]
	r.mu.RUnlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s: never registered", ErrCapabilityUnavailable, c)
	case s.handle == nil:
		return nil, fmt.Errorf("%w: %s: %s", ErrCapabilityUnavailable, c, s.reason)
	}
	return s.handle, nil
}

// Require returns the first of caps that is unavailable.
func (r *Registry) Require(caps ...Capability) (Capability, error) {
	for _, c := range caps {
		if _, err := r.Get(c); err != nil {
			return c, err
		}
	}
	return "", nil
}

// Status reports presence per registered capability.
func (r *Registry) Status() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.slots))
	for c, s := range r.slots {
		out[string(c)] = s.handle != nil
	}
	return out
}

// Missing lists the absent capabilities, sorted.
func (r *Registry) Missing() []string {
	var out []string
	for name, ok := range r.Status() {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// lookup fetches c as T. A handle of the wrong type counts as unavailable.
func lookup[T any](r *Registry, c Capability) (T, error) {
	var zero T
	h, err := r.Get(c)
	if err != nil {
		return zero, err
	}
	v, ok := h.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: handle is %T", ErrCapabilityUnavailable, c, h)
	}
	return v, nil
}

func unavailableText(c Capability) string {
	return fmt.Sprintf("Sorry, my %s isn't available right now.", c)
}
