// Package stem owns the decoded per-stem audio buffers and their mix state.
package stem

import (
	"sort"
	"sync"

	"github.com/stemjam/stemjam/internal/audio"
)

// Stem is one isolated instrument/vocal track with its mix parameters.
type Stem struct {
	Name   string
	Buffer *audio.Buffer
	Volume float64 // [0,1]
	Pan    float64 // [-1,1]
	Muted  bool
	Solo   bool
}

// Registry is the single owner of stem buffers and mix state. All methods
// are safe for concurrent use; mutations are atomic with respect to a
// single read.
type Registry struct {
	mu    sync.RWMutex
	stems map[string]*Stem
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stems: make(map[string]*Stem)}
}

// Add registers a stem with a decoded buffer at full volume, centered.
// Re-adding a name replaces its buffer but keeps the existing mix state.
func (r *Registry) Add(name string, buf *audio.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stems[name]; ok {
		s.Buffer = buf
		return
	}
	r.stems[name] = &Stem{Name: name, Buffer: buf, Volume: 1}
}

// Remove drops a stem. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stems, name)
}

// Clear drops every stem.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stems = make(map[string]*Stem)
}

// Names returns the registered stem names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stems))
	for name := range r.stems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a copy of the stem's state.
func (r *Registry) Get(name string) (Stem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stems[name]
	if !ok {
		return Stem{}, false
	}
	return *s, true
}

// Buffer returns the stem's decoded buffer, or nil when absent or unloaded.
func (r *Registry) Buffer(name string) *audio.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stems[name]; ok {
		return s.Buffer
	}
	return nil
}

// SetVolume sets the stem's volume, clamped to [0,1].
func (r *Registry) SetVolume(name string, v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stems[name]; ok {
		s.Volume = v
	}
}

// SetPan sets the stem's pan position, clamped to [-1,1].
func (r *Registry) SetPan(name string, p float64) {
	if p < -1 {
		p = -1
	} else if p > 1 {
		p = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stems[name]; ok {
		s.Pan = p
	}
}

// ToggleMute flips the stem's mute flag and returns the new value.
func (r *Registry) ToggleMute(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stems[name]; ok {
		s.Muted = !s.Muted
		return s.Muted
	}
	return false
}

// ToggleSolo flips the stem's solo flag and returns the new value.
func (r *Registry) ToggleSolo(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stems[name]; ok {
		s.Solo = !s.Solo
		return s.Solo
	}
	return false
}

// EffectiveGain returns the gain the mixer should apply to the stem: zero
// when the stem is muted, or when any stem is soloed and this one is not.
func (r *Registry) EffectiveGain(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stems[name]
	if !ok || s.Muted {
		return 0
	}
	if r.anySoloLocked() && !s.Solo {
		return 0
	}
	return s.Volume
}

// Snapshot returns a copy of every stem's state in stable name order.
func (r *Registry) Snapshot() []Stem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stems))
	for name := range r.stems {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Stem, 0, len(names))
	for _, name := range names {
		out = append(out, *r.stems[name])
	}
	return out
}

func (r *Registry) anySoloLocked() bool {
	for _, s := range r.stems {
		if s.Solo {
			return true
		}
	}
	return false
}
