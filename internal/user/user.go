package user

import (
	"sort"
	"sync"
)

// Profile is the render-facing description of a user whose cursor may be
// shown.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Provider resolves user profiles and the viewer's own identity. Profiles
// resolve asynchronously upstream, so UserData may return nil entries for
// users that are not yet renderable; ViewerID reports ok=false until the
// viewer's identity has loaded.
type Provider interface {
	UserData(ids []string) map[string]*Profile
	ViewerID() (string, bool)
}

// StaticProvider is an in-memory Provider for tests and the demo binary.
type StaticProvider struct {
	mu       sync.RWMutex
	viewerID string
	loaded   bool
	profiles map[string]*Profile
	colors   *ColorGenerator
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		profiles: make(map[string]*Profile),
		colors:   NewColorGenerator(),
	}
}

// SetViewer marks the viewer identity as loaded.
func (p *StaticProvider) SetViewer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewerID = id
	p.loaded = true
}

// AddUser registers a profile, assigning it the next cursor color.
func (p *StaticProvider) AddUser(id, name string) *Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof, exists := p.profiles[id]
	if !exists {
		prof = &Profile{ID: id, Name: name, Color: p.colors.NextColor()}
		p.profiles[id] = prof
	}
	return prof
}

func (p *StaticProvider) UserData(ids []string) map[string]*Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]*Profile, len(ids))
	for _, id := range ids {
		out[id] = p.profiles[id] // nil when unknown
	}
	return out
}

func (p *StaticProvider) ViewerID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewerID, p.loaded
}

// SortedIDs returns map keys in a stable order, for deterministic rendering.
func SortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
