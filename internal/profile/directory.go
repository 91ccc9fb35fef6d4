package profile

import "strings"

// Directory looks up profiles by identifier. It is built once per run and read-only.
type Directory struct {
	byID map[string]Profile
}

// NewDirectory indexes profiles by ID. When an ID repeats, the first profile wins.
func NewDirectory(profiles ...[]Profile) *Directory {
	d := &Directory{byID: make(map[string]Profile)}
	for _, group := range profiles {
		for _, p := range group {
			if _, exists := d.byID[p.ID]; !exists {
				d.byID[p.ID] = p
			}
		}
	}
	return d
}

// Get returns the profile for id and whether it was found.
func (d *Directory) Get(id string) (Profile, bool) {
	if d == nil {
		return Profile{}, false
	}
	p, ok := d.byID[id]
	return p, ok
}

// Len returns the number of indexed profiles.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byID)
}

// Resolve returns the display name for id, or id itself when the profile is unknown
// or has a blank name. It never fails.
func (d *Directory) Resolve(id string) string {
	p, ok := d.Get(id)
	if !ok {
		return id
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return id
	}
	return name
}

// ResolveAll maps Resolve over ids, preserving order.
func (d *Directory) ResolveAll(ids []string) []string {
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = d.Resolve(id)
	}
	return labels
}
