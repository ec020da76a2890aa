package hub

import (
	"sort"
	"sync"
)

// Registry tracks which connections belong to which named groups.
//
// Membership is many-to-many. Every operation is idempotent: joining twice,
// leaving a group never joined, or dropping an unknown connection is a no-op.
// A group with no remaining members is removed.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{} // group -> conn ids
	conns  map[string]map[string]struct{} // conn id -> groups
}

// NewRegistry creates an empty group registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to group, creating the group on first join.
func (r *Registry) Join(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[connID] = struct{}{}

	joined, ok := r.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[group] = struct{}{}
}

// Leave removes connID from group.
func (r *Registry) Leave(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, group)
}

func (r *Registry) leaveLocked(connID, group string) {
	if members, ok := r.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
}

// DropConnection removes connID from every group it belongs to.
// It returns the groups the connection was removed from.
func (r *Registry) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.conns[connID]
	dropped := make([]string, 0, len(joined))
	for group := range joined {
		dropped = append(dropped, group)
	}
	for _, group := range dropped {
		r.leaveLocked(connID, group)
	}
	sort.Strings(dropped)
	return dropped
}

// MembersOf returns a snapshot of the connections in group.
// The returned slice is owned by the caller.
func (r *Registry) MembersOf(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[group]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether connID currently belongs to group.
func (r *Registry) IsMember(connID, group string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[group][connID]
	return ok
}

// GroupsOf returns the sorted groups connID belongs to.
func (r *Registry) GroupsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.conns[connID]
	out := make([]string, 0, len(joined))
	for group := range joined {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

// Groups returns member counts for every non-empty group.
func (r *Registry) Groups() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.groups))
	for group, members := range r.groups {
		out[group] = len(members)
	}
	return out
}

// GroupCount returns the number of non-empty groups.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
