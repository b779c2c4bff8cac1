package hub

import (
	"strings"
	"sync"
)

// State roots reachable through an Accessor.
const (
	RootProps = "props"
	RootData  = "data"
)

var _ Accessor = (*State)(nil)

// State is a nested-map store with a "props" root (configuration) and a
// "data" root (runtime values). Modules embed it to satisfy Accessor and
// Snapshotter.
type State struct {
	mu    sync.RWMutex
	roots map[string]map[string]any
}

// NewState copies props and data into a new State.
func NewState(props, data map[string]any) *State {
	return &State{
		roots: map[string]map[string]any{
			RootProps: copyMap(props),
			RootData:  copyMap(data),
		},
	}
}

// Get resolves a dotted path such as "props.counter".
func (s *State) Get(path string) (any, bool) {
	segs := strings.Split(path, ".")
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.roots[segs[0]]
	if !ok {
		return nil, false
	}
	var cur any = root
	for _, seg := range segs[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return copyValue(cur), true
}

// Set assigns value at path. Every intermediate segment must already exist
// and be a map; only the final segment may be created.
func (s *State) Set(path string, value any) error {
	segs := strings.Split(path, ".")
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.parentOf(segs)
	if err != nil {
		return err
	}
	parent[segs[len(segs)-1]] = value
	return nil
}

// Update replaces the value at path with fn(current) under the write lock,
// so no Set can interleave. ok reports whether path held a value. Path rules
// are those of Set.
func (s *State) Update(path string, fn func(current any, ok bool) any) (any, error) {
	segs := strings.Split(path, ".")
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.parentOf(segs)
	if err != nil {
		return nil, err
	}
	key := segs[len(segs)-1]
	cur, ok := parent[key]
	next := fn(copyValue(cur), ok)
	parent[key] = next
	return copyValue(next), nil
}

// parentOf resolves the map holding the last segment. Callers hold mu.
func (s *State) parentOf(segs []string) (map[string]any, error) {
	if len(segs) < 2 {
		return nil, ErrPathNotFound
	}
	cur, ok := s.roots[segs[0]]
	if !ok {
		return nil, ErrUnknownRoot
	}
	for _, seg := range segs[1 : len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return nil, ErrPathNotFound
		}
		cur = next
	}
	return cur, nil
}

// Snapshot returns a deep copy of both roots.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.roots))
	for k, v := range s.roots {
		out[k] = copyMap(v)
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
