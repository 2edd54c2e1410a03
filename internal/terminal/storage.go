package terminal

import (
	"sort"
	"sync"

	"terminalsim/pkg/apperror"
)

// storedContainer pairs a Container with the added/departure times it was
// indexed under, matching the (added_time, departure_time, next_destination)
// key original_source/terminal.cpp inserts into ContainerMap with.
type storedContainer struct {
	container Container
	addedTime float64
	departure float64
}

// Storage is the opaque, thread-safe container collection every Terminal
// owns (spec.md §3's "container storage": an opaque collection of container
// records with indexes by added-time, departure-time, and
// next-destination). The persistent backend named in spec.md §1 as an
// external collaborator can replace this in-memory default by satisfying
// the same interface — see internal/store/postgres for a concrete one.
type Storage interface {
	Add(c Container, addedTime, departureTime float64)
	Count() int
	ByDepartingTime(t float64, condition string) ([]Container, error)
	ByAddedTime(t float64, condition string) ([]Container, error)
	ByNextDestination(dest string) []Container
	DequeueByNextDestination(dest string) []Container
	Clear()
}

// memoryStorage is the default in-memory Storage implementation.
type memoryStorage struct {
	mu    sync.RWMutex
	items map[string]*storedContainer
}

// NewMemoryStorage creates an empty in-memory container store.
func NewMemoryStorage() Storage {
	return &memoryStorage{items: make(map[string]*storedContainer)}
}

func (s *memoryStorage) Add(c Container, addedTime, departureTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c.ID()] = &storedContainer{container: c, addedTime: addedTime, departure: departureTime}
}

func (s *memoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var validConditions = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true}

func compare(a, b float64, condition string) bool {
	switch condition {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "==":
		return a == b
	case "!=":
		return a != b
	default:
		return false
	}
}

// sortedIDs returns storage keys in a deterministic order so query results
// are reproducible across calls, since Go map iteration order is not.
func (s *memoryStorage) sortedIDs() []string {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *memoryStorage) ByDepartingTime(t float64, condition string) ([]Container, error) {
	if !validConditions[condition] {
		return nil, apperror.New(apperror.CodeInvalidArgs, "invalid condition: "+condition+". Must be one of: <, <=, >, >=, ==, !=")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Container
	for _, id := range s.sortedIDs() {
		sc := s.items[id]
		if compare(sc.departure, t, condition) {
			out = append(out, sc.container)
		}
	}
	return out, nil
}

func (s *memoryStorage) ByAddedTime(t float64, condition string) ([]Container, error) {
	if !validConditions[condition] {
		return nil, apperror.New(apperror.CodeInvalidArgs, "invalid condition: "+condition+". Must be one of: <, <=, >, >=, ==, !=")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Container
	for _, id := range s.sortedIDs() {
		sc := s.items[id]
		if compare(sc.addedTime, t, condition) {
			out = append(out, sc.container)
		}
	}
	return out, nil
}

func (s *memoryStorage) ByNextDestination(dest string) []Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Container
	for _, id := range s.sortedIDs() {
		sc := s.items[id]
		if loc, ok := sc.container.GetVariable("next_destination"); ok {
			if s, ok := loc.(string); ok && s == dest {
				out = append(out, sc.container)
			}
		}
	}
	return out
}

func (s *memoryStorage) DequeueByNextDestination(dest string) []Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Container
	for _, id := range s.sortedIDs() {
		sc := s.items[id]
		if loc, ok := sc.container.GetVariable("next_destination"); ok {
			if ls, ok := loc.(string); ok && ls == dest {
				out = append(out, sc.container)
				delete(s.items, id)
			}
		}
	}
	return out
}

func (s *memoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*storedContainer)
}
