package keys

import "sync"

type counterKey struct {
	entity string
	column string
}

// State holds the per (entity, column) counters of one seeding session. Counters only
// move up: Next issues above the floor and above every value seen by Observe.
type State struct {
	mu       sync.Mutex
	counters map[counterKey]int64
	floors   map[counterKey]int64
	primed   map[counterKey]bool
}

func NewState() *State {
	return &State{
		counters: make(map[counterKey]int64),
		floors:   make(map[counterKey]int64),
		primed:   make(map[counterKey]bool),
	}
}

// SetFloor sets the value above which keys of (entity, column) are issued.
func (s *State) SetFloor(entity, column string, floor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{entity, column}
	s.floors[k] = floor
	if c, ok := s.counters[k]; !ok || c < floor {
		s.counters[k] = floor
	}
}

// Next issues the next key value of (entity, column).
func (s *State) Next(entity, column string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{entity, column}
	c := s.counters[k]
	if f := s.floors[k]; c < f {
		c = f
	}
	c++
	s.counters[k] = c
	return c
}

// Observe raises the counter of (entity, column) to v so that v is never issued.
func (s *State) Observe(entity, column string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{entity, column}
	if c, ok := s.counters[k]; !ok || c < v {
		s.counters[k] = v
	}
}

// Peek returns the last issued or observed value without advancing.
func (s *State) Peek(entity, column string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{entity, column}
	c := s.counters[k]
	if f := s.floors[k]; c < f {
		return f
	}
	return c
}

// Reset returns every counter of entity to its floor.
func (s *State) Reset(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.counters {
		if k.entity == entity {
			s.counters[k] = s.floors[k]
		}
	}
}

// ResetAll returns every counter to its floor.
func (s *State) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.counters {
		s.counters[k] = s.floors[k]
	}
}

// Clear drops the counters and floors of entity.
func (s *State) Clear(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.counters {
		if k.entity == entity {
			delete(s.counters, k)
		}
	}
	for k := range s.floors {
		if k.entity == entity {
			delete(s.floors, k)
		}
	}
	for k := range s.primed {
		if k.entity == entity {
			delete(s.primed, k)
		}
	}
}

func (s *State) isPrimed(entity, column string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primed[counterKey{entity, column}]
}

func (s *State) markPrimed(entity, column string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primed[counterKey{entity, column}] = true
}
