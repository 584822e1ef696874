package session

import (
	"sync"

	"connectfour/internal/types"
)

// Matches indexes running matches by id and by participating client.
type Matches struct {
	mu       sync.RWMutex
	byID     map[string]*Match
	byClient map[*types.Client]*Match
}

func NewMatches() *Matches {
	return &Matches{
		byID:     make(map[string]*Match),
		byClient: make(map[*types.Client]*Match),
	}
}

func (ms *Matches) Add(m *Match) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.byID[m.ID] = m
	for _, h := range m.Humans() {
		ms.byClient[h.Client] = m
	}
}

func (ms *Matches) ByClient(c *types.Client) (*Match, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	m, ok := ms.byClient[c]
	return m, ok
}

// Delete removes the match. Only the first call for a given id returns
// true, so teardown runs once.
func (ms *Matches) Delete(id string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m, ok := ms.byID[id]
	if !ok {
		return false
	}
	delete(ms.byID, id)
	for _, h := range m.Humans() {
		if ms.byClient[h.Client] == m {
			delete(ms.byClient, h.Client)
		}
	}
	return true
}

func (ms *Matches) Count() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.byID)
}
