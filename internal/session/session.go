package session

import (
	"fmt"
	"sync"

	"connectfour/internal/types"
)

type Status int

const (
	Idle Status = iota
	Queued
	InMatch
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case InMatch:
		return "in_match"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Identity is what the server knows about a registered client.
type Identity struct {
	Name       string
	Status     Status
	PlayWithAI bool
	MatchID    string
}

// Registry maps live connections to identities. Names are unique among
// registered connections.
type Registry struct {
	mu       sync.RWMutex
	byClient map[*types.Client]*Identity
	byName   map[string]*types.Client
}

func NewRegistry() *Registry {
	return &Registry{
		byClient: make(map[*types.Client]*Identity),
		byName:   make(map[string]*types.Client),
	}
}

// Register binds c to name. Re-registering an already registered client
// renames it and updates its AI preference while keeping status and match;
// the previous identity is returned so the caller can evict stale state.
func (r *Registry) Register(c *types.Client, name string, playWithAI bool) (prev Identity, existed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.byName[name]; ok && holder != c {
		return Identity{}, false, &SessionError{Code: DuplicateName, Detail: fmt.Sprintf("%q is already taken", name)}
	}

	id, existed := r.byClient[c]
	if existed {
		prev = *id
		if id.Name != name {
			delete(r.byName, id.Name)
		}
		id.Name = name
		id.PlayWithAI = playWithAI
	} else {
		r.byClient[c] = &Identity{
			Name:       name,
			Status:     Idle,
			PlayWithAI: playWithAI,
		}
	}
	r.byName[name] = c
	return prev, existed, nil
}

// Unregister forgets c and releases its name.
func (r *Registry) Unregister(c *types.Client) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byClient[c]
	if !ok {
		return Identity{}, false
	}
	delete(r.byClient, c)
	if r.byName[id.Name] == c {
		delete(r.byName, id.Name)
	}
	return *id, true
}

func (r *Registry) Lookup(c *types.Client) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byClient[c]
	if !ok {
		return Identity{}, false
	}
	return *id, true
}

// Active reports whether c is still registered.
func (r *Registry) Active(c *types.Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byClient[c]
	return ok
}

// SetStatus updates the status of a registered client. matchID is kept
// only for InMatch.
func (r *Registry) SetStatus(c *types.Client, s Status, matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byClient[c]
	if !ok {
		return false
	}
	id.Status = s
	if s == InMatch {
		id.MatchID = matchID
	} else {
		id.MatchID = ""
	}
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClient)
}
