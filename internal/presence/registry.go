// Package presence tracks which usernames are bound to live connections,
// which pool (online or offline) they sit in, and who is paired with whom.
package presence

import (
	"sort"
	"sync"
)

// Pool identifies a partition of the registry.
type Pool int

const (
	// PoolNone marks a bound username outside both pools, e.g. a candidate
	// taken out of its pool by a pairing.
	PoolNone Pool = iota
	PoolOnline
	PoolOffline
	// PoolAny matches either pool in lookups.
	PoolAny
)

func (p Pool) String() string {
	switch p {
	case PoolOnline:
		return "online"
	case PoolOffline:
		return "offline"
	case PoolAny:
		return "any"
	default:
		return "none"
	}
}

func (p Pool) opposite() Pool {
	switch p {
	case PoolOnline:
		return PoolOffline
	case PoolOffline:
		return PoolOnline
	default:
		return PoolNone
	}
}

// Pairing is one side of a mutual partner relation.
type Pairing struct {
	Partner     string
	PartnerConn string
}

// Match describes a pairing formed by a transition.
type Match struct {
	User        string
	UserConn    string
	Partner     string
	PartnerConn string
}

// Transition reports the outcome of a registration.
type Transition struct {
	Username string
	Pool     Pool
	// Match is nil when no pairing was formed.
	Match *Match
	// Dropped is the username the connection held before switching names.
	Dropped string
	// DroppedPartner lost its pairing with Dropped.
	DroppedPartner string
	Online         []string
}

// Removal reports the outcome of removing a connection.
type Removal struct {
	Username string
	// Partner is the username whose pairing was dissolved, if any.
	Partner string
	Online  []string
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Online   int
	Offline  int
	Pairings int
}

type entry struct {
	username   string
	connID     string
	pool       Pool
	pairedWith string
	seq        uint64
}

// Registry owns presence and pairing state. All methods are safe for
// concurrent use; each call is a single critical section.
type Registry struct {
	mu    sync.Mutex
	users map[string]*entry
	conns map[string]string
	seq   uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*entry),
		conns: make(map[string]string),
	}
}

// RegisterOnline binds connID to username in the online pool and searches
// the offline pool for a partner.
func (r *Registry) RegisterOnline(connID, username string) Transition {
	return r.register(connID, username, PoolOnline)
}

// RegisterOffline binds connID to username in the offline pool and searches
// the online pool for a partner.
func (r *Registry) RegisterOffline(connID, username string) Transition {
	return r.register(connID, username, PoolOffline)
}

func (r *Registry) register(connID, username string, pool Pool) Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := Transition{Username: username, Pool: pool}
	if previous, ok := r.conns[connID]; ok && previous != username {
		t.Dropped = previous
		t.DroppedPartner = r.dropLocked(previous)
	}

	e, ok := r.users[username]
	if !ok {
		e = &entry{username: username}
		r.users[username] = e
	}
	if e.connID != "" && e.connID != connID {
		delete(r.conns, e.connID)
	}
	e.connID = connID
	r.conns[connID] = username

	if e.pool != pool {
		r.seq++
		e.pool = pool
		e.seq = r.seq
	}

	if e.pairedWith == "" {
		if candidate := r.candidateLocked(e, pool.opposite()); candidate != nil {
			e.pairedWith = candidate.username
			candidate.pairedWith = e.username
			candidate.pool = PoolNone
			t.Match = &Match{
				User:        e.username,
				UserConn:    e.connID,
				Partner:     candidate.username,
				PartnerConn: candidate.connID,
			}
		}
	}
	t.Online = r.poolLocked(PoolOnline)
	return t
}

// candidateLocked returns the longest-waiting unpaired member of pool other than e.
func (r *Registry) candidateLocked(e *entry, pool Pool) *entry {
	var best *entry
	for _, c := range r.users {
		if c == e || c.pool != pool || c.pairedWith != "" {
			continue
		}
		if best == nil || c.seq < best.seq {
			best = c
		}
	}
	return best
}

// Remove unbinds connID, dissolving any pairing its username holds.
func (r *Registry) Remove(connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.conns[connID]
	if !ok {
		return Removal{}, false
	}
	partner := r.dropLocked(username)
	return Removal{
		Username: username,
		Partner:  partner,
		Online:   r.poolLocked(PoolOnline),
	}, true
}

func (r *Registry) dropLocked(username string) string {
	e, ok := r.users[username]
	if !ok {
		return ""
	}
	partner := e.pairedWith
	if p, ok := r.users[partner]; ok && p.pairedWith == username {
		p.pairedWith = ""
	}
	if r.conns[e.connID] == username {
		delete(r.conns, e.connID)
	}
	delete(r.users, username)
	return partner
}

// LookupUsername returns the username bound to connID.
func (r *Registry) LookupUsername(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.conns[connID]
	return username, ok
}

// LookupConnection returns the connection of username if it sits in pool.
func (r *Registry) LookupConnection(username string, pool Pool) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[username]
	if !ok {
		return "", false
	}
	switch pool {
	case PoolAny:
		if e.pool == PoolNone {
			return "", false
		}
	default:
		if e.pool != pool {
			return "", false
		}
	}
	return e.connID, true
}

// Pairing returns the active pairing of username.
func (r *Registry) Pairing(username string) (Pairing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[username]
	if !ok || e.pairedWith == "" {
		return Pairing{}, false
	}
	p := Pairing{Partner: e.pairedWith}
	if partner, ok := r.users[e.pairedWith]; ok {
		p.PartnerConn = partner.connID
	}
	return p, true
}

// Resolve returns the live connection of username: through its pairing
// first, then through the online pool.
func (r *Registry) Resolve(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[username]
	if !ok {
		return "", false
	}
	if partner, ok := r.users[e.pairedWith]; ok && partner.pairedWith == username {
		return e.connID, true
	}
	if e.pool == PoolOnline {
		return e.connID, true
	}
	return "", false
}

// Online returns the online pool in pool-join order.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolLocked(PoolOnline)
}

// Stats counts pool members and pairings.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	paired := 0
	for _, e := range r.users {
		switch e.pool {
		case PoolOnline:
			s.Online++
		case PoolOffline:
			s.Offline++
		}
		if e.pairedWith != "" {
			paired++
		}
	}
	s.Pairings = paired / 2
	return s
}

func (r *Registry) poolLocked(pool Pool) []string {
	members := make([]*entry, 0, len(r.users))
	for _, e := range r.users {
		if e.pool == pool {
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	names := make([]string, 0, len(members))
	for _, e := range members {
		names = append(names, e.username)
	}
	return names
}
