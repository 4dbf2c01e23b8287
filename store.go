package wayland

import (
	"sync"

	"github.com/Zereker/wayland/wire"
)

// Role selects which side of the object id space a connection allocates from.
type Role int

const (
	// RoleServer allocates ids in [0xFF000000, 0xFFFFFFFF).
	RoleServer Role = iota
	// RoleClient allocates ids in [2, 0xFEFFFFFF]; id 1 is the display.
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Store maps the live object ids of one connection to their handlers and
// allocates ids for objects created by this side.
type Store struct {
	role    Role
	mu      sync.RWMutex
	objects map[wire.ObjectID]Dispatcher
	next    uint64
	limit   uint64
}

// NewStore returns an empty store allocating ids for role.
func NewStore(role Role) *Store {
	s := &Store{role: role, objects: make(map[wire.ObjectID]Dispatcher)}
	if role == RoleClient {
		s.next, s.limit = uint64(wire.DisplayID)+1, uint64(wire.ClientIDMax)+1
	} else {
		s.next, s.limit = uint64(wire.ServerIDMin), uint64(wire.ServerIDMax)
	}
	return s
}

// Insert registers handler under id. A live id cannot be reused.
func (s *Store) Insert(id wire.ObjectID, handler Dispatcher) error {
	if id == 0 {
		return wire.ErrInvalidSenderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[id]; ok {
		return wire.DuplicateObject(id)
	}
	s.objects[id] = handler
	return nil
}

// InsertPeer registers handler under an id allocated by the peer, as carried
// by a new_id argument. Ids outside the peer's side of the id space are a
// protocol error.
func (s *Store) InsertPeer(id wire.ObjectID, handler Dispatcher) error {
	if err := s.checkPeerID(id); err != nil {
		return err
	}
	return s.Insert(id, handler)
}

func (s *Store) checkPeerID(id wire.ObjectID) error {
	if id == 0 {
		return wire.ErrInvalidSenderID
	}
	if peerServer := s.role == RoleClient; id.IsServer() != peerServer {
		return wire.Malformed("new id %#x outside the %s id range", uint32(id), s.peer())
	}
	return nil
}

func (s *Store) peer() Role {
	if s.role == RoleClient {
		return RoleServer
	}
	return RoleClient
}

// Get returns the handler of id.
func (s *Store) Get(id wire.ObjectID) (Dispatcher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.objects[id]
	return h, ok
}

// Remove forgets id. Removing an unknown id is a no-op.
func (s *Store) Remove(id wire.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, id)
}

// Len returns the number of live objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}

// NextID allocates a fresh id. Ids are never reused within a connection.
func (s *Store) NextID() (wire.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= s.limit {
		return 0, wire.ErrIDExhausted
	}
	id := wire.ObjectID(s.next)
	s.next++
	return id, nil
}
