package main

import (
	crand "crypto/rand"
	"sync"
)

const (
	// Digits 2-9 and uppercase letters, excluding 0/1/I/L/O.
	codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	codeLength   = 4
	codeRetries  = 100
)

// RoomStore owns every live room, keyed by code. It is handed to the
// gateway rather than living as a package-level singleton.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	// newCode is swapped out in tests to force collisions.
	newCode func() string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*Room),
		newCode: randomCode,
	}
}

// randomCode draws four symbols from the code alphabet via crypto/rand,
// mirroring how game IDs are minted elsewhere; uniqueness is the store's job.
func randomCode() string {
	buf := make([]byte, codeLength)
	if _, err := crand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, codeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(out)
}

// Create allocates a fresh unique code, inserts an empty room built around
// the given deck, and returns it. Allocation fails closed after a bounded
// number of collisions instead of looping forever.
func (s *RoomStore) Create(deck []Question) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range codeRetries {
		code := s.newCode()
		if _, exists := s.rooms[code]; exists {
			continue
		}
		room := newRoom(code, deck)
		s.rooms[code] = room
		return room, nil
	}

	return nil, errCodeSpace
}

func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// All returns the current rooms; used by the status endpoints and the
// idle reaper.
func (s *RoomStore) All() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
