package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateAllocatesUniqueCodes(t *testing.T) {
	store := NewRoomStore()

	seen := make(map[string]bool)
	for range 50 {
		room, err := store.Create(nil)
		require.NoError(t, err)
		require.Len(t, room.code, codeLength)
		for _, r := range room.code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		assert.False(t, seen[room.code], "duplicate code %s", room.code)
		seen[room.code] = true
	}

	assert.Equal(t, 50, store.Count())
}

func TestStoreCreateFailsClosedOnCollision(t *testing.T) {
	store := NewRoomStore()
	store.newCode = func() string { return "AAAA" }

	first, err := store.Create(nil)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", first.code)

	_, err = store.Create(nil)
	assert.ErrorIs(t, err, errCodeSpace)
}

func TestStoreCodeReusableAfterDelete(t *testing.T) {
	store := NewRoomStore()
	store.newCode = func() string { return "BBBB" }

	_, err := store.Create(nil)
	require.NoError(t, err)

	store.Delete("BBBB")
	_, ok := store.Get("BBBB")
	assert.False(t, ok)

	again, err := store.Create(nil)
	require.NoError(t, err)
	assert.Equal(t, "BBBB", again.code)
}

func TestStoreGetMissing(t *testing.T) {
	store := NewRoomStore()
	_, ok := store.Get(strings.Repeat("Z", codeLength))
	assert.False(t, ok)
}
