package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceAllocatorNextIsMonotonicPerStream(t *testing.T) {
	storage := newTestStorage(t)
	alloc := NewSequenceAllocator(storage)

	a1, err := alloc.Next("journal:GL")
	require.NoError(t, err)
	a2, err := alloc.Next("journal:GL")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a1)
	assert.Equal(t, uint64(2), a2)
}

func TestSequenceAllocatorStreamsAreIndependent(t *testing.T) {
	storage := newTestStorage(t)
	alloc := NewSequenceAllocator(storage)

	glFirst, err := alloc.Next("journal:GL")
	require.NoError(t, err)
	apFirst, err := alloc.Next("journal:AP")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), glFirst)
	assert.Equal(t, uint64(1), apFirst)
}

func TestSequenceAllocatorPeekDoesNotAllocate(t *testing.T) {
	storage := newTestStorage(t)
	alloc := NewSequenceAllocator(storage)

	before, err := alloc.Peek("journal:GL")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), before)

	_, err = alloc.Next("journal:GL")
	require.NoError(t, err)

	after, err := alloc.Peek("journal:GL")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), after)

	again, err := alloc.Peek("journal:GL")
	require.NoError(t, err)
	assert.Equal(t, after, again)
}
