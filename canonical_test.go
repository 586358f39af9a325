package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPayloadHashIsStableUnderKeyOrder(t *testing.T) {
	a := map[string]interface{}{"amount": "10.00", "vendor_id": "v1"}
	b := map[string]interface{}{"vendor_id": "v1", "amount": "10.00"}

	hashA, err := CanonicalPayloadHash(a)
	require.NoError(t, err)
	hashB, err := CanonicalPayloadHash(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestCanonicalPayloadHashDiffersOnValueChange(t *testing.T) {
	a := map[string]interface{}{"amount": "10.00"}
	b := map[string]interface{}{"amount": "10.01"}

	hashA, err := CanonicalPayloadHash(a)
	require.NoError(t, err)
	hashB, err := CanonicalPayloadHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestChainHashLinksPriorNode(t *testing.T) {
	h1 := ChainHash("payload-1", "")
	h2 := ChainHash("payload-2", h1)
	h2Again := ChainHash("payload-2", h1)

	assert.Equal(t, h2, h2Again)

	h2DifferentPrev := ChainHash("payload-2", "")
	assert.NotEqual(t, h2, h2DifferentPrev)
}

func TestCanonicalizeSortsNestedObjectKeys(t *testing.T) {
	v := map[string]interface{}{
		"z": 1,
		"a": map[string]interface{}{"y": 2, "b": 1},
	}
	out, err := canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":1,"y":2},"z":1}`, string(out))
}
