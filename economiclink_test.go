package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestEconomicLinkGraphCreateAndChildrenOf(t *testing.T) {
	storage := newTestStorage(t)
	graph := NewEconomicLinkGraph(storage)
	po := ArtifactRef{Type: "PurchaseOrder", ID: "po-1"}
	receipt := ArtifactRef{Type: "Receipt", ID: "rcpt-1"}

	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := graph.CreateTx(tx, po, receipt, "fulfills", nil)
		return err
	}))

	children, err := graph.ChildrenOf(po)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, receipt, children[0].ChildRef)
}

func TestEconomicLinkGraphRejectsCycle(t *testing.T) {
	storage := newTestStorage(t)
	graph := NewEconomicLinkGraph(storage)
	a := ArtifactRef{Type: "Artifact", ID: "a"}
	b := ArtifactRef{Type: "Artifact", ID: "b"}

	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := graph.CreateTx(tx, a, b, "rel", nil)
		return err
	}))

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := graph.CreateTx(tx, b, a, "rel", nil)
		return err
	})
	assert.Error(t, err)
}

func TestEconomicLinkGraphRejectsSelfLoop(t *testing.T) {
	storage := newTestStorage(t)
	graph := NewEconomicLinkGraph(storage)
	a := ArtifactRef{Type: "Artifact", ID: "a"}

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := graph.CreateTx(tx, a, a, "rel", nil)
		return err
	})
	assert.Error(t, err)
}
