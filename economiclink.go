package ledger

// Economic link graph: directed, immutable edges between artifacts
// (receipt -> PO, payment -> invoice, reversal -> original). Grounded on
// the teacher's forensic TransactionGraph/GraphNode/GraphEdge shapes,
// generalized into a general-purpose artifact DAG with cycle detection
// at insertion time.

import (
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// EconomicLink is one directed, immutable edge in the artifact graph.
type EconomicLink struct {
	ID        string            `json:"id"`
	ParentRef ArtifactRef       `json:"parent_ref"`
	ChildRef  ArtifactRef       `json:"child_ref"`
	LinkType  string            `json:"link_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// EconomicLinkGraph owns the link bucket and its by-parent adjacency
// index, and enforces that no insertion creates a cycle.
type EconomicLinkGraph struct {
	storage *Storage
}

// NewEconomicLinkGraph binds a graph to storage.
func NewEconomicLinkGraph(storage *Storage) *EconomicLinkGraph {
	return &EconomicLinkGraph{storage: storage}
}

// CreateTx inserts a new edge after checking that parent -> child does
// not already reach back to parent (which would close a cycle).
func (g *EconomicLinkGraph) CreateTx(tx *bbolt.Tx, parent, child ArtifactRef, linkType string, metadata map[string]string) (*EconomicLink, error) {
	reaches, err := reachesTx(tx, child, parent)
	if err != nil {
		return nil, err
	}
	if reaches || parent == child {
		return nil, fmt.Errorf("economic link %s -> %s (%s) would create a cycle", parent, child, linkType)
	}

	link := &EconomicLink{
		ID:        uuid.New().String(),
		ParentRef: parent,
		ChildRef:  child,
		LinkType:  linkType,
		Metadata:  metadata,
		CreatedAt: nowUTCString(),
	}
	if err := putJSON(tx, bucketEconomicLinks, link.ID, link); err != nil {
		return nil, err
	}

	var childIDs []string
	parentKey := parent.String()
	_ = getJSON(tx, bucketLinksByParent, parentKey, &childIDs)
	childIDs = append(childIDs, link.ID)
	if err := putJSON(tx, bucketLinksByParent, parentKey, childIDs); err != nil {
		return nil, err
	}
	return link, nil
}

// reachesTx performs a breadth-first search from start looking for
// target along parent -> child edges, detecting whether inserting an
// edge target -> start would close a cycle.
func reachesTx(tx *bbolt.Tx, start, target ArtifactRef) (bool, error) {
	visited := map[ArtifactRef]bool{start: true}
	queue := []ArtifactRef{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true, nil
		}
		var childIDs []string
		err := getJSON(tx, bucketLinksByParent, cur.String(), &childIDs)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return false, err
		}
		for _, linkID := range childIDs {
			var link EconomicLink
			if err := getJSON(tx, bucketEconomicLinks, linkID, &link); err != nil {
				return false, err
			}
			if !visited[link.ChildRef] {
				visited[link.ChildRef] = true
				queue = append(queue, link.ChildRef)
			}
		}
	}
	return false, nil
}

// ChildrenOf returns every artifact directly linked as a child of parent.
func (g *EconomicLinkGraph) ChildrenOf(parent ArtifactRef) ([]EconomicLink, error) {
	var links []EconomicLink
	err := g.storage.db.View(func(tx *bbolt.Tx) error {
		var childIDs []string
		if err := getJSON(tx, bucketLinksByParent, parent.String(), &childIDs); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		for _, id := range childIDs {
			var link EconomicLink
			if err := getJSON(tx, bucketEconomicLinks, id, &link); err != nil {
				return err
			}
			links = append(links, link)
		}
		return nil
	})
	return links, err
}
