package wire

import "github.com/pgraph/pgraph/pkg/graph"

// BatchWriteRequest is the KindBatchWrite payload: an operation tag
// matching one of raftfsm's seven batch variants plus the
// gob-encoded item slice for that variant. The item slice is decoded
// against the concrete type the op expects (raftfsm.BatchCreateCards
// wants []*graph.Vertex, raftfsm.BatchUpdateCardTitles wants
// []raftfsm.TitleUpdate, and so on) before being forwarded to
// Cluster.Apply, since Apply re-encodes whatever payload it is given.
type BatchWriteRequest struct {
	Op    string
	Items []byte
}

// BatchWriteResponse carries a batch write's Summary back to the client.
type BatchWriteResponse struct {
	SuccessCount int
	FailedIDs    []graph.CardId
	FailedLinks  []graph.EdgeKey
	Errors       []string
}
