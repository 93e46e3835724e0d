// Package raftfsm wires pgraph's transaction surface into a hashicorp/raft
// finite state machine, replicating the seven batch write variants across
// a cluster.
package raftfsm

import "github.com/pgraph/pgraph/pkg/graph"

// Op names the seven batch write variants the replication harness supports.
type Op string

const (
	OpCreateCards      Op = "create_cards"
	OpUpdateCards      Op = "update_cards"
	OpUpdateCardTitles Op = "update_card_titles"
	OpPatchCardFields  Op = "patch_card_fields"
	OpCreateLinks      Op = "create_links"
	OpUpdateLinks      Op = "update_links"
	OpDeleteLinks      Op = "delete_links"
)

// Command is one Raft log entry: an Op tag plus its gob-encoded payload.
type Command struct {
	Op   Op
	Data []byte
}

// TitleUpdate is one entry of a batch title update.
type TitleUpdate struct {
	CardID graph.CardId
	Title  graph.Title
}

// FieldPatch is one entry of a batch partial field update: an optional
// value per field, where absence leaves the field unchanged.
type FieldPatch struct {
	CardID graph.CardId
	Fields map[graph.FieldId]*graph.FieldValue
}

// LinkWrite is one entry of a batch link create/update.
type LinkWrite struct {
	Edge graph.Edge
	Dir  graph.Direction // direction Update resolves existence against
}

// LinkDelete is one entry of a batch link delete.
type LinkDelete struct {
	Edge graph.Edge
}

// Summary is the structured success/failure result every batch handler
// returns: successes commit, failures are collected per
// entity so callers can retry only failing items.
type Summary struct {
	SuccessCount int
	FailedIDs    []graph.CardId  `json:"failed_ids,omitempty"`
	FailedLinks  []graph.EdgeKey `json:"failed_links,omitempty"`
	Errors       []string
}
