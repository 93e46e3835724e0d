package auth

import (
	"github.com/pgraph/pgraph/pkg/raftfsm"
	"github.com/pgraph/pgraph/pkg/wire"
)

// PermissionForKind returns the Permission required to serve a wire
// request of the given kind. wire.KindBatchWrite has no single answer
// here — its permission depends on the raftfsm.Op carried in the
// request's payload — so callers dispatching KindBatchWrite should check
// PermissionForOp against the decoded op instead.
func PermissionForKind(kind wire.PayloadKind) Permission {
	switch kind {
	case wire.KindQuery, wire.KindCount, wire.KindCardIDs, wire.KindCountByGroup:
		return PermQuery
	case wire.KindAdmin:
		return PermAdmin
	default:
		return PermAdmin
	}
}

// PermissionForOp returns the Permission required to apply one of the
// seven raftfsm batch write variants.
func PermissionForOp(op raftfsm.Op) Permission {
	switch op {
	case raftfsm.OpCreateCards, raftfsm.OpCreateLinks:
		return PermCreate
	case raftfsm.OpUpdateCards, raftfsm.OpUpdateCardTitles, raftfsm.OpPatchCardFields, raftfsm.OpUpdateLinks:
		return PermUpdate
	case raftfsm.OpDeleteLinks:
		return PermDelete
	default:
		return PermAdmin
	}
}
