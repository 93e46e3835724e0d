package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgraph/pgraph/pkg/auth"
	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/log"
	"github.com/pgraph/pgraph/pkg/query"
	"github.com/pgraph/pgraph/pkg/raftfsm"
	"github.com/pgraph/pgraph/pkg/txn"
	"github.com/pgraph/pgraph/pkg/wire"
)

// handler dispatches decoded wire.Request values to the query runtime, the
// raft-replicated batch writes, or the administrative surface. wire.Server
// only knows about framing; handler is where the domain logic lives.
type handler struct {
	store        *txn.Store
	cluster      *raftfsm.Cluster // nil when raft is disabled
	authr        *auth.Authenticator
	planCache    *query.PlanCache
	applyTimeout time.Duration
}

func (h *handler) AuthRequired() bool {
	return h.authr != nil && h.authr.IsSecurityEnabled()
}

// Authenticate validates the first request on a connection. A bearer
// token is checked against ValidateToken; otherwise Username/Password go
// through the normal login path. The resulting auth.Authorizer is
// threaded into every later Handle call on this connection so each
// request can be checked against the caller's role.
func (h *handler) Authenticate(req wire.Request) (interface{}, bool) {
	var authReq wire.AuthRequest
	if err := wire.DecodePayload(req.Payload, &authReq); err != nil {
		return nil, false
	}
	if authReq.Token != "" {
		claims, err := h.authr.ValidateToken(authReq.Token)
		if err != nil {
			return nil, false
		}
		return claims, true
	}
	_, user, err := h.authr.Authenticate(authReq.Username, authReq.Password, "", "")
	if err != nil {
		return nil, false
	}
	return user, true
}

func (h *handler) Handle(ctx context.Context, session interface{}, req wire.Request) wire.Response {
	authz, _ := session.(auth.Authorizer)

	// wire.KindBatchWrite has no single required permission — it depends
	// on the raftfsm.Op carried in the payload — so its check happens
	// inside handleBatchWrite once the op is decoded.
	if h.AuthRequired() && req.Kind != wire.KindBatchWrite {
		if authz == nil || !authz.HasPermission(auth.PermissionForKind(req.Kind)) {
			return wire.ErrorResponse(req.RequestID, wire.CodeUnauthorized, "insufficient role permissions")
		}
	}

	switch req.Kind {
	case wire.KindQuery:
		return h.handleQuery(req)
	case wire.KindCount:
		return h.handleCount(req)
	case wire.KindCardIDs:
		return h.handleCardIDs(req)
	case wire.KindCountByGroup:
		return h.handleCountByGroup(req)
	case wire.KindBatchWrite:
		return h.handleBatchWrite(authz, req)
	case wire.KindAdmin:
		return h.handleAdmin(req)
	default:
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, fmt.Sprintf("unknown request kind %q", req.Kind))
	}
}

func (h *handler) handleQuery(req wire.Request) wire.Response {
	var qreq query.QueryRequest
	if err := wire.DecodePayload(req.Payload, &qreq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}
	t := h.store.Begin()
	defer t.Rollback()

	result, err := query.Run(t, qreq)
	if err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeInternalError, err.Error())
	}
	return h.ok(req.RequestID, result)
}

func (h *handler) handleCount(req wire.Request) wire.Response {
	var creq wire.CountRequest
	if err := wire.DecodePayload(req.Payload, &creq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}
	t := h.store.Begin()
	defer t.Rollback()

	count, err := query.Count(t, creq.Scope, creq.Condition)
	if err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeInternalError, err.Error())
	}
	return h.ok(req.RequestID, wire.CountResponse{Count: count})
}

// handleCardIDs serves a card-id query, checking the plan cache by the
// scope/condition/sort shape before resolving candidates the long way.
func (h *handler) handleCardIDs(req wire.Request) wire.Response {
	var qreq query.QueryRequest
	if err := wire.DecodePayload(req.Payload, &qreq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}
	t := h.store.Begin()
	defer t.Rollback()

	shapeKey := h.planCache.Key(fmt.Sprintf("%+v", qreq))
	if cached, ok := h.planCache.Get(shapeKey); ok {
		return h.ok(req.RequestID, wire.CardIDsResponse{CardIDs: cached})
	}

	ids, err := query.CardIDs(t, qreq)
	if err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeInternalError, err.Error())
	}
	out := toUint64s(ids)
	h.planCache.Put(shapeKey, out)
	return h.ok(req.RequestID, wire.CardIDsResponse{CardIDs: out})
}

func toUint64s(ids []graph.CardId) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func (h *handler) handleCountByGroup(req wire.Request) wire.Response {
	var greq wire.CountByGroupRequest
	if err := wire.DecodePayload(req.Payload, &greq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}
	t := h.store.Begin()
	defer t.Rollback()

	groups, err := query.CountByGroup(t, greq.Scope, greq.Condition, greq.GroupBy)
	if err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeInternalError, err.Error())
	}
	return h.ok(req.RequestID, wire.CountByGroupResponse{Groups: groups})
}

// handleBatchWrite decodes the typed item slice matching Op and applies it
// either through Raft (replicated) or directly against the store
// (standalone mode). The op-specific permission (create/update/delete) is
// checked here rather than in Handle, since Op only becomes known once the
// payload is decoded.
func (h *handler) handleBatchWrite(authz auth.Authorizer, req wire.Request) wire.Response {
	var breq wire.BatchWriteRequest
	if err := wire.DecodePayload(req.Payload, &breq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}
	op := raftfsm.Op(breq.Op)

	if h.AuthRequired() {
		if authz == nil || !authz.HasPermission(auth.PermissionForOp(op)) {
			return wire.ErrorResponse(req.RequestID, wire.CodeUnauthorized, "insufficient role permissions")
		}
	}

	summary, err := h.applyBatch(op, breq.Items)
	if err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeInternalError, err.Error())
	}
	return h.ok(req.RequestID, wire.BatchWriteResponse{
		SuccessCount: summary.SuccessCount,
		FailedIDs:    summary.FailedIDs,
		FailedLinks:  summary.FailedLinks,
		Errors:       summary.Errors,
	})
}

func (h *handler) applyBatch(op raftfsm.Op, itemsGob []byte) (raftfsm.Summary, error) {
	switch op {
	case raftfsm.OpCreateCards:
		var cards []*graph.Vertex
		if err := wire.DecodePayload(itemsGob, &cards); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, cards, func() raftfsm.Summary { return raftfsm.BatchCreateCards(h.store, cards) })

	case raftfsm.OpUpdateCards:
		var cards []*graph.Vertex
		if err := wire.DecodePayload(itemsGob, &cards); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, cards, func() raftfsm.Summary { return raftfsm.BatchUpdateCards(h.store, cards) })

	case raftfsm.OpUpdateCardTitles:
		var updates []raftfsm.TitleUpdate
		if err := wire.DecodePayload(itemsGob, &updates); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, updates, func() raftfsm.Summary { return raftfsm.BatchUpdateCardTitles(h.store, updates) })

	case raftfsm.OpPatchCardFields:
		var patches []raftfsm.FieldPatch
		if err := wire.DecodePayload(itemsGob, &patches); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, patches, func() raftfsm.Summary { return raftfsm.BatchPatchCardFields(h.store, patches) })

	case raftfsm.OpCreateLinks:
		var writes []raftfsm.LinkWrite
		if err := wire.DecodePayload(itemsGob, &writes); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, writes, func() raftfsm.Summary { return raftfsm.BatchCreateLinks(h.store, writes) })

	case raftfsm.OpUpdateLinks:
		var writes []raftfsm.LinkWrite
		if err := wire.DecodePayload(itemsGob, &writes); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, writes, func() raftfsm.Summary { return raftfsm.BatchUpdateLinks(h.store, writes) })

	case raftfsm.OpDeleteLinks:
		var deletes []raftfsm.LinkDelete
		if err := wire.DecodePayload(itemsGob, &deletes); err != nil {
			return raftfsm.Summary{}, err
		}
		return h.apply(op, deletes, func() raftfsm.Summary { return raftfsm.BatchDeleteLinks(h.store, deletes) })

	default:
		return raftfsm.Summary{}, fmt.Errorf("pgraphd: unknown batch op %q", op)
	}
}

// apply runs standalone directly, or forwards through Raft when clustering
// is enabled — only the leader accepts writes.
func (h *handler) apply(op raftfsm.Op, payload interface{}, standalone func() raftfsm.Summary) (raftfsm.Summary, error) {
	if h.cluster == nil {
		return standalone(), nil
	}
	if !h.cluster.IsLeader() {
		return raftfsm.Summary{}, fmt.Errorf("pgraphd: not the leader, current leader at %s", h.cluster.LeaderAddr())
	}
	resp, err := h.cluster.Apply(op, payload, h.applyTimeout)
	if err != nil {
		return raftfsm.Summary{}, err
	}
	summary, ok := resp.(raftfsm.Summary)
	if !ok {
		return raftfsm.Summary{}, fmt.Errorf("pgraphd: unexpected apply response type %T", resp)
	}
	return summary, nil
}

// handleAdmin serves the administrative surface: update_log_level and
// database_stats.
func (h *handler) handleAdmin(req wire.Request) wire.Response {
	var areq wire.AdminRequest
	if err := wire.DecodePayload(req.Payload, &areq); err != nil {
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
	}

	switch areq.Op {
	case wire.AdminUpdateLogLevel:
		if err := applyLogLevel(areq.Level); err != nil {
			return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, err.Error())
		}
		return h.ok(req.RequestID, struct{}{})

	case wire.AdminDatabaseStats:
		return h.ok(req.RequestID, h.databaseStats(areq.IncludeDetails))

	default:
		return wire.ErrorResponse(req.RequestID, wire.CodeMalformed, fmt.Sprintf("unknown admin op %q", areq.Op))
	}
}

// applyLogLevel parses either a bare level word or a comma list of
// target=level pairs. pgraph has one logical target (the process logger),
// so a target=level pair is only accepted when target is "pgraphd" or "*".
func applyLogLevel(spec string) error {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level := part
		if idx := strings.Index(part, "="); idx >= 0 {
			target := strings.TrimSpace(part[:idx])
			if target != "*" && target != "pgraphd" {
				continue
			}
			level = strings.TrimSpace(part[idx+1:])
		}
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("pgraphd: invalid log level %q: %w", level, err)
		}
		zerolog.SetGlobalLevel(parsed)
		log.Logger = log.Logger.Level(parsed)
	}
	return nil
}

func (h *handler) databaseStats(includeDetails bool) wire.DatabaseStats {
	stats := h.store.Stats()

	typeCounts := make([]wire.TypeCount, 0, len(stats.TypeCounts))
	for _, tc := range stats.TypeCounts {
		typeCounts = append(typeCounts, wire.TypeCount{CardTypeID: tc.CardTypeID, Count: tc.Count})
	}

	out := wire.DatabaseStats{
		VertexCount: stats.VertexCount,
		EdgeCount:   stats.EdgeCount,
		TypeCounts:  typeCounts,
		FullVertexCache: wire.CacheOccupancy{
			Hits: stats.FullVertexHits, Misses: stats.FullVertexMisses, Size: stats.FullVertexSize,
		},
		DescriptionCache: wire.CacheOccupancy{
			Hits: stats.DescHits, Misses: stats.DescMisses, Size: stats.DescSize,
		},
	}

	if h.cluster != nil {
		if raftStats := h.cluster.Stats(); raftStats != nil {
			if state, ok := raftStats["state"].(string); ok {
				out.RaftState = state
			}
			if peers, ok := raftStats["peers"].(int); ok {
				out.RaftPeers = peers
			}
		}
	}

	if includeDetails {
		out.KVBackendStats = h.store.KV().Stats()
	}

	return out
}

func (h *handler) ok(requestID string, payload interface{}) wire.Response {
	data, err := wire.EncodePayload(payload)
	if err != nil {
		return wire.ErrorResponse(requestID, wire.CodeInternalError, err.Error())
	}
	return wire.Response{Code: wire.CodeOK, RequestID: requestID, Payload: data}
}
