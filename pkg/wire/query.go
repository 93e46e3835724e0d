package wire

import "github.com/pgraph/pgraph/pkg/query"

// QueryPayloadRequest is the KindQuery payload: the full four-stage plan
// request, gob-encoded directly since every field of
// query.QueryRequest is already exported and gob-safe.
type QueryPayloadRequest = query.QueryRequest

// QueryPayloadResponse is the KindQuery result.
type QueryPayloadResponse = query.Result

// CountRequest is the KindCount payload: scope plus an optional condition.
type CountRequest struct {
	Scope     query.Scope
	Condition *query.Condition
}

// CountResponse is the KindCount result.
type CountResponse struct {
	Count int
}

// CardIDsResponse is the KindCardIDs result; the request reuses
// QueryPayloadRequest since card-id queries take the same scope,
// condition and sort/page input and merely skip projection.
type CardIDsResponse struct {
	CardIDs []uint64
}

// CountByGroupRequest is the KindCountByGroup payload.
type CountByGroupRequest struct {
	Scope     query.Scope
	Condition *query.Condition
	GroupBy   query.SortField
}

// CountByGroupResponse is the KindCountByGroup result.
type CountByGroupResponse struct {
	Groups []query.GroupCount
}
