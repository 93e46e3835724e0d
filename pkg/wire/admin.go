package wire

import "github.com/pgraph/pgraph/pkg/graph"

// AuthRequest is the KindAuth payload, the first request on a connection
// when AuthRequired is true. Token, if set, is validated
// instead of Username/Password.
type AuthRequest struct {
	Username string
	Password string
	Token    string
}

// AdminOp names one of the administrative surface's operations.
type AdminOp string

const (
	AdminUpdateLogLevel AdminOp = "update_log_level"
	AdminDatabaseStats  AdminOp = "database_stats"
)

// AdminRequest is the KindAdmin payload. Level is either a simple word
// (trace/debug/info/warn/error) or a comma list of target=level pairs; only
// Level is meaningful for AdminUpdateLogLevel, only IncludeDetails for
// AdminDatabaseStats.
type AdminRequest struct {
	Op             AdminOp
	Level          string
	IncludeDetails bool
}

// TypeCount is one card-type's resident vertex count, part of
// DatabaseStats' breakdown.
type TypeCount struct {
	CardTypeID graph.CardTypeId
	Count      int64
}

// DatabaseStats is the database_stats result: vertex count,
// edge count (total adjacency entries / 2, since each edge is indexed from
// both endpoints), per-type counts, and cache occupancies. KVBackendStats
// is only populated when the request set IncludeDetails.
type DatabaseStats struct {
	VertexCount      int64
	EdgeCount        int64
	TypeCounts       []TypeCount
	FullVertexCache  CacheOccupancy
	DescriptionCache CacheOccupancy
	RaftState        string
	RaftPeers        int
	KVBackendStats   map[string]string
}

// CacheOccupancy reports one bounded cache's hit/miss/size counters.
type CacheOccupancy struct {
	Hits   uint64
	Misses uint64
	Size   int
}
