package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func TestAdminRequestPayloadRoundTrip(t *testing.T) {
	data, err := EncodePayload(AdminRequest{Op: AdminUpdateLogLevel, Level: "debug"})
	require.NoError(t, err)

	var out AdminRequest
	require.NoError(t, DecodePayload(data, &out))
	assert.Equal(t, AdminUpdateLogLevel, out.Op)
	assert.Equal(t, "debug", out.Level)
}

func TestDatabaseStatsPayloadRoundTrip(t *testing.T) {
	stats := DatabaseStats{
		VertexCount: 10,
		EdgeCount:   5,
		TypeCounts:  []TypeCount{{CardTypeID: "task", Count: 10}},
	}
	data, err := EncodePayload(stats)
	require.NoError(t, err)

	var out DatabaseStats
	require.NoError(t, DecodePayload(data, &out))
	assert.Equal(t, stats, out)
}

func TestBatchWriteResponsePayloadRoundTrip(t *testing.T) {
	resp := BatchWriteResponse{
		SuccessCount: 1,
		FailedIDs:    []graph.CardId{2, 3},
		Errors:       []string{"boom"},
	}
	data, err := EncodePayload(resp)
	require.NoError(t, err)

	var out BatchWriteResponse
	require.NoError(t, DecodePayload(data, &out))
	assert.Equal(t, resp, out)
}
