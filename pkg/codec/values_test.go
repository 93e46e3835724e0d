package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func TestEncodeDecodeVertexRoundTrip(t *testing.T) {
	v := &graph.Vertex{
		CardID:      1,
		OrgID:       "org-1",
		CardTypeID:  "t1",
		ContainerID: "c1",
		StreamID:    "s1",
		StatusID:    "open",
		State:       graph.StateActive,
		Title:       graph.Title{Plain: "A"},
		CodeInOrg:   7,
		CustomCode:  "X-7",
		Position:    1.5,
		CreatedAt:   100,
		UpdatedAt:   200,
		Fields: map[string]graph.FieldValue{
			"priority": {Kind: graph.FieldNumber, Number: 3},
		},
	}

	data, err := EncodeVertex(v)
	require.NoError(t, err)

	decoded, err := DecodeVertex(data)
	require.NoError(t, err)

	assert.Equal(t, v.CardID, decoded.CardID)
	assert.Equal(t, v.CardTypeID, decoded.CardTypeID)
	assert.Equal(t, v.Title, decoded.Title)
	assert.Equal(t, v.Fields, decoded.Fields)
	// Description is never part of the vertex record.
	assert.Empty(t, decoded.Description)
	assert.False(t, decoded.HasDescription)
}

func TestEncodeDescriptionRoundTrip(t *testing.T) {
	data := EncodeDescription("hello world")
	assert.Equal(t, "hello world", DecodeDescription(data))
}

func TestEncodeDecodeEdgePropsRoundTrip(t *testing.T) {
	props := []graph.EdgeProp{
		{FieldID: "weight", Kind: graph.EdgePropNumber, Number: 4.5},
		{FieldID: "since", Kind: graph.EdgePropDate, Date: 123456},
		{FieldID: "tags", Kind: graph.EdgePropEnum, EnumOptions: []string{"a", "b"}},
	}

	data, err := EncodeEdgeProps(props)
	require.NoError(t, err)

	decoded, err := DecodeEdgeProps(data)
	require.NoError(t, err)
	assert.Equal(t, props, decoded)
}

func TestEncodeDecodeEdgePropsEmpty(t *testing.T) {
	data, err := EncodeEdgeProps(nil)
	require.NoError(t, err)

	decoded, err := DecodeEdgeProps(data)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
