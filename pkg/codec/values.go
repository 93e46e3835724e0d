package codec

import (
	"encoding/json"

	"github.com/pgraph/pgraph/pkg/graph"
)

// vertexRecord is the on-disk JSON shape for a vertex. It deliberately
// excludes Description/HasDescription — those live under their own key
// (FamilyDesc) so that scanning the vertex family never pays for long text.
type vertexRecord struct {
	CardID      graph.CardId                    `json:"cardId"`
	OrgID       string                          `json:"orgId"`
	CardTypeID  string                          `json:"cardTypeId"`
	ContainerID string                          `json:"containerId"`
	StreamID    string                          `json:"streamId"`
	StatusID    string                          `json:"statusId"`
	State       graph.State                     `json:"state"`
	Title       graph.Title                     `json:"title"`
	CodeInOrg   int64                           `json:"codeInOrg"`
	CustomCode  string                          `json:"customCode,omitempty"`
	Position    float64                         `json:"position"`

	CreatedAt   int64 `json:"createdAt"`
	UpdatedAt   int64 `json:"updatedAt"`
	ArchivedAt  int64 `json:"archivedAt,omitempty"`
	DiscardedAt int64 `json:"discardedAt,omitempty"`
	CommentAt   int64 `json:"commentAt,omitempty"`

	DiscardReason string `json:"discardReason,omitempty"`
	RestoreReason string `json:"restoreReason,omitempty"`

	Fields map[string]graph.FieldValue `json:"fields,omitempty"`
}

// EncodeVertex serializes a Vertex to its storage record, excluding the
// description text.
func EncodeVertex(v *graph.Vertex) ([]byte, error) {
	r := vertexRecord{
		CardID:        v.CardID,
		OrgID:         v.OrgID,
		CardTypeID:    v.CardTypeID,
		ContainerID:   v.ContainerID,
		StreamID:      v.StreamID,
		StatusID:      v.StatusID,
		State:         v.State,
		Title:         v.Title,
		CodeInOrg:     v.CodeInOrg,
		CustomCode:    v.CustomCode,
		Position:      v.Position,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		ArchivedAt:    v.ArchivedAt,
		DiscardedAt:   v.DiscardedAt,
		CommentAt:     v.CommentAt,
		DiscardReason: v.DiscardReason,
		RestoreReason: v.RestoreReason,
		Fields:        v.Fields,
	}
	return json.Marshal(r)
}

// DecodeVertex deserializes a vertex record. Description/HasDescription are
// left zero-valued; callers that need the text fetch it separately via
// DescKey and set HasDescription themselves.
func DecodeVertex(data []byte) (*graph.Vertex, error) {
	var r vertexRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &graph.Vertex{
		CardID:        r.CardID,
		OrgID:         r.OrgID,
		CardTypeID:    r.CardTypeID,
		ContainerID:   r.ContainerID,
		StreamID:      r.StreamID,
		StatusID:      r.StatusID,
		State:         r.State,
		Title:         r.Title,
		CodeInOrg:     r.CodeInOrg,
		CustomCode:    r.CustomCode,
		Position:      r.Position,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ArchivedAt:    r.ArchivedAt,
		DiscardedAt:   r.DiscardedAt,
		CommentAt:     r.CommentAt,
		DiscardReason: r.DiscardReason,
		RestoreReason: r.RestoreReason,
		Fields:        r.Fields,
	}, nil
}

// EncodeDescription encodes the raw description text.
func EncodeDescription(desc string) []byte {
	return []byte(desc)
}

// DecodeDescription decodes the raw description text.
func DecodeDescription(data []byte) string {
	return string(data)
}

// edgePropRecord is the JSON shape of one EdgeProp.
type edgePropRecord struct {
	FieldID     string   `json:"fieldId"`
	Kind        int      `json:"kind"`
	Number      float64  `json:"number,omitempty"`
	Date        int64    `json:"date,omitempty"`
	EnumOptions []string `json:"enumOptions,omitempty"`
}

// EncodeEdgeProps serializes an edge's property list.
func EncodeEdgeProps(props []graph.EdgeProp) ([]byte, error) {
	recs := make([]edgePropRecord, len(props))
	for i, p := range props {
		recs[i] = edgePropRecord{
			FieldID:     p.FieldID,
			Kind:        int(p.Kind),
			Number:      p.Number,
			Date:        p.Date,
			EnumOptions: p.EnumOptions,
		}
	}
	return json.Marshal(recs)
}

// DecodeEdgeProps deserializes an edge's property list.
func DecodeEdgeProps(data []byte) ([]graph.EdgeProp, error) {
	var recs []edgePropRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	props := make([]graph.EdgeProp, len(recs))
	for i, r := range recs {
		props[i] = graph.EdgeProp{
			FieldID:     r.FieldID,
			Kind:        graph.EdgePropKind(r.Kind),
			Number:      r.Number,
			Date:        r.Date,
			EnumOptions: r.EnumOptions,
		}
	}
	return props, nil
}
