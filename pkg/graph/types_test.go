package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitlePlainText(t *testing.T) {
	assert.Equal(t, "hello", Title{Plain: "hello"}.PlainText())
	assert.Equal(t, "Joint Name", Title{Joint: &JointTitle{Name: "Joint Name"}}.PlainText())
}

func TestStateStringAndParse(t *testing.T) {
	assert.Equal(t, "Active", StateActive.String())
	assert.Equal(t, "Archived", StateArchived.String())
	assert.Equal(t, "Discarded", StateDiscarded.String())
	assert.Equal(t, "Unknown", State(99).String())

	s, err := ParseState("Archived")
	require.NoError(t, err)
	assert.Equal(t, StateArchived, s)

	_, err = ParseState("bogus")
	assert.Error(t, err)
}

func TestFragmentOf(t *testing.T) {
	v := &Vertex{
		CardID:      1,
		CardTypeID:  "task",
		ContainerID: "c1",
		State:       StateActive,
		StreamID:    "s1",
		StatusID:    "open",
		Title:       Title{Plain: "ignored by fragment"},
	}
	f := FragmentOf(v)
	assert.Equal(t, Fragment{
		CardID:      1,
		CardTypeID:  "task",
		ContainerID: "c1",
		State:       StateActive,
		StreamID:    "s1",
		StatusID:    "open",
	}, f)
}
