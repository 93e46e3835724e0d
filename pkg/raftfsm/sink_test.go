package raftfsm

import (
	"bytes"
	"io"
	"testing"
)

// fakeSnapshotSink is a minimal in-memory raft.SnapshotSink for exercising
// fsmSnapshot.Persist without a real raft.SnapshotStore.
type fakeSnapshotSink struct {
	t   *testing.T
	buf bytes.Buffer
}

func newFakeSnapshotSink(t *testing.T) *fakeSnapshotSink {
	return &fakeSnapshotSink{t: t}
}

func (s *fakeSnapshotSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *fakeSnapshotSink) Close() error                { return nil }
func (s *fakeSnapshotSink) ID() string                  { return "fake" }
func (s *fakeSnapshotSink) Cancel() error               { return nil }

func (s *fakeSnapshotSink) toReader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes()))
}
