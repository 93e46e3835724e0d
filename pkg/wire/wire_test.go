package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{RequestID: "r1", Kind: KindQuery, Payload: []byte("abc")}
	require.NoError(t, WriteFrame(&buf, req))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, req, got)
}

func TestReadFrameOversizeDrainsBodyAndReturnsErrTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxRequestSize+1)
	buf.Write(lenBuf[:])
	buf.Write(make([]byte, MaxRequestSize+1))

	// A second, well-formed frame follows in the same stream.
	second := Request{RequestID: "r2", Kind: KindAuth}
	require.NoError(t, WriteFrame(&buf, second))

	var v Request
	err := ReadFrame(&buf, &v)
	assert.ErrorIs(t, err, ErrTooLarge)

	var next Request
	require.NoError(t, ReadFrame(&buf, &next), "connection must still be usable for the next frame")
	assert.Equal(t, second, next)
}

func TestReadFrameMalformedBodyReturnsError(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	garbage := []byte("not a gob stream")
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(garbage)))
	buf.Write(lenBuf[:])
	buf.Write(garbage)

	var v Request
	err := ReadFrame(&buf, &v)
	assert.Error(t, err)
}

func TestReadFrameShortReadReturnsError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0}) // truncated length prefix
	var v Request
	err := ReadFrame(&buf, &v)
	assert.Error(t, err)
}

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	data, err := EncodePayload(payload{A: 1, B: "x"})
	require.NoError(t, err)

	var out payload
	require.NoError(t, DecodePayload(data, &out))
	assert.Equal(t, payload{A: 1, B: "x"}, out)
}

func TestErrorResponseEchoesRequestID(t *testing.T) {
	resp := ErrorResponse("r1", CodeMalformed, "bad request")
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, CodeMalformed, resp.Code)
	assert.Equal(t, "bad request", resp.Message)
	assert.Nil(t, resp.Payload)
}
