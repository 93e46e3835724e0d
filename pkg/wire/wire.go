// Package wire implements pgraph's own request/response framing: a 4-byte
// big-endian length prefix followed by a gob-encoded record, one request
// per frame, one response per frame. The accept loop spawns one goroutine
// per connection, each reading and dispatching frames with a ReadFull-based
// framer until the connection closes or a frame error occurs.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Response codes
const (
	CodeOK            = 200
	CodeMalformed     = 400
	CodeUnauthorized  = 401
	CodeTooLarge      = 413
	CodeInternalError = 500
)

// Size caps for a single frame and for a whole connection's lifetime.
const (
	MaxRequestSize = 1 << 20  // 1 MiB per request
	MaxTotalSize   = 64 << 20 // 64 MiB total per connection
)

// PayloadKind tags which typed payload a Request/Response carries.
type PayloadKind string

const (
	KindAuth         PayloadKind = "auth"
	KindQuery        PayloadKind = "query"
	KindCount        PayloadKind = "count"
	KindCardIDs      PayloadKind = "card_ids"
	KindCountByGroup PayloadKind = "count_by_group"
	KindBatchWrite   PayloadKind = "batch_write"
	KindAdmin        PayloadKind = "admin"
)

// Request is one frame sent by a client.
type Request struct {
	RequestID string
	Kind      PayloadKind
	Payload   []byte // gob-encoded payload matching Kind
}

// Response is one frame sent back to a client.
type Response struct {
	Code      int
	RequestID string
	Message   string
	Payload   []byte // gob-encoded result payload matching the request's Kind, if any
}

// WriteFrame gob-encodes v and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v interface{}) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(v); err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	if body.Len() > MaxRequestSize {
		return fmt.Errorf("wire: frame exceeds %d bytes", MaxRequestSize)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and gob-decodes it into v.
// Returns ErrTooLarge if the declared length exceeds MaxRequestSize. An
// oversize or malformed frame keeps the connection usable for the next
// request, so ReadFrame always drains the declared body length off the
// reader before returning, even on error.
func ReadFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxRequestSize {
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return fmt.Errorf("wire: drain oversize frame: %w", err)
		}
		return ErrTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wire: read frame body: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}

// ErrTooLarge is returned by ReadFrame when a frame's declared length
// exceeds MaxRequestSize.
var ErrTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", MaxRequestSize)

// ErrorResponse builds a Response carrying code and message with no
// payload, echoing requestID.
func ErrorResponse(requestID string, code int, message string) Response {
	return Response{Code: code, RequestID: requestID, Message: message}
}

// EncodePayload gob-encodes payload for embedding in a Request/Response.
func EncodePayload(payload interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("wire: encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload gob-decodes data into v.
func DecodePayload(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("wire: decode payload: %w", err)
	}
	return nil
}
