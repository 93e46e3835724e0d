package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	authRequired bool
	authOK       bool
}

func (h *fakeHandler) Handle(ctx context.Context, session interface{}, req Request) Response {
	return Response{Code: CodeOK, RequestID: req.RequestID, Message: "handled:" + string(req.Kind)}
}

func (h *fakeHandler) Authenticate(req Request) (interface{}, bool) { return nil, h.authOK }
func (h *fakeHandler) AuthRequired() bool                           { return h.authRequired }

func startTestServer(t *testing.T, h Handler) net.Addr {
	t.Helper()
	srv := NewServer("127.0.0.1:0", h, time.Second)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.listener = listener
	srv.addr = listener.Addr().String()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.handleConnection(conn)
		}
	}()
	t.Cleanup(func() { srv.Close() })
	return listener.Addr()
}

func TestServerHandlesRequestWithoutAuth(t *testing.T) {
	addr := startTestServer(t, &fakeHandler{authRequired: false})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, Request{RequestID: "r1", Kind: KindQuery}))
	var resp Response
	require.NoError(t, ReadFrame(conn, &resp))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, "handled:query", resp.Message)
}

func TestServerRejectsNonAuthFirstRequestWhenAuthRequired(t *testing.T) {
	addr := startTestServer(t, &fakeHandler{authRequired: true, authOK: true})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, Request{RequestID: "r1", Kind: KindQuery}))
	var resp Response
	require.NoError(t, ReadFrame(conn, &resp))
	assert.Equal(t, CodeUnauthorized, resp.Code)
}

func TestServerAuthenticatesThenAcceptsFollowupRequests(t *testing.T) {
	addr := startTestServer(t, &fakeHandler{authRequired: true, authOK: true})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, Request{RequestID: "auth1", Kind: KindAuth}))
	var authResp Response
	require.NoError(t, ReadFrame(conn, &authResp))
	assert.Equal(t, CodeOK, authResp.Code)

	require.NoError(t, WriteFrame(conn, Request{RequestID: "r2", Kind: KindQuery}))
	var resp Response
	require.NoError(t, ReadFrame(conn, &resp))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, "handled:query", resp.Message)
}

func TestServerRejectsFailedAuthentication(t *testing.T) {
	addr := startTestServer(t, &fakeHandler{authRequired: true, authOK: false})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, Request{RequestID: "auth1", Kind: KindAuth}))
	var resp Response
	require.NoError(t, ReadFrame(conn, &resp))
	assert.Equal(t, CodeUnauthorized, resp.Code)
}
