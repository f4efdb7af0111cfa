package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pellicule/internal/observability"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades, records the Authorization header and echoes every frame.
func echoServer(t *testing.T, auth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketDialer_SendsBearerAndRoundTrips(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoServer(t, auth)

	d := &WebSocketDialer{URL: wsURL(srv), Token: func() string { return "tok" }}
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "Bearer tok", <-auth)

	require.NoError(t, conn.WriteMessage([]byte("hello")))
	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestWebSocketDialer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := &WebSocketDialer{URL: wsURL(srv)}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestChannel_OverWebSocketDedupesEcho(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoServer(t, auth)

	ch := NewChannel(&WebSocketDialer{URL: wsURL(srv)}, WithLogger(observability.DiscardLogger()))
	var rec recorder
	sub, err := ch.Subscribe(context.Background(), rec.handle)
	require.NoError(t, err)
	defer sub.Close()
	<-auth

	// The echo server returns our own frame; only the local dispatch is seen.
	require.NoError(t, ch.Emit(context.Background(), LikeAdded{PhotoID: "p1", UserID: "u1"}))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.got(), 1)
}
