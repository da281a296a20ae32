package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/pkg/logger"
)

func TestDecode(t *testing.T) {
	qs, err := decode([]byte(`{"type":"quote","data":[{"s":"eurusd","b":1.1,"a":1.1002,"t":1709546400000}]}`))
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "EURUSD", qs[0].Pair)
	assert.Equal(t, 1.1002, qs[0].Ask)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), qs[0].At)

	qs, err = decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Empty(t, qs)

	_, err = decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestStream_ReadsQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subs := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("token"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		var msg map[string]string
		for i := 0; i < 2; i++ {
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			subs <- msg["symbol"]
		}
		_ = c.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"quote","data":[{"s":"EURUSD","b":1.1,"a":1.1001,"t":1709546400000}]}`))
		// hold the connection until the client goes away
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := New("k", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"EURUSD", "GBPUSD"}, time.Millisecond, time.Minute, logger.NewNop())
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())

	qCh, _ := s.Read(ctx)
	select {
	case q := <-qCh:
		require.NotNil(t, q)
		assert.Equal(t, "EURUSD", q.Pair)
	case <-ctx.Done():
		t.Fatal("no quote received")
	}
	assert.Equal(t, "EURUSD", <-subs)
	assert.Equal(t, "GBPUSD", <-subs)

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}
