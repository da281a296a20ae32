package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		assert.Equal(t, "Opened buy EURUSD", r.PostForm.Get("text"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", time.Second, WithTelegramAPI(srv.URL+"/"))
	require.NoError(t, n.Notify(context.Background(), "Opened buy EURUSD"))
}

func TestTelegramNotifier_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bad", "42", time.Second, WithTelegramAPI(srv.URL))
	assert.Error(t, n.Notify(context.Background(), "x"))
}

func TestTelegramNotifier_UnconfiguredIsNoop(t *testing.T) {
	n := NewTelegramNotifier("", "", 0, WithTelegramAPI("http://127.0.0.1:0"))
	assert.NoError(t, n.Notify(context.Background(), "x"))
}

func TestDiscordNotifier(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, "", time.Second)
	n.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, n.Notify(context.Background(), "day reset"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "FXEngine", got.Embeds[0].Title)
	assert.Equal(t, "day reset", got.Embeds[0].Description)
	assert.Equal(t, "2024-03-04T10:00:00Z", got.Embeds[0].Timestamp)
}

type recorder struct {
	msgs []string
	err  error
}

func (r *recorder) Notify(_ context.Context, m string) error {
	r.msgs = append(r.msgs, m)
	return r.err
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("down")}
	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)

	err := m.Notify(context.Background(), "hello")
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, []string{"hello"}, a.msgs)
	assert.Equal(t, []string{"hello"}, b.msgs)
}

type fakeQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return q.err
}

func TestQueuedRoundTrip(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, NewQueued(q).Notify(context.Background(), "queued hello"))
	assert.Equal(t, MessageType, q.msgType)

	// the worker sees the payload after a JSON round trip through redis
	raw, err := json.Marshal(q.payload)
	require.NoError(t, err)

	target := &recorder{}
	job := NewDeliveryJob(target)
	require.NoError(t, job.Handle(context.Background(), json.RawMessage(raw)))
	assert.Equal(t, []string{"queued hello"}, target.msgs)
}

func TestQueued_EnqueueError(t *testing.T) {
	q := &fakeQueue{err: errors.New("queue not running")}
	assert.ErrorContains(t, NewQueued(q).Notify(context.Background(), "x"), "queue not running")
}
