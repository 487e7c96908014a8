package busws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model/enum"
)

type testBus struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []controlFrame
}

func (b *testBus) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		var frame controlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		b.mu.Lock()
		b.received = append(b.received, frame)
		b.mu.Unlock()
	}
}

func (b *testBus) push(t *testing.T, channel string, data string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.conns)
	conn := b.conns[len(b.conns)-1]
	require.NoError(t, conn.WriteJSON(envelope{Channel: channel, Data: json.RawMessage(data)}))
}

func (b *testBus) frames() []controlFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]controlFrame(nil), b.received...)
}

func (b *testBus) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.conns = nil
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type recorder struct {
	mu       sync.Mutex
	messages []string
	states   []enum.ConnectionState
}

func (r *recorder) onMessage(channel string, payload []byte) {
	r.mu.Lock()
	r.messages = append(r.messages, channel+"|"+string(payload))
	r.mu.Unlock()
}

func (r *recorder) onState(state enum.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *recorder) waitState(t *testing.T, want enum.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, s := range r.states {
			if s == want {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func (r *recorder) lastMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func startClient(t *testing.T, bus *testBus) (*Client, *recorder, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(bus.handler))
	rec := &recorder{}
	client := New(Config{
		URL:     wsURL(server),
		Backoff: Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 2},
	}, rec.onMessage, rec.onState)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Run(ctx)
	}()

	rec.waitState(t, enum.ConnectionStateConnected)
	return client, rec, func() {
		cancel()
		client.Close()
		<-done
		server.Close()
	}
}

func TestSubscribeSendsFrameOnce(t *testing.T) {
	bus := &testBus{}
	client, _, stop := startClient(t, bus)
	defer stop()

	ctx := context.Background()
	require.NoError(t, client.Subscribe(ctx, "kill_switch:state"))
	require.NoError(t, client.Subscribe(ctx, "kill_switch:state"))
	require.NoError(t, client.Subscribe(ctx, "positions:u-1"))
	require.NoError(t, client.Unsubscribe(ctx, "positions:u-1"))

	require.Eventually(t, func() bool {
		return len(bus.frames()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	frames := bus.frames()
	assert.Equal(t, controlFrame{Action: "subscribe", Channel: "kill_switch:state"}, frames[0])
	assert.Equal(t, controlFrame{Action: "subscribe", Channel: "positions:u-1"}, frames[1])
	assert.Equal(t, controlFrame{Action: "unsubscribe", Channel: "positions:u-1"}, frames[2])
	assert.Equal(t, 1, client.SubscribedCount())
}

func TestPushReachesHandler(t *testing.T) {
	bus := &testBus{}
	_, rec, stop := startClient(t, bus)
	defer stop()

	bus.push(t, "price.updated.AAPL", `{"price":"190.5"}`)

	require.Eventually(t, func() bool {
		return len(rec.lastMessages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `price.updated.AAPL|{"price":"190.5"}`, rec.lastMessages()[0])
}

func TestReconnectClearsSubscriptions(t *testing.T) {
	bus := &testBus{}
	client, rec, stop := startClient(t, bus)
	defer stop()

	require.NoError(t, client.Subscribe(context.Background(), "kill_switch:state"))
	require.Equal(t, 1, client.SubscribedCount())

	bus.dropAll()
	rec.waitState(t, enum.ConnectionStateReconnecting)
	rec.waitState(t, enum.ConnectionStateConnected)

	// the subscribed set is per connection; the owner replays after reconnect
	require.Eventually(t, func() bool {
		return client.SubscribedCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, client.Subscribe(context.Background(), "kill_switch:state"))
	assert.Equal(t, 1, client.SubscribedCount())
}

func TestSubscribeWhileDisconnectedFails(t *testing.T) {
	rec := &recorder{}
	client := New(Config{URL: "ws://127.0.0.1:1/stream"}, rec.onMessage, rec.onState)

	err := client.Subscribe(context.Background(), "kill_switch:state")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, client.SubscribedCount())
}

func TestBackoffGrowsToCap(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 1 * time.Second, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, 1*time.Second, b.Next(10))
}
