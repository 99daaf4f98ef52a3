package graphql

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/events"
	"github.com/c360/socialgate/message"
)

func dialSubscription(t *testing.T) (*Server, *events.ProcessBus, *websocket.Conn) {
	t.Helper()

	builder, _ := newTestBuilder(t)
	bus := events.NewProcessBus()
	srv, err := NewServer(DefaultConfig(), builder, NewExecutor(NewResolver(bus, 0, nil)), bus, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Setup())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.subs.start(ctx)
	t.Cleanup(srv.subs.stop)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/graphql"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, bus, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitForOperations(t *testing.T, srv *Server, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		srv.subs.mu.Lock()
		defer srv.subs.mu.Unlock()
		for c := range srv.subs.clients {
			if len(c.operations()) == want {
				return true
			}
		}
		return want == 0 && len(srv.subs.clients) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscriptionDeliversCreatedMessage(t *testing.T) {
	srv, bus, conn := dialSubscription(t)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: wsConnectionInit}))
	ack := readFrame(t, conn)
	assert.Equal(t, wsConnectionAck, ack.Type)

	start, err := json.Marshal(Request{
		Query: `subscription { messageCreated { message { id text } } }`,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{ID: "1", Type: wsStart, Payload: start}))
	waitForOperations(t, srv, 1)

	m, err := message.New("m1", "hello subscribers", "author-1")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(),
		events.Event{Type: events.TypeMessageCreated, Message: m}))

	frame := readFrame(t, conn)
	require.Equal(t, wsData, frame.Type)
	assert.Equal(t, "1", frame.ID)

	var payload struct {
		Data struct {
			MessageCreated struct {
				Message struct {
					ID   string `json:"id"`
					Text string `json:"text"`
				} `json:"message"`
			} `json:"messageCreated"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "m1", payload.Data.MessageCreated.Message.ID)
	assert.Equal(t, "hello subscribers", payload.Data.MessageCreated.Message.Text)
}

func TestSubscriptionIgnoresOtherEventTypes(t *testing.T) {
	srv, bus, conn := dialSubscription(t)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: wsConnectionInit}))
	readFrame(t, conn) // ack

	start, err := json.Marshal(Request{
		Query: `subscription { messageDeleted { message { id } } }`,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{ID: "7", Type: wsStart, Payload: start}))
	waitForOperations(t, srv, 1)

	m, err := message.New("m1", "created, not deleted", "author-1")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(),
		events.Event{Type: events.TypeMessageCreated, Message: m}))
	require.NoError(t, bus.Publish(context.Background(),
		events.Event{Type: events.TypeMessageDeleted, Message: m}))

	// Only the deleted event matches the registered field.
	frame := readFrame(t, conn)
	require.Equal(t, wsData, frame.Type)
	assert.Equal(t, "7", frame.ID)
	assert.Contains(t, string(frame.Payload), "messageDeleted")
}

func TestSubscriptionStopCompletesOperation(t *testing.T) {
	srv, _, conn := dialSubscription(t)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: wsConnectionInit}))
	readFrame(t, conn) // ack

	start, err := json.Marshal(Request{
		Query: `subscription { messageCreated { message { id } } }`,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{ID: "1", Type: wsStart, Payload: start}))
	waitForOperations(t, srv, 1)

	require.NoError(t, conn.WriteJSON(wsFrame{ID: "1", Type: wsStop}))
	frame := readFrame(t, conn)
	assert.Equal(t, wsComplete, frame.Type)
	waitForOperations(t, srv, 0)
}

func TestSubscriptionRejectsQueryOperations(t *testing.T) {
	_, _, conn := dialSubscription(t)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: wsConnectionInit}))
	readFrame(t, conn) // ack

	start, err := json.Marshal(Request{Query: `{ users { id } }`})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{ID: "1", Type: wsStart, Payload: start}))

	frame := readFrame(t, conn)
	assert.Equal(t, wsError, frame.Type)
	assert.Contains(t, string(frame.Payload), "subscription")
}

func TestSubscriptionRejectsUnknownField(t *testing.T) {
	_, _, conn := dialSubscription(t)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: wsConnectionInit}))
	readFrame(t, conn) // ack

	start, err := json.Marshal(Request{
		Query: `subscription { somethingElse { id } }`,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{ID: "1", Type: wsStart, Payload: start}))

	frame := readFrame(t, conn)
	assert.Equal(t, wsError, frame.Type)
	assert.Contains(t, string(frame.Payload), "somethingElse")
}
