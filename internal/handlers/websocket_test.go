package handlers_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	fasthttpws "github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgacutan/bizcrm-api/internal/models"
	"github.com/rgacutan/bizcrm-api/internal/notify"
	"github.com/rgacutan/bizcrm-api/internal/realtime"
)

// startServer binds the app to a random port for real websocket dials.
func startServer(t *testing.T, ta *testApp) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go ta.app.Listener(ln)
	t.Cleanup(func() { ta.app.Shutdown() })
	return ln.Addr().String()
}

func dial(t *testing.T, addr, token string) *fasthttpws.Conn {
	t.Helper()
	url := "ws://" + addr + "/ws/notifications?token=" + token
	conn, _, err := fasthttpws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *fasthttpws.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev realtime.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	ta := newTestApp(t)
	addr := startServer(t, ta)

	for name, token := range map[string]string{
		"missing": "",
		"garbage": "not-a-jwt",
	} {
		url := "ws://" + addr + "/ws/notifications"
		if token != "" {
			url += "?token=" + token
		}
		_, _, err := fasthttpws.DefaultDialer.Dial(url, nil)
		assert.Error(t, err, name)
	}

	// Valid token for a user that does not exist
	ghost := ta.seedUser(t, models.RoleSalesperson, uuid.New(), nil)
	token := ta.token(t, ghost)
	require.NoError(t, ta.db.Delete(ghost).Error)
	_, _, err := fasthttpws.DefaultDialer.Dial("ws://"+addr+"/ws/notifications?token="+token, nil)
	assert.Error(t, err, "unknown user")

	// Inactive user
	inactive := ta.seedUser(t, models.RoleSalesperson, uuid.New(), nil)
	token = ta.token(t, inactive)
	require.NoError(t, ta.db.Model(inactive).Update("active", false).Error)
	_, _, err = fasthttpws.DefaultDialer.Dial("ws://"+addr+"/ws/notifications?token="+token, nil)
	assert.Error(t, err, "inactive user")
}

func TestWebSocketReceivesNewNotification(t *testing.T) {
	ta := newTestApp(t)
	addr := startServer(t, ta)

	store := uuid.New()
	user := ta.seedUser(t, models.RoleSalesperson, uuid.New(), &store)

	// One unread row before connecting: it arrives as the backlog batch.
	_, err := ta.notify.Create(notify.CreateInput{Recipient: *user, Type: notify.TypeCustomerCreated, Title: "earlier"})
	require.NoError(t, err)

	conn := dial(t, addr, ta.token(t, user))

	backlog := readEvent(t, conn)
	assert.Equal(t, realtime.EventNotificationBatch, backlog.Type)

	// Created elsewhere while connected: exactly one new_notification frame.
	created, err := ta.notify.Create(notify.CreateInput{
		Recipient: *user,
		StoreID:   &store,
		Type:      notify.TypeSaleClosed,
		Title:     "Deal closed",
		Message:   "Acme signed",
	})
	require.NoError(t, err)

	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventNewNotification, ev.Type)

	data, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	var got models.Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Deal closed", got.Title)
	assert.Equal(t, "Acme signed", got.Message)
}

func TestWebSocketPingPong(t *testing.T) {
	ta := newTestApp(t)
	addr := startServer(t, ta)
	user := ta.seedUser(t, models.RoleSalesperson, uuid.New(), nil)

	conn := dial(t, addr, ta.token(t, user))

	require.NoError(t, conn.WriteMessage(fasthttpws.TextMessage, []byte(`{"type":"ping"}`)))
	ev := readEvent(t, conn)
	assert.Equal(t, realtime.EventPong, ev.Type)
}

func TestWebSocketReadSyncAcrossSessions(t *testing.T) {
	ta := newTestApp(t)
	addr := startServer(t, ta)
	user := ta.seedUser(t, models.RoleSalesperson, uuid.New(), nil)
	token := ta.token(t, user)

	n, err := ta.notify.Create(notify.CreateInput{Recipient: *user, Type: notify.TypeCustomerCreated, Title: "t"})
	require.NoError(t, err)

	// Two sessions for the same user; both get the backlog first.
	first := dial(t, addr, token)
	second := dial(t, addr, token)
	readEvent(t, first)
	readEvent(t, second)

	// Reading on one device syncs the other.
	_, err = ta.notify.MarkAsRead(user, n.ID)
	require.NoError(t, err)

	for _, conn := range []*fasthttpws.Conn{first, second} {
		ev := readEvent(t, conn)
		assert.Equal(t, realtime.EventNotificationRead, ev.Type)
	}
}
