package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink collects frames written to it.
type fakeSink struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	blockCh chan struct{} // when set, WriteText waits on it once
}

func (s *fakeSink) WriteText(data []byte) error {
	if s.blockCh != nil {
		<-s.blockCh
		s.blockCh = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) lastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func TestPublishFansOutToJoinedConnections(t *testing.T) {
	hub := NewHub()
	a, b := &fakeSink{}, &fakeSink{}
	connA := hub.Register(a)
	connB := hub.Register(b)
	defer connA.Close()
	defer connB.Close()

	channel := UserChannel(uuid.New())
	hub.Join(channel, connA)
	hub.Join(channel, connB)

	hub.Publish(channel, Event{Type: EventNewNotification, Data: map[string]string{"id": "n1"}})

	assert.Eventually(t, func() bool {
		return a.frameCount() == 1 && b.frameCount() == 1
	}, time.Second, 5*time.Millisecond)

	var ev Event
	require.NoError(t, json.Unmarshal(a.lastFrame(), &ev))
	assert.Equal(t, EventNewNotification, ev.Type)
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	sink := &fakeSink{}
	conn := hub.Register(sink)
	defer conn.Close()

	channel := TenantChannel(uuid.New())
	hub.Join(channel, conn)
	hub.Publish(channel, Event{Type: EventNotificationRead})
	assert.Eventually(t, func() bool { return sink.frameCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Leave(channel, conn)
	hub.Publish(channel, Event{Type: EventNotificationRead})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sink.frameCount())
}

func TestPublishToEmptyChannelIsNoop(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Publish(StoreChannel(uuid.New()), Event{Type: EventNewNotification})
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	sink := &fakeSink{blockCh: release}
	conn := hub.Register(sink)

	channel := UserChannel(uuid.New())
	hub.Join(channel, conn)

	// First publish parks the writer; the rest fill the buffer and the
	// overflow publish must disconnect rather than block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+5; i++ {
			hub.Publish(channel, Event{Type: EventNewNotification})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}

	close(release)
	assert.Eventually(t, sink.isClosed, time.Second, 5*time.Millisecond)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sink := &fakeSink{}
	conn := hub.Register(sink)
	conn.Close()
	conn.Close()
	assert.Eventually(t, sink.isClosed, time.Second, 5*time.Millisecond)
}

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "user:6ba7b810-9dad-11d1-80b4-00c04fd430c8", UserChannel(id))
	assert.Equal(t, "tenant:6ba7b810-9dad-11d1-80b4-00c04fd430c8", TenantChannel(id))
	assert.Equal(t, "store:6ba7b810-9dad-11d1-80b4-00c04fd430c8", StoreChannel(id))
}
