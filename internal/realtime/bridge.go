package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// bridgeChannel is the single Redis pub/sub channel all instances share.
const bridgeChannel = "bizcrm:broadcast"

// Bridge relays hub publishes through Redis pub/sub so a publish on one
// instance reaches connections held by another. Without a configured Redis
// URL the hub stays purely local.
type Bridge struct {
	rdb    *redis.Client
	hub    *Hub
	origin string
	cancel context.CancelFunc
}

type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   json.RawMessage `json:"event"`
}

func NewBridge(redisURL string, hub *Hub) (*Bridge, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		rdb:    rdb,
		hub:    hub,
		origin: uuid.NewString(),
		cancel: cancel,
	}
	hub.bridge = b

	sub := rdb.Subscribe(ctx, bridgeChannel)
	// Force the subscription before returning so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		rdb.Close()
		return nil, err
	}
	go b.listen(sub)

	log.Printf("Redis bridge: connected, origin %s", b.origin)
	return b, nil
}

func (b *Bridge) listen(sub *redis.PubSub) {
	for msg := range sub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("Redis bridge: bad envelope: %v", err)
			continue
		}
		if env.Origin == b.origin {
			continue // our own publish, already delivered locally
		}
		b.hub.deliver(env.Channel, env.Event)
	}
}

func (b *Bridge) forward(channel string, msg []byte) {
	payload, err := json.Marshal(envelope{Origin: b.origin, Channel: channel, Event: msg})
	if err != nil {
		log.Printf("Redis bridge: marshal error: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, bridgeChannel, payload).Err(); err != nil {
		log.Printf("Redis bridge: publish failed: %v", err)
	}
}

func (b *Bridge) Close() error {
	b.cancel()
	return b.rdb.Close()
}
