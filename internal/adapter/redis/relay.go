package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel carries viewer messages between instances.
const DefaultChannel = "fedigraph:viewers"

// Broadcaster is the local fan-out relayed messages are handed to.
type Broadcaster interface {
	Broadcast(ctx context.Context, message []byte) []domain.Delivery
}

// RelayRecorder counts relayed messages by direction ("in" or "out").
type RelayRecorder interface {
	MessageRelayed(direction string)
}

// relayEnvelope tags a message with the publishing instance so it is not
// delivered twice locally.
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

// Relay publishes local viewer messages to Redis and rebroadcasts messages
// from other instances to the local hub.
type Relay struct {
	rdb        *goredis.Client
	channel    string
	instanceID string
	hub        Broadcaster
	recorder   RelayRecorder

	sub  *goredis.PubSub
	done chan struct{}
}

// NewRelay creates a relay on channel; an empty channel selects
// DefaultChannel. recorder may be nil.
func NewRelay(rdb *goredis.Client, channel string, hub Broadcaster, recorder RelayRecorder) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
		hub:        hub,
		recorder:   recorder,
	}
}

func (r *Relay) InstanceID() string {
	return r.instanceID
}

// Publish sends an already encoded event envelope to the other instances.
func (r *Relay) Publish(ctx context.Context, message []byte) error {
	if !json.Valid(message) {
		return fmt.Errorf("relay message is not valid JSON")
	}
	data, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Listen subscribes to the channel and returns once Redis confirmed the
// subscription. Foreign messages are then rebroadcast in the background
// until ctx is done or Close is called.
func (r *Relay) Listen(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	r.sub = sub
	r.done = make(chan struct{})
	go r.consume(ctx, sub.Channel())

	slog.Info("Relay subscribed", "channel", r.channel, "instance_id", r.instanceID)
	return nil
}

// Close ends the subscription and waits for the consumer to exit.
func (r *Relay) Close() error {
	if r.sub == nil {
		return nil
	}
	err := r.sub.Close()
	<-r.done
	return err
}

func (r *Relay) consume(ctx context.Context, messages <-chan *goredis.Message) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.WarnContext(ctx, "Dropping malformed relay message", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	r.hub.Broadcast(ctx, env.Message)
	if r.recorder != nil {
		r.recorder.MessageRelayed("in")
	}
}
