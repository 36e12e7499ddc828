package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const mirrorBufferSize = 1024

// envelope wraps a room event for transit between instances. Origin lets an
// instance ignore its own publishes when they come back off the channel.
type envelope struct {
	Origin string                 `json:"origin"`
	Room   domain.RoomKey         `json:"room"`
	Data   sonic.NoCopyRawMessage `json:"data"`
}

// Relay bridges hub publishes across process instances over a redis pub/sub
// channel. Without it the hub still works, scoped to one process.
//
// Outbound mirroring is queued: the hub hands the payload over while holding
// its lock (which fixes the ordering), and a writer goroutine does the redis
// I/O so a slow broker never stalls local fan-out.
type Relay struct {
	hub     *Hub
	rc      *redis.Client
	channel string
	origin  string
	logger  *log.Logger
	out     chan []byte
}

// NewRelay wires the hub's mirror hook to the redis channel and returns the
// relay. Run must be started for events to flow in either direction.
func NewRelay(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Relay {
	r := &Relay{
		hub:     hub,
		rc:      rc,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		out:     make(chan []byte, mirrorBufferSize),
	}
	hub.SetMirror(r.forward)
	return r
}

func (r *Relay) forward(room domain.RoomKey, payload []byte) {
	env := envelope{Origin: r.origin, Room: room, Data: payload}
	data, err := sonic.Marshal(env)
	if err != nil {
		r.logger.WithError(err).Error("encode relay envelope")
		return
	}
	// Mirroring is best-effort: dropping an envelope leaves other instances
	// stale until the next event, it never fails the local mutation.
	select {
	case r.out <- data:
	default:
		r.logger.WithField("room", room).Warn("mirror buffer full, dropping envelope")
	}
}

// Run pumps the relay in both directions until ctx is done, reconnecting
// the inbound subscription whenever it drops.
func (r *Relay) Run(ctx context.Context) {
	go r.writeLoop(ctx)

	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				r.apply(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("relay channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (r *Relay) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-r.out:
			if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
				r.logger.WithError(err).Error("mirror publish failed")
			}
		}
	}
}

func (r *Relay) apply(payload string) {
	var env envelope
	if err := sonic.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.WithError(err).Error("unable to parse relay envelope")
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.hub.Deliver(env.Room, env.Data)
}
