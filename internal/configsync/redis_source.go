package configsync

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel es el canal pub/sub por defecto del management plane.
const DefaultChannel = "gatejohn:sync"

// RedisSource consume SyncEvents desde Redis pub/sub. Es el transporte de
// despliegues multi-nodo: el management plane publica una vez y cada nodo
// de gateway recibe su propia copia.
type RedisSource struct {
	pubsub *redis.PubSub
	ch     chan Event
	cancel context.CancelFunc
}

// NewRedisSource se suscribe al canal y arranca el decode loop.
func NewRedisSource(rdb *redis.Client, channel string) *RedisSource {
	if channel == "" {
		channel = DefaultChannel
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &RedisSource{
		pubsub: rdb.Subscribe(ctx, channel),
		ch:     make(chan Event, 64),
		cancel: cancel,
	}
	go s.loop(ctx)
	return s
}

func (s *RedisSource) loop(ctx context.Context) {
	log := logger.Named("configsync.redis")
	defer close(s.ch)
	for {
		msg, err := s.pubsub.Receive(ctx)
		if err != nil {
			// Receive falla al cerrar la suscripción o cancelar el contexto.
			return
		}
		m, ok := msg.(*redis.Message)
		if !ok {
			continue // subscription acks, pongs
		}
		var ev Event
		if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
			log.Warn("discarding undecodable sync event", logger.Err(err))
			continue
		}
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *RedisSource) Events() <-chan Event { return s.ch }

func (s *RedisSource) Close() error {
	s.cancel()
	return s.pubsub.Close()
}

// PublishRedis publica un evento en el canal (lado management plane).
func PublishRedis(ctx context.Context, rdb *redis.Client, channel string, ev Event) error {
	if channel == "" {
		channel = DefaultChannel
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, channel, payload).Err()
}
