package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
)

const queueEventBufferSize = 8

// QueueEventPublisher receives every queue snapshot the engine publishes.
type QueueEventPublisher interface {
	Publish(ctx context.Context, snapshot dto.QueueSnapshotResponse)
}

// QueueEventService fans queue snapshots out to local subscribers and,
// when configured, to a Redis channel and a NATS subject. Start relays
// snapshots published by other nodes to the local subscribers.
type QueueEventService interface {
	QueueEventPublisher
	Subscribe() (<-chan dto.QueueSnapshotResponse, func())
	Start(ctx context.Context)
}

type queueEventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string

	mu          sync.RWMutex
	subscribers map[chan dto.QueueSnapshotResponse]struct{}
}

type queueEvent struct {
	Source   string                    `json:"source"`
	Snapshot dto.QueueSnapshotResponse `json:"snapshot"`
	SentAt   time.Time                 `json:"sent_at"`
}

// NewQueueEventService builds the snapshot broker. redisClient and natsConn may be nil.
func NewQueueEventService(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) QueueEventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":queue"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".queue"
	}

	return &queueEventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "queue_events").Logger(),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[chan dto.QueueSnapshotResponse]struct{}),
	}
}

func (s *queueEventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *queueEventService) Publish(ctx context.Context, snapshot dto.QueueSnapshotResponse) {
	s.broadcast(snapshot)

	if s.redis == nil && s.nats == nil {
		return
	}

	payload, err := json.Marshal(queueEvent{Source: s.nodeID, Snapshot: snapshot, SentAt: time.Now().UTC()})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode queue event")
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish queue event to redis")
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish queue event to nats")
		}
	}
}

func (s *queueEventService) Subscribe() (<-chan dto.QueueSnapshotResponse, func()) {
	channel := make(chan dto.QueueSnapshotResponse, queueEventBufferSize)

	s.mu.Lock()
	s.subscribers[channel] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, channel)
			s.mu.Unlock()
			close(channel)
		})
	}
	return channel, cleanup
}

// broadcast never blocks the drain. Snapshots carry full state, so a slow
// subscriber only misses intermediate ones.
func (s *queueEventService) broadcast(snapshot dto.QueueSnapshotResponse) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for channel := range s.subscribers {
		select {
		case channel <- snapshot:
		default:
			s.logger.Debug().Msg("dropping queue snapshot for slow subscriber")
		}
	}
}

func (s *queueEventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("queue event redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *queueEventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats queue subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn().Err(err).Msg("failed to unsubscribe from nats queue subject")
		}
	}()
}

// handleEvent skips this node's own events; they were already broadcast by Publish.
func (s *queueEventService) handleEvent(payload []byte) {
	var event queueEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid queue event payload")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.broadcast(event.Snapshot)
}
