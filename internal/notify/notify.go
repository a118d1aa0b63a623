// Package notify delivers arena events to participants.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/config"
)

// ErrEmptyParticipant is returned when Notify is called without a recipient.
var ErrEmptyParticipant = errors.New("notify: participant id must not be empty")

// Envelope field names of the wire payload.
const (
	FieldKey    = "key"
	FieldParams = "params"
)

// Envelope wraps a notification as {"key": key, "params": params}.
//
// Postcondition: params is never nil in the result.
func Envelope(key string, params *structpb.Struct) *structpb.Struct {
	if params == nil {
		params = &structpb.Struct{}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldKey:    structpb.NewStringValue(key),
		FieldParams: structpb.NewStructValue(params),
	}}
}

// Encode renders the envelope of key and params as protojson.
//
// Postcondition: Returns valid JSON or a non-nil error.
func Encode(key string, params *structpb.Struct) ([]byte, error) {
	return protojson.Marshal(Envelope(key, params))
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (string, *structpb.Struct, error) {
	var env structpb.Struct
	if err := protojson.Unmarshal(payload, &env); err != nil {
		return "", nil, fmt.Errorf("decoding notification: %w", err)
	}
	key := env.GetFields()[FieldKey].GetStringValue()
	if key == "" {
		return "", nil, errors.New("decoding notification: missing key")
	}
	params := env.GetFields()[FieldParams].GetStructValue()
	if params == nil {
		params = &structpb.Struct{}
	}
	return key, params, nil
}

// RedisNotifier publishes notifications on the per-participant channel
// "<prefix>:<participant>".
type RedisNotifier struct {
	client *goredis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
//
// Precondition: cfg.Addr and cfg.ChannelPrefix must be non-empty.
// Postcondition: Returns a connected notifier or a non-nil error.
func NewRedisNotifier(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisNotifier, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisNotifierFromClient(client, cfg.ChannelPrefix, logger), nil
}

// NewRedisNotifierFromClient wraps an existing client.
func NewRedisNotifierFromClient(client *goredis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, prefix: prefix, logger: logger}
}

// Channel returns the channel participantID listens on.
func (n *RedisNotifier) Channel(participantID string) string {
	return n.prefix + ":" + participantID
}

// Notify publishes key and params to the participant's channel.
//
// Postcondition: Returns nil once Redis accepted the message, regardless of subscriber count.
func (n *RedisNotifier) Notify(ctx context.Context, participantID, key string, params *structpb.Struct) error {
	if participantID == "" {
		return ErrEmptyParticipant
	}
	payload, err := Encode(key, params)
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", key, err)
	}
	receivers, err := n.client.Publish(ctx, n.Channel(participantID), payload).Result()
	if err != nil {
		return fmt.Errorf("publishing %s to %s: %w", key, participantID, err)
	}
	n.logger.Debug("notification published",
		zap.String("participant", participantID),
		zap.String("key", key),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Subscribe opens a subscription on participantID's channel.
func (n *RedisNotifier) Subscribe(ctx context.Context, participantID string) *goredis.PubSub {
	return n.client.Subscribe(ctx, n.Channel(participantID))
}

// Close releases the Redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier writes notifications to a logger instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger discards everything.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(_ context.Context, participantID, key string, params *structpb.Struct) error {
	if participantID == "" {
		return ErrEmptyParticipant
	}
	payload, err := protojson.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", key, err)
	}
	n.logger.Info("notification",
		zap.String("participant", participantID),
		zap.String("key", key),
		zap.ByteString("params", payload),
	)
	return nil
}
