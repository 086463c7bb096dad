// Package cache holds the Redis backed token store and revocation bus.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
)

const (
	tokenKeyPrefix    = "masomo:client-token:"
	revocationChannel = "masomo:session-revoked"
)

// Connect initializes a Redis client from URL or host:port input, and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// TokenStore keeps client tokens as expiring Redis keys.
type TokenStore struct {
	client redis.UniversalClient
}

var _ auth.TokenStore = (*TokenStore)(nil)

func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) Load(ctx context.Context, clientID string) (string, error) {
	token, err := s.client.Get(ctx, tokenKeyPrefix+clientID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

func (s *TokenStore) Save(ctx context.Context, clientID, token string, ttl time.Duration) error {
	return s.client.Set(ctx, tokenKeyPrefix+clientID, token, ttl).Err()
}

func (s *TokenStore) Delete(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, tokenKeyPrefix+clientID).Err()
}

// RevocationBus broadcasts revoked session IDs over Redis pub/sub, so that every
// server process signs the matching application instances out.
type RevocationBus struct {
	client    redis.UniversalClient
	pubsub    *redis.PubSub
	logger    core.Logger
	listeners auth.Listeners[string]
	done      chan struct{}
	closeOnce sync.Once
}

var _ auth.RevocationBus = (*RevocationBus)(nil)

func NewRevocationBus(ctx context.Context, client redis.UniversalClient, logger core.Logger) (*RevocationBus, error) {
	pubsub := client.Subscribe(ctx, revocationChannel)
	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "subscribing to revocations")
	}

	bus := &RevocationBus{
		client: client,
		pubsub: pubsub,
		logger: logger,
		done:   make(chan struct{}),
	}
	go bus.listen()
	return bus, nil
}

func (b *RevocationBus) listen() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		b.logger.Debug(fmt.Sprintf("session %q revoked", msg.Payload))
		b.listeners.Emit(msg.Payload)
	}
}

func (b *RevocationBus) Publish(ctx context.Context, sessionID string) error {
	return b.client.Publish(ctx, revocationChannel, sessionID).Err()
}

func (b *RevocationBus) Subscribe(fn func(string)) func() {
	return b.listeners.Add(fn)
}

func (b *RevocationBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		b.listeners.Clear()
	})
	return err
}
