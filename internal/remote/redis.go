package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/repsync/internal/model"
)

// DefaultRedisPrefix namespaces every key the Redis backend writes.
const DefaultRedisPrefix = "repsync"

// Redis is a remote store backed by Redis.
//
// Layout:
//   - <prefix>:<table>:official        hash id -> row JSON (curated)
//   - <prefix>:<table>:user:<user_id>  hash id -> row JSON (personal)
//   - <prefix>:changes:<table>         Pub/Sub channel of Change JSON
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// DialRedis parses a redis:// URL, connects and verifies the connection.
func DialRedis(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		logger: slog.Default(),
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Connect returns a client bound to s.
func (r *Redis) Connect(s Session) Client {
	return &redisClient{backend: r, session: s}
}

func (r *Redis) officialKey(table model.Table) string {
	return fmt.Sprintf("%s:%s:official", r.prefix, table)
}

func (r *Redis) personalKey(table model.Table, userID string) string {
	return fmt.Sprintf("%s:%s:user:%s", r.prefix, table, userID)
}

func (r *Redis) channel(table model.Table) string {
	return fmt.Sprintf("%s:changes:%s", r.prefix, table)
}

// PublishOfficial writes a curated row and notifies subscribers.
func (r *Redis) PublishOfficial(ctx context.Context, table model.Table, id string, row json.RawMessage) error {
	if err := checkRow(table, id, row); err != nil {
		return err
	}

	added, err := r.client.HSet(ctx, r.officialKey(table), id, string(row)).Result()
	if err != nil {
		return fmt.Errorf("publish official %s/%s: %w", table, id, err)
	}

	kind := ChangeUpdate
	if added > 0 {
		kind = ChangeInsert
	}
	return r.notify(ctx, Change{Table: table, Kind: kind, ID: id})
}

// RemoveOfficial deletes a curated row and notifies subscribers.
func (r *Redis) RemoveOfficial(ctx context.Context, table model.Table, id string) error {
	if err := r.client.HDel(ctx, r.officialKey(table), id).Err(); err != nil {
		return fmt.Errorf("remove official %s/%s: %w", table, id, err)
	}
	return r.notify(ctx, Change{Table: table, Kind: ChangeDelete, ID: id})
}

func (r *Redis) notify(ctx context.Context, change Change) error {
	msg, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(change.Table), msg).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (r *Redis) list(ctx context.Context, key string) ([]json.RawMessage, error) {
	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, json.RawMessage(values[id]))
	}
	return rows, nil
}

type redisClient struct {
	backend *Redis
	session Session
}

func (c *redisClient) Session() Session {
	return c.session
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.backend.client.Ping(ctx).Err()
}

func (c *redisClient) Upsert(ctx context.Context, table model.Table, id string, row json.RawMessage) error {
	if !c.session.Authenticated() {
		return ErrUnauthenticated
	}
	if err := checkRow(table, id, row); err != nil {
		return err
	}
	key := c.backend.personalKey(table, c.session.UserID)
	if err := c.backend.client.HSet(ctx, key, id, string(row)).Err(); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", table, id, err)
	}
	return nil
}

func (c *redisClient) Delete(ctx context.Context, table model.Table, id string) error {
	if !c.session.Authenticated() {
		return ErrUnauthenticated
	}
	key := c.backend.personalKey(table, c.session.UserID)
	if err := c.backend.client.HDel(ctx, key, id).Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (c *redisClient) ListOfficial(ctx context.Context, table model.Table) ([]json.RawMessage, error) {
	rows, err := c.backend.list(ctx, c.backend.officialKey(table))
	if err != nil {
		return nil, fmt.Errorf("list official %s: %w", table, err)
	}
	return rows, nil
}

func (c *redisClient) ListPersonal(ctx context.Context, table model.Table) ([]json.RawMessage, error) {
	if !c.session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	rows, err := c.backend.list(ctx, c.backend.personalKey(table, c.session.UserID))
	if err != nil {
		return nil, fmt.Errorf("list personal %s: %w", table, err)
	}
	return rows, nil
}

func (c *redisClient) Subscribe(ctx context.Context, table model.Table, fn func(Change)) (func(), error) {
	ps := c.backend.client.Subscribe(ctx, c.backend.channel(table))

	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	logger := c.backend.logger
	messages := ps.Channel()
	go func() {
		for msg := range messages {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.Warn("ignoring malformed change notification",
					"table", table,
					"error", err,
				)
				continue
			}
			fn(change)
		}
	}()

	var once sync.Once
	closed := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(closed)
			if err := ps.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				logger.Debug("closing subscription", "table", table, "error", err)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-closed:
		}
	}()

	return cancel, nil
}
