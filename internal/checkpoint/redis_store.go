package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// Compare-and-delete / compare-and-extend so a lock is only touched by its owner
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisStore keeps checkpoints, the index and project locks in Redis.
// It implements Store, Index and Locker.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRedisStore wraps a client; keys are namespaced by prefix
func NewRedisStore(client *redis.Client, prefix string, lockTTL time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Backend implements Store
func (s *RedisStore) Backend() string { return "redis" }

func (s *RedisStore) recordKey(id string) string { return s.prefix + ":checkpoint:" + id }
func (s *RedisStore) entryKey(id string) string  { return s.prefix + ":entry:" + id }
func (s *RedisStore) lockKey(id string) string   { return s.prefix + ":lock:" + id }
func (s *RedisStore) indexKey() string           { return s.prefix + ":index" }

// Load reads a project's record, or ErrNotFound
func (s *RedisStore) Load(ctx context.Context, projectID string) (*models.CheckpointRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
		}
		return nil, &CheckpointIOError{Op: "load", ProjectID: projectID, Err: err}
	}

	var rec models.CheckpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CheckpointIOError{Op: "load", ProjectID: projectID, Err: fmt.Errorf("corrupt record: %w", err)}
	}
	if rec.CompletedSections == nil {
		rec.CompletedSections = []int{}
	}
	return &rec, nil
}

// Save replaces the record with a single SET
func (s *RedisStore) Save(ctx context.Context, rec *models.CheckpointRecord) error {
	if err := Validate(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &CheckpointIOError{Op: "save", ProjectID: rec.ProjectID, Err: err}
	}
	if err := s.client.Set(ctx, s.recordKey(rec.ProjectID), data, 0).Err(); err != nil {
		return &CheckpointIOError{Op: "save", ProjectID: rec.ProjectID, Err: err}
	}
	return nil
}

// Delete removes a project's record
func (s *RedisStore) Delete(ctx context.Context, projectID string) error {
	if err := s.client.Del(ctx, s.recordKey(projectID)).Err(); err != nil {
		return &CheckpointIOError{Op: "delete", ProjectID: projectID, Err: err}
	}
	return nil
}

// Upsert stores the entry and scores it by update time
func (s *RedisStore) Upsert(ctx context.Context, e models.IndexEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(e.ProjectID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(e.LastUpdatedAt.UnixMilli()),
			Member: e.ProjectID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert index entry %s: %w", e.ProjectID, err)
	}
	return nil
}

// Incomplete returns unfinished projects, most recently updated first
func (s *RedisStore) Incomplete(ctx context.Context) ([]models.IndexEntry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.IndexEntry
	for _, e := range all {
		if e.Incomplete() {
			out = append(out, e)
		}
	}
	return out, nil
}

// List returns all projects, most recently updated first
func (s *RedisStore) List(ctx context.Context) ([]models.IndexEntry, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index entries: %w", err)
	}

	entries := make([]models.IndexEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("Index entry missing", "project_id", ids[i])
			continue
		}
		var e models.IndexEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn("Index entry unreadable", "project_id", ids[i], "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Remove drops a project from the index
func (s *RedisStore) Remove(ctx context.Context, projectID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(projectID))
		pipe.ZRem(ctx, s.indexKey(), projectID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove index entry %s: %w", projectID, err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Acquire takes the project's lock with SET NX and keeps extending it until
// Unlock is called.
func (s *RedisStore) Acquire(ctx context.Context, projectID string) (Lock, error) {
	if err := writer.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	token := uuid.NewString()
	key := s.lockKey(projectID)

	ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock project %s: %w", projectID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectLocked, projectID)
	}

	l := &redisLock{
		client: s.client,
		key:    key,
		token:  token,
		ttl:    s.lockTTL,
		logger: s.logger,
		stop:   make(chan struct{}),
		lost:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.keepAlive()
	return l, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger *slog.Logger
	stop   chan struct{}
	lost   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (l *redisLock) keepAlive() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to extend project lock", "key", l.key, "error", err)
			} else if n == 0 {
				l.logger.Error("Project lock lost", "key", l.key)
				close(l.lost)
				return
			}
		}
	}
}

// Lost is closed once an extension finds the lock owned by someone else
func (l *redisLock) Lost() <-chan struct{} { return l.lost }

// Unlock stops the keep-alive and releases the lock if still owned
func (l *redisLock) Unlock() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	})
	return err
}
