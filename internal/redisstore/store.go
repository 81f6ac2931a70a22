// Package redisstore keeps exchange entries in Redis.
//
// Each (run, task) pair maps to one hash whose fields are labels, so a
// publish is a single HSET and last-write-wins falls out of Redis itself.
// A per-run set indexes the producing tasks for DeleteRun and Producers.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/etlrun/internal/exchange"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "etlrun:xcom:"

// Options configures a connection opened by Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 keeps entries until DeleteRun
}

// Store implements exchange.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

var _ exchange.Store = (*Store)(nil)

// New wraps an existing client. The caller keeps ownership of it.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	s := New(client, opts.Prefix, opts.TTL)
	s.owned = true
	return s, nil
}

// Close closes the client if Dial created it.
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// runKey length-prefixes runID so no (run, task) pair can spell another
// pair's key, whatever separators the IDs contain.
func (s *Store) runKey(runID string) string {
	return s.prefix + strconv.Itoa(len(runID)) + ":" + runID
}

func (s *Store) entriesKey(runID, taskID string) string {
	return s.runKey(runID) + ":task:" + taskID
}

func (s *Store) tasksKey(runID string) string {
	return s.runKey(runID) + ":tasks"
}

// Put writes the entry and indexes its producer in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, entry exchange.Entry) error {
	hash := s.entriesKey(entry.Key.RunID, entry.Key.TaskID)
	index := s.tasksKey(entry.Key.RunID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hash, entry.Key.Label, encodeField(entry))
		pipe.SAdd(ctx, index, entry.Key.TaskID)
		if s.ttl > 0 {
			pipe.Expire(ctx, hash, s.ttl)
			pipe.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put entry %s: %w", entry.Key, err)
	}
	return nil
}

// Get returns the entry for key or an error wrapping exchange.ErrAbsent.
func (s *Store) Get(ctx context.Context, key exchange.Key) (exchange.Entry, error) {
	raw, err := s.client.HGet(ctx, s.entriesKey(key.RunID, key.TaskID), key.Label).Result()
	if errors.Is(err, redis.Nil) {
		return exchange.Entry{}, exchange.Absent(key)
	}
	if err != nil {
		return exchange.Entry{}, fmt.Errorf("failed to get entry %s: %w", key, err)
	}

	entry, err := decodeField(key, raw)
	if err != nil {
		return exchange.Entry{}, err
	}
	return entry, nil
}

// Labels lists the labels published by taskID within runID, sorted.
func (s *Store) Labels(ctx context.Context, runID, taskID string) ([]string, error) {
	labels, err := s.client.HKeys(ctx, s.entriesKey(runID, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels of %s/%s: %w", runID, taskID, err)
	}
	sort.Strings(labels)
	return labels, nil
}

// Producers lists the task IDs that published in runID, sorted.
func (s *Store) Producers(ctx context.Context, runID string) ([]string, error) {
	tasks, err := s.client.SMembers(ctx, s.tasksKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list producers of %s: %w", runID, err)
	}
	sort.Strings(tasks)
	return tasks, nil
}

// DeleteRun removes every hash of runID together with its index.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tasks, err := s.client.SMembers(ctx, s.tasksKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list producers of %s: %w", runID, err)
	}

	keys := make([]string, 0, len(tasks)+1)
	for _, taskID := range tasks {
		keys = append(keys, s.entriesKey(runID, taskID))
	}
	keys = append(keys, s.tasksKey(runID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// encodeField stores the update time ahead of the payload as "<unix nanos>:<value>".
func encodeField(entry exchange.Entry) string {
	var ns int64
	if !entry.UpdatedAt.IsZero() {
		ns = entry.UpdatedAt.UnixNano()
	}
	return strconv.FormatInt(ns, 10) + ":" + string(entry.Value)
}

func decodeField(key exchange.Key, raw string) (exchange.Entry, error) {
	stamp, value, ok := strings.Cut(raw, ":")
	if !ok {
		return exchange.Entry{}, fmt.Errorf("malformed entry %s", key)
	}
	ns, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return exchange.Entry{}, fmt.Errorf("malformed timestamp in entry %s: %w", key, err)
	}

	entry := exchange.Entry{Key: key, Value: []byte(value)}
	if ns != 0 {
		entry.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return entry, nil
}
