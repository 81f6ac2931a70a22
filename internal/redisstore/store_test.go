package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/exchange/storetest"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "", ttl), mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) exchange.Store {
		s, _ := newTestStore(t, 0)
		return s
	})
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Dial(context.Background(), Options{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer s.Close()

	key := exchange.Key{RunID: "r", TaskID: "t", Label: "x"}
	require.NoError(t, s.Put(context.Background(), exchange.Entry{Key: key, Value: []byte(`1`)}))
	assert.True(t, mr.Exists("test:1:r:task:t"))
}

func TestDialUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Dial(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestUpdatedAtPreserved(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()
	key := exchange.Key{RunID: "r", TaskID: "t", Label: "x"}
	when := time.Date(2024, 3, 4, 5, 6, 7, 8, time.UTC)

	require.NoError(t, s.Put(ctx, exchange.Entry{Key: key, Value: []byte(`"a:b"`), UpdatedAt: when}))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `"a:b"`, string(got.Value))
	assert.True(t, got.UpdatedAt.Equal(when))
}

func TestTTLExpiresEntries(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()
	key := exchange.Key{RunID: "r", TaskID: "t", Label: "x"}

	require.NoError(t, s.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}))
	_, err := s.Get(ctx, key)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, exchange.ErrAbsent), "expected ErrAbsent after TTL, got %v", err)
}

func TestProducers(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	for _, taskID := range []string{"load_task", "extract_task", "load_task"} {
		key := exchange.Key{RunID: "r", TaskID: taskID, Label: "x"}
		require.NoError(t, s.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}))
	}

	producers, err := s.Producers(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"extract_task", "load_task"}, producers)
}

func TestMalformedField(t *testing.T) {
	s, mr := newTestStore(t, 0)
	mr.HSet(s.entriesKey("r", "t"), "x", "garbage")

	_, err := s.Get(context.Background(), exchange.Key{RunID: "r", TaskID: "t", Label: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, exchange.ErrAbsent))
}

func TestSeparatorsInIDsStayIsolated(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	written := exchange.Key{RunID: "x", TaskID: "t:task:u", Label: "l"}
	lookalike := exchange.Key{RunID: "x:task:t", TaskID: "u", Label: "l"}
	require.NoError(t, s.Put(ctx, exchange.Entry{Key: written, Value: []byte(`1`)}))
	require.NoError(t, s.Put(ctx, exchange.Entry{Key: exchange.Key{RunID: "x:task:t", TaskID: "other", Label: "l"}, Value: []byte(`2`)}))

	_, err := s.Get(ctx, lookalike)
	assert.True(t, errors.Is(err, exchange.ErrAbsent), "lookalike key resolved: %v", err)

	require.NoError(t, s.DeleteRun(ctx, "x:task:t"))
	got, err := s.Get(ctx, written)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got.Value))
}
