package redissource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oldg9516/ai-agents-stats-sub004/internal/testutil"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/loader"
)

// setupTestRedis creates a test Redis client.
// Tests are skipped when no Redis is listening on localhost; the
// integration build tag runs the same store against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

var ticketFilters = filter.FilterSet{Namespace: filter.NamespaceTickets, Agents: []string{"b", "a"}}

func TestNew(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := New[testutil.Row](client, Config{})
	if store.config.Prefix != DefaultPrefix {
		t.Errorf("Prefix = %q, want %q", store.config.Prefix, DefaultPrefix)
	}
	if store.config.TTL != DefaultTTL {
		t.Errorf("TTL = %v, want %v", store.config.TTL, DefaultTTL)
	}
}

func TestNew_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil redis client")
		}
	}()
	New[testutil.Row](nil, DefaultConfig())
}

func TestStore_Key(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	store := New[testutil.Row](client, Config{Prefix: "test:"})

	equivalent := filter.FilterSet{Namespace: filter.NamespaceTickets, Agents: []string{"a", "b", "a"}}
	if store.Key(ticketFilters) != store.Key(equivalent) {
		t.Errorf("equivalent filters produced different keys: %s vs %s", store.Key(ticketFilters), store.Key(equivalent))
	}
	if want := "test:tickets?agents=a&agents=b"; store.Key(ticketFilters) != want {
		t.Errorf("Key() = %s, want %s", store.Key(ticketFilters), want)
	}
}

func TestMissError(t *testing.T) {
	err := error(&MissError{Key: "k"})
	if !errors.Is(err, ErrNotMaterialized) {
		t.Error("MissError should match ErrNotMaterialized")
	}

	wrapped := &fetch.FetchError{Kind: fetch.KindTransport, Err: err}
	if wrapped.Retryable() {
		t.Error("a missing result set should not be retryable")
	}
}

func TestStore_StoreAndQuery(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(130)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	tests := []struct {
		name    string
		offset  int
		limit   int
		wantLen int
		wantID  int
	}{
		{name: "first page", offset: 0, limit: 60, wantLen: 60, wantID: 0},
		{name: "short last page", offset: 120, limit: 60, wantLen: 10, wantID: 120},
		{name: "past the end", offset: 200, limit: 60, wantLen: 0},
		{name: "zero limit", offset: 0, limit: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.Query(ctx, ticketFilters, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(rows) != tt.wantLen {
				t.Fatalf("len(rows) = %d, want %d", len(rows), tt.wantLen)
			}
			if tt.wantLen > 0 && rows[0].ID != tt.wantID {
				t.Errorf("rows[0].ID = %d, want %d", rows[0].ID, tt.wantID)
			}
		})
	}

	n, err := store.Len(ctx, ticketFilters)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 130 {
		t.Errorf("Len() = %d, want 130", n)
	}
}

func TestStore_Replace(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(100)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := store.Store(ctx, ticketFilters, testutil.Rows(5)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	rows, err := store.Query(ctx, ticketFilters, 0, 60)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("len(rows) = %d, want 5", len(rows))
	}
}

func TestStore_EmptyResultSet(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, nil); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	rows, err := store.Query(ctx, ticketFilters, 0, 60)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestStore_Append(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	rows := testutil.Rows(90)
	if err := store.Append(ctx, ticketFilters, rows[:60]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, ticketFilters, rows[60:]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	n, err := store.Len(ctx, ticketFilters)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 90 {
		t.Errorf("Len() = %d, want 90", n)
	}

	page, err := store.Query(ctx, ticketFilters, 60, 60)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(page) != 30 || page[0].ID != 60 {
		t.Errorf("page = %d rows starting at %d, want 30 starting at 60", len(page), page[0].ID)
	}
}

func TestStore_NotMaterialized(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if _, err := store.Query(ctx, ticketFilters, 0, 60); !errors.Is(err, ErrNotMaterialized) {
		t.Errorf("Query() error = %v, want ErrNotMaterialized", err)
	}
	if _, err := store.Len(ctx, ticketFilters); !errors.Is(err, ErrNotMaterialized) {
		t.Errorf("Len() error = %v, want ErrNotMaterialized", err)
	}
}

func TestStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(3)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := store.Delete(ctx, ticketFilters); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Query(ctx, ticketFilters, 0, 60); !errors.Is(err, ErrNotMaterialized) {
		t.Errorf("Query() after Delete error = %v, want ErrNotMaterialized", err)
	}
}

func TestStore_TTL(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, Config{TTL: 5 * time.Minute})
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(3)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	for _, key := range []string{store.Key(ticketFilters), store.Key(ticketFilters) + metaSuffix} {
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			t.Fatalf("TTL(%s) error = %v", key, err)
		}
		if ttl <= 0 || ttl > 5*time.Minute {
			t.Errorf("TTL(%s) = %v, want (0, 5m]", key, ttl)
		}
	}
}

func TestStore_AsLoaderSource(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(150)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	ctrl := loader.New[testutil.Row](store, gate.New(3), loader.Config{BatchSize: 60})
	defer ctrl.Close()

	var snap loader.Snapshot[testutil.Row]
	for i := 0; i < 3; i++ {
		var err error
		snap, err = ctrl.LoadMore(ctx, ticketFilters)
		if err != nil {
			t.Fatalf("LoadMore() #%d error = %v", i+1, err)
		}
	}

	if len(snap.Records) != 150 {
		t.Errorf("len(Records) = %d, want 150", len(snap.Records))
	}
	if snap.HasMore {
		t.Error("HasMore = true after the short batch")
	}
}
