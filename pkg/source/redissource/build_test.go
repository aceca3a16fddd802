package redissource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oldg9516/ai-agents-stats-sub004/internal/testutil"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/loader"
)

func TestBuild_HiddenUntilCommit(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	build := store.Begin(ticketFilters)
	if !strings.HasPrefix(build.StagingKey(), store.Key(ticketFilters)+stagingInfix) {
		t.Errorf("StagingKey() = %s", build.StagingKey())
	}
	if err := build.Append(ctx, testutil.Rows(60)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if _, err := store.Query(ctx, ticketFilters, 0, 60); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("Query() during build error = %v, want ErrNotMaterialized", err)
	}

	// A loader reading mid-build must not take the partial set as complete.
	ctrl := loader.New[testutil.Row](store, gate.New(1), loader.Config{BatchSize: 100})
	defer ctrl.Close()
	snap, err := ctrl.LoadMore(ctx, ticketFilters)
	if err == nil {
		t.Fatal("LoadMore() during build should fail")
	}
	if snap.Complete || !snap.HasMore {
		t.Errorf("snapshot during build: Complete=%v HasMore=%v", snap.Complete, snap.HasMore)
	}

	if err := build.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rows, err := store.Query(ctx, ticketFilters, 0, 100)
	if err != nil {
		t.Fatalf("Query() after commit error = %v", err)
	}
	if len(rows) != 60 {
		t.Errorf("len(rows) = %d, want 60", len(rows))
	}
	if n := client.Exists(ctx, build.StagingKey()).Val(); n != 0 {
		t.Error("staging list should be gone after commit")
	}

	snap, err = ctrl.LoadMore(ctx, ticketFilters)
	if err != nil {
		t.Fatalf("LoadMore() after commit error = %v", err)
	}
	if snap.Loaded != 60 || !snap.Complete {
		t.Errorf("Loaded = %d Complete = %v, want 60 true", snap.Loaded, snap.Complete)
	}
}

func TestBuild_PreviousCopyServedUntilCommit(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(10)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	build := store.Begin(ticketFilters)
	if err := build.Append(ctx, testutil.Rows(100)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rows, err := store.Query(ctx, ticketFilters, 0, 60)
	if err != nil {
		t.Fatalf("Query() during build error = %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("during build len(rows) = %d, want the previous 10", len(rows))
	}

	if err := build.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	n, err := store.Len(ctx, ticketFilters)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 100 {
		t.Errorf("Len() = %d, want 100", n)
	}
}

func TestBuild_AbortKeepsPreviousCopy(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(10)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	build := store.Begin(ticketFilters)
	if err := build.Append(ctx, testutil.Rows(50)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := build.Abort(ctx); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	n, err := store.Len(ctx, ticketFilters)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 10 {
		t.Errorf("Len() = %d, want 10", n)
	}
	if client.Exists(ctx, build.StagingKey()).Val() != 0 {
		t.Error("staging list should be gone after abort")
	}
	if err := build.Append(ctx, testutil.Rows(1)); err == nil {
		t.Error("Append() after Abort should fail")
	}
}

func TestBuild_EmptyCommit(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	if err := store.Store(ctx, ticketFilters, testutil.Rows(10)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	build := store.Begin(ticketFilters)
	if err := build.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rows, err := store.Query(ctx, ticketFilters, 0, 60)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestBuild_StagingLost(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, DefaultConfig())
	ctx := context.Background()

	build := store.Begin(ticketFilters)
	if err := build.Append(ctx, testutil.Rows(20)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	// Simulates the staging list expiring during a long run.
	client.Del(ctx, build.StagingKey())

	if err := build.Commit(ctx); !errors.Is(err, ErrStagingLost) {
		t.Fatalf("Commit() error = %v, want ErrStagingLost", err)
	}
	if _, err := store.Query(ctx, ticketFilters, 0, 60); !errors.Is(err, ErrNotMaterialized) {
		t.Errorf("Query() error = %v, want ErrNotMaterialized", err)
	}
}

func TestBuild_TTL(t *testing.T) {
	client := setupTestRedis(t)
	store := New[testutil.Row](client, Config{TTL: 5 * time.Minute})
	ctx := context.Background()

	build := store.Begin(ticketFilters)
	if err := build.Append(ctx, testutil.Rows(3)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ttl := client.TTL(ctx, build.StagingKey()).Val(); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("staging TTL = %v, want (0, 5m]", ttl)
	}

	if err := build.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	for _, key := range []string{store.Key(ticketFilters), store.Key(ticketFilters) + metaSuffix} {
		if ttl := client.TTL(ctx, key).Val(); ttl <= 0 || ttl > 5*time.Minute {
			t.Errorf("TTL(%s) = %v, want (0, 5m]", key, ttl)
		}
	}
	if build.Len() != 3 {
		t.Errorf("Len() = %d, want 3", build.Len())
	}
}
