package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/redis/go-redis/v9"
)

func record(i int, at time.Time) models.PredictionRecord {
	return models.PredictionRecord{
		ID:            fmt.Sprintf("id-%02d", i),
		RequestID:     fmt.Sprintf("req-%02d", i),
		Variant:       models.VariantSegmentation,
		Filename:      "scan.png",
		Label:         string(models.LabelPositive),
		Confidence:    87,
		RegionCount:   i,
		AnnotationRef: fmt.Sprintf("/tmp/%02d.png", i),
		CreatedAt:     at,
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, record(i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	got, err := store.Get(ctx, "id-03")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := record(3, base.Add(3*time.Minute))
	if got.RequestID != want.RequestID || got.RegionCount != 3 || got.Variant != want.Variant || got.AnnotationRef != want.AnnotationRef {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d records", len(recent))
	}
	for i, id := range []string{"id-04", "id-03", "id-02"} {
		if recent[i].ID != id {
			t.Fatalf("Recent[%d] = %s, want %s", i, recent[i].ID, id)
		}
	}
}

func TestSQLStoreSQLite(t *testing.T) {
	store, err := NewSQLStore(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)

	if err := store.Record(context.Background(), record(1, time.Now())); err == nil {
		t.Fatal("duplicate id should fail")
	}
}

func TestSQLStoreSQLiteDSNWithQuery(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db") + "?_foreign_keys=on"
	store, err := NewSQLStore(context.Background(), "sqlite3", dsn)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLStoreUnknownDriver(t *testing.T) {
	if _, err := NewSQLStore(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, &redis.Options{Addr: addr, DB: 15}, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()
	if err := store.client.FlushDB(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	exerciseStore(t, store)
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{-1: DefaultLimit, 0: DefaultLimit, 5: 5, MaxLimit + 1: MaxLimit}
	for in, want := range tests {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNoop(t *testing.T) {
	var s Store = Noop{}
	if err := s.Record(context.Background(), record(0, time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
