package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

const account = "0x00000000000000000000000000000000000000aa"

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func stepClock(store *Storage, start time.Time, step time.Duration) {
	next := start
	store.now = func() time.Time {
		current := next
		next = next.Add(step)
		return current
	}
}

func TestSaveAndLatest(t *testing.T) {
	store := openTestDB(t)
	stepClock(store, time.Unix(1700000000, 0), time.Minute)
	ctx := context.Background()

	first, dup, err := store.Save(ctx, 1, account, []byte(`{"chainId":1,"records":[1]}`), 1)
	if err != nil || dup {
		t.Fatalf("save first: dup=%v err=%v", dup, err)
	}
	second, dup, err := store.Save(ctx, 1, account, []byte(`{"chainId":1,"records":[2]}`), 1)
	if err != nil || dup {
		t.Fatalf("save second: dup=%v err=%v", dup, err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids")
	}
	latest, err := store.Latest(ctx, 1, account)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID || string(latest.Payload) != `{"chainId":1,"records":[2]}` {
		t.Fatalf("unexpected latest: %+v", latest)
	}
	if latest.Fingerprint != Fingerprint(latest.Payload) {
		t.Fatalf("fingerprint mismatch")
	}
}

func TestSaveDetectsDuplicate(t *testing.T) {
	store := openTestDB(t)
	stepClock(store, time.Unix(1700000000, 0), time.Minute)
	ctx := context.Background()
	payload := []byte(`{"chainId":1,"records":[]}`)

	first, _, err := store.Save(ctx, 1, account, payload, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	again, dup, err := store.Save(ctx, 1, account, payload, 0)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if !dup || again.ID != first.ID {
		t.Fatalf("expected duplicate of %s, got %s dup=%v", first.ID, again.ID, dup)
	}
	// The same payload on another chain is a separate history.
	if _, dup, _ := store.Save(ctx, 5, account, payload, 0); dup {
		t.Fatalf("chain scoped snapshot reported as duplicate")
	}
}

func TestLatestNotFound(t *testing.T) {
	store := openTestDB(t)
	if _, err := store.Latest(context.Background(), 1, account); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryAndPrune(t *testing.T) {
	store := openTestDB(t)
	start := time.Unix(1700000000, 0)
	stepClock(store, start, time.Hour)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, _, err := store.Save(ctx, 1, account, []byte(fmt.Sprintf(`{"n":%d}`, i)), i); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	history, err := store.History(ctx, 1, account, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].RecordCount != 3 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].Payload != nil {
		t.Fatalf("history should omit payloads")
	}

	removed, err := store.Prune(ctx, start.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 pruned rows, got %d", removed)
	}
	latest, err := store.Latest(ctx, 1, account)
	if err != nil || latest.RecordCount != 3 {
		t.Fatalf("newest snapshot must survive prune: %+v %v", latest, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
	if _, err := Open("sqlite", " "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestFileDSN(t *testing.T) {
	if _, err := FileDSN(""); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
	dsn, err := FileDSN("data/dash.sqlite")
	if err != nil {
		t.Fatalf("file dsn: %v", err)
	}
	if len(dsn) < 5 || dsn[:5] != "file:" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}
