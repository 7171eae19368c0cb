package pinstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pins.db")
	store, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// stores runs each subtest against both implementations.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sql", func(t *testing.T) {
		t.Parallel()
		fn(t, openTestStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryStore())
	})
}

func TestPinRoundTrip(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		got, err := s.LoadFingerprint(ctx, "manual|gw.local|443")
		if err != nil {
			t.Fatalf("load missing pin: %v", err)
		}
		if got != "" {
			t.Fatalf("missing pin returned %q", got)
		}

		if err := s.SaveFingerprint(ctx, "manual|gw.local|443", "AA:BB"); err != nil {
			t.Fatalf("save pin: %v", err)
		}
		got, err = s.LoadFingerprint(ctx, "manual|gw.local|443")
		if err != nil {
			t.Fatalf("load pin: %v", err)
		}
		if got != "AA:BB" {
			t.Fatalf("expected AA:BB, got %q", got)
		}
	})
}

func TestPinOverwriteIsExplicitRePin(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SaveFingerprint(ctx, "dnssd|Office Gateway", "AA:BB"); err != nil {
			t.Fatalf("save pin: %v", err)
		}
		if err := s.SaveFingerprint(ctx, "dnssd|Office Gateway", "CC:DD"); err != nil {
			t.Fatalf("re-pin: %v", err)
		}
		got, err := s.LoadFingerprint(ctx, "dnssd|Office Gateway")
		if err != nil {
			t.Fatalf("load pin: %v", err)
		}
		if got != "CC:DD" {
			t.Fatalf("expected CC:DD after re-pin, got %q", got)
		}
	})
}

func TestBlankFingerprintsRejected(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.SaveFingerprint(ctx, "manual|gw.local|443", ""); err == nil {
			t.Fatal("empty fingerprint accepted")
		}
		if err := s.SaveFingerprint(ctx, "manual|gw.local|443", "   "); err == nil {
			t.Fatal("whitespace fingerprint accepted")
		}
		if err := s.SaveFingerprint(ctx, "", "AA:BB"); err == nil {
			t.Fatal("empty stable id accepted")
		}
	})
}

func TestDeleteFingerprint(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SaveFingerprint(ctx, "manual|gw.local|443", "AA:BB"); err != nil {
			t.Fatalf("save pin: %v", err)
		}
		if err := s.DeleteFingerprint(ctx, "manual|gw.local|443"); err != nil {
			t.Fatalf("delete pin: %v", err)
		}
		got, err := s.LoadFingerprint(ctx, "manual|gw.local|443")
		if err != nil {
			t.Fatalf("load pin: %v", err)
		}
		if got != "" {
			t.Fatalf("pin survived delete: %q", got)
		}
		// Deleting again is a no-op.
		if err := s.DeleteFingerprint(ctx, "manual|gw.local|443"); err != nil {
			t.Fatalf("delete missing pin: %v", err)
		}
	})
}

func TestListPins(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SaveFingerprint(ctx, "manual|b.local|443", "BB"); err != nil {
			t.Fatalf("save pin: %v", err)
		}
		if err := s.SaveFingerprint(ctx, "manual|a.local|443", "AA"); err != nil {
			t.Fatalf("save pin: %v", err)
		}

		pins, err := s.ListPins(ctx)
		if err != nil {
			t.Fatalf("list pins: %v", err)
		}
		if len(pins) != 2 {
			t.Fatalf("expected 2 pins, got %d", len(pins))
		}
		if pins[0].StableID != "manual|a.local|443" || pins[1].StableID != "manual|b.local|443" {
			t.Fatalf("unexpected order: %v", pins)
		}
	})
}

func TestIdentityStableAcrossReopens(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "pins.db")
	ctx := context.Background()

	store, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	first, err := store.Identity(ctx)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if first.InstanceID == "" {
		t.Fatal("empty instance id")
	}
	if err := store.SetDisplayName(ctx, "Kitchen Tablet"); err != nil {
		t.Fatalf("set display name: %v", err)
	}
	store.Close()

	store, err = Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	second, err := store.Identity(ctx)
	if err != nil {
		t.Fatalf("identity after reopen: %v", err)
	}
	if second.InstanceID != first.InstanceID {
		t.Fatalf("instance id changed across reopen: %q vs %q", second.InstanceID, first.InstanceID)
	}
	if second.DisplayName != "Kitchen Tablet" {
		t.Fatalf("display name lost: %q", second.DisplayName)
	}
}

func TestConcurrentLoadsAndWrites(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SaveFingerprint(ctx, "manual|gw.local|443", "AA:BB"); err != nil {
			t.Fatalf("seed pin: %v", err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 64)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 4; j++ {
					got, err := s.LoadFingerprint(ctx, "manual|gw.local|443")
					if err != nil {
						errs <- err
						return
					}
					// A reader must never see a half-written value.
					if got != "AA:BB" && got != "CC:DD" {
						errs <- fmt.Errorf("torn read: %q", got)
						return
					}
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SaveFingerprint(ctx, "manual|gw.local|443", "CC:DD"); err != nil {
				errs <- err
			}
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent access: %v", err)
		}
	})
}
