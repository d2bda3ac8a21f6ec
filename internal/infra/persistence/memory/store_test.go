package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"labelcore/internal/infra/persistence/memory"
	"labelcore/pkg/domain"
)

type blockEverythingRule struct{}

func (blockEverythingRule) Name() string { return "block_everything" }

func (blockEverythingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_everything",
		Severity: domain.SeverityBlock,
		Message:  "no writes allowed",
	}}}, nil
}

func seedProduct(t *testing.T, store *memory.Store, productID string) domain.Product {
	t.Helper()
	var created domain.Product
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.PutProduct(domain.Product{ProductID: productID, Name: "Seeded", CaseSize: 24})
		return err
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return created
}

func TestTransactionCommitAndLifecycleStamps(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	created := seedProduct(t, store, "p-1")
	if !created.CreatedOn.Equal(now) || !created.UpdatedOn.Equal(now) {
		t.Fatalf("expected lifecycle stamps at %v, got %+v", now, created)
	}

	later := now.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return later })
	var updated domain.Product
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateProduct("p-1", func(p *domain.Product) error {
			p.Name = "Renamed"
			p.ProductID = "hijack"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.ProductID != "p-1" {
		t.Fatalf("mutator must not change the key, got %q", updated.ProductID)
	}
	if !updated.CreatedOn.Equal(now) || !updated.UpdatedOn.Equal(later) {
		t.Fatalf("expected preserved created and advanced updated, got %+v", updated)
	}

	stored, ok := store.GetProduct("p-1")
	if !ok || stored.Name != "Renamed" {
		t.Fatalf("committed state mismatch: %+v ok=%v", stored, ok)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := memory.NewStore(nil)
	seedProduct(t, store, "p-1")

	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutProduct(domain.Product{ProductID: "p-2", Name: "Doomed"}); err != nil {
			return err
		}
		if err := tx.DeleteProduct("p-1", true); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if _, ok := store.GetProduct("p-2"); ok {
		t.Fatalf("rolled back insert must not be visible")
	}
	if _, ok := store.GetProduct("p-1"); !ok {
		t.Fatalf("rolled back delete must restore visibility")
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverythingRule{})
	store := memory.NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutProduct(domain.Product{ProductID: "p-1", Name: "Blocked"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !res.HasBlocking() || res.Violations[0].Rule != "block_everything" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, ok := store.GetProduct("p-1"); ok {
		t.Fatalf("blocked write must not commit")
	}
}

func TestWatchDeliversCommittedChanges(t *testing.T) {
	store := memory.NewStore(nil)
	var batches [][]domain.Change
	cancel := store.Watch(func(changes []domain.Change) {
		batches = append(batches, changes)
	})

	seedProduct(t, store, "p-1")
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one change batch, got %+v", batches)
	}
	change := batches[0][0]
	if change.Entity != domain.EntityProduct || change.Action != domain.ActionCreate {
		t.Fatalf("unexpected change: %+v", change)
	}

	// failed transactions notify nobody
	boom := errors.New("boom")
	_, _ = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, _ = tx.PutProduct(domain.Product{ProductID: "p-2"})
		return boom
	})
	if len(batches) != 1 {
		t.Fatalf("failed transaction must not notify, got %d batches", len(batches))
	}

	cancel()
	seedProduct(t, store, "p-3")
	if len(batches) != 1 {
		t.Fatalf("cancelled watcher must not be notified, got %d batches", len(batches))
	}
}

func TestSnapshotRoundTripIsDeep(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	seedProduct(t, store, "p-1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutDevice(domain.Device{DeviceID: "AB0001", OrderID: "PO-1", CaseID: "20260828001"}); err != nil {
			return err
		}
		if err := tx.DeleteDevice("AB0001", false); err != nil {
			return err
		}
		_, err := tx.UpdateSettings(func(s *domain.Settings) error {
			s.UserPrefs = &domain.UserPrefs{Volume: 50, Printers: []string{"front-desk"}}
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	snapshot := store.ExportState()
	restored := memory.NewStore(nil)
	restored.ImportState(snapshot)

	// mutating the snapshot afterwards must not leak into either store
	snapshot.Products["p-1"] = domain.Product{ProductID: "p-1", Name: "Tampered"}
	*snapshot.Devices["AB0001"].DeletedOn = now.Add(time.Hour)
	snapshot.Settings.UserPrefs.Printers[0] = "tampered"

	for name, s := range map[string]*memory.Store{"source": store, "restored": restored} {
		p, ok := s.GetProduct("p-1")
		if !ok || p.Name != "Seeded" {
			t.Fatalf("%s: product mismatch: %+v", name, p)
		}
		d, ok := s.GetDevice("AB0001")
		if !ok || !d.Deleted() || !d.DeletedOn.Equal(now) {
			t.Fatalf("%s: device mismatch: %+v", name, d)
		}
		prefs := s.Settings().UserPrefs
		if prefs == nil || prefs.Printers[0] != "front-desk" {
			t.Fatalf("%s: settings mismatch: %+v", name, prefs)
		}
	}
}

func TestFindDeviceByUDIPrefersActive(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutDevice(domain.Device{DeviceID: "AA0001", UDI: "UDI000001", OrderID: "PO-1", CaseID: "20260828001"}); err != nil {
			return err
		}
		if err := tx.DeleteDevice("AA0001", false); err != nil {
			return err
		}
		_, err := tx.PutDevice(domain.Device{DeviceID: "AA0002", UDI: "UDI000001", OrderID: "PO-1", CaseID: "20260828001"})
		return err
	})
	if err != nil {
		t.Fatalf("seed devices: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		d, ok := tx.FindDeviceByUDI("UDI000001")
		if !ok || d.DeviceID != "AA0002" {
			return errors.New("expected the active holder")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("find by udi: %v", err)
	}
}

func TestPutDeviceRestartsLifecycleAfterSoftDelete(t *testing.T) {
	store := memory.NewStore(nil)
	morning := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return morning })

	run := func(fn func(tx domain.Transaction) error) {
		t.Helper()
		if _, err := store.RunInTransaction(context.Background(), fn); err != nil {
			t.Fatalf("transaction: %v", err)
		}
	}

	run(func(tx domain.Transaction) error {
		_, err := tx.PutDevice(domain.Device{DeviceID: "AB0001", OrderID: "PO-1", CaseID: "20260828001"})
		return err
	})
	run(func(tx domain.Transaction) error {
		return tx.DeleteDevice("AB0001", false)
	})

	noon := morning.Add(2 * time.Hour)
	store.SetNowFunc(func() time.Time { return noon })
	var rescanned domain.Device
	run(func(tx domain.Transaction) error {
		var err error
		rescanned, err = tx.PutDevice(domain.Device{DeviceID: "AB0001", OrderID: "PO-1", CaseID: "20260828002"})
		return err
	})

	if !rescanned.CreatedOn.Equal(noon) {
		t.Fatalf("rescan over a soft-deleted row must start a new lifecycle, got created %v want %v", rescanned.CreatedOn, noon)
	}
	if rescanned.DeletedOn != nil {
		t.Fatalf("rescan must come back active, got deleted %v", rescanned.DeletedOn)
	}

	// same-record replacement of an active row keeps the original creation time
	evening := noon.Add(6 * time.Hour)
	store.SetNowFunc(func() time.Time { return evening })
	var replaced domain.Device
	run(func(tx domain.Transaction) error {
		var err error
		replaced, err = tx.PutDevice(domain.Device{DeviceID: "AB0001", OrderID: "PO-1", CaseID: "20260828002"})
		return err
	})
	if !replaced.CreatedOn.Equal(noon) || !replaced.UpdatedOn.Equal(evening) {
		t.Fatalf("expected preserved created and advanced updated, got %+v", replaced.Lifecycle)
	}
}
