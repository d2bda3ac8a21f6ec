package live_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"labelcore/internal/infra/persistence/memory"
	"labelcore/internal/live"
	"labelcore/pkg/domain"
)

func waitFor[T any](t *testing.T, sub *live.Subscription[T], state live.State) live.Snapshot[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				t.Fatalf("updates closed while waiting for %s", state)
			}
			if snap.State == state {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s snapshot", state)
		}
	}
}

func putProduct(t *testing.T, store *memory.Store, productID string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutProduct(domain.Product{ProductID: productID, Name: "Live"})
		return err
	})
	if err != nil {
		t.Fatalf("put product: %v", err)
	}
}

func putOrder(t *testing.T, store *memory.Store, orderID string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutOrder(domain.Order{OrderID: orderID, ProductID: "p", Quantity: 1, OrderedOn: time.Now()})
		return err
	})
	if err != nil {
		t.Fatalf("put order: %v", err)
	}
}

func TestSubscriptionTracksRelevantChanges(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	defer broker.Close()

	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityProduct}, func(context.Context) ([]domain.Product, error) {
		return store.ListProducts(), nil
	})
	defer sub.Close()

	snap := waitFor(t, sub, live.StateFulfilled)
	if len(snap.Data) != 0 {
		t.Fatalf("expected empty initial result, got %+v", snap.Data)
	}

	putProduct(t, store, "p-1")
	snap = waitFor(t, sub, live.StateFulfilled)
	if len(snap.Data) != 1 || snap.Data[0].ProductID != "p-1" {
		t.Fatalf("expected re-run after product write, got %+v", snap.Data)
	}
}

func TestSubscriptionIgnoresUnrelatedChanges(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	defer broker.Close()

	runs := make(chan struct{}, 16)
	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityProduct}, func(context.Context) (int, error) {
		runs <- struct{}{}
		return len(store.ListProducts()), nil
	})
	defer sub.Close()

	waitFor(t, sub, live.StateFulfilled)
	<-runs

	putOrder(t, store, "PO-1")
	select {
	case <-runs:
		t.Fatalf("order write must not re-run a product query")
	case <-time.After(100 * time.Millisecond):
	}

	putProduct(t, store, "p-1")
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("product write did not re-run the query")
	}
}

func TestSubscriptionRejectsOnQueryError(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	defer broker.Close()

	boom := errors.New("boom")
	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityDevice}, func(context.Context) (int, error) {
		return 0, boom
	})
	defer sub.Close()

	snap := waitFor(t, sub, live.StateRejected)
	if !errors.Is(snap.Err, boom) {
		t.Fatalf("expected query error on snapshot, got %v", snap.Err)
	}
}

func TestSubscriptionCoalescesToLatest(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	defer broker.Close()

	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityProduct}, func(context.Context) (int, error) {
		return len(store.ListProducts()), nil
	})
	defer sub.Close()

	waitFor(t, sub, live.StateFulfilled)

	// burst of writes while nobody reads; the consumer must still converge
	// on the final count
	for i := 0; i < 5; i++ {
		putProduct(t, store, "p-"+string(rune('a'+i)))
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub.Updates():
			if snap.State == live.StateFulfilled && snap.Data == 5 {
				return
			}
		case <-deadline:
			t.Fatalf("never observed the final product count")
		}
	}
}

func TestSubscribeAfterBrokerClose(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	broker.Close()

	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityProduct}, func(context.Context) (int, error) {
		return 0, nil
	})
	if _, ok := <-sub.Updates(); ok {
		t.Fatalf("subscription on a closed broker must deliver nothing")
	}
}

func TestSubscriptionCloseStopsUpdates(t *testing.T) {
	store := memory.NewStore(nil)
	broker := live.NewBroker(store)
	defer broker.Close()

	sub := live.Subscribe(broker, []domain.EntityType{domain.EntityProduct}, func(context.Context) (int, error) {
		return len(store.ListProducts()), nil
	})
	waitFor(t, sub, live.StateFulfilled)
	sub.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("updates channel never closed")
		}
	}
}
