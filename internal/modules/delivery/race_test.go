// README: Concurrency tests for the at-most-one-rider invariant (run with -race).
package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"lastmile/internal/types"
)

func TestConcurrentAccept_ExactlyOneWinner(t *testing.T) {
	svc, _, db := setupService(t)
	ctx := context.Background()
	seedPaidOrder(t, db, "o1", "i1")

	const attempts = 8
	for i := 0; i < attempts; i++ {
		seedRider(t, db, types.ID(fmt.Sprintf("r%d", i)))
	}

	d := mustOffer(t, svc, "i1")

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		riderID := types.ID(fmt.Sprintf("r%d", i))
		wg.Add(1)
		go func(rid types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.AcceptOffer(ctx, AcceptCommand{DeliveryItemID: d.ID, RiderID: rid})
			errs <- err
		}(riderID)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrAlreadyAccepted {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	got, err := svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusReadyForPickup || got.RiderID == nil {
		t.Fatalf("final state: status=%s rider=%v", got.Status, got.RiderID)
	}
}

func TestConcurrentCreateOffer_SingleRecord(t *testing.T) {
	svc, _, db := setupService(t)
	ctx := context.Background()
	seedPaidOrder(t, db, "o1", "i1")

	const callers = 6
	var wg sync.WaitGroup
	ids := make(chan types.ID, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.CreateOffer(ctx, CreateOfferCommand{OrderItemID: "i1", Seller: sellerPos})
			if err != nil {
				t.Errorf("create offer: %v", err)
				return
			}
			ids <- d.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[types.ID]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("concurrent CreateOffer produced %d distinct records", len(seen))
	}

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_items WHERE order_item_id = 'i1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("delivery_items count = %d, want 1", count)
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	svc, _, db := setupService(t)
	ctx := context.Background()
	seedPaidOrder(t, db, "o1", "i1")
	seedRider(t, db, "r1")
	seedRider(t, db, "r2")

	d := mustOffer(t, svc, "i1")
	if _, err := svc.AcceptOffer(ctx, AcceptCommand{DeliveryItemID: d.ID, RiderID: "r1"}); err != nil {
		t.Fatal(err)
	}

	// r1 cancels while r2 races to grab the released offer. Whatever the
	// interleaving, the record must end in a coherent state.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = svc.CancelAssignment(ctx, CancelCommand{DeliveryItemID: d.ID, RiderID: "r1", Reason: "flat tire"})
	}()
	go func() {
		defer wg.Done()
		_, _ = svc.AcceptOffer(ctx, AcceptCommand{DeliveryItemID: d.ID, RiderID: "r2"})
	}()
	wg.Wait()

	got, err := svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	switch got.Status {
	case StatusPending:
		if got.RiderID != nil {
			t.Fatalf("pending with rider attached: %+v", got)
		}
	case StatusReadyForPickup:
		if got.RiderID == nil || *got.RiderID != "r2" {
			t.Fatalf("assigned but not to r2: %+v", got)
		}
	default:
		t.Fatalf("unexpected final status %s", got.Status)
	}
}
