// README: Timeout reaper: periodic sweeps that release stalled deliveries, penalize
// the responsible rider, and reoffer nearby.
package delivery

import (
	"context"
	"log"
	"time"
)

const sweepBatchSize = 100

// Sweep runs both timeout sweeps once: pickups past their deadline and
// deliveries past theirs. Safe to re-invoke at any cadence; a row already
// released by a previous sweep no longer matches the release condition, so
// its rider is never penalized twice.
func (s *Service) Sweep(ctx context.Context) error {
	if err := s.sweep(ctx, StatusReadyForPickup, ReasonPickupTimeout); err != nil {
		return err
	}
	return s.sweep(ctx, StatusOutForDelivery, ReasonDeliveryTimeout)
}

func (s *Service) sweep(ctx context.Context, from Status, reason string) error {
	due, err := s.store.DueTimeouts(ctx, from, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, d := range due {
		if err := s.release(ctx, d, from, reason); err != nil {
			log.Printf("reaper: release %s (%s): %v", d.ID, reason, err)
		}
	}
	return nil
}

func (s *Service) release(ctx context.Context, d DeliveryItem, from Status, reason string) error {
	failedRider := d.RiderID

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	offerExpiry := time.Now().Add(time.Duration(s.cfg.OfferTTLMinutes) * time.Minute)
	ok, err := s.store.ReleaseExpiredTx(ctx, tx, d.ID, from, offerExpiry)
	if err != nil {
		return err
	}
	if !ok {
		// Another sweep or the rider got here first; nothing to do.
		return nil
	}
	if err := s.orders.ResetItemStatusTx(ctx, tx, d.OrderItemID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     from,
		ToStatus:       StatusPending,
		ActorType:      "system",
		ActorID:        failedRider,
		Reason:         reason,
		CreatedAt:      time.Now(),
	})

	if failedRider != nil {
		if _, err := s.riders.ApplyPenalty(ctx, *failedRider, reason); err != nil {
			log.Printf("reaper: penalize rider %s: %v", *failedRider, err)
		}
	}

	item, ordRec := s.lookupOrder(ctx, d.OrderItemID)
	s.reoffer(ctx, d.ID, reason, item, ordRec)
	return nil
}

// RunReaper invokes Sweep on a fixed interval until the context is cancelled.
func (s *Service) RunReaper(ctx context.Context) {
	interval := time.Duration(s.cfg.ReaperIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("reaper: sweep: %v", err)
			}
		}
	}
}
