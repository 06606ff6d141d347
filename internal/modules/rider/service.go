// README: Rider directory service: location updates, proximity lookup, penalties.
package rider

import (
	"context"
	"time"

	"lastmile/internal/geo"
	"lastmile/internal/types"
)

// Publisher re-broadcasts rider positions to parties watching an active
// delivery. Publishing is best-effort and never fails the location update.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any)
}

type Service struct {
	store     *Store
	publisher Publisher
}

func NewService(store *Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

type LocationUpdate struct {
	RiderID types.ID `json:"rider_id"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Cell    string   `json:"cell"`
}

// UpdateLocation overwrites the rider's last known position and derived grid
// cell, then republishes the position on the rider channel so buyers and
// sellers tracking an active delivery see it move.
func (s *Service) UpdateLocation(ctx context.Context, riderID types.ID, p types.Point) (string, error) {
	cell := geo.Encode(p.Lat, p.Lng)
	if err := s.store.UpdateLocation(ctx, riderID, p, cell); err != nil {
		return "", err
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, "rider:"+string(riderID), "location_updated", LocationUpdate{
			RiderID: riderID,
			Lat:     p.Lat,
			Lng:     p.Lng,
			Cell:    cell,
		})
	}
	return cell, nil
}

// FindNearby returns dispatchable riders in the cell or one of its 8
// neighbors. Inactive and currently-suspended riders are excluded.
func (s *Service) FindNearby(ctx context.Context, cell string) ([]Rider, error) {
	return s.store.FindByCells(ctx, geo.Cluster(cell))
}

// ApplyPenalty degrades the rider's reliability after a pickup or delivery
// timeout and reports the suspension window, if any, that resulted.
func (s *Service) ApplyPenalty(ctx context.Context, riderID types.ID, reason string) (*Rider, error) {
	r, err := s.store.ApplyPenalty(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		payload := map[string]any{
			"rider_id":          r.ID,
			"reason":            reason,
			"reliability_score": r.ReliabilityScore,
			"penalty_count":     r.PenaltyCount,
		}
		if r.SuspendedUntil != nil && r.SuspendedUntil.After(time.Now()) {
			payload["suspended_until"] = r.SuspendedUntil
		}
		s.publisher.Publish(ctx, "rider:"+string(r.ID), "penalty_applied", payload)
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, riderID types.ID) (*Rider, error) {
	return s.store.Get(ctx, riderID)
}
