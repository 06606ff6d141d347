// README: Rider policy unit tests + DB-backed penalty escalation tests.
package rider

import (
	"context"
	"testing"
	"time"

	"lastmile/internal/testutil"
	"lastmile/internal/types"
)

func TestSuspensionFor(t *testing.T) {
	cases := []struct {
		count int
		want  time.Duration
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 3 * time.Hour},
		{4, 3 * time.Hour},
		{5, 24 * time.Hour},
		{9, 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := SuspensionFor(tc.count); got != tc.want {
			t.Errorf("SuspensionFor(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestStateAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		r    Rider
		want State
	}{
		{"fresh", Rider{IsActive: true, ReliabilityScore: InitialScore}, StateActive},
		{"penalized", Rider{IsActive: true, PenaltyCount: 1}, StatePenalized},
		{"suspended", Rider{IsActive: true, PenaltyCount: 3, SuspendedUntil: &future}, StateSuspended},
		{"suspension elapsed", Rider{IsActive: true, PenaltyCount: 3, SuspendedUntil: &past}, StatePenalized},
		{"deactivated", Rider{IsActive: false}, StateInactive},
	}
	for _, tc := range cases {
		if got := tc.r.StateAt(now); got != tc.want {
			t.Errorf("%s: StateAt = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestApplyPenalty_Escalation(t *testing.T) {
	db := testutil.SetupDB(t, "riders")
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO riders (id, name, phone, email, lat, lng, cell, is_active, reliability_score, penalty_count)
		VALUES ('r_esc', 'Esc', '000', 'esc@example.com', 6.45, 3.39, 's0me0', TRUE, 100, 0)`)
	if err != nil {
		t.Fatalf("seed rider: %v", err)
	}

	store := NewStore(db)
	svc := NewService(store, nil)

	var last *Rider
	for i := 1; i <= 5; i++ {
		last, err = svc.ApplyPenalty(ctx, "r_esc", "pickup_timeout")
		if err != nil {
			t.Fatalf("penalty %d: %v", i, err)
		}
		if last.PenaltyCount != i {
			t.Fatalf("penalty %d: count = %d", i, last.PenaltyCount)
		}
		if want := 100 - i*PenaltyStep; last.ReliabilityScore != want {
			t.Fatalf("penalty %d: score = %d, want %d", i, last.ReliabilityScore, want)
		}
		switch {
		case i < 3:
			if last.SuspendedUntil != nil {
				t.Fatalf("penalty %d: unexpected suspension %v", i, last.SuspendedUntil)
			}
		case i >= 3:
			if last.SuspendedUntil == nil || !last.SuspendedUntil.After(time.Now()) {
				t.Fatalf("penalty %d: expected active suspension, got %v", i, last.SuspendedUntil)
			}
		}
	}

	// Count 5 earns the long window: comfortably more than the short 3h one.
	if until := time.Until(*last.SuspendedUntil); until < 20*time.Hour {
		t.Fatalf("expected ~24h suspension at count 5, got %v remaining", until)
	}
}

func TestApplyPenalty_ScoreFloor(t *testing.T) {
	db := testutil.SetupDB(t, "riders")
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO riders (id, name, phone, email, lat, lng, cell, is_active, reliability_score, penalty_count)
		VALUES ('r_floor', 'Floor', '000', 'floor@example.com', 6.45, 3.39, 's0me0', TRUE, 5, 0)`)
	if err != nil {
		t.Fatalf("seed rider: %v", err)
	}

	svc := NewService(NewStore(db), nil)
	r, err := svc.ApplyPenalty(ctx, "r_floor", "delivery_timeout")
	if err != nil {
		t.Fatalf("penalty: %v", err)
	}
	if r.ReliabilityScore != 0 {
		t.Fatalf("score = %d, want floor 0", r.ReliabilityScore)
	}
}

func TestFindNearby_ExcludesSuspendedAndInactive(t *testing.T) {
	db := testutil.SetupDB(t, "riders")
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO riders (id, name, phone, email, lat, lng, cell, is_active, reliability_score, penalty_count, suspended_until)
		VALUES
		  ('r_ok',        'Ok',        '000', 'ok@example.com',   57.649, 10.407, 'u4pru', TRUE,  100, 0, NULL),
		  ('r_next_cell', 'Neighbor',  '000', 'nb@example.com',   57.649, 10.407, 'u4prv', TRUE,  100, 0, NULL),
		  ('r_far',       'Far',       '000', 'far@example.com',  42.600, -5.600, 'ezs42', TRUE,  100, 0, NULL),
		  ('r_susp',      'Suspended', '000', 'sus@example.com',  57.649, 10.407, 'u4pru', TRUE,   70, 3, NOW() + INTERVAL '1 hour'),
		  ('r_off',       'Offline',   '000', 'off@example.com',  57.649, 10.407, 'u4pru', FALSE, 100, 0, NULL),
		  ('r_served',    'Served',    '000', 'srv@example.com',  57.649, 10.407, 'u4pru', TRUE,   70, 3, NOW() - INTERVAL '1 hour')`)
	if err != nil {
		t.Fatalf("seed riders: %v", err)
	}

	svc := NewService(NewStore(db), nil)
	riders, err := svc.FindNearby(ctx, "u4pru")
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}

	got := map[types.ID]bool{}
	for _, r := range riders {
		got[r.ID] = true
	}
	for _, want := range []types.ID{"r_ok", "r_next_cell", "r_served"} {
		if !got[want] {
			t.Errorf("expected %s in nearby result %v", want, riders)
		}
	}
	for _, not := range []types.ID{"r_far", "r_susp", "r_off"} {
		if got[not] {
			t.Errorf("did not expect %s in nearby result", not)
		}
	}
}

func TestUpdateLocation_RewritesCell(t *testing.T) {
	db := testutil.SetupDB(t, "riders")
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO riders (id, name, phone, email, lat, lng, cell, is_active, reliability_score, penalty_count)
		VALUES ('r_move', 'Move', '000', 'move@example.com', 0, 0, '', TRUE, 100, 0)`)
	if err != nil {
		t.Fatalf("seed rider: %v", err)
	}

	svc := NewService(NewStore(db), nil)
	cell, err := svc.UpdateLocation(ctx, "r_move", types.Point{Lat: 57.64911, Lng: 10.40744})
	if err != nil {
		t.Fatalf("update location: %v", err)
	}
	if cell != "u4pru" {
		t.Fatalf("cell = %q, want u4pru", cell)
	}

	r, err := svc.Get(ctx, "r_move")
	if err != nil {
		t.Fatalf("get rider: %v", err)
	}
	if r.Cell != "u4pru" || r.Position.Lat != 57.64911 {
		t.Fatalf("stored rider = %+v", r)
	}
}

func TestUpdateLocation_UnknownRider(t *testing.T) {
	db := testutil.SetupDB(t, "riders")
	svc := NewService(NewStore(db), nil)
	if _, err := svc.UpdateLocation(context.Background(), "nope", types.Point{Lat: 1, Lng: 1}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
