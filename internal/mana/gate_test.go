package mana_test

import (
	"testing"

	"github.com/MrWong99/voxcast/internal/mana"
)

func TestGate_RegenCarry(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{Max: 100, RegenPerSec: 5, TicksPerSec: 20})
	if !g.TryConsume("alice", 10) {
		t.Fatal("consume failed")
	}

	for i := range 3 {
		g.Tick()
		if got := g.Snapshot("alice").Mana; got != 90 {
			t.Fatalf("after %d ticks mana = %d, want 90", i+1, got)
		}
	}
	g.Tick()
	if got := g.Snapshot("alice").Mana; got != 91 {
		t.Errorf("after 4 ticks mana = %d, want 91", got)
	}
	if got := g.Carry("alice"); got != 0 {
		t.Errorf("carry = %v, want 0", got)
	}
}

func TestGate_CarryStaysInUnitInterval(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{Max: 1000, RegenPerSec: 7, TicksPerSec: 3})
	g.TryConsume("a", 1000)
	for range 50 {
		g.Tick()
		if c := g.Carry("a"); c < 0 || c >= 1 {
			t.Fatalf("carry = %v out of [0,1)", c)
		}
	}
	// 50 ticks at 7/3 per tick is 116.67 points.
	if got := g.Snapshot("a").Mana; got != 116 {
		t.Errorf("mana = %d, want 116", got)
	}
}

func TestGate_RegenCappedAtMax(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{Max: 10, RegenPerSec: 100, TicksPerSec: 10})
	g.TryConsume("a", 5)
	g.Tick()
	g.Tick()
	if got := g.Snapshot("a").Mana; got != 10 {
		t.Errorf("mana = %d, want 10", got)
	}
}

func TestGate_RefundExact(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{})
	if !g.TryConsume("alice", 35) {
		t.Fatal("consume failed")
	}
	if got := g.Snapshot("alice").Mana; got != 65 {
		t.Fatalf("mana = %d, want 65", got)
	}
	if got := g.LastSpent("alice"); got != 35 {
		t.Fatalf("last spent = %d, want 35", got)
	}
	g.RefundLast("alice")
	if got := g.Snapshot("alice").Mana; got != 100 {
		t.Errorf("mana after refund = %d, want 100", got)
	}
	if got := g.LastSpent("alice"); got != 0 {
		t.Errorf("last spent after refund = %d, want 0", got)
	}

	// A second refund has nothing left to restore.
	g.TryConsume("alice", 20)
	g.RefundLast("alice")
	g.RefundLast("alice")
	if got := g.Snapshot("alice").Mana; got != 100 {
		t.Errorf("mana after double refund = %d, want 100", got)
	}
}

func TestGate_ConsumeRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cooldown int
		spend    int
		cost     int
		want     bool
	}{
		{name: "enough mana", cost: 35, want: true},
		{name: "exact mana", spend: 65, cost: 35, want: true},
		{name: "insufficient", spend: 70, cost: 35, want: false},
		{name: "on cooldown", cooldown: 1, cost: 1, want: false},
		{name: "free spell", spend: 100, cost: 0, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := mana.NewGate(mana.Settings{})
			if tc.spend > 0 {
				g.TryConsume("a", tc.spend)
			}
			g.ArmGlobalCooldown("a", tc.cooldown)
			before := g.Snapshot("a").Mana

			got := g.TryConsume("a", tc.cost)
			if got != tc.want {
				t.Fatalf("TryConsume = %v, want %v", got, tc.want)
			}
			if !got && g.Snapshot("a").Mana != before {
				t.Error("failed consume changed mana")
			}
		})
	}
}

func TestGate_CooldownMonotonic(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{})
	g.ArmGlobalCooldown("a", 10)
	g.ArmGlobalCooldown("a", 6)
	if got := g.Snapshot("a").CooldownTicks; got != 10 {
		t.Errorf("cooldown = %d, want 10", got)
	}

	for range 10 {
		g.Tick()
	}
	if got := g.Snapshot("a").CooldownTicks; got != 0 {
		t.Errorf("cooldown after 10 ticks = %d, want 0", got)
	}
	g.Tick()
	if got := g.Snapshot("a").CooldownTicks; got != 0 {
		t.Errorf("cooldown went negative: %d", got)
	}
}

func TestGate_ReleaseStartsFresh(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{Max: 50})
	g.TryConsume("a", 40)
	g.ArmGlobalCooldown("a", 5)
	g.Release("a")
	if g.Actors() != 0 {
		t.Fatalf("Actors = %d after release", g.Actors())
	}

	snap := g.Snapshot("a")
	if snap.Mana != 50 || snap.CooldownTicks != 0 {
		t.Errorf("snapshot after release = %+v, want full pool and no cooldown", snap)
	}
}

func TestGate_SetSettingsClamps(t *testing.T) {
	t.Parallel()

	g := mana.NewGate(mana.Settings{Max: 100})
	g.Ensure("a")
	g.SetSettings(mana.Settings{Max: 40, RegenPerSec: 2})

	snap := g.Snapshot("a")
	if snap.Mana != 40 || snap.Max != 40 || snap.RegenPerSec != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCooldownTicks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sec  float64
		tps  int
		want int
	}{
		{0.5, 20, 10},
		{0.52, 20, 10},
		{0.53, 20, 11},
		{0, 20, 0},
		{1, 0, 0},
	}
	for _, tc := range tests {
		if got := mana.CooldownTicks(tc.sec, tc.tps); got != tc.want {
			t.Errorf("CooldownTicks(%v, %d) = %d, want %d", tc.sec, tc.tps, got, tc.want)
		}
	}
}
