package risk

import "testing"

func TestInitialState(t *testing.T) {
	s := New()
	cur := s.Current()
	if cur.Bird != BirdLow || cur.RunwayA != RunwayClear || cur.RunwayB != RunwayClear {
		t.Fatalf("unexpected initial state: %+v", cur)
	}
}

func TestSetBirdRiskEmitsChangeOnlyWhenDifferent(t *testing.T) {
	s := New()
	change, ok := s.SetBirdRisk(BirdMedium)
	if !ok || change.Kind != BirdChanged || change.Value != "MEDIUM" {
		t.Fatalf("expected accepted transition, got %+v ok=%v", change, ok)
	}

	_, ok = s.SetBirdRisk(BirdMedium)
	if ok {
		t.Fatal("expected equal-valued update to be silently absorbed")
	}
}

func TestSetRunwayTargetsCorrectCell(t *testing.T) {
	s := New()
	change, ok := s.SetRunway(RunwayA, RunwayWarning)
	if !ok || change.Kind != RunwayAChanged {
		t.Fatalf("expected runway A change, got %+v", change)
	}
	cur := s.Current()
	if cur.RunwayA != RunwayWarning || cur.RunwayB != RunwayClear {
		t.Fatalf("expected only runway A affected, got %+v", cur)
	}
}

func TestAvailabilityDerivation(t *testing.T) {
	cases := []struct {
		a, b RunwayStatus
		want Availability
	}{
		{RunwayClear, RunwayClear, AvailAll},
		{RunwayWarning, RunwayClear, AvailBOnly},
		{RunwayClear, RunwayWarning, AvailAOnly},
		{RunwayWarning, RunwayWarning, AvailNone},
	}
	for _, c := range cases {
		snap := Snapshot{RunwayA: c.a, RunwayB: c.b}
		if got := snap.Availability(); got != c.want {
			t.Fatalf("runwayA=%s runwayB=%s: expected %s, got %s", c.a, c.b, c.want, got)
		}
	}
}
