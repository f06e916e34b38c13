package firstseen

import (
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestPartitionAllNewOnFirstSight(t *testing.T) {
	g := New()
	newIDs, seenIDs := g.Partition("A", []int64{1, 2, 3})
	if len(seenIDs) != 0 {
		t.Fatalf("expected no seen ids, got %v", seenIDs)
	}
	sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
	if !reflect.DeepEqual(newIDs, []int64{1, 2, 3}) {
		t.Fatalf("expected all new, got %v", newIDs)
	}
}

func TestAdmittedIDsMoveToSeen(t *testing.T) {
	g := New()
	g.Admit("A", 42)
	newIDs, seenIDs := g.Partition("A", []int64{42, 99})
	if !reflect.DeepEqual(newIDs, []int64{99}) {
		t.Fatalf("expected only 99 new, got %v", newIDs)
	}
	if !reflect.DeepEqual(seenIDs, []int64{42}) {
		t.Fatalf("expected 42 seen, got %v", seenIDs)
	}
}

func TestRetireAllowsReAdmission(t *testing.T) {
	g := New()
	g.Admit("A", 42)
	g.Retire("A", 42)
	if g.Admitted("A", 42) {
		t.Fatal("expected 42 to no longer be admitted after retire")
	}
	newIDs, _ := g.Partition("A", []int64{42})
	if !reflect.DeepEqual(newIDs, []int64{42}) {
		t.Fatalf("expected 42 treated as new after retire, got %v", newIDs)
	}
}

func TestGateIsPerCamera(t *testing.T) {
	g := New()
	g.Admit("A", 1)
	if g.Admitted("B", 1) {
		t.Fatal("expected gate state to be scoped per camera")
	}
}

func TestSweepRetiresStaleIDsOnly(t *testing.T) {
	g := New()
	clock := time.Now()
	g.now = func() time.Time { return clock }

	g.Admit("A", 1)
	clock = clock.Add(10 * time.Second)
	g.Admit("A", 2) // refreshed recently, should survive

	g.Sweep(5 * time.Second)
	if g.Admitted("A", 1) {
		t.Fatal("expected stale id 1 to be retired by Sweep")
	}
	if !g.Admitted("A", 2) {
		t.Fatal("expected recently-admitted id 2 to survive Sweep")
	}
}
