package tracker

import "testing"

func TestAssignStableAcrossRepeatedSighting(t *testing.T) {
	tr := New(DefaultLostThreshold)
	a := tr.Assign("bird", 1)
	b := tr.Assign("bird", 1)
	if a != b {
		t.Fatalf("expected stable object-id, got %d then %d", a, b)
	}
}

func TestAssignDistinctDetectorIDsGetDistinctObjectIDs(t *testing.T) {
	tr := New(DefaultLostThreshold)
	a := tr.Assign("bird", 1)
	b := tr.Assign("bird", 2)
	if a == b {
		t.Fatalf("expected distinct object-ids, got %d for both", a)
	}
}

func TestEvictionAfterLostThreshold(t *testing.T) {
	tr := New(3)
	first := tr.Assign("person", 7)

	// three more passes without re-observing detector-id 7; the fourth
	// Assign call for an unrelated id pushes the pass counter past the
	// threshold and should evict it.
	tr.Assign("person", 8)
	tr.Assign("person", 8)
	tr.Assign("person", 8)
	tr.Assign("person", 8)

	if !tr.Retired(first) {
		t.Fatal("expected original track to be retired after exceeding lost threshold")
	}

	second := tr.Assign("person", 7)
	if second == first {
		t.Fatal("expected a new object-id to be issued after eviction")
	}
}

func TestRetiredReportsFalseForLiveTrack(t *testing.T) {
	tr := New(DefaultLostThreshold)
	id := tr.Assign("vehicle", 1)
	if tr.Retired(id) {
		t.Fatal("freshly assigned track should not be retired")
	}
}
