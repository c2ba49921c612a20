package vectordb

import "testing"

func TestFuseRRFCombinesRanks(t *testing.T) {
	dense := []SearchHit{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	sparse := []SearchHit{{ID: "b"}, {ID: "a"}, {ID: "d"}}

	fused := FuseRRF(dense, sparse)

	if len(fused) != 4 {
		t.Fatalf("expected 4 distinct documents, got %d", len(fused))
	}

	// "a" and "b" each appear in both lists at high ranks, so one of them
	// should lead; "c" and "d" appear in only one list each.
	top := fused[0].ID
	if top != "a" && top != "b" {
		t.Errorf("expected a or b to rank first, got %v", top)
	}
}

func TestFuseRRFSingleList(t *testing.T) {
	dense := []SearchHit{{ID: 1}, {ID: 2}, {ID: 3}}
	fused := FuseRRF(dense)

	if len(fused) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(fused))
	}
	if fused[0].ID != 1 {
		t.Errorf("expected rank order preserved for single list, got %v first", fused[0].ID)
	}
}

func TestFuseRRFEmpty(t *testing.T) {
	fused := FuseRRF()
	if len(fused) != 0 {
		t.Errorf("expected no results from empty input, got %d", len(fused))
	}
}

func TestFuseRRFPreservesFields(t *testing.T) {
	dense := []SearchHit{{ID: "a", Fields: map[string]any{"title": "doc a"}}}
	fused := FuseRRF(dense)

	if fused[0].Fields["title"] != "doc a" {
		t.Errorf("expected fields to be preserved, got %v", fused[0].Fields)
	}
}
