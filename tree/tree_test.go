package tree

import "testing"

func TestNewLeaf(t *testing.T) {
	n := NewLeaf(3, 7)
	if !n.IsLeaf() {
		t.Error("leaf should report IsLeaf")
	}
	if n.NKids() != 0 {
		t.Errorf("leaf should have 0 kids, got %d", n.NKids())
	}
	if n.Rank != 3 || n.CellIdx != 7 {
		t.Errorf("unexpected leaf fields: %+v", n)
	}
}

func TestNewInterior(t *testing.T) {
	k0 := NewLeaf(0, 0)
	k1 := NewLeaf(1, 1)
	n := NewInterior(k0, k1)

	if n.IsLeaf() {
		t.Error("interior node should not report IsLeaf")
	}
	if n.NKids() != 2 {
		t.Errorf("interior node should have 2 kids, got %d", n.NKids())
	}
	if n.CellIdx != -1 {
		t.Errorf("interior CellIdx should start at -1, got %d", n.CellIdx)
	}
	if k0.Parent != n || k1.Parent != n {
		t.Error("children should be back-linked to their parent")
	}
}
