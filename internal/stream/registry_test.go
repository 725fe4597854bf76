package stream

import (
	"regexp"
	"testing"
)

func testDef(name string) PatternDefinition {
	return PatternDefinition{
		Name:   name,
		Regexp: regexp.MustCompile(`x`),
		Kind:   KindError,
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(testDef("a"), testDef("b"))
	if r.Len() != 2 {
		t.Fatalf("expected 2 defs, got %d", r.Len())
	}

	r.Add(testDef("c"))
	if r.Len() != 3 {
		t.Fatalf("expected 3 defs after add, got %d", r.Len())
	}

	if removed := r.Remove("b"); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if removed := r.Remove("nope"); removed != 0 {
		t.Errorf("expected 0 removed for unknown name, got %d", removed)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 defs after remove, got %d", r.Len())
	}
}

func TestRegistry_DuplicateNames(t *testing.T) {
	r := NewRegistry()
	r.Add(testDef("dup"))
	r.Add(testDef("dup"))
	if r.Len() != 2 {
		t.Fatalf("duplicate names should coexist, got %d", r.Len())
	}
	if removed := r.Remove("dup"); removed != 2 {
		t.Errorf("Remove should drop all with the name, removed %d", removed)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_OrderPreserved(t *testing.T) {
	r := NewRegistry(testDef("first"), testDef("second"))
	r.Add(testDef("third"))

	snap := r.Snapshot()
	names := []string{"first", "second", "third"}
	for i, want := range names {
		if snap[i].Name != want {
			t.Errorf("snapshot[%d] = %q, want %q", i, snap[i].Name, want)
		}
	}
}

func TestRegistry_Version(t *testing.T) {
	r := NewRegistry(testDef("a"))
	v0 := r.Version()
	r.Add(testDef("b"))
	if r.Version() == v0 {
		t.Error("version should bump on add")
	}
	v1 := r.Version()
	r.Remove("missing")
	if r.Version() != v1 {
		t.Error("version should not bump on no-op remove")
	}
	r.Remove("a")
	if r.Version() == v1 {
		t.Error("version should bump on effective remove")
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry(testDef("a"))
	snap := r.Snapshot()
	r.Remove("a")
	if len(snap) != 1 || snap[0].Name != "a" {
		t.Error("snapshot should be unaffected by later mutation")
	}
}
