package server

import (
	"testing"

	"villagesync/protocol"
)

func TestRegistryEnsureRoomIsIdempotent(t *testing.T) {
	r := NewRegistry()
	if !r.EnsureRoom("V1") {
		t.Fatalf("first EnsureRoom should create")
	}
	r.SetMember("V1", "s1", protocol.MemberState{X: 1})
	if r.EnsureRoom("V1") {
		t.Fatalf("second EnsureRoom should not create")
	}
	if !r.HasMember("V1", "s1") {
		t.Fatalf("EnsureRoom must not reset members")
	}
}

func TestRegistrySetMemberRequiresRoom(t *testing.T) {
	r := NewRegistry()
	if r.SetMember("nowhere", "s1", protocol.MemberState{}) {
		t.Fatalf("SetMember on a missing room should fail")
	}
	if _, ok := r.Snapshot("nowhere"); ok {
		t.Fatalf("SetMember must not create rooms")
	}
}

func TestRegistrySnapshotIsDefensiveCopy(t *testing.T) {
	r := NewRegistry()
	r.EnsureRoom("V1")
	r.SetMember("V1", "s1", protocol.MemberState{X: 1, YNorm: protocol.Float(0.25)})

	snap, ok := r.Snapshot("V1")
	if !ok {
		t.Fatalf("room missing")
	}
	st := snap["s1"]
	st.X = 99
	*st.YNorm = 0.9
	snap["s1"] = st
	delete(snap, "s1")

	got, _ := r.Member("V1", "s1")
	if got.X != 1 || got.YNorm == nil || *got.YNorm != 0.25 {
		t.Fatalf("registry mutated through snapshot: %+v", got)
	}
}

func TestRegistrySetMemberCopiesInput(t *testing.T) {
	r := NewRegistry()
	r.EnsureRoom("V1")
	y := 0.5
	r.SetMember("V1", "s1", protocol.MemberState{YNorm: &y})
	y = 0.1

	got, _ := r.Member("V1", "s1")
	if *got.YNorm != 0.5 {
		t.Fatalf("yNorm = %v, want 0.5", *got.YNorm)
	}
}

func TestRegistryRemoveMember(t *testing.T) {
	r := NewRegistry()
	r.EnsureRoom("V1")
	r.SetMember("V1", "s1", protocol.MemberState{})
	r.SetMember("V1", "s2", protocol.MemberState{})

	if removed, empty := r.RemoveMember("V1", "s1"); !removed || empty {
		t.Fatalf("remove s1 = (%v, %v), want (true, false)", removed, empty)
	}
	if removed, _ := r.RemoveMember("V1", "s1"); removed {
		t.Fatalf("second remove should be a no-op")
	}
	if removed, empty := r.RemoveMember("V1", "s2"); !removed || !empty {
		t.Fatalf("remove s2 = (%v, %v), want (true, true)", removed, empty)
	}
	if removed, _ := r.RemoveMember("nowhere", "s1"); removed {
		t.Fatalf("remove from missing room should be a no-op")
	}
}

func TestRegistryDropIfEmpty(t *testing.T) {
	r := NewRegistry()
	r.EnsureRoom("V1")
	r.SetMember("V1", "s1", protocol.MemberState{})
	if r.DropIfEmpty("V1") {
		t.Fatalf("occupied room must not be dropped")
	}
	r.RemoveMember("V1", "s1")
	if !r.DropIfEmpty("V1") {
		t.Fatalf("empty room should be dropped")
	}
	if len(r.Rooms()) != 0 {
		t.Fatalf("rooms = %v", r.Rooms())
	}
}

func TestRegistryRoomsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"village-2", "house-a", "village-1"} {
		r.EnsureRoom(id)
	}
	r.SetMember("house-a", "s1", protocol.MemberState{})

	rooms := r.Rooms()
	want := []RoomInfo{{ID: "house-a", Members: 1}, {ID: "village-1"}, {ID: "village-2"}}
	if len(rooms) != len(want) {
		t.Fatalf("rooms = %v", rooms)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Fatalf("rooms[%d] = %+v, want %+v", i, rooms[i], want[i])
		}
	}
}

func TestTickInterval(t *testing.T) {
	if got := tickInterval(20); got.Milliseconds() != 50 {
		t.Fatalf("tickInterval(20) = %s", got)
	}
}
