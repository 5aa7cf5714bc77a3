package client

import (
	"errors"
	"testing"

	"villagesync/protocol"
)

type recordingSender struct {
	moves []protocol.Move
	err   error
}

func (r *recordingSender) SendMove(m protocol.Move) error {
	if r.err != nil {
		return r.err
	}
	r.moves = append(r.moves, m)
	return nil
}

func TestPublisherOnlyPublishesMeaningfulChanges(t *testing.T) {
	s := &recordingSender{}
	p := NewPublisher(s, "V1")

	steps := []struct {
		name  string
		state ActorState
		want  bool
	}{
		{"first sample", ActorState{X: 100, Y: 500}, true},
		{"unchanged", ActorState{X: 100, Y: 500}, false},
		{"sub-epsilon drift", ActorState{X: 100.3, Y: 500}, false},
		{"drift accumulates past epsilon", ActorState{X: 100.6, Y: 500}, true},
		{"starts walking", ActorState{X: 100.6, Y: 500, VX: 120}, true},
		{"walking, same sign, no move yet", ActorState{X: 100.6, Y: 500, VX: 80}, false},
		{"walked", ActorState{X: 104, Y: 500, VX: 120}, true},
		{"turns around", ActorState{X: 104, Y: 500, VX: -120, FlipX: true}, true},
		{"comes to rest", ActorState{X: 104, Y: 500, FlipX: true}, true},
		{"stays at rest", ActorState{X: 104, Y: 500, FlipX: true}, false},
		{"faces right", ActorState{X: 104, Y: 500}, true},
	}
	for _, st := range steps {
		got, err := p.Sample(st.state)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got != st.want {
			t.Fatalf("%s: published = %v, want %v", st.name, got, st.want)
		}
	}
	if len(s.moves) != 7 {
		t.Fatalf("moves = %d, want 7", len(s.moves))
	}
	last := s.moves[len(s.moves)-1]
	if last.VillageID != "V1" || last.X != 104 || last.VX != 0 || last.FlipX {
		t.Fatalf("last move = %+v", last)
	}
}

func TestPublisherNormalizedY(t *testing.T) {
	s := &recordingSender{}
	p := NewPublisher(s, "V1")

	p.Sample(ActorState{X: 1, YNorm: protocol.Float(0.5)})
	if ok, _ := p.Sample(ActorState{X: 1, YNorm: protocol.Float(0.5005)}); ok {
		t.Fatalf("sub-epsilon yNorm change published")
	}
	if ok, _ := p.Sample(ActorState{X: 1, YNorm: protocol.Float(0.52)}); !ok {
		t.Fatalf("yNorm change not published")
	}
	if ok, _ := p.Sample(ActorState{X: 1}); !ok {
		t.Fatalf("dropping yNorm not published")
	}
	if got := s.moves[1].YNorm; got == nil || *got != 0.52 {
		t.Fatalf("yNorm = %v", got)
	}
}

func TestPublisherRetriesAfterSendFailure(t *testing.T) {
	s := &recordingSender{err: errors.New("closed")}
	p := NewPublisher(s, "V1")

	if ok, err := p.Sample(ActorState{X: 1}); ok || err == nil {
		t.Fatalf("Sample = %v, %v; want failure", ok, err)
	}
	s.err = nil
	if ok, _ := p.Sample(ActorState{X: 1}); !ok {
		t.Fatalf("failed publish should be retried")
	}
}

func TestPublisherSetVillageForcesPublish(t *testing.T) {
	s := &recordingSender{}
	p := NewPublisher(s, "V1")
	p.Sample(ActorState{X: 1})
	p.SetVillage("house-bob")
	if ok, _ := p.Sample(ActorState{X: 1}); !ok {
		t.Fatalf("first sample in new room should publish")
	}
	if s.moves[1].VillageID != "house-bob" {
		t.Fatalf("village = %q", s.moves[1].VillageID)
	}
}

func TestPublisherSetEpsilon(t *testing.T) {
	s := &recordingSender{}
	p := NewPublisher(s, "V1")
	p.SetEpsilon(5, 0.1)
	p.Sample(ActorState{X: 1, YNorm: protocol.Float(0.5)})
	if ok, _ := p.Sample(ActorState{X: 4, YNorm: protocol.Float(0.55)}); ok {
		t.Fatalf("change within epsilon published")
	}
	if ok, _ := p.Sample(ActorState{X: 7, YNorm: protocol.Float(0.55)}); !ok {
		t.Fatalf("change beyond epsilon not published")
	}
}
