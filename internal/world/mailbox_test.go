package world

import "testing"

func TestMailboxLatestWins(t *testing.T) {
	m := NewMailbox()
	if _, ok := m.Receive(); ok {
		t.Fatal("empty mailbox returned a snapshot")
	}

	m.Send(Snapshot{Seq: 1})
	m.Send(Snapshot{Seq: 2})
	m.Send(Snapshot{Seq: 3})

	snap, ok := m.Receive()
	if !ok || snap.Seq != 3 {
		t.Fatalf("Receive() = %d, %v; want 3, true", snap.Seq, ok)
	}
	if _, ok := m.Receive(); ok {
		t.Error("mailbox held more than one snapshot")
	}
}

func TestMailboxMergesRecreate(t *testing.T) {
	tests := []struct {
		name  string
		sends []bool
		want  bool
	}{
		{"none", []bool{false, false}, false},
		{"replaced", []bool{true, false}, true},
		{"buried", []bool{true, false, false}, true},
		{"latest", []bool{false, true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMailbox()
			for i, r := range tt.sends {
				snap := Snapshot{Seq: uint64(i + 1)}
				snap.Config.Recreate = r
				m.Send(snap)
			}
			snap, ok := m.Receive()
			if !ok {
				t.Fatal("no snapshot")
			}
			if snap.Seq != uint64(len(tt.sends)) {
				t.Errorf("seq = %d, want %d", snap.Seq, len(tt.sends))
			}
			if snap.Config.Recreate != tt.want {
				t.Errorf("recreate = %v, want %v", snap.Config.Recreate, tt.want)
			}
		})
	}
}

func TestMailboxChannel(t *testing.T) {
	m := NewMailbox()
	m.Send(Snapshot{Seq: 7})
	select {
	case snap := <-m.C():
		if snap.Seq != 7 {
			t.Errorf("seq = %d, want 7", snap.Seq)
		}
	default:
		t.Fatal("channel empty after Send")
	}
}
