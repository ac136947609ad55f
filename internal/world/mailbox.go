package world

// Mailbox hands snapshots from the simulation side to the render side.
// It holds at most one snapshot: a newer one replaces an unread older one,
// so the render side always sees the latest state and Send never blocks.
// A recreate request in a replaced snapshot is carried into its
// replacement so it is never lost.
type Mailbox struct {
	slot chan Snapshot
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slot: make(chan Snapshot, 1)}
}

// Send stores snap, replacing any unread snapshot.
func (m *Mailbox) Send(snap Snapshot) {
	for {
		select {
		case m.slot <- snap:
			return
		default:
		}
		select {
		case old := <-m.slot:
			if old.Config.Recreate {
				snap.Config.Recreate = true
			}
		default:
		}
	}
}

// Receive returns the pending snapshot, if any, without blocking.
func (m *Mailbox) Receive() (Snapshot, bool) {
	select {
	case snap := <-m.slot:
		return snap, true
	default:
		return Snapshot{}, false
	}
}

// C returns the channel the snapshots arrive on, for use in select.
func (m *Mailbox) C() <-chan Snapshot {
	return m.slot
}
