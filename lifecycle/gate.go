package lifecycle

import "sync/atomic"

// Ticket identifies the holder of a Gate.
type Ticket uint64

// Gate is a single-slot lock that never queues: a caller either takes the slot or
// is told it is busy. Reset frees the slot regardless of who holds it, and a
// holder released after a Reset does not free a newer holder's slot.
type Gate struct {
	holder atomic.Uint64
	next   atomic.Uint64
}

func (g *Gate) TryAcquire() (Ticket, bool) {
	id := g.next.Add(1)
	if g.holder.CompareAndSwap(0, id) {
		return Ticket(id), true
	}
	return 0, false
}

// Release frees the slot if t still holds it.
func (g *Gate) Release(t Ticket) bool {
	return g.holder.CompareAndSwap(uint64(t), 0)
}

func (g *Gate) Reset() {
	g.holder.Store(0)
}

func (g *Gate) Busy() bool {
	return g.holder.Load() != 0
}
