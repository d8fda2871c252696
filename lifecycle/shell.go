package lifecycle

import (
	"sync"

	"github.com/pkg/errors"
)

// Shell is the host that runs the client. A native shell suspends and resumes the
// app and reports those transitions to its listeners.
type Shell interface {
	IsNative() bool
	AddStateListener(listener func(active bool)) (Subscription, error)
}

type Subscription interface {
	Remove() error
}

// StateChange is the payload of a host shell activity event.
type StateChange struct {
	IsActive bool
}

// Bus is an in-process Shell. Publish delivers an event to every listener
// synchronously, in registration order.
type Bus struct {
	native bool

	lock      sync.Mutex
	nextID    int
	listeners map[int]func(active bool)
	order     []int
}

var _ Shell = (*Bus)(nil)

func NewBus(native bool) *Bus {
	return &Bus{
		native:    native,
		listeners: make(map[int]func(active bool)),
	}
}

func (b *Bus) IsNative() bool {
	return b.native
}

func (b *Bus) AddStateListener(listener func(active bool)) (Subscription, error) {
	if listener == nil {
		return nil, errors.New("[Bus.AddStateListener] listener is required")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = listener
	b.order = append(b.order, id)
	return &busSubscription{bus: b, id: id}, nil
}

func (b *Bus) Publish(change StateChange) {
	b.lock.Lock()
	listeners := make([]func(active bool), 0, len(b.order))
	for _, id := range b.order {
		listeners = append(listeners, b.listeners[id])
	}
	b.lock.Unlock()

	for _, l := range listeners {
		l(change.IsActive)
	}
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.listeners)
}

func (b *Bus) remove(id int) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.listeners[id]; !ok {
		return errors.Errorf("[Bus.remove] listener %d is not registered", id)
	}
	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

type busSubscription struct {
	bus  *Bus
	id   int
	once sync.Once
}

func (s *busSubscription) Remove() error {
	err := errors.New("[busSubscription.Remove] already removed")
	s.once.Do(func() {
		err = s.bus.remove(s.id)
	})
	return err
}
