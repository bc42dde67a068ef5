package queue

import "sync"

// Mailbox is an Observer which never blocks the worker. Events are kept in
// unbounded FIFO and handed to consumer through Events channel in the order
// they were produced.
type Mailbox struct {
	mu     sync.Mutex
	events []Event
	closed bool

	signal chan struct{}
	out    chan Event
}

func NewMailbox() *Mailbox {
	m := &Mailbox{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go m.pump()
	return m
}

func (m *Mailbox) OnUpdate(e Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.events = append(m.events, e)
	m.mu.Unlock()
	m.notify()
}

// Events returns channel consumer drains. It is closed after Close once all
// accepted events were delivered, consumer must keep reading until then.
func (m *Mailbox) Events() <-chan Event {
	return m.out
}

// Close stops accepting events.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify()
}

func (m *Mailbox) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Mailbox) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		for len(m.events) == 0 {
			if m.closed {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			<-m.signal
			m.mu.Lock()
		}
		e := m.events[0]
		m.events[0] = Event{}
		m.events = m.events[1:]
		m.mu.Unlock()

		m.out <- e
	}
}
