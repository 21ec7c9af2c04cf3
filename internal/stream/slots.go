package stream

import (
	"errors"
	"sync"
)

const (
	defaultSlotsPerClient = 10
	defaultSlotsTotal     = 1000
)

var (
	errClientSlots = errors.New("too many concurrent streams from this client")
	errServerSlots = errors.New("server stream capacity reached")
)

// streamSlots admits long-lived streams under a per-client cap and a server
// cap shared by both transports.
type streamSlots struct {
	mu          sync.Mutex
	byClient    map[string]int
	byTransport map[string]int
	open        int

	perClient int
	total     int
}

func newStreamSlots(perClient, total int) *streamSlots {
	if perClient < 1 {
		perClient = defaultSlotsPerClient
	}
	if total < 1 {
		total = defaultSlotsTotal
	}
	return &streamSlots{
		byClient:    make(map[string]int),
		byTransport: make(map[string]int),
		perClient:   perClient,
		total:       total,
	}
}

// take reserves a slot for client on transport. The returned func gives it
// back and may be called any number of times.
func (s *streamSlots) take(client, transport string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.open >= s.total:
		return nil, errServerSlots
	case s.byClient[client] >= s.perClient:
		return nil, errClientSlots
	}
	s.byClient[client]++
	s.byTransport[transport]++
	s.open++

	var once sync.Once
	return func() { once.Do(func() { s.giveBack(client, transport) }) }, nil
}

func (s *streamSlots) giveBack(client, transport string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open--
	if s.byClient[client]--; s.byClient[client] <= 0 {
		delete(s.byClient, client)
	}
	if s.byTransport[transport]--; s.byTransport[transport] <= 0 {
		delete(s.byTransport, transport)
	}
}

// held returns the slots client holds.
func (s *streamSlots) held(client string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byClient[client]
}

// onTransport returns the open streams on transport.
func (s *streamSlots) onTransport(transport string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byTransport[transport]
}
