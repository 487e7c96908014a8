package busws

import "sync"

// channelSet tracks which channels the transport believes are subscribed on
// the current connection. It is cleared on every disconnect so the owner can
// replay its subscriptions cleanly after a reconnect.
type channelSet struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newChannelSet() *channelSet {
	return &channelSet{active: make(map[string]struct{})}
}

// Add marks a channel subscribed. Returns false if it already was.
func (s *channelSet) Add(channel string) bool {
	s.mu.Lock()
	_, exists := s.active[channel]
	if !exists {
		s.active[channel] = struct{}{}
	}
	s.mu.Unlock()
	return !exists
}

// Remove clears a channel. Returns true if it was subscribed.
func (s *channelSet) Remove(channel string) bool {
	s.mu.Lock()
	_, ok := s.active[channel]
	if ok {
		delete(s.active, channel)
	}
	s.mu.Unlock()
	return ok
}

// Clear drops every channel.
func (s *channelSet) Clear() {
	s.mu.Lock()
	for channel := range s.active {
		delete(s.active, channel)
	}
	s.mu.Unlock()
}

// Count returns the number of subscribed channels.
func (s *channelSet) Count() int {
	s.mu.Lock()
	count := len(s.active)
	s.mu.Unlock()
	return count
}
