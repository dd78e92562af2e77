package ws

import "sync"

// Registry tracks the live channels. It exists for cleanup and fan-out only:
// responses always travel back over the channel that carried the request, so
// the registry is never consulted for routing.
type Registry struct {
	channels map[string]*Channel
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Add registers a channel.
func (r *Registry) Add(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.ID()] = c
}

// Remove unregisters a channel. Removal never kills processes or sessions
// the channel operated on; those are server-wide and outlive any connection.
func (r *Registry) Remove(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, c.ID())
}

// Count returns the number of live channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes every live channel. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		channels = append(channels, c)
	}
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, c := range channels {
		c.Close()
	}
}
