package sender

import (
	"fmt"
	"sync"

	"github.com/user/notifyr/internal/types"
)

// Registry routes outbound dispatches to the transport registered for a
// conversation's platform.
type Registry struct {
	mu         sync.RWMutex
	transports map[types.Platform]types.Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[types.Platform]types.Transport),
	}
}

// Register adds a transport for the platform, replacing any previous one.
func (r *Registry) Register(platform types.Platform, transport types.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[platform] = transport
}

// For returns the transport registered for the platform.
func (r *Registry) For(platform types.Platform) (types.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transport, ok := r.transports[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNoTransport, platform)
	}
	return transport, nil
}
