package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StreamCatalog is the in-memory StreamRegistry implementation. Descriptors
// are registered once at wiring time and read concurrently afterwards.
type StreamCatalog struct {
	mu      sync.RWMutex
	streams map[string]StreamDescriptor
}

func NewStreamCatalog() *StreamCatalog {
	return &StreamCatalog{streams: make(map[string]StreamDescriptor)}
}

func (c *StreamCatalog) Register(descriptor StreamDescriptor) error {
	if c == nil {
		return fmt.Errorf("core: stream catalog is nil")
	}
	if err := descriptor.Validate(); err != nil {
		return err
	}
	name := strings.TrimSpace(descriptor.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.streams[name]; exists {
		return fmt.Errorf("core: stream already registered: %s", name)
	}
	c.streams[name] = descriptor
	return nil
}

func (c *StreamCatalog) Get(name string) (StreamDescriptor, bool) {
	if c == nil {
		return StreamDescriptor{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return StreamDescriptor{}, false
	}
	c.mu.RLock()
	descriptor, ok := c.streams[name]
	c.mu.RUnlock()
	return descriptor, ok
}

// List returns every registered descriptor sorted by stream name.
func (c *StreamCatalog) List() []StreamDescriptor {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	names := make([]string, 0, len(c.streams))
	for name := range c.streams {
		names = append(names, name)
	}
	descriptors := make([]StreamDescriptor, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		descriptors = append(descriptors, c.streams[name])
	}
	c.mu.RUnlock()
	return descriptors
}

var _ StreamRegistry = (*StreamCatalog)(nil)
