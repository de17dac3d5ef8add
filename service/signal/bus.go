package signal

import (
	"sort"
	"sync"
)

// DefaultChannel is the name of the channel returned by Bus.Default
const DefaultChannel = "default"

// Bus owns a set of channels guarded by a single lock
type Bus struct {
	mux      *sync.RWMutex
	channels map[string]*Channel
}

// Channel returns named channel, creating it on first use
func (b *Bus) Channel(name string) *Channel {
	b.mux.Lock()
	defer b.mux.Unlock()
	if ret, ok := b.channels[name]; ok {
		return ret
	}
	ret := &Channel{name: name, bus: b, signals: map[string]*Signal{}}
	b.channels[name] = ret
	return ret
}

// Default returns the default channel
func (b *Bus) Default() *Channel {
	return b.Channel(DefaultChannel)
}

// Lookup returns existing channel
func (b *Bus) Lookup(name string) (*Channel, bool) {
	b.mux.RLock()
	defer b.mux.RUnlock()
	ret, ok := b.channels[name]
	return ret, ok
}

// Channels returns sorted channel names
func (b *Bus) Channels() []string {
	b.mux.RLock()
	defer b.mux.RUnlock()
	ret := make([]string, 0, len(b.channels))
	for name := range b.channels {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Remove drops a channel together with every edge pointing at it
func (b *Bus) Remove(name string) bool {
	b.mux.Lock()
	defer b.mux.Unlock()
	removed, ok := b.channels[name]
	if !ok {
		return false
	}
	delete(b.channels, name)
	for _, channel := range b.channels {
		for i, target := range channel.targets {
			if target == removed {
				channel.targets = append(channel.targets[:i:i], channel.targets[i+1:]...)
				break
			}
		}
	}
	return true
}

// Clear removes every channel
func (b *Bus) Clear() {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.channels = map[string]*Channel{}
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{mux: &sync.RWMutex{}, channels: map[string]*Channel{}}
}
