package signal

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/viant/construct/model/types"
)

// Channel groups named signals, fuzzy routes and forwarding edges.
// All channels of a Bus share the bus lock.
type Channel struct {
	name       string
	bus        *Bus
	signals    map[string]*Signal
	routes     []*subscription
	targets    []*Channel
	suppressed []string
}

// Name returns channel name
func (c *Channel) Name() string {
	return c.name
}

// Signal returns named signal, creating it on first use
func (c *Channel) Signal(name string) *Signal {
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	return c.signal(name)
}

func (c *Channel) signal(name string) *Signal {
	if ret, ok := c.signals[name]; ok {
		return ret
	}
	ret := &Signal{name: name, mux: c.bus.mux, channel: c}
	c.signals[name] = ret
	return ret
}

// Signals returns sorted names of signals created on this channel
func (c *Channel) Signals() []string {
	c.bus.mux.RLock()
	defer c.bus.mux.RUnlock()
	ret := make([]string, 0, len(c.signals))
	for name := range c.signals {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Connect subscribes to a named signal
func (c *Channel) Connect(name string, subscriber Subscriber, options ...ConnectOption) (Handle, error) {
	return c.Signal(name).Connect(subscriber, options...)
}

// Route subscribes to every signal whose name matches pattern, e.g. "group.*"
func (c *Channel) Route(pattern string, subscriber Subscriber, options ...ConnectOption) (Handle, error) {
	if !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("%w: invalid route pattern %q", types.ErrConnect, pattern)
	}
	if subscriber == nil {
		return "", fmt.Errorf("%w: nil subscriber on %v", types.ErrConnect, pattern)
	}
	if chained, ok := subscriber.(*Signal); ok && chained.triggers(func(candidate *Signal) bool {
		return c.routeReceives(pattern, candidate)
	}) {
		return "", fmt.Errorf("%w: routing %v on %v to %v creates a cycle", types.ErrConnect, pattern, c.name, chained.name)
	}
	sub := newSubscription(subscriber, options)
	sub.pattern = pattern
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	for _, candidate := range c.routes {
		if candidate.pattern == pattern && candidate.identity != nil && candidate.identity == sub.identity {
			return "", fmt.Errorf("%w: subscriber already routed to %v", types.ErrConnect, pattern)
		}
	}
	c.routes = insert(c.routes, sub)
	return sub.handle, nil
}

// Disconnect removes a signal subscription or a route by handle
func (c *Channel) Disconnect(handle Handle) bool {
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	var ok bool
	if c.routes, ok = remove(c.routes, handle); ok {
		return true
	}
	for _, sig := range c.signals {
		if sig.subscribers, ok = remove(sig.subscribers, handle); ok {
			return true
		}
	}
	return false
}

// Forward adds an edge so that every send on c is repeated on target.
// Self edges and cycles are rejected and leave the graph unchanged.
func (c *Channel) Forward(target *Channel) error {
	if target == nil {
		return fmt.Errorf("%w: nil forward target", types.ErrConnect)
	}
	if target.bus != c.bus {
		return fmt.Errorf("%w: %v and %v belong to different buses", types.ErrConnect, c.name, target.name)
	}
	if c.forwardLoops(target) {
		return fmt.Errorf("%w: forwarding %v to %v makes a signal resend itself", types.ErrConnect, c.name, target.name)
	}
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	if target == c {
		return fmt.Errorf("%w: channel %v cannot forward to itself", types.ErrConnect, c.name)
	}
	for _, candidate := range c.targets {
		if candidate == target {
			return nil
		}
	}
	if target.reaches(c) {
		return fmt.Errorf("%w: forwarding %v to %v creates a cycle", types.ErrConnect, c.name, target.name)
	}
	c.targets = append(c.targets, target)
	return nil
}

// Unforward removes forwarding edge, it reports whether edge existed
func (c *Channel) Unforward(target *Channel) bool {
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	for i, candidate := range c.targets {
		if candidate == target {
			c.targets = append(c.targets[:i:i], c.targets[i+1:]...)
			return true
		}
	}
	return false
}

// Targets returns direct forwarding targets in insertion order
func (c *Channel) Targets() []*Channel {
	c.bus.mux.RLock()
	defer c.bus.mux.RUnlock()
	ret := make([]*Channel, len(c.targets))
	copy(ret, c.targets)
	return ret
}

// forwardLoops reports whether a signal subscriber reachable from target
// would send back into c once c forwards to target
func (c *Channel) forwardLoops(target *Channel) bool {
	type edge struct {
		chained *Signal
		matches func(name string) bool
	}
	var edges []edge
	c.bus.mux.RLock()
	for channel := range target.reachable() {
		for name, sig := range channel.signals {
			signalName := name
			for _, sub := range sig.subscribers {
				if chained, ok := sub.subscriber.(*Signal); ok {
					edges = append(edges, edge{chained: chained, matches: func(name string) bool { return name == signalName }})
				}
			}
		}
		for _, route := range channel.routes {
			pattern := route.pattern
			if chained, ok := route.subscriber.(*Signal); ok {
				edges = append(edges, edge{chained: chained, matches: func(name string) bool {
					matched, _ := doublestar.Match(pattern, name)
					return matched
				}})
			}
		}
	}
	c.bus.mux.RUnlock()
	for _, e := range edges {
		if e.chained.triggers(func(candidate *Signal) bool {
			return candidate.channel != nil && e.matches(candidate.name) && candidate.channel.leadsTo(c)
		}) {
			return true
		}
	}
	return false
}

// reachable returns c and every channel reachable through forwarding edges
func (c *Channel) reachable() map[*Channel]bool {
	visited := map[*Channel]bool{}
	pending := []*Channel{c}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		pending = append(pending, current.targets...)
	}
	return visited
}

// routeReceives reports whether a route with pattern on c would receive sends of candidate
func (c *Channel) routeReceives(pattern string, candidate *Signal) bool {
	if candidate.channel == nil {
		return false
	}
	if matched, _ := doublestar.Match(pattern, candidate.name); !matched {
		return false
	}
	return candidate.channel.leadsTo(c)
}

// leadsTo reports whether sends on c reach target
func (c *Channel) leadsTo(target *Channel) bool {
	c.bus.mux.RLock()
	defer c.bus.mux.RUnlock()
	return c.reaches(target)
}

func (c *Channel) reaches(target *Channel) bool {
	visited := map[*Channel]bool{}
	pending := []*Channel{c}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if current == target {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		pending = append(pending, current.targets...)
	}
	return false
}

// Suppress mutes sends of matching signal names on this channel until
// restore is called; no pattern mutes everything
func (c *Channel) Suppress(patterns ...string) (restore func()) {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	c.bus.mux.Lock()
	previous := c.suppressed
	c.suppressed = append(append([]string{}, c.suppressed...), patterns...)
	c.bus.mux.Unlock()
	return func() {
		c.bus.mux.Lock()
		defer c.bus.mux.Unlock()
		c.suppressed = previous
	}
}

func (c *Channel) isSuppressed(name string) bool {
	for _, pattern := range c.suppressed {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Clear removes every signal, route, forwarding edge and suppression
func (c *Channel) Clear() {
	c.bus.mux.Lock()
	defer c.bus.mux.Unlock()
	c.signals = map[string]*Signal{}
	c.routes = nil
	c.targets = nil
	c.suppressed = nil
}

// Send dispatches name on c and then, breadth first, on every channel
// reachable through forwarding edges. Each channel runs its local and
// matching route subscribers merged by priority.
func (c *Channel) Send(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	subscribers := c.plan(name)
	return dispatch(ctx, name, subscribers, args)
}

func (c *Channel) plan(name string) []*subscription {
	c.bus.mux.RLock()
	defer c.bus.mux.RUnlock()
	var ret []*subscription
	visited := map[*Channel]bool{}
	pending := []*Channel{c}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		pending = append(pending, current.targets...)
		if current.isSuppressed(name) {
			continue
		}
		ret = append(ret, current.subscribersOf(name)...)
	}
	return ret
}

func (c *Channel) subscribersOf(name string) []*subscription {
	var local []*subscription
	if sig, ok := c.signals[name]; ok {
		local = sig.subscribers
	}
	ret := make([]*subscription, len(local))
	copy(ret, local)
	for _, route := range c.routes {
		if matched, _ := doublestar.Match(route.pattern, name); matched {
			ret = insert(ret, route)
		}
	}
	return ret
}
