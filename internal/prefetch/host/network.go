package host

import "sync"

// Network is a settable NetworkSignal that notifies subscribers on change.
// The zero value reports an unknown connection.
type Network struct {
	subs  map[int]func(ConnectionInfo)
	info  ConnectionInfo
	next  int
	mu    sync.Mutex
	known bool
}

// Set updates the connection and notifies subscribers.
func (n *Network) Set(info ConnectionInfo) {
	n.mu.Lock()
	n.info = info
	n.known = true
	subs := make([]func(ConnectionInfo), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(info)
	}
}

// Connection implements NetworkSignal.
func (n *Network) Connection() (ConnectionInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info, n.known
}

// Subscribe implements NetworkNotifier.
func (n *Network) Subscribe(fn func(ConnectionInfo)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(ConnectionInfo))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Network) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
