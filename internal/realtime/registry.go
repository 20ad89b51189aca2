package realtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
)

// Hub tracks the connections of one channel and their groups.
type Hub struct {
	channel Channel

	mu     sync.RWMutex
	conns  map[*Conn]map[string]struct{}
	groups map[string]map[*Conn]struct{}
}

func newHub(ch Channel) *Hub {
	return &Hub{
		channel: ch,
		conns:   make(map[*Conn]map[string]struct{}),
		groups:  make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		h.conns[c] = make(map[string]struct{})
	}
}

func (h *Hub) remove(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.conns[c]
	if !ok {
		return false
	}
	for g := range joined {
		h.leaveLocked(c, g)
	}
	delete(h.conns, c)
	return true
}

// Join adds c to group. It returns false when c is not attached.
func (h *Hub) Join(c *Conn, group string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.conns[c]
	if !ok {
		return false
	}
	joined[group] = struct{}{}
	members := h.groups[group]
	if members == nil {
		members = make(map[*Conn]struct{})
		h.groups[group] = members
	}
	members[c] = struct{}{}
	return true
}

func (h *Hub) Leave(c *Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, group)
}

func (h *Hub) leaveLocked(c *Conn, group string) {
	if joined, ok := h.conns[c]; ok {
		delete(joined, group)
	}
	members := h.groups[group]
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Groups lists the groups c has joined.
func (h *Hub) Groups(c *Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns[c]))
	for g := range h.conns[c] {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// members returns every connection in at least one of groups, once.
func (h *Hub) members(groups []string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Conn]struct{})
	var out []*Conn
	for _, g := range groups {
		for c := range h.groups[g] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) bySession(sessionID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Conn
	for c := range h.conns {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) all() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Registry owns one hub per channel. It is created once per process and
// passed to everything that pushes to clients.
type Registry struct {
	hubs [channelCount]*Hub
	log  logger.Logger
	sink metrics.Sink
}

func NewRegistry(log logger.Logger, sink metrics.Sink) *Registry {
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	r := &Registry{log: log, sink: sink}
	for _, ch := range Channels() {
		r.hubs[ch] = newHub(ch)
	}
	return r
}

// Hub returns the hub of ch.
func (r *Registry) Hub(ch Channel) *Hub {
	return r.hubs[ch]
}

// Attach registers c and joins its default groups: its own self group and,
// for admins, the all-traffic group.
func (r *Registry) Attach(c *Conn) error {
	if !c.Channel.valid() {
		return fmt.Errorf("unknown channel %d", c.Channel)
	}
	h := r.hubs[c.Channel]
	h.add(c)
	h.Join(c, SelfGroup(c.OwnerID))
	if c.Channel == ChannelAdmin {
		h.Join(c, GroupAdminAll)
	}
	r.sink.SetConnections(c.Channel.String(), h.Len())
	r.log.Debugf("%s %s connected (session %s)", c.Channel, c.OwnerID, c.SessionID)
	return nil
}

// Detach unregisters c and closes it. Safe to call more than once.
func (r *Registry) Detach(c *Conn) {
	if !c.Channel.valid() {
		return
	}
	h := r.hubs[c.Channel]
	if h.remove(c) {
		r.sink.SetConnections(c.Channel.String(), h.Len())
		r.log.Debugf("%s %s disconnected", c.Channel, c.OwnerID)
	}
	c.kick(nil)
}

// Push sends one delivery and returns how many connections accepted it.
func (r *Registry) Push(d Delivery) (int, error) {
	if !d.Channel.valid() {
		return 0, fmt.Errorf("unknown channel %d", d.Channel)
	}
	targets := r.hubs[d.Channel].members(d.Groups)
	if len(targets) == 0 {
		return 0, nil
	}
	b, err := encode(d.Wire, "", d.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", d.Wire, err)
	}
	sent := 0
	for _, c := range targets {
		if c.enqueue(b) {
			sent++
			r.sink.RecordRealtimeMessage(d.Channel.String(), d.Wire)
			continue
		}
		r.log.Warnf("dropping slow %s connection of %s", d.Channel, c.OwnerID)
		r.Detach(c)
	}
	return sent, nil
}

// Revoke sends force:disconnect to every connection of sessionID on every
// channel and closes them. It returns how many were closed.
func (r *Registry) Revoke(sessionID, reason string) int {
	if sessionID == "" {
		return 0
	}
	b, _ := encode(WireForceDisconnect, "", forceDisconnect{Reason: reason})
	n := 0
	for _, h := range r.hubs {
		for _, c := range h.bySession(sessionID) {
			c.kick(b)
			if h.remove(c) {
				r.sink.SetConnections(h.channel.String(), h.Len())
			}
			n++
		}
	}
	if n > 0 {
		r.log.Infof("revoked session %s: closed %d connections", sessionID, n)
	}
	return n
}

// Count returns the number of live connections on ch.
func (r *Registry) Count(ch Channel) int {
	if !ch.valid() {
		return 0
	}
	return r.hubs[ch].Len()
}

// Close disconnects everyone.
func (r *Registry) Close() {
	for _, h := range r.hubs {
		for _, c := range h.all() {
			r.Detach(c)
		}
	}
}
