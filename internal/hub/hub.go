package hub

import (
	"context"
	"errors"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/metrics"
	"github.com/weiawesome/realm-live/pkg/log"
)

var ErrHubStopped = errors.New("hub stopped")

// Observer is told when an identity gains its first live channel or loses its
// last one. Calls are made from the hub goroutine and must not block.
type Observer interface {
	IdentityOnline(identity domain.UserIdentity)
	IdentityOffline(identity domain.UserIdentity)
}

// Stats is a point-in-time view of the registry size.
type Stats struct {
	Identities int `json:"identities"`
	Channels   int `json:"channels"`
}

type registerReq struct {
	identity domain.UserIdentity
	client   *Client
	reply    chan error
}

type unregisterReq struct {
	client *Client
	reply  chan struct{}
}

type snapshotReq struct {
	identities []domain.UserIdentity
	reply      chan map[domain.UserIdentity][]*Client
}

// Hub maps identities to their live channels. The maps are owned by the Run
// goroutine; every other method is a request to it.
type Hub struct {
	identities map[domain.UserIdentity]map[*Client]struct{}
	owners     map[*Client]domain.UserIdentity

	register   chan registerReq
	unregister chan unregisterReq
	snapshot   chan snapshotReq
	stats      chan chan Stats
	done       chan struct{}

	observer Observer
	metrics  *metrics.Metrics
}

// NewHub creates a hub. observer and m may be nil.
func NewHub(observer Observer, m *metrics.Metrics) *Hub {
	return &Hub{
		identities: make(map[domain.UserIdentity]map[*Client]struct{}),
		owners:     make(map[*Client]domain.UserIdentity),
		register:   make(chan registerReq),
		unregister: make(chan unregisterReq),
		snapshot:   make(chan snapshotReq),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		observer:   observer,
		metrics:    m,
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run serves registry requests until ctx is done. On exit every registered
// client is closed and later requests fail with ErrHubStopped.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case req := <-h.register:
			req.reply <- h.add(req.identity, req.client)

		case req := <-h.unregister:
			h.remove(req.client)
			req.client.closeSend()
			close(req.reply)

		case req := <-h.snapshot:
			req.reply <- h.collect(req.identities)

		case reply := <-h.stats:
			reply <- h.size()
		}
	}
}

func (h *Hub) add(identity domain.UserIdentity, c *Client) error {
	if !c.IsOpen() {
		return ErrClientClosed
	}
	if current, ok := h.owners[c]; ok {
		if current == identity {
			return nil
		}
		h.remove(c)
	}

	set, ok := h.identities[identity]
	if !ok {
		set = make(map[*Client]struct{})
		h.identities[identity] = set
	}
	set[c] = struct{}{}
	h.owners[c] = identity
	h.record()

	l := log.L()
	l.Debug().Str(log.FieldClientID, c.ID).Str(log.FieldUserID, identity.String()).Msg("client registered")

	if !ok && h.observer != nil {
		h.observer.IdentityOnline(identity)
	}
	return nil
}

func (h *Hub) remove(c *Client) {
	identity, ok := h.owners[c]
	if !ok {
		return
	}
	delete(h.owners, c)

	set := h.identities[identity]
	delete(set, c)
	if len(set) == 0 {
		delete(h.identities, identity)
		if h.observer != nil {
			h.observer.IdentityOffline(identity)
		}
	}
	h.record()

	l := log.L()
	l.Debug().Str(log.FieldClientID, c.ID).Str(log.FieldUserID, identity.String()).Msg("client unregistered")
}

func (h *Hub) collect(identities []domain.UserIdentity) map[domain.UserIdentity][]*Client {
	out := make(map[domain.UserIdentity][]*Client, len(identities))
	for _, identity := range identities {
		if _, seen := out[identity]; seen {
			continue
		}
		var live []*Client
		for c := range h.identities[identity] {
			if c.IsOpen() {
				live = append(live, c)
			}
		}
		if len(live) > 0 {
			out[identity] = live
		}
	}
	return out
}

func (h *Hub) size() Stats {
	return Stats{Identities: len(h.identities), Channels: len(h.owners)}
}

func (h *Hub) record() {
	s := h.size()
	h.metrics.SetRegistrySize(s.Identities, s.Channels)
}

func (h *Hub) shutdown() {
	for c := range h.owners {
		c.Close()
		c.closeSend()
	}
	for identity := range h.identities {
		if h.observer != nil {
			h.observer.IdentityOffline(identity)
		}
	}
	h.identities = make(map[domain.UserIdentity]map[*Client]struct{})
	h.owners = make(map[*Client]domain.UserIdentity)
	h.record()
}

// Register adds c to identity's channel set. Registering the same pair again
// is a no-op; a client registered under another identity is moved.
func (h *Hub) Register(identity domain.UserIdentity, c *Client) error {
	req := registerReq{identity: identity, client: c, reply: make(chan error, 1)}
	select {
	case h.register <- req:
	case <-h.done:
		return ErrHubStopped
	}
	return <-req.reply
}

// Unregister removes c from the registry and closes its send buffer. It
// returns once the registry no longer references c. Unknown clients are a
// no-op.
func (h *Hub) Unregister(c *Client) {
	req := unregisterReq{client: c, reply: make(chan struct{})}
	select {
	case h.unregister <- req:
		<-req.reply
	case <-h.done:
		c.closeSend()
	}
}

// Snapshot returns the open channels of each identity in one consistent read.
// Identities without open channels are absent.
func (h *Hub) Snapshot(identities []domain.UserIdentity) map[domain.UserIdentity][]*Client {
	req := snapshotReq{identities: identities, reply: make(chan map[domain.UserIdentity][]*Client, 1)}
	select {
	case h.snapshot <- req:
	case <-h.done:
		return map[domain.UserIdentity][]*Client{}
	}
	return <-req.reply
}

// ChannelsFor returns the open channels of identity.
func (h *Hub) ChannelsFor(identity domain.UserIdentity) []*Client {
	return h.Snapshot([]domain.UserIdentity{identity})[identity]
}

// Online filters identities down to those with a live channel, keeping order.
func (h *Hub) Online(identities []domain.UserIdentity) []domain.UserIdentity {
	live := h.Snapshot(identities)
	out := make([]domain.UserIdentity, 0, len(live))
	for _, identity := range identities {
		if _, ok := live[identity]; ok {
			out = append(out, identity)
			delete(live, identity)
		}
	}
	return out
}

// Stats returns the current registry size.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}
	}
	return <-reply
}

// Evict closes a client that cannot keep up. Its read pump then unregisters it.
func (h *Hub) Evict(c *Client) {
	if !c.IsOpen() {
		return
	}
	c.Close()
	h.metrics.IncrementEvictions()

	l := log.L()
	l.Warn().Str(log.FieldClientID, c.ID).Str(log.FieldUserID, c.Session.Identity().String()).Msg("evicting slow client")
}
