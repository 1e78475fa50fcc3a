// Package idgen generates collision-resistant identifiers for flow entities.
package idgen

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid"
)

// Generator hands out ids for nodes, edges, nested cards and buttons.
type Generator interface {
	NodeID(nodeType models.NodeType) string
	EdgeID(source, target string) string
	CardID() string
	ButtonID() string
}

// ULID generates time-ordered node ids and random ids for everything else.
// Node ids stay sortable by creation time, which keeps exported flows readable.
type ULID struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entropy io.Reader
}

type Option func(*ULID)

func WithClock(clock clockwork.Clock) Option {
	return func(g *ULID) {
		g.clock = clock
	}
}

func New(opts ...Option) *ULID {
	g := &ULID{
		clock:   clockwork.NewRealClock(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *ULID) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String()
}

// NodeID returns "{type-tag}-{ulid}". Monotonic entropy keeps ids distinct within one millisecond.
func (g *ULID) NodeID(nodeType models.NodeType) string {
	return nodeType.Tag() + "-" + g.next()
}

// EdgeID derives the id from its endpoints plus a unique suffix so parallel edges never collide.
func (g *ULID) EdgeID(source, target string) string {
	return "e-" + source + "-" + target + "-" + g.next()
}

func (g *ULID) CardID() string {
	return "card-" + uuid.NewString()
}

func (g *ULID) ButtonID() string {
	return "btn-" + uuid.NewString()
}
