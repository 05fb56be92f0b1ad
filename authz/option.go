package authz

import (
	"time"

	"github.com/rs/zerolog"
)

type Option func(g *Gate)

// WithBreakGlass designates an identity that is allowed everything.
func WithBreakGlass(actorID uint) Option {
	return func(g *Gate) {
		g.breakGlass = actorID
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func WithTable(table Table) Option {
	return func(g *Gate) {
		g.table = table.index()
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) {
		g.log = log
	}
}
