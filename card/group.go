package card

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// InitAll initializes cards concurrently, one goroutine per card. Each card
// must be on a distinct unit. The first failure cancels the context passed
// to the others; InitAll returns it after every goroutine has finished.
func InitAll(ctx context.Context, cards ...*Card) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range cards {
		c := c // per-iteration copy (Go 1.22+ loop semantics on go 1.21)
		g.Go(func() error {
			return c.Init(ctx)
		})
	}
	return g.Wait()
}
