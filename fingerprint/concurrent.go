package fingerprint

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dhamidi/dexpatch/program"
)

// Result is the outcome of resolving one fingerprint in ResolveAll.
type Result struct {
	Fingerprint *Fingerprint
	Match       MethodMatch
	Err         error
}

// ResolveAll resolves method fingerprints concurrently against an unchanging
// program. Results keep the order of fps; per-fingerprint failures are
// reported in Result.Err, only cancellation of ctx is returned as an error.
// limit bounds the number of concurrent resolutions, <= 0 means no bound.
func ResolveAll(ctx context.Context, p *program.Program, fps []*Fingerprint, limit int) ([]Result, error) {
	results := make([]Result, len(fps))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, fp := range fps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			match, err := ResolveMethod(p, fp)
			results[i] = Result{Fingerprint: fp, Match: match, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
