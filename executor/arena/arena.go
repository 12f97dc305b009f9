// Package arena plays series of games between two players to measure how
// much stronger one is than the other.
package arena

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
)

const (
	// PureStep is how many playouts are added to the pure baseline after
	// the candidate beats it in every game.
	PureStep = 1000
	// MaxPurePlayouts caps the baseline's strength.
	MaxPurePlayouts = 5000
)

// PlayerFactory builds a fresh player. Each game gets its own players so
// games can run concurrently.
type PlayerFactory func() game.Player

type Options struct {
	Width, Height, NInRow int
	Games                 int
	Parallel              int // games played at once, 1 when <= 0
}

// Result is a tally from the candidate's point of view.
type Result struct {
	Wins, Draws, Losses int
}

func (r Result) Games() int { return r.Wins + r.Draws + r.Losses }

// Ratio is (wins + 0.5*draws) / games, 0 for an empty series.
func (r Result) Ratio() float64 {
	n := r.Games()
	if n == 0 {
		return 0
	}
	return (float64(r.Wins) + 0.5*float64(r.Draws)) / float64(n)
}

func (r Result) String() string {
	return fmt.Sprintf("win: %d, lose: %d, tie: %d", r.Wins, r.Losses, r.Draws)
}

// Evaluate plays opts.Games games with the candidate as P1 and the baseline
// as P2. Game i is opened by P1 when i is even and by P2 when it is odd.
func Evaluate(ctx context.Context, opts Options, candidate, baseline PlayerFactory) (Result, error) {
	if opts.Games <= 0 {
		return Result{}, fmt.Errorf("games must be positive: %w", game.ErrConfiguration)
	}
	if _, err := game.NewBoard(opts.Width, opts.Height, opts.NInRow); err != nil {
		return Result{}, err
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := 0; i < opts.Games; i++ {
		start := i % 2
		g.Go(func() error {
			b, err := game.NewBoard(opts.Width, opts.Height, opts.NInRow)
			if err != nil {
				return err
			}
			winner, err := game.NewGame(b).StartMatch(gctx, candidate(), baseline(), start, false)
			if err != nil {
				return fmt.Errorf("arena game %d: %w", i, err)
			}
			metrics.Games.WithLabelValues("arena", metrics.Outcome(winner)).Inc()
			metrics.GameLength.Observe(float64(b.MoveCount()))

			mu.Lock()
			defer mu.Unlock()
			switch winner {
			case game.P1:
				res.Wins++
			case game.P2:
				res.Losses++
			default:
				res.Draws++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	log.Info().
		Int("games", res.Games()).
		Int("wins", res.Wins).
		Int("draws", res.Draws).
		Int("losses", res.Losses).
		Float64("ratio", res.Ratio()).
		Msg("arena finished")
	return res, nil
}

// NextBaseline updates the best ratio seen so far. improved reports whether
// ratio beat best, in which case the candidate should be kept. A perfect
// score against a baseline below MaxPurePlayouts makes the baseline
// PureStep playouts stronger and resets the best ratio to 0.
func NextBaseline(best, ratio float64, pureSims int) (newBest float64, newPureSims int, improved bool) {
	if ratio <= best {
		return best, pureSims, false
	}
	if ratio == 1.0 && pureSims < MaxPurePlayouts {
		return 0, pureSims + PureStep, true
	}
	return ratio, pureSims, true
}
