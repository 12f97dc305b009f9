// Package server exposes move search over HTTP and streams live matches over
// a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
)

type Options struct {
	Width, Height, NInRow int

	Search      mcts.Config
	Pure        mcts.PureConfig
	MoveTimeout time.Duration
}

// Requested boards are bounded so one request cannot exhaust memory.
const (
	MaxSide  = 64
	MaxCells = 1024
)

type Server struct {
	opts      Options
	evaluator mcts.Evaluator
	router    chi.Router
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New builds a server whose guided player uses evaluator.
func New(opts Options, evaluator mcts.Evaluator) *Server {
	s := &Server{opts: opts, evaluator: evaluator}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleHealth)
	r.Post("/move", s.handleMove)
	r.Get("/watch", s.handleWatch)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"width":  s.opts.Width,
		"height": s.opts.Height,
		"n":      s.opts.NInRow,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// newPlayer builds a player by name. An empty name selects the guided search.
func (s *Server) newPlayer(kind string, seed uint64) (game.Player, error) {
	switch kind {
	case "", "guided":
		return mcts.NewPlayer(s.evaluator, s.opts.Search, false, mcts.WithSeed(seed)), nil
	case "pure":
		return mcts.NewPurePlayer(s.opts.Pure, seed), nil
	case "random":
		return game.NewRandomPlayer(seed), nil
	case "first":
		return &game.FirstAvailablePlayer{}, nil
	default:
		return nil, fmt.Errorf("unknown player %q", kind)
	}
}

// replay builds a board from dimensions that default to the server's and a
// move history.
func (s *Server) replay(width, height, n, startPlayer int, moves []int) (*game.Board, error) {
	if width == 0 {
		width = s.opts.Width
	}
	if height == 0 {
		height = s.opts.Height
	}
	if n == 0 {
		n = s.opts.NInRow
	}
	if width > MaxSide || height > MaxSide || width*height > MaxCells {
		return nil, fmt.Errorf("%w: board %dx%d exceeds %d cells or side %d", game.ErrConfiguration, width, height, MaxCells, MaxSide)
	}
	b, err := game.NewBoard(width, height, n)
	if err != nil {
		return nil, err
	}
	if err := b.InitBoard(startPlayer); err != nil {
		return nil, err
	}
	for i, m := range moves {
		if end, _ := b.IsTerminal(); end {
			return nil, fmt.Errorf("move %d played after the game ended: %w", i, game.ErrIllegalAction)
		}
		if err := b.DoMove(m); err != nil {
			return nil, fmt.Errorf("move %d: %w", i, err)
		}
	}
	return b, nil
}

func randomSeed(r *http.Request) uint64 {
	if v := r.URL.Query().Get("seed"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			return seed
		}
	}
	return rand.Uint64()
}

func outcome(s game.Stone) string { return metrics.Outcome(s) }
