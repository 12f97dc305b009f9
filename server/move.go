package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
)

// MoveRequest describes a position as the moves that led to it. Zero
// dimensions fall back to the server's board.
type MoveRequest struct {
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	NInRow      int    `json:"n_in_row,omitempty"`
	StartPlayer int    `json:"start_player"`
	Moves       []int  `json:"moves"`
	Player      string `json:"player,omitempty"` // guided, pure, random or first
}

type SearchStats struct {
	Playouts int  `json:"playouts"`
	MaxDepth int  `json:"max_depth"`
	Reused   bool `json:"reused"`
	Degraded int  `json:"degraded"`
}

type MoveResponse struct {
	Action int    `json:"action"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	ToMove string `json:"to_move"`

	// Probs is the dense move distribution of the guided search.
	Probs []float64    `json:"probs,omitempty"`
	Stats *SearchStats `json:"stats,omitempty"`
}

func statsOf(s mcts.Stats) *SearchStats {
	return &SearchStats{Playouts: s.Playouts, MaxDepth: s.MaxDepth, Reused: s.Reused, Degraded: s.Degraded}
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	b, err := s.replay(req.Width, req.Height, req.NInRow, req.StartPlayer, req.Moves)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if end, winner := b.IsTerminal(); end {
		writeError(w, http.StatusConflict, fmt.Errorf("game is over, winner %v", winner))
		return
	}

	ctx := r.Context()
	if s.opts.MoveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.MoveTimeout)
		defer cancel()
	}

	resp, err := s.chooseMove(ctx, b, req.Player, randomSeed(r))
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
		return
	case errors.Is(err, game.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err)
		return
	default:
		log.Error().Err(err).Ints("moves", req.Moves).Msg("move search failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp.Row, resp.Col, _ = b.MoveToLocation(resp.Action)
	resp.ToMove = b.CurrentPlayer().String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) chooseMove(ctx context.Context, b *game.Board, kind string, seed uint64) (MoveResponse, error) {
	switch kind {
	case "", "guided":
		m := mcts.New(s.evaluator, s.opts.Search)
		actions, probs, err := m.MoveProbabilities(ctx, b, mcts.PlayTemperature)
		if err != nil {
			return MoveResponse{}, err
		}
		dense := make([]float64, b.Size())
		best := 0
		for i, a := range actions {
			dense[a] = probs[i]
			if probs[i] > probs[best] {
				best = i
			}
		}
		return MoveResponse{Action: actions[best], Probs: dense, Stats: statsOf(m.Stats())}, nil

	case "pure":
		m := mcts.NewPure(s.opts.Pure, seed)
		action, err := m.GetMove(ctx, b)
		if err != nil {
			return MoveResponse{}, err
		}
		return MoveResponse{Action: action, Stats: statsOf(m.Stats())}, nil

	default:
		p, err := s.newPlayer(kind, seed)
		if err != nil {
			return MoveResponse{}, fmt.Errorf("%w: %v", game.ErrConfiguration, err)
		}
		p.SetPlayerIndex(b.CurrentPlayer())
		action, err := p.GetAction(ctx, b)
		if err != nil {
			return MoveResponse{}, err
		}
		return MoveResponse{Action: action}, nil
	}
}
