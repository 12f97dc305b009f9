package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
)

// Frame is one websocket message of a watched match. The last frame has
// Done set and carries the winner.
type Frame struct {
	Ply    int    `json:"ply"`
	Move   int    `json:"move"`
	Player string `json:"player"`
	Cells  []int  `json:"cells"`
	Board  string `json:"board"`
	Done   bool   `json:"done"`
	Winner string `json:"winner,omitempty"`
	Error  string `json:"error,omitempty"`
}

func frameOf(b *game.Board, move int) Frame {
	cells := make([]int, b.Size())
	for i := range cells {
		cells[i] = int(b.At(i))
	}
	return Frame{
		Ply:    b.MoveCount(),
		Move:   move,
		Player: b.At(move).String(),
		Cells:  cells,
		Board:  b.String(),
	}
}

// handleWatch plays p1 against p2 (query parameters, guided by default) and
// sends a Frame after every ply. delay, in milliseconds, paces the stream.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seed := randomSeed(r)
	p1, err := s.newPlayer(q.Get("p1"), seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p2, err := s.newPlayer(q.Get("p2"), seed+1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, _ := strconv.Atoi(q.Get("start"))
	delayMs, _ := strconv.Atoi(q.Get("delay"))
	delay := time.Duration(delayMs) * time.Millisecond

	b, err := game.NewBoard(s.opts.Width, s.opts.Height, s.opts.NInRow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client only ever closes; reading surfaces that.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g := game.NewGame(b)
	var writeErr error
	g.SetObserver(func(b *game.Board, move int) {
		if writeErr != nil {
			return
		}
		if writeErr = conn.WriteJSON(frameOf(b, move)); writeErr != nil {
			cancel()
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	})

	log.Info().Str("p1", fmt.Sprint(p1)).Str("p2", fmt.Sprint(p2)).Int("start", start).Msg("watch started")
	winner, err := g.StartMatch(ctx, p1, p2, start, false)
	if err != nil {
		if writeErr == nil && ctx.Err() == nil {
			_ = conn.WriteJSON(Frame{Done: true, Error: err.Error()})
		}
		log.Info().Err(err).Msg("watch ended early")
		return
	}
	metrics.Games.WithLabelValues("watch", outcome(winner)).Inc()

	final := frameOf(b, b.LastMove())
	final.Done = true
	final.Winner = winner.String()
	if err := conn.WriteJSON(final); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"))
}
