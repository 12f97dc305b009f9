package inference

import (
	"fmt"
	"sync/atomic"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
)

// OnnxPool fans Evaluate calls out across several OnnxClient instances, each
// with its own batching loop and session.
type OnnxPool struct {
	clients []*OnnxClient
	rr      atomic.Uint64
}

var _ mcts.Evaluator = (*OnnxPool)(nil)

func NewOnnxClientPool(modelPath string, sessions int, cfg OnnxClientConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*OnnxClient, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnxClientWithConfig(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}

	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *OnnxPool) Evaluate(b *game.Board) ([]mcts.ActionPrior, float64, error) {
	if len(p.clients) == 0 {
		return nil, 0, fmt.Errorf("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Evaluate(b)
}

// Stats sums the runtime statistics of every session.
func (p *OnnxPool) Stats() RuntimeStats {
	var st RuntimeStats
	for _, c := range p.clients {
		cs := c.Stats()
		st.TotalBatches += cs.TotalBatches
		st.TotalItems += cs.TotalItems
		st.TotalRunNanos += cs.TotalRunNanos
		st.QueueLen += cs.QueueLen
		st.LastBatchSize = max(st.LastBatchSize, cs.LastBatchSize)
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}
