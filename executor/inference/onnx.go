// Package inference adapts an exported policy-value network to the search's
// Evaluator interface using ONNX Runtime.
//
// The model takes "input" shaped [N, 4, H, W] and produces "policy" logits
// shaped [N, H*W] and "value" shaped [N, 1].
package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultBatchSize    = 32
	DefaultBatchTimeout = 1 * time.Millisecond
)

type OnnxClientConfig struct {
	Width        int
	Height       int
	BatchSize    int
	BatchTimeout time.Duration
	UseCUDA      bool
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats summarises batching behaviour since the client started.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient evaluates positions with ONNX Runtime, batching concurrent
// requests into one session run.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	done         chan struct{}
	stopped      chan struct{}
	closeOnce    sync.Once
	cfg          OnnxClientConfig
	enc          *encoder

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

var _ mcts.Evaluator = (*OnnxClient)(nil)

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string, width, height int) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{
		Width:        width,
		Height:       height,
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultBatchTimeout,
	})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: model board %dx%d", game.ErrConfiguration, cfg.Width, cfg.Height)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if err := initRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Search workers already run in parallel.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			log.Warn().Err(err).Msg("failed to create CUDA options, using CPU")
		} else {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				log.Warn().Err(err).Msg("failed to append CUDA provider, using CPU")
			} else {
				log.Info().Msg("CUDA provider enabled")
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		enc:          newEncoder(cfg.Width, cfg.Height),
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	go client.batchLoop()

	return client, nil
}

// initRuntime locates the shared library and initialises the process-wide
// ORT environment once.
func initRuntime() error {
	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.stopped
		err = c.session.Destroy()
	})
	return err
}

// Evaluate implements mcts.Evaluator.
func (c *OnnxClient) Evaluate(b *game.Board) ([]mcts.ActionPrior, float64, error) {
	buf, err := c.enc.encode(b)
	if err != nil {
		return nil, 0, err
	}
	policy, value, err := c.predict(*buf)
	c.enc.put(buf)
	if err != nil {
		return nil, 0, err
	}
	return legalPriors(b, policy), clampValue(value), nil
}

// predict queues one encoded position and waits for its batch. The input is
// copied into the batch before predict returns.
func (c *OnnxClient) predict(input []float32) ([]float32, float32, error) {
	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input, respChan: respChan}:
	case <-c.done:
		return nil, 0, fmt.Errorf("onnx client closed")
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.done:
		return nil, 0, fmt.Errorf("onnx client closed")
	}
}

func (c *OnnxClient) batchLoop() {
	defer close(c.stopped)
	inputSize := c.enc.size
	batchInput := make([]float32, 0, c.cfg.BatchSize*inputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case <-c.done:
			c.failBatch(requests, fmt.Errorf("onnx client closed"))
			return
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			if len(requests) > 0 {
				flush()
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	start := time.Now()
	n := int64(len(requests))
	h, w := int64(c.cfg.Height), int64(c.cfg.Width)
	policySize := int(h * w)

	inputTensor, err := ort.NewTensor(ort.NewShape(n, game.FeaturePlaneCount, h, w), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, h*w))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()
	for i, req := range requests {
		policy := make([]float32, policySize)
		copy(policy, policyData[i*policySize:(i+1)*policySize])
		req.respChan <- inferenceResponse{policy: policy, value: valueData[i]}
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.last.Store(n)
	metrics.EvaluatorBatch.Observe(float64(n))
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	if len(requests) == 0 {
		return
	}
	metrics.EvaluatorErrors.Inc()
	log.Error().Err(err).Int("batch", len(requests)).Msg("inference batch failed")
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.last.Load(),
		QueueLen:      len(c.requestsChan),
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}
