package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/brensch/nrow/executor/mcts"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := New(Options{
		Width:       3,
		Height:      3,
		NInRow:      3,
		Search:      mcts.Config{Cpuct: 5, Playouts: 400},
		Pure:        mcts.PureConfig{Cpuct: 5, Playouts: 1000, RolloutLimit: 1000},
		MoveTimeout: 10 * time.Second,
	}, mcts.UniformEvaluator{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postMove(t *testing.T, ts *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/move", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestMove(t *testing.T) {
	ts := newTestServer(t)

	t.Run("guided takes the winning cell", func(t *testing.T) {
		resp, data := postMove(t, ts, `{"moves":[0,3,1,4]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

		var got MoveResponse
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, 2, got.Action)
		require.Equal(t, 0, got.Row)
		require.Equal(t, 2, got.Col)
		require.Equal(t, "P1", got.ToMove)
		require.Len(t, got.Probs, 9)
		require.Zero(t, got.Probs[0])
		require.NotNil(t, got.Stats)
		require.Equal(t, 400, got.Stats.Playouts)
	})

	t.Run("pure blocks", func(t *testing.T) {
		resp, data := postMove(t, ts, `{"moves":[0,4,1],"player":"pure"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

		var got MoveResponse
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, 2, got.Action)
		require.Equal(t, "P2", got.ToMove)
		require.Nil(t, got.Probs)
	})

	t.Run("first available", func(t *testing.T) {
		resp, data := postMove(t, ts, `{"moves":[0],"player":"first"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		var got MoveResponse
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, 1, got.Action)
	})

	errorCases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"moves":`, http.StatusBadRequest},
		{"unknown field", `{"moves":[],"colour":"red"}`, http.StatusBadRequest},
		{"occupied cell", `{"moves":[0,0]}`, http.StatusBadRequest},
		{"bad dimensions", `{"width":2,"height":2,"n_in_row":3,"moves":[]}`, http.StatusBadRequest},
		{"moves after a win", `{"moves":[0,3,1,4,2,5]}`, http.StatusBadRequest},
		{"finished game", `{"moves":[0,3,1,4,2]}`, http.StatusConflict},
		{"unknown player", `{"moves":[],"player":"oracle"}`, http.StatusBadRequest},
		{"oversized side", `{"width":20000,"height":20000,"n_in_row":3,"player":"first","moves":[]}`, http.StatusBadRequest},
		{"too many cells", `{"width":40,"height":40,"n_in_row":3,"player":"first","moves":[]}`, http.StatusBadRequest},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := postMove(t, ts, tc.body)
			require.Equal(t, tc.status, resp.StatusCode, string(data))
			var got errorResponse
			require.NoError(t, json.Unmarshal(data, &got))
			require.NotEmpty(t, got.Error)
		})
	}
}

func TestWatch(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch?p1=first&p2=first"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var frames []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Done {
			break
		}
	}

	// Seven plies end on the 2-4-6 diagonal, followed by the final frame.
	require.Len(t, frames, 8)
	for i, f := range frames[:7] {
		require.Equal(t, i+1, f.Ply)
		require.Equal(t, i, f.Move)
		require.Len(t, f.Cells, 9)
	}
	require.Equal(t, "P2", frames[1].Player)
	last := frames[7]
	require.Equal(t, "P1", last.Winner)
	require.Equal(t, 6, last.Move)
	require.Contains(t, last.Board, "X")
}

func TestWatchRejectsUnknownPlayer(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/watch?p1=oracle")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMoveLargestAllowedBoard(t *testing.T) {
	ts := newTestServer(t)
	resp, data := postMove(t, ts, `{"width":32,"height":32,"n_in_row":5,"player":"first","moves":[0]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func TestRequestsAreLoggedWithZerolog(t *testing.T) {
	var buf lockedBuffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = prev })

	ts := newTestServer(t)
	resp, _ := postMove(t, ts, `{"moves":[0,0]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Eventually(t, func() bool { return len(buf.Bytes()) > 0 }, 2*time.Second, 10*time.Millisecond)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), string(buf.Bytes()))
	require.Equal(t, "request", line["message"])
	require.Equal(t, "info", line["level"])
	require.Equal(t, "POST", line["method"])
	require.Equal(t, "/move", line["path"])
	require.EqualValues(t, http.StatusBadRequest, line["status"])
	require.NotEmpty(t, line["request_id"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "go_goroutines")
}
