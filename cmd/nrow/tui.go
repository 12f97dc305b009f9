package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/nrow/executor/inference"
	"github.com/brensch/nrow/executor/selfplay"
	"github.com/brensch/nrow/game"
)

const recentGamesShown = 10

type statsProvider interface {
	Stats() inference.RuntimeStats
}

type dashboard struct {
	gamesPlayed int
	plies       int
	evaluations int64
	wins        map[game.Stone]int
	startTime   time.Time
	recentGames []string

	updates  chan selfplay.GameResult
	counter  *countingEvaluator
	runtime  statsProvider
	lastStat inference.RuntimeStats
}

func newDashboard(updates chan selfplay.GameResult, counter *countingEvaluator, runtime statsProvider) dashboard {
	return dashboard{
		wins:      map[game.Stone]int{},
		startTime: time.Now(),
		updates:   updates,
		counter:   counter,
		runtime:   runtime,
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates chan selfplay.GameResult) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.evaluations = m.counter.calls.Load()
		if m.runtime != nil {
			m.lastStat = m.runtime.Stats()
		}
		return m, tickCmd()
	case selfplay.GameResult:
		m.gamesPlayed++
		m.plies += msg.Steps
		m.wins[msg.Winner]++
		line := fmt.Sprintf("Worker %d: winner %v, %d plies, %s", msg.WorkerID, msg.Winner, msg.Steps, msg.Duration.Round(time.Millisecond))
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > recentGamesShown {
			m.recentGames = m.recentGames[:recentGamesShown]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m dashboard) View() string {
	duration := time.Since(m.startTime)
	rate := func(n float64) float64 {
		if duration < time.Second {
			return 0
		}
		return n / duration.Seconds()
	}

	var s strings.Builder
	fmt.Fprintf(&s, "Games Played:   %d (P1 %d, P2 %d, draw %d)\n", m.gamesPlayed, m.wins[game.P1], m.wins[game.P2], m.wins[game.Draw])
	fmt.Fprintf(&s, "Total Moves:    %d\n", m.plies)
	fmt.Fprintf(&s, "Evaluations:    %d\n", m.evaluations)
	fmt.Fprintf(&s, "Duration:       %s\n", duration.Round(time.Second))
	fmt.Fprintf(&s, "Games/Sec:      %.2f\n", rate(float64(m.gamesPlayed)))
	fmt.Fprintf(&s, "Moves/Sec:      %.2f\n", rate(float64(m.plies)))
	fmt.Fprintf(&s, "Evals/Sec:      %.2f\n", rate(float64(m.evaluations)))
	if m.runtime != nil {
		fmt.Fprintf(&s, "Batch:          avg %.1f, last %d, queue %d, run %.2fms\n",
			m.lastStat.AvgBatchSize, m.lastStat.LastBatchSize, m.lastStat.QueueLen, m.lastStat.AvgRunMs)
	}
	s.WriteString("\nRecent Games:\n")
	for _, g := range m.recentGames {
		s.WriteString(g + "\n")
	}
	s.WriteString("\nPress q to quit.\n")
	return s.String()
}
