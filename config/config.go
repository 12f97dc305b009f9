// Package config loads nrow settings from YAML. Defaults are applied first,
// then the file, then NROW_* environment overrides, then Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/brensch/nrow/executor/mcts"
)

// DefaultFile is looked up in the XDG config directories when no path is given.
const DefaultFile = "nrow/config.yaml"

type Config struct {
	Board    BoardConfig    `yaml:"board"`
	Search   SearchConfig   `yaml:"search"`
	SelfPlay SelfPlayConfig `yaml:"selfplay"`
	Model    ModelConfig    `yaml:"model"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type BoardConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	NInRow int `yaml:"n_in_row"`
}

type SearchConfig struct {
	Cpuct        float64 `yaml:"c_puct"`
	Playouts     int     `yaml:"playouts"`
	PurePlayouts int     `yaml:"pure_playouts"`
	RolloutLimit int     `yaml:"rollout_limit"`
	Temperature  float64 `yaml:"temperature"`
}

type SelfPlayConfig struct {
	Temperature    float64 `yaml:"temperature"`
	DirichletAlpha float64 `yaml:"dirichlet_alpha"`
	NoiseWeight    float64 `yaml:"noise_weight"`
	Workers        int     `yaml:"workers"`
	GamesPerFlush  int     `yaml:"games_per_flush"`
	MaxGames       int     `yaml:"max_games"`
	OutDir         string  `yaml:"out_dir"`
}

type ModelConfig struct {
	Path         string        `yaml:"path"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	Sessions     int           `yaml:"sessions"`
	CUDA         bool          `yaml:"cuda"`
}

type ServerConfig struct {
	Listen      string        `yaml:"listen"`
	MoveTimeout time.Duration `yaml:"move_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

func Default() Config {
	return Config{
		Board: BoardConfig{Width: 3, Height: 3, NInRow: 3},
		Search: SearchConfig{
			Cpuct:        5,
			Playouts:     400,
			PurePlayouts: 1000,
			RolloutLimit: 1000,
			Temperature:  mcts.PlayTemperature,
		},
		SelfPlay: SelfPlayConfig{
			Temperature:    1.0,
			DirichletAlpha: 0.3,
			NoiseWeight:    0.25,
			Workers:        4,
			GamesPerFlush:  50,
			OutDir:         "data/selfplay",
		},
		Model: ModelConfig{
			BatchSize:    32,
			BatchTimeout: time.Millisecond,
			Sessions:     1,
		},
		Server: ServerConfig{
			Listen:      ":8080",
			MoveTimeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads path, or the first DefaultFile found in the XDG config
// directories when path is empty. A missing default file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if found, err := xdg.SearchConfigFile(DefaultFile); err == nil {
			path = found
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("NROW_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("NROW_PLAYOUTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.Playouts = i
		}
	}
	if v := os.Getenv("NROW_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.SelfPlay.Workers = i
		}
	}
	if v := os.Getenv("NROW_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("NROW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c Config) Validate() error {
	var errs []error
	b := c.Board
	if b.Width <= 0 || b.Height <= 0 || b.NInRow <= 0 {
		errs = append(errs, fmt.Errorf("board dimensions and n_in_row must be positive"))
	}
	if b.NInRow > b.Width || b.NInRow > b.Height {
		errs = append(errs, fmt.Errorf("n_in_row %d does not fit a %dx%d board", b.NInRow, b.Width, b.Height))
	}
	if c.Search.Cpuct <= 0 {
		errs = append(errs, fmt.Errorf("c_puct must be > 0"))
	}
	if c.Search.Playouts < 1 || c.Search.PurePlayouts < 1 {
		errs = append(errs, fmt.Errorf("playouts must be >= 1"))
	}
	if c.Search.RolloutLimit < 1 {
		errs = append(errs, fmt.Errorf("rollout_limit must be >= 1"))
	}
	if c.Search.Temperature <= 0 || c.SelfPlay.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("temperature must be > 0"))
	}
	if c.SelfPlay.DirichletAlpha <= 0 {
		errs = append(errs, fmt.Errorf("dirichlet_alpha must be > 0"))
	}
	if c.SelfPlay.NoiseWeight < 0 || c.SelfPlay.NoiseWeight > 1 {
		errs = append(errs, fmt.Errorf("noise_weight must be between 0 and 1"))
	}
	if c.SelfPlay.Workers < 1 || c.SelfPlay.GamesPerFlush < 1 {
		errs = append(errs, fmt.Errorf("workers and games_per_flush must be >= 1"))
	}
	if c.Model.Path != "" && (c.Model.BatchSize < 1 || c.Model.Sessions < 1) {
		errs = append(errs, fmt.Errorf("model batch_size and sessions must be >= 1"))
	}
	return errors.Join(errs...)
}

// MCTS returns the guided search settings.
func (c Config) MCTS() mcts.Config {
	return mcts.Config{Cpuct: c.Search.Cpuct, Playouts: c.Search.Playouts}
}

// Pure returns the rollout baseline settings.
func (c Config) Pure() mcts.PureConfig {
	return mcts.PureConfig{Cpuct: c.Search.Cpuct, Playouts: c.Search.PurePlayouts, RolloutLimit: c.Search.RolloutLimit}
}
