package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Corner is a board corner in world coordinates.
type Corner struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type EngineConfig struct {
	Path         string        `yaml:"path"`
	Depth        int           `yaml:"depth"`
	HashMB       int           `yaml:"hash_mb"`
	Threads      int           `yaml:"threads"`
	EvalFile     string        `yaml:"eval_file"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

type FENConfig struct {
	Polarity    string `yaml:"polarity"` // upper-red | upper-black
	DefaultSide string `yaml:"default_side"`
	MirrorFiles bool   `yaml:"mirror_files"`
	MirrorRanks bool   `yaml:"mirror_ranks"`
	FlipRanks   bool   `yaml:"flip_ranks"`
}

type AppConfig struct {
	Engine EngineConfig `yaml:"engine"`
	FEN    FENConfig    `yaml:"fen"`

	HTTPAddr string `yaml:"http_addr"`
	WSAddr   string `yaml:"ws_addr"`

	RedisURL    string        `yaml:"redis_url"`
	DatabaseURL string        `yaml:"database_url"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	ResumeGame  string        `yaml:"resume_game"`

	// MessagesDir holds *.yaml overrides for console and API messages.
	MessagesDir string `yaml:"messages_dir"`

	// BL, BR, TL, TR. Empty means the unit board.
	Corners []Corner `yaml:"corners"`
}

func defaults() *AppConfig {
	return &AppConfig{
		Engine: EngineConfig{
			Path:         "pikafish",
			Depth:        12,
			HashMB:       128,
			ReadyTimeout: 10 * time.Second,
		},
		FEN: FENConfig{
			Polarity:    "upper-red",
			DefaultSide: "red",
		},
		HTTPAddr:    ":8080",
		WSAddr:      ":8081",
		SnapshotTTL: 24 * time.Hour,
	}
}

// Load reads the optional XQ_CONFIG_FILE and then applies environment
// overrides on top of it.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("XQ_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("ENGINE_PATH")); v != "" {
		cfg.Engine.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_EVAL_FILE")); v != "" {
		cfg.Engine.EvalFile = v
	}
	if n, ok := envInt("ENGINE_DEPTH"); ok && n > 0 {
		cfg.Engine.Depth = n
	}
	if n, ok := envInt("ENGINE_HASH_MB"); ok && n > 0 {
		cfg.Engine.HashMB = n
	}
	if n, ok := envInt("ENGINE_THREADS"); ok && n >= 0 {
		cfg.Engine.Threads = n
	}
	if d, ok := envDuration("ENGINE_READY_TIMEOUT"); ok && d > 0 {
		cfg.Engine.ReadyTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("FEN_POLARITY")); v != "" {
		cfg.FEN.Polarity = v
	}
	if v := strings.TrimSpace(os.Getenv("FEN_DEFAULT_SIDE")); v != "" {
		cfg.FEN.DefaultSide = v
	}
	if b, ok := envBool("FEN_MIRROR_FILES"); ok {
		cfg.FEN.MirrorFiles = b
	}
	if b, ok := envBool("FEN_MIRROR_RANKS"); ok {
		cfg.FEN.MirrorRanks = b
	}
	if b, ok := envBool("NOTATION_FLIP_RANKS"); ok {
		cfg.FEN.FlipRanks = b
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SNAPSHOT_TTL")); v != "" { // seconds or duration like 1h
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SnapshotTTL = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SnapshotTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("RESUME_GAME")); v != "" {
		cfg.ResumeGame = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_CORNERS")); v != "" {
		if corners, err := ParseCorners(v); err == nil {
			cfg.Corners = corners
		}
	}
}

// Validate checks values that env parsing cannot reject on its own.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Engine.Path) == "" {
		return errors.New("engine path is required")
	}
	if c.Engine.Depth <= 0 {
		return fmt.Errorf("engine depth must be > 0: %d", c.Engine.Depth)
	}
	switch strings.ToLower(strings.TrimSpace(c.FEN.Polarity)) {
	case "upper-red", "upper-black":
	default:
		return fmt.Errorf("unknown fen polarity %q", c.FEN.Polarity)
	}
	switch strings.ToLower(strings.TrimSpace(c.FEN.DefaultSide)) {
	case "red", "black", "w", "r", "b":
	default:
		return fmt.Errorf("unknown default side %q", c.FEN.DefaultSide)
	}
	if n := len(c.Corners); n != 0 && n != 4 {
		return fmt.Errorf("board corners: want 4 points, got %d", n)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("HTTP_ADDR is required")
	}
	return nil
}

// ParseCorners parses "x,y,z;x,y,z;x,y,z;x,y,z".
func ParseCorners(s string) ([]Corner, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 4 {
		return nil, fmt.Errorf("board corners: want 4 points, got %d", len(parts))
	}
	out := make([]Corner, 0, 4)
	for _, p := range parts {
		xyz := strings.Split(strings.TrimSpace(p), ",")
		if len(xyz) != 3 {
			return nil, fmt.Errorf("board corner %q: want x,y,z", p)
		}
		var vals [3]float64
		for i, f := range xyz {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("board corner %q: %w", p, err)
			}
			vals[i] = v
		}
		out = append(out, Corner{X: vals[0], Y: vals[1], Z: vals[2]})
	}
	return out, nil
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envBool(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}
