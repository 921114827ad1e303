package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XQ_CONFIG_FILE", "ENGINE_PATH", "ENGINE_DEPTH", "ENGINE_HASH_MB", "ENGINE_THREADS",
		"ENGINE_EVAL_FILE", "ENGINE_READY_TIMEOUT", "FEN_POLARITY", "FEN_DEFAULT_SIDE",
		"FEN_MIRROR_FILES", "FEN_MIRROR_RANKS", "NOTATION_FLIP_RANKS", "HTTP_ADDR", "WS_ADDR",
		"REDIS_URL", "DATABASE_URL", "SNAPSHOT_TTL", "RESUME_GAME", "BOARD_CORNERS", "MESSAGES_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Depth != 12 || cfg.Engine.HashMB != 128 || cfg.Engine.ReadyTimeout != 10*time.Second {
		t.Fatalf("engine defaults: %+v", cfg.Engine)
	}
	if cfg.FEN.Polarity != "upper-red" || cfg.FEN.MirrorFiles || cfg.FEN.MirrorRanks || cfg.FEN.FlipRanks {
		t.Fatalf("fen defaults: %+v", cfg.FEN)
	}
	if cfg.SnapshotTTL != 24*time.Hour {
		t.Fatalf("snapshot ttl: %v", cfg.SnapshotTTL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "xq.yaml")
	raw := `
engine:
  path: /opt/pikafish
  depth: 8
  ready_timeout: 3s
fen:
  polarity: upper-black
  mirror_ranks: true
http_addr: ":9000"
corners:
  - {x: 0, y: 0, z: 0}
  - {x: 8, y: 0, z: 0}
  - {x: 0, y: 0, z: 9}
  - {x: 8, y: 0, z: 9}
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("XQ_CONFIG_FILE", path)
	t.Setenv("ENGINE_DEPTH", "5")
	t.Setenv("SNAPSHOT_TTL", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Path != "/opt/pikafish" || cfg.Engine.Depth != 5 || cfg.Engine.ReadyTimeout != 3*time.Second {
		t.Fatalf("engine: %+v", cfg.Engine)
	}
	if cfg.FEN.Polarity != "upper-black" || !cfg.FEN.MirrorRanks {
		t.Fatalf("fen: %+v", cfg.FEN)
	}
	if cfg.HTTPAddr != ":9000" || len(cfg.Corners) != 4 || cfg.Corners[3].Z != 9 {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.SnapshotTTL != 90*time.Second {
		t.Fatalf("snapshot ttl: %v", cfg.SnapshotTTL)
	}
}

func TestLoadRejectsBadPolarity(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEN_POLARITY", "sideways")
	if _, err := Load(); err == nil {
		t.Fatalf("expected polarity error")
	}
}

func TestParseCorners(t *testing.T) {
	got, err := ParseCorners("0,0,0; 1,0,0; 0,0,1; 1,0,1")
	if err != nil {
		t.Fatalf("ParseCorners: %v", err)
	}
	if len(got) != 4 || got[1].X != 1 || got[2].Z != 1 {
		t.Fatalf("corners: %+v", got)
	}
	if _, err := ParseCorners("0,0,0;1,0,0"); err == nil {
		t.Fatalf("expected count error")
	}
	if _, err := ParseCorners("0,0;1,0,0;0,0,1;1,0,1"); err == nil {
		t.Fatalf("expected component error")
	}
}
