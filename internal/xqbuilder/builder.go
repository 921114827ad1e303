// Package xqbuilder wires the board service from an AppConfig.
package xqbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/xiangqi-board/internal/archive"
	"github.com/park285/xiangqi-board/internal/config"
	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/engine/uci"
	"github.com/park285/xiangqi-board/internal/geometry"
	"github.com/park285/xiangqi-board/internal/hub"
	"github.com/park285/xiangqi-board/internal/msgcat"
	"github.com/park285/xiangqi-board/internal/render"
	"github.com/park285/xiangqi-board/internal/server"
	"github.com/park285/xiangqi-board/internal/store"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"go.uber.org/zap"
)

const openTimeout = 5 * time.Second

type Deps struct {
	Controller *controller.Controller
	Session    *engine.Session
	Oracle     engine.Oracle
	Hub        *hub.Hub
	Server     *server.Server
	Store      store.SnapshotStore
	Archive    archive.Archive
	Messages   *msgcat.Catalog
}

// Codec builds the FEN codec described by cfg.
func Codec(cfg config.FENConfig) (xiangqi.Codec, error) {
	pol, err := xiangqi.ParsePolarity(cfg.Polarity)
	if err != nil {
		return xiangqi.Codec{}, err
	}
	side := xiangqi.Red
	if v := strings.TrimSpace(cfg.DefaultSide); v != "" {
		s, ok := xiangqi.ParseSide(strings.ToLower(v))
		if !ok {
			return xiangqi.Codec{}, fmt.Errorf("unknown default side %q", cfg.DefaultSide)
		}
		side = s
	}
	return xiangqi.Codec{
		Polarity:    pol,
		MirrorFiles: cfg.MirrorFiles,
		MirrorRanks: cfg.MirrorRanks,
		DefaultSide: side,
	}, nil
}

// Frame builds the world frame from configured corners. No corners means the
// controller default.
func Frame(corners []config.Corner) (*geometry.Frame, error) {
	if len(corners) == 0 {
		return nil, nil
	}
	if len(corners) != 4 {
		return nil, fmt.Errorf("board corners: want 4 points, got %d", len(corners))
	}
	var pts [4]geometry.Point3
	for i, c := range corners {
		pts[i] = geometry.Point3{X: c.X, Y: c.Y, Z: c.Z}
	}
	f, err := geometry.FrameFromCorners(pts)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// NewOracle starts nothing; the session runs Init when it starts.
func NewOracle(cfg config.EngineConfig, logger *zap.Logger) (engine.Oracle, error) {
	opt := uci.DefaultOptions()
	if cfg.HashMB > 0 {
		opt.HashMB = cfg.HashMB
	}
	opt.Threads = cfg.Threads
	opt.EvalFile = strings.TrimSpace(cfg.EvalFile)
	opt.HandshakeTimeout = cfg.ReadyTimeout
	p, err := uci.NewProcess(cfg.Path, opt, logger.Named("uci"))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return p, nil
}

// New wires everything on top of the engine binary named in cfg. Extra
// renderers receive controller events next to the websocket hub.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, extra ...controller.Renderer) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	oracle, err := NewOracle(cfg.Engine, logger)
	if err != nil {
		return nil, err
	}
	return NewWithOracle(ctx, cfg, oracle, logger, extra...)
}

// NewWithOracle is New with an already built oracle. ctx bounds the
// lifetime of the engine session and the hints it produces.
func NewWithOracle(ctx context.Context, cfg *config.AppConfig, oracle engine.Oracle, logger *zap.Logger, extra ...controller.Renderer) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := Codec(cfg.FEN)
	if err != nil {
		return nil, err
	}
	notation := xiangqi.Notation{FlipRanks: cfg.FEN.FlipRanks}
	frame, err := Frame(cfg.Corners)
	if err != nil {
		return nil, err
	}
	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d := &Deps{Oracle: oracle, Messages: msgs}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	// Snapshot store (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		octx, cancel := context.WithTimeout(ctx, openTimeout)
		rs, err := store.OpenRedis(octx, cfg.RedisURL, cfg.SnapshotTTL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		d.Store = rs
	} else {
		logger.Info("snapshot_store_memory")
		d.Store = store.NewMemoryStore()
	}

	octx, cancel := context.WithTimeout(ctx, openTimeout)
	d.Archive, err = archive.Open(octx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}

	d.Session = engine.NewSession(oracle, engine.Config{
		Depth:        cfg.Engine.Depth,
		ReadyTimeout: cfg.Engine.ReadyTimeout,
		Notation:     notation,
		Codec:        codec,
		OnInfo: func(info engine.Info) {
			logger.Debug("engine_info", zap.Int("depth", info.Depth), zap.Strings("pv", info.PV))
		},
	}, nil, logger.Named("session"))

	d.Hub = hub.New(logger.Named("hub"))
	d.Controller, err = controller.New(controller.Deps{
		Codec:    codec,
		Notation: notation,
		Hints:    d.Session,
		Renderer: append(controller.Fanout{d.Hub}, extra...),
		Store:    d.Store,
		Archive:  d.Archive,
		Frame:    frame,
		Logger:   logger.Named("controller"),
		Context:  ctx,
	})
	if err != nil {
		return nil, err
	}
	d.Session.SetSink(d.Controller)
	d.Hub.SetSnapshotFunc(d.Controller.Snapshot)
	d.Server = server.New(d.Controller, render.NewPNGRenderer(0), msgs, logger.Named("http"))

	d.Session.Start(ctx)

	if id := strings.TrimSpace(cfg.ResumeGame); id != "" {
		if _, err := d.Controller.Resume(ctx, id); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			logger.Info("resume_skipped", zap.String("game", id), zap.Error(err))
		}
	}

	ok = true
	return d, nil
}

// Close releases everything New opened, in reverse order.
func (d *Deps) Close() error {
	var errs []error
	if d.Hub != nil {
		d.Hub.Close()
	}
	if d.Session != nil {
		errs = append(errs, d.Session.Close())
	} else if d.Oracle != nil {
		errs = append(errs, d.Oracle.Close())
	}
	if d.Archive != nil {
		errs = append(errs, d.Archive.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
