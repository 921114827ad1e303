// enginecheck probes the configured engine binary with one search and,
// when XQ_BASE_URL is set, a running board service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	appcfg "github.com/park285/xiangqi-board/internal/config"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/internal/xqbuilder"
	"github.com/park285/xiangqi-board/internal/xqclient"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"go.uber.org/zap"
)

func main() {
	fen := flag.String("fen", "", "position to search (default: opening)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall search timeout")
	verbose := flag.Bool("v", false, "print info lines")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	checkEngine(cfg, strings.TrimSpace(*fen), *timeout, *verbose, logger)

	if base := strings.TrimSpace(os.Getenv("XQ_BASE_URL")); base != "" {
		checkService(base, strings.TrimSpace(os.Getenv("XQ_WS_URL")))
	}
}

func checkEngine(cfg *appcfg.AppConfig, fen string, timeout time.Duration, verbose bool, logger *zap.Logger) {
	codec, err := xqbuilder.Codec(cfg.FEN)
	if err != nil {
		log.Fatalf("fen config: %v", err)
	}
	notation := xiangqi.Notation{FlipRanks: cfg.FEN.FlipRanks}

	req := engine.Request{Position: engine.StartPos}
	if fen != "" {
		b, err := codec.Decode(fen)
		if err != nil {
			log.Fatalf("bad fen: %v", err)
		}
		req.Position = codec.Encode(b)
	}

	oracle, err := xqbuilder.NewOracle(cfg.Engine, logger)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	got := make(chan xiangqi.Move, 1)
	sess := engine.NewSession(oracle, engine.Config{
		Depth:        cfg.Engine.Depth,
		ReadyTimeout: cfg.Engine.ReadyTimeout,
		Notation:     notation,
		Codec:        codec,
		OnInfo: func(info engine.Info) {
			if verbose {
				fmt.Printf("info depth=%d score=%d pv=%s\n", info.Depth, info.ScoreCP, strings.Join(info.PV, " "))
			}
		},
	}, engine.SinkFunc(func(from, to xiangqi.Square) {
		select {
		case got <- xiangqi.Move{From: from, To: to}:
		default:
		}
	}), logger)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sess.Start(ctx)

	start := time.Now()
	if _, err := sess.RequestBestMove(ctx, req); err != nil {
		log.Fatalf("request: %v", err)
	}
	select {
	case mv := <-got:
		log.Printf("engine ok: bestmove %s (depth %d, %s)", notation.Format(mv), cfg.Engine.Depth, time.Since(start).Round(time.Millisecond))
	case <-ctx.Done():
		if err := sess.Err(); err != nil {
			log.Fatalf("engine unavailable: %v", err)
		}
		log.Fatalf("no bestmove within %s (state %s)", timeout, sess.State())
	}
}

func checkService(baseURL, wsURL string) {
	client := xqclient.NewClient(baseURL, xqclient.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := client.State(ctx)
	if err != nil {
		log.Printf("/api/state error: %v", err)
	} else {
		log.Printf("/api/state ok: game=%s side=%s moves=%d fen=%s", st.GameID, st.SideToMove, len(st.History), st.FEN)
	}

	if wsURL == "" {
		log.Println("XQ_WS_URL not set; skipping WS check")
		return
	}
	ev := xqclient.NewEvents(wsURL, 0)
	ev.OnStateChange(func(s xqclient.State) { log.Printf("WS state: %s", s) })
	ev.OnEvent(func(e *xqdto.Event) { fmt.Printf("WS event type=%s\n", e.Type) })

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ev.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	// 잠깐 이벤트를 관찰
	time.Sleep(3 * time.Second)
	_ = ev.Close(context.Background())
}
