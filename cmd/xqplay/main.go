// xqplay is a console for the board. Without -remote it runs the controller
// and engine in-process; with -remote it drives a running service.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	appcfg "github.com/park285/xiangqi-board/internal/config"
	"github.com/park285/xiangqi-board/internal/msgcat"
	"github.com/park285/xiangqi-board/internal/obslog"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/internal/xqbuilder"
	"github.com/park285/xiangqi-board/internal/xqclient"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"golang.org/x/term"
)

func main() {
	remote := flag.String("remote", "", "base URL of a running service, e.g. http://localhost:8080")
	wsURL := flag.String("ws", "", "event stream URL for -remote, e.g. ws://localhost:8081/ws")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	notation := xiangqi.Notation{FlipRanks: cfg.FEN.FlipRanks}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	var (
		rl  *readline.Instance
		out io.Writer = os.Stdout
	)
	if interactive {
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          msgs.Text("console.prompt", nil),
			HistoryFile:     ".xqplay_history",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("move"), readline.PcItem("sel"), readline.PcItem("desel"),
				readline.PcItem("hint"), readline.PcItem("fen"), readline.PcItem("new"),
				readline.PcItem("board"), readline.PcItem("games"), readline.PcItem("help"),
				readline.PcItem("quit"),
			),
		})
		if err != nil {
			log.Fatalf("readline: %v", err)
		}
		defer rl.Close()
		out = rl.Stdout()
	}

	sh := &shell{msgs: msgs, notation: notation, out: out}
	if base := strings.TrimSpace(*remote); base != "" {
		sh.be = xqclient.NewClient(base)
		if u := strings.TrimSpace(*wsURL); u != "" {
			ev := xqclient.NewEvents(u, 5)
			ev.OnEvent(func(e *xqdto.Event) {
				if e.Type == xqdto.EventBestMove && e.From != nil && e.To != nil {
					mv := xiangqi.Move{From: xiangqi.Sq(e.From.File, e.From.Rank), To: xiangqi.Sq(e.To.File, e.To.Rank)}
					fmt.Fprintln(out, msgs.Text("console.hint", map[string]any{"Notation": notation.Format(mv)}))
				}
			})
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := ev.Connect(cctx); err != nil {
				fmt.Fprintf(out, "ws connect error: %v\n", err)
			}
			cancel()
			defer func() { _ = ev.Close(context.Background()) }()
		}
	} else {
		// 로컬 모드: 로그는 파일로만
		opt := obslog.OptionsFromEnv()
		opt.Console = false
		opt.ToFile = true
		logger, err := obslog.Init(opt)
		if err != nil {
			log.Fatalf("logger init error: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		deps, err := xqbuilder.New(ctx, cfg, logger, consoleRenderer{msgs: msgs, notation: notation, out: out})
		if err != nil {
			log.Fatalf("init error: %v", err)
		}
		defer deps.Close()
		sh.be = localBackend{ctrl: deps.Controller}
	}

	if !interactive {
		runScript(sh, os.Stdin)
		return
	}
	fmt.Fprintln(out, msgs.Text("console.help", nil))
	sh.exec("board")
	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			continue
		}
		if sh.exec(strings.TrimSpace(line)) {
			return
		}
	}
}

// runScript executes commands piped on stdin, one per line. Lines starting
// with '#' are comments.
func runScript(sh *shell, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if sh.exec(line) {
			return
		}
	}
}
