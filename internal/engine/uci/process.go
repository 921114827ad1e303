package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/xiangqi-board/internal/engine"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	messageBuffer        = 256
	maxThreads           = 32
)

type Options struct {
	Variant  string
	HashMB   int
	Threads  int
	EvalFile string
	ShowWDL  bool
	// HandshakeTimeout bounds how long Init blocks. Zero means 4s.
	HandshakeTimeout time.Duration
	// Extra options are applied after the fixed ones, in key order.
	Extra map[string]string
}

func DefaultOptions() Options {
	return Options{
		Variant: "xiangqi",
		HashMB:  128,
		ShowWDL: true,
	}
}

// ErrHandshakePending is returned by Init when the engine has not finished
// its handshake in time. The handshake keeps running and NativeReady turns
// true once readyok arrives.
var ErrHandshakePending = errors.New("engine handshake still pending")

func validateOptions(opt Options) error {
	if opt.HashMB < 0 {
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	if opt.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must be >= 0: %v", opt.HandshakeTimeout)
	}
	return nil
}

// Process runs a UCI engine binary and implements engine.Oracle over its
// stdin/stdout.
type Process struct {
	binaryPath string
	opt        Options
	logger     *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	msgs   chan engine.Message
	tokens chan string

	native  atomic.Bool
	started atomic.Bool
	done    chan struct{}
}

func NewProcess(binaryPath string, opt Options, logger *zap.Logger) (*Process, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{
		binaryPath: strings.TrimSpace(binaryPath),
		opt:        opt,
		logger:     logger,
		msgs:       make(chan engine.Message, messageBuffer),
		tokens:     make(chan string, 8),
		done:       make(chan struct{}),
	}, nil
}

// Init starts the binary and performs the uci/isready handshake. A missing
// binary is reported as engine.ErrOracleUnavailable. A slow handshake returns
// ErrHandshakePending and completes in the background.
func (p *Process) Init(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	if p.binaryPath == "" {
		return fmt.Errorf("no engine path configured: %w", engine.ErrOracleUnavailable)
	}
	path, err := exec.LookPath(p.binaryPath)
	if err != nil {
		return fmt.Errorf("locate engine %s: %w: %w", p.binaryPath, engine.ErrOracleUnavailable, err)
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("start engine: %w: %w", engine.ErrOracleUnavailable, err)
		}
		return fmt.Errorf("start engine: %w", err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.mu.Unlock()

	go p.readLoop(stdoutPipe)

	hs := make(chan error, 1)
	go func() {
		err := p.handshake(ctx)
		if err == nil {
			p.native.Store(true)
			p.logger.Info("engine_ready", zap.String("path", path), zap.Bool("eval_ready", p.EvalReady()))
		} else {
			p.logger.Debug("engine_handshake_failed", zap.Error(err))
		}
		hs <- err
	}()

	timer := time.NewTimer(p.handshakeTimeout())
	defer timer.Stop()
	select {
	case err := <-hs:
		return err
	case <-timer.C:
		p.logger.Warn("engine_handshake_slow", zap.String("path", path), zap.Duration("waited", p.handshakeTimeout()))
		return ErrHandshakePending
	}
}

func (p *Process) handshakeTimeout() time.Duration {
	if p.opt.HandshakeTimeout > 0 {
		return p.opt.HandshakeTimeout
	}
	return defaultReadyTimeout
}

// handshake has no deadline of its own; it ends with ctx or when the
// process exits.
func (p *Process) handshake(ctx context.Context) error {
	if err := p.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := p.awaitToken(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	for _, cmd := range optionCommands(p.opt) {
		if err := p.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := p.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := p.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func optionCommands(opt Options) []string {
	threads := opt.Threads
	if threads <= 0 {
		threads = min(max(runtime.NumCPU(), 1), maxThreads)
	}
	var cmds []string
	if v := strings.TrimSpace(opt.Variant); v != "" {
		cmds = append(cmds, setOptionCommand("UCI_Variant", v))
	}
	cmds = append(cmds, setOptionCommand("Threads", strconv.Itoa(threads)))
	if opt.HashMB > 0 {
		cmds = append(cmds, setOptionCommand("Hash", strconv.Itoa(opt.HashMB)))
	}
	if f := strings.TrimSpace(opt.EvalFile); f != "" {
		cmds = append(cmds, setOptionCommand("EvalFile", f))
	}
	cmds = append(cmds, setOptionCommand("UCI_ShowWDL", strconv.FormatBool(opt.ShowWDL)))

	keys := make([]string, 0, len(opt.Extra))
	for k := range opt.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmds = append(cmds, setOptionCommand(k, opt.Extra[k]))
	}
	return cmds
}

// setOptionCommand omits the value clause for button options like
// "Clear Hash".
func setOptionCommand(name, value string) string {
	if strings.TrimSpace(value) == "" {
		return "setoption name " + name
	}
	return "setoption name " + name + " value " + value
}

func buildPositionCommand(position string, moves []string) string {
	var sb strings.Builder
	position = strings.TrimSpace(position)
	if position == "" || position == engine.StartPos {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(position)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

func (p *Process) SetOption(name, value string) error {
	return p.send(setOptionCommand(name, value))
}

func (p *Process) SetPosition(position string, moves []string) error {
	if err := p.send(buildPositionCommand(position, moves)); err != nil {
		return fmt.Errorf("send position: %w", err)
	}
	return nil
}

func (p *Process) GoDepth(depth int) error {
	if depth <= 0 {
		return fmt.Errorf("depth must be > 0: %d", depth)
	}
	if err := p.send("go depth " + strconv.Itoa(depth)); err != nil {
		return fmt.Errorf("send go: %w", err)
	}
	return nil
}

func (p *Process) Stop() error { return p.send("stop") }

func (p *Process) Messages() <-chan engine.Message { return p.msgs }

func (p *Process) NativeReady() bool { return p.native.Load() }

// EvalReady reports whether the configured weights file exists and is not
// empty. Without a configured file the engine's built-in network is used.
func (p *Process) EvalReady() bool {
	f := strings.TrimSpace(p.opt.EvalFile)
	if f == "" {
		return true
	}
	st, err := os.Stat(f)
	return err == nil && !st.IsDir() && st.Size() > 0
}

func (p *Process) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, p.handshakeTimeout())
	defer cancel()

	if err := p.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := p.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (p *Process) NewGame(ctx context.Context) error {
	if !p.native.Load() {
		return nil
	}
	if err := p.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	if err := p.send(setOptionCommand("Clear Hash", "")); err != nil {
		p.logger.Warn("engine_clear_hash_failed", zap.Error(err))
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := p.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		p.logger.Warn("engine_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.native.Store(false)
	if p.stdin != nil {
		_, _ = io.WriteString(p.stdin, "quit\n")
		p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.done:
	case <-time.After(500 * time.Millisecond):
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	p.cmd = nil
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (p *Process) send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("engine not running")
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *Process) awaitToken(ctx context.Context, token string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return io.ErrUnexpectedEOF
		case got := <-p.tokens:
			if got == token {
				return nil
			}
		}
	}
}

// readLoop is the only reader of stdout. Handshake tokens go to awaitToken,
// search output goes to Messages. Info lines are dropped when the consumer
// falls behind; bestmove lines never are.
func (p *Process) readLoop(r io.Reader) {
	defer close(p.done)
	defer close(p.msgs)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		kind, ok := classifyLine(line)
		if !ok {
			continue
		}
		switch kind {
		case lineToken:
			select {
			case p.tokens <- line:
			default:
			}
		case lineInfo:
			select {
			case p.msgs <- engine.Message{Kind: engine.MessageInfo, Text: line}:
			default:
			}
		case lineBestMove:
			p.msgs <- engine.Message{Kind: engine.MessageBestMove, Text: line}
		}
	}
	if err := sc.Err(); err != nil {
		p.logger.Warn("engine_read_failed", zap.Error(err))
	}
	p.native.Store(false)
}

type lineKind int

const (
	lineToken lineKind = iota
	lineInfo
	lineBestMove
)

func classifyLine(line string) (lineKind, bool) {
	switch {
	case line == "uciok" || line == "readyok":
		return lineToken, true
	case strings.HasPrefix(line, "info "):
		return lineInfo, true
	case strings.HasPrefix(line, "bestmove"):
		return lineBestMove, true
	}
	return 0, false
}
