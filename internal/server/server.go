// Package server exposes the board controller over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/geometry"
	"github.com/park285/xiangqi-board/internal/msgcat"
	"github.com/park285/xiangqi-board/internal/render"
	"github.com/park285/xiangqi-board/internal/store"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	maxBodySize  = 16 << 10
	defaultGames = 20
	maxGames     = 200
)

// Server routes requests to the controller. It holds no game state itself.
type Server struct {
	ctrl     *controller.Controller
	images   render.BoardRenderer
	msgs     *msgcat.Catalog
	validate *validator.Validate
	logger   *zap.Logger
	srv      *fasthttp.Server
}

func New(ctrl *controller.Controller, images render.BoardRenderer, msgs *msgcat.Catalog, logger *zap.Logger) *Server {
	if images == nil {
		images = render.NewPNGRenderer(0)
	}
	if msgs == nil {
		msgs = msgcat.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:     ctrl,
		images:   images,
		msgs:     msgs,
		validate: validator.New(),
		logger:   logger,
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "xiangqi-board",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: maxBodySize,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }
func (s *Server) Serve(ln net.Listener) error      { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handler is the routing table.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		s.route(ctx)
		s.logger.Debug("http_request",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	switch path := string(ctx.Path()); {
	case path == "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case path == "/api/state" && method == fasthttp.MethodGet:
		s.writeJSON(ctx, fasthttp.StatusOK, s.ctrl.Snapshot())
	case path == "/api/select" && method == fasthttp.MethodPost:
		s.handleSelect(ctx)
	case path == "/api/select" && method == fasthttp.MethodDelete:
		s.ctrl.Deselect()
		s.writeJSON(ctx, fasthttp.StatusOK, s.ctrl.Snapshot())
	case path == "/api/legal" && method == fasthttp.MethodGet:
		s.handleLegal(ctx)
	case path == "/api/move" && method == fasthttp.MethodPost:
		s.handleMove(ctx)
	case path == "/api/click" && method == fasthttp.MethodPost:
		s.handleClick(ctx)
	case path == "/api/hint" && method == fasthttp.MethodPost:
		s.handleHint(ctx)
	case path == "/api/newgame" && method == fasthttp.MethodPost:
		st, err := s.ctrl.NewGame(ctx)
		s.respond(ctx, st, err)
	case path == "/api/fen" && method == fasthttp.MethodPost:
		s.handleFEN(ctx)
	case path == "/api/games" && method == fasthttp.MethodGet:
		s.handleGames(ctx)
	case path == "/api/board.png" && method == fasthttp.MethodGet:
		s.handleBoardPNG(ctx)
	case strings.HasPrefix(path, "/api/"):
		s.writeError(ctx, fasthttp.StatusNotFound, xqdto.DomainError{Code: xqdto.CodeNotFound, Message: "no route " + method + " " + path})
	default:
		ctx.NotFound()
	}
}

func (s *Server) handleSelect(ctx *fasthttp.RequestCtx) {
	var req xqdto.SelectRequest
	if !s.decode(ctx, &req) {
		return
	}
	if _, err := s.ctrl.Select(xiangqi.Sq(req.File, req.Rank)); err != nil {
		s.fail(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleLegal(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	file, ferr := strconv.Atoi(string(args.Peek("file")))
	rank, rerr := strconv.Atoi(string(args.Peek("rank")))
	if ferr != nil || rerr != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.domainError(xqdto.CodeBadRequest, "file and rank are required"))
		return
	}
	sq := xiangqi.Sq(file, rank)
	if !sq.InBounds() {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.domainError(xqdto.CodeOutOfBounds, ""))
		return
	}
	targets := controller.SquaresDTO(s.ctrl.LegalTargets(sq))
	if targets == nil {
		targets = []xqdto.SquareDTO{}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, targets)
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx) {
	var req xqdto.MoveRequest
	if !s.decode(ctx, &req) {
		return
	}
	res, err := s.ctrl.MoveByNotation(req.Move)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, xqdto.MoveResponse{Move: res.DTO(), State: s.ctrl.Snapshot()})
}

func (s *Server) handleClick(ctx *fasthttp.RequestCtx) {
	var req xqdto.ClickRequest
	if !s.decode(ctx, &req) {
		return
	}
	res, err := s.ctrl.HandleWorldClick(geometry.Point3{X: req.X, Y: req.Y, Z: req.Z})
	if err != nil {
		s.fail(ctx, err)
		return
	}
	out := xqdto.ClickResponse{State: s.ctrl.Snapshot()}
	if res != nil {
		mv := res.DTO()
		out.Move = &mv
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleHint(ctx *fasthttp.RequestCtx) {
	tok, err := s.ctrl.RequestHint()
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusAccepted, xqdto.HintResponse{Token: tok})
}

func (s *Server) handleFEN(ctx *fasthttp.RequestCtx) {
	var req xqdto.FENRequest
	if !s.decode(ctx, &req) {
		return
	}
	st, err := s.ctrl.LoadFEN(ctx, req.FEN)
	s.respond(ctx, st, err)
}

func (s *Server) handleGames(ctx *fasthttp.RequestCtx) {
	limit := defaultGames
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n <= 0 {
			s.writeError(ctx, fasthttp.StatusBadRequest, s.domainError(xqdto.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxGames)
	}
	games, err := s.ctrl.RecentGames(ctx, limit)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if games == nil {
		games = []xqdto.FinishedGame{}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, games)
}

func (s *Server) handleBoardPNG(ctx *fasthttp.RequestCtx) {
	v := s.ctrl.View()
	png, err := s.images.RenderPNG(ctx, v.Board, render.Options{
		Selected: v.Selected,
		Targets:  v.Targets,
		Hint:     v.Hint,
		LastMove: v.LastMove,
		Title:    string(ctx.QueryArgs().Peek("title")),
	})
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(png)
}

func (s *Server) respond(ctx *fasthttp.RequestCtx, st *xqdto.GameState, err error) {
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, st)
}

// decode parses and validates a JSON body. On failure the response is
// already written.
func (s *Server) decode(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.domainError(xqdto.CodeBadRequest, "invalid request body"))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.domainError(xqdto.CodeBadRequest, describeValidation(err)))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var b strings.Builder
	for _, fe := range verrs {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fmt.Fprintf(&b, "%s is required", field)
		case "min", "max":
			bound := "at least"
			if fe.Tag() == "max" {
				bound = "at most"
			}
			if fe.Kind() == reflect.String {
				fmt.Fprintf(&b, "%s must be %s %s characters", field, bound, fe.Param())
			} else {
				fmt.Fprintf(&b, "%s must be %s %s", field, bound, fe.Param())
			}
		default:
			fmt.Fprintf(&b, "%s failed %s", field, fe.Tag())
		}
	}
	return b.String()
}

// fail maps domain errors to a status and a stable code.
func (s *Server) fail(ctx *fasthttp.RequestCtx, err error) {
	status, code := classify(err)
	if status >= fasthttp.StatusInternalServerError {
		s.logger.Error("http_request_failed", zap.ByteString("path", ctx.Path()), zap.Error(err))
	}
	s.writeError(ctx, status, s.domainError(code, ""))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, xiangqi.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity, xqdto.CodeIllegalMove
	case errors.Is(err, xiangqi.ErrWrongSide):
		return fasthttp.StatusConflict, xqdto.CodeWrongSide
	case errors.Is(err, xiangqi.ErrNoPieceAtSource):
		return fasthttp.StatusUnprocessableEntity, xqdto.CodeEmptySquare
	case errors.Is(err, xiangqi.ErrOutOfBounds), errors.Is(err, controller.ErrOffBoard):
		return fasthttp.StatusBadRequest, xqdto.CodeOutOfBounds
	case errors.Is(err, xiangqi.ErrMalformedFEN):
		return fasthttp.StatusBadRequest, xqdto.CodeBadFEN
	case errors.Is(err, xiangqi.ErrMalformedNotation):
		return fasthttp.StatusBadRequest, xqdto.CodeBadRequest
	case errors.Is(err, store.ErrNotFound):
		return fasthttp.StatusNotFound, xqdto.CodeNotFound
	case errors.Is(err, engine.ErrOracleUnavailable):
		return fasthttp.StatusServiceUnavailable, xqdto.CodeInternal
	default:
		return fasthttp.StatusInternalServerError, xqdto.CodeInternal
	}
}

func (s *Server) domainError(code, detail string) xqdto.DomainError {
	msg, err := s.msgs.Render("error."+code, map[string]any{"Detail": detail})
	if err != nil {
		msg = code
		if detail != "" {
			msg = detail
		}
	}
	return xqdto.DomainError{Code: code, Message: msg}
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, derr xqdto.DomainError) {
	s.writeJSON(ctx, status, map[string]xqdto.DomainError{"error": derr})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("http_encode_failed", zap.Error(err))
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(b)
}
