package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/park285/xiangqi-board/internal/xiangqi"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Options struct {
	Selected *xiangqi.Square
	Targets  []xiangqi.Square
	Hint     *xiangqi.Move
	LastMove *xiangqi.Move
	Title    string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, b *xiangqi.Board, opts Options) ([]byte, error)
}

type pngBoardRenderer struct {
	cell int
}

// NewPNGRenderer returns a renderer drawing cell pixels between adjacent
// intersections. Non-positive sizes use the default.
func NewPNGRenderer(cell int) BoardRenderer {
	if cell <= 0 {
		cell = 56
	}
	return &pngBoardRenderer{cell: cell}
}

type layout struct {
	cell   int
	origin image.Point // intersection of file 0, rank 9
}

func (l layout) point(sq xiangqi.Square) pointF {
	return pointF{
		X: float64(l.origin.X + sq.File*l.cell),
		Y: float64(l.origin.Y + (xiangqi.Ranks-1-sq.Rank)*l.cell),
	}
}

func (r *pngBoardRenderer) RenderPNG(ctx context.Context, b *xiangqi.Board, opts Options) ([]byte, error) {
	if b == nil {
		return nil, errors.New("board is nil")
	}

	cell := r.cell
	margin := cell
	titleHeight := cell * 3 / 4
	width := margin*2 + (xiangqi.Files-1)*cell
	height := titleHeight + margin*2 + (xiangqi.Ranks-1)*cell
	lay := layout{cell: cell, origin: image.Pt(margin, titleHeight+margin)}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(boardColor), image.Point{}, imagedraw.Src)

	drawTitle(img, opts.Title, b.SideToMove(), titleHeight)
	drawGrid(img, lay)
	drawCoordinates(img, lay)
	if mv := opts.LastMove; mv != nil {
		drawDisc(img, lay.point(mv.From).pt(), cell/3, lastMoveColor)
		drawDisc(img, lay.point(mv.To).pt(), cell/2-2, lastMoveColor)
	}
	if sq := opts.Selected; sq != nil && sq.InBounds() {
		drawDisc(img, lay.point(*sq).pt(), cell/2+2, selectedColor)
	}
	if err := drawPieces(img, b, lay); err != nil {
		return nil, err
	}
	for _, t := range opts.Targets {
		if t.InBounds() {
			drawDisc(img, lay.point(t).pt(), max(cell/8, 2), targetColor)
		}
	}
	if h := opts.Hint; h != nil && h.From.InBounds() && h.To.InBounds() {
		drawArrow(img, lay.point(h.From), lay.point(h.To), cell, hintArrowColor)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	boardColor     = color.RGBA{233, 200, 140, 255}
	lineColor      = color.NRGBA{R: 92, G: 56, B: 24, A: 255}
	riverTextColor = color.NRGBA{R: 92, G: 56, B: 24, A: 200}
	coordColor     = color.NRGBA{R: 60, G: 40, B: 20, A: 255}
	titleColor     = color.NRGBA{R: 36, G: 24, B: 12, A: 255}
	redTextColor   = color.NRGBA{R: 179, G: 38, B: 30, A: 255}
	blackTextColor = color.NRGBA{R: 29, G: 29, B: 31, A: 255}
	selectedColor  = color.NRGBA{R: 255, G: 228, B: 120, A: 170}
	lastMoveColor  = color.NRGBA{R: 182, G: 184, B: 190, A: 110}
	targetColor    = color.NRGBA{R: 30, G: 140, B: 70, A: 220}
	hintArrowColor = color.NRGBA{R: 48, G: 120, B: 220, A: 170}
)

func drawGrid(img *image.RGBA, lay layout) {
	const w = 1.2
	for r := 0; r < xiangqi.Ranks; r++ {
		drawLine(img, lay.point(xiangqi.Sq(0, r)), lay.point(xiangqi.Sq(xiangqi.Files-1, r)), w, lineColor)
	}
	for f := 0; f < xiangqi.Files; f++ {
		if f == 0 || f == xiangqi.Files-1 {
			drawLine(img, lay.point(xiangqi.Sq(f, 0)), lay.point(xiangqi.Sq(f, xiangqi.Ranks-1)), w, lineColor)
			continue
		}
		// 강 구간은 비워 둔다
		drawLine(img, lay.point(xiangqi.Sq(f, 0)), lay.point(xiangqi.Sq(f, 4)), w, lineColor)
		drawLine(img, lay.point(xiangqi.Sq(f, 5)), lay.point(xiangqi.Sq(f, xiangqi.Ranks-1)), w, lineColor)
	}
	for _, base := range []int{0, 7} {
		drawLine(img, lay.point(xiangqi.Sq(3, base)), lay.point(xiangqi.Sq(5, base+2)), w, lineColor)
		drawLine(img, lay.point(xiangqi.Sq(5, base)), lay.point(xiangqi.Sq(3, base+2)), w, lineColor)
	}

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(riverTextColor)}
	mid := (lay.point(xiangqi.Sq(4, 4)).Y + lay.point(xiangqi.Sq(4, 5)).Y) / 2
	drawCenteredText(drawer, "RIVER", int(lay.point(xiangqi.Sq(4, 4)).X), int(mid)+5)
}

func drawPieces(img *image.RGBA, b *xiangqi.Board, lay layout) error {
	size := lay.cell * 9 / 10
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	var firstErr error
	b.Pieces(func(sq xiangqi.Square, p xiangqi.Piece) {
		if firstErr != nil {
			return
		}
		disc, err := renderPieceImage(p, size)
		if err != nil {
			firstErr = err
			return
		}
		c := lay.point(sq).pt()
		rect := image.Rect(c.X-size/2, c.Y-size/2, c.X-size/2+size, c.Y-size/2+size)
		imagedraw.Draw(img, rect, disc, image.Point{}, imagedraw.Over)
		drawer.Src = image.NewUniform(pieceTextColor(p))
		drawCenteredText(drawer, pieceLabel(p), c.X, c.Y+5)
	})
	return firstErr
}

func drawCoordinates(img *image.RGBA, lay layout) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(coordColor)}
	bottom := lay.point(xiangqi.Sq(0, 0))
	for f := 0; f < xiangqi.Files; f++ {
		x := int(lay.point(xiangqi.Sq(f, 0)).X)
		drawCenteredText(drawer, string(rune('a'+f)), x, int(bottom.Y)+lay.cell*3/4)
	}
	for r := 0; r < xiangqi.Ranks; r++ {
		y := int(lay.point(xiangqi.Sq(0, r)).Y)
		drawCenteredText(drawer, strconv.Itoa(r), int(bottom.X)-lay.cell*3/4, y+5)
	}
}

func drawTitle(img *image.RGBA, title string, side xiangqi.Side, height int) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = side.String() + " to move"
	}
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(titleColor)}
	drawCenteredText(drawer, title, img.Bounds().Dx()/2, height/2+8)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawLine(img *image.RGBA, a, b pointF, halfWidth float64, clr color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	px, py := -dy/length*halfWidth, dx/length*halfWidth
	fillQuad(img,
		pointF{a.X - px, a.Y - py},
		pointF{a.X + px, a.Y + py},
		pointF{b.X + px, b.Y + py},
		pointF{b.X - px, b.Y - py},
		clr,
	)
}

// drawArrow draws a shaft and head from the centre of one intersection to
// just short of the other.
func drawArrow(img *image.RGBA, start, end pointF, cell int, clr color.Color) {
	dx := end.X - start.X
	dy := end.Y - start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}

	dirX := dx / length
	dirY := dy / length
	perpX := -dirY
	perpY := dirX

	baseLength := length - float64(cell)*0.45
	if baseLength < float64(cell)*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := float64(cell) * 0.1
	headWidth := float64(cell) * 0.4

	baseX := start.X + dirX*baseLength
	baseY := start.Y + dirY*baseLength

	fillQuad(img,
		pointF{X: start.X - perpX*halfWidth, Y: start.Y - perpY*halfWidth},
		pointF{X: start.X + perpX*halfWidth, Y: start.Y + perpY*halfWidth},
		pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth},
		pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth},
		clr,
	)
	fillTriangleF(img,
		end,
		pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2},
		pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2},
		clr,
	)
}
