package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

type pieceCacheKey struct {
	piece xiangqi.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

// pieceSVG draws a disc with a side-coloured double ring. The letter is
// added later with a bitmap face.
func pieceSVG(p xiangqi.Piece) []byte {
	ring := "#b3261e"
	if p.Side == xiangqi.Black {
		ring = "#1d1d1f"
	}
	return fmt.Appendf(nil, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
<circle cx="50" cy="52" r="46" fill="#5a3b1c" fill-opacity="0.35"/>
<circle cx="50" cy="50" r="46" fill="#f4e2bd" stroke="%s" stroke-width="5"/>
<circle cx="50" cy="50" r="36" fill="none" stroke="%s" stroke-width="2"/>
</svg>`, ring, ring)
}

func renderPieceImage(p xiangqi.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: p, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(pieceSVG(p)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

// pieceLabel is the letter drawn on a piece: upper case for Red.
func pieceLabel(p xiangqi.Piece) string {
	c := p.Type.Letter()
	if p.Side == xiangqi.Red {
		c -= 'a' - 'A'
	}
	return string(c)
}

func pieceTextColor(p xiangqi.Piece) color.Color {
	if p.Side == xiangqi.Red {
		return redTextColor
	}
	return blackTextColor
}
