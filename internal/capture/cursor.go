package capture

import (
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
)

// cursorImage is an ARGB (premultiplied) cursor positioned in root coordinates
type cursorImage struct {
	x, y          int
	width, height int
	argb          []uint32
}

// overlayCursor draws the current pointer into buf, a width x height frame
// whose top-left corner is at (originX, originY) in root coordinates.
func (c *X11Capturer) overlayCursor(buf []byte, width, height, originX, originY int, format frame.PixelFormat) {
	reply, err := xfixes.GetCursorImage(c.conn).Reply()
	if err != nil {
		return
	}
	cur := cursorImage{
		x:      int(reply.X) - int(reply.Xhot),
		y:      int(reply.Y) - int(reply.Yhot),
		width:  int(reply.Width),
		height: int(reply.Height),
		argb:   reply.CursorImage,
	}
	blendCursor(buf, width, height, cur.x-originX, cur.y-originY, cur, format)
}

// blendCursor composites cur onto buf with its top-left at (dx, dy) in frame coordinates
func blendCursor(buf []byte, width, height, dx, dy int, cur cursorImage, format frame.PixelFormat) {
	for cy := 0; cy < cur.height; cy++ {
		y := dy + cy
		if y < 0 || y >= height {
			continue
		}
		for cx := 0; cx < cur.width; cx++ {
			x := dx + cx
			if x < 0 || x >= width {
				continue
			}
			idx := cy*cur.width + cx
			if idx >= len(cur.argb) {
				return
			}
			p := cur.argb[idx]
			a := p >> 24
			if a == 0 {
				continue
			}
			r, g, b := (p>>16)&0xff, (p>>8)&0xff, p&0xff
			if format == frame.BGRA8 {
				r, b = b, r
			}

			i := (y*width + x) * 4
			inv := 255 - a
			buf[i] = uint8(r + uint32(buf[i])*inv/255)
			buf[i+1] = uint8(g + uint32(buf[i+1])*inv/255)
			buf[i+2] = uint8(b + uint32(buf[i+2])*inv/255)
			buf[i+3] = 255
		}
	}
}
