package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom
}

// NewX11Backend connects to the X server named by $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	return NewX11BackendWithConn(conn), nil
}

// NewX11BackendWithConn wraps an existing X connection. Close closes it.
func NewX11BackendWithConn(conn *xgb.Conn) *X11Backend {
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Backend{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
	}
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Conn returns the X11 connection, shared with the window capturer
func (b *X11Backend) Conn() *xgb.Conn {
	return b.conn
}

// Screen returns the default screen info
func (b *X11Backend) Screen() *xproto.ScreenInfo {
	return b.screen
}

// ListWindows returns all application windows using EWMH _NET_CLIENT_LIST with QueryTree fallback.
// The order is the window manager's client list order (mapping order).
func (b *X11Backend) ListWindows() ([]*Info, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := b.clientListEWMH()
	if err == nil && len(ids) > 0 {
		log.Debug().Int("count", len(ids)).Msg("ListWindows: using EWMH _NET_CLIENT_LIST")
	} else {
		if err != nil {
			log.Debug().Err(err).Msg("ListWindows: EWMH failed, falling back to QueryTree")
		}
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]*Info, 0, len(ids))
	for _, id := range ids {
		info, err := b.getWindowInfo(id)
		if err != nil {
			// Windows can vanish between listing and querying
			continue
		}

		// Skip windows without titles or class (usually not user windows)
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}

	return windows, nil
}

// clientListEWMH reads the window ids from _NET_CLIENT_LIST on the root window
func (b *X11Backend) clientListEWMH() ([]xproto.Window, error) {
	clientListAtom, err := b.atom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST atom: %w", err)
	}

	reply, err := xproto.GetProperty(
		b.conn,
		false,
		b.root,
		clientListAtom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("_NET_CLIENT_LIST is empty")
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(le32(reply.Value[i:])))
	}
	return ids, nil
}

// GetFocusedWindow returns the currently focused window
func (b *X11Backend) GetFocusedWindow() (*Info, error) {
	focusReply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return nil, err
	}

	info, err := b.getWindowInfo(focusReply.Focus)
	if err != nil {
		return nil, err
	}
	info.Focused = true
	return info, nil
}

// GetWindowInfo looks up a window by id
func (b *X11Backend) GetWindowInfo(id uint32) (*Info, error) {
	return b.getWindowInfo(xproto.Window(id))
}

// getWindowInfo retrieves information about a window
func (b *X11Backend) getWindowInfo(win xproto.Window) (*Info, error) {
	attrs, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		if IsBadWindow(err) {
			return nil, fmt.Errorf("window 0x%x: %w", uint32(win), ErrWindowNotFound)
		}
		return nil, fmt.Errorf("failed to get window attributes: %w", err)
	}

	info := &Info{
		ID:      uint32(win),
		Visible: attrs.MapState == xproto.MapStateViewable,
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err == nil {
		info.Geometry = Geometry{
			X:      int(geom.X),
			Y:      int(geom.Y),
			Width:  int(geom.Width),
			Height: int(geom.Height),
		}
		// Reparenting window managers report geometry relative to the frame
		if pos, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply(); err == nil {
			info.Geometry.X = int(pos.DstX)
			info.Geometry.Y = int(pos.DstY)
		}
	}

	// Get window title
	if titleAtom, err := b.atom("_NET_WM_NAME"); err == nil {
		if title, err := b.getProperty(win, titleAtom); err == nil {
			info.Title = title
		}
	}

	// Try alternative title property
	if info.Title == "" {
		if title, err := b.getProperty(win, xproto.AtomWmName); err == nil {
			info.Title = title
		}
	}

	// WM_CLASS format is: instance\0class\0 (two null-terminated strings)
	if classRaw, err := b.getProperty(win, xproto.AtomWmClass); err == nil {
		parts := strings.Split(classRaw, "\x00")
		if len(parts) >= 2 && parts[1] != "" {
			info.Class = parts[1]
		} else if len(parts) >= 1 && parts[0] != "" {
			info.Class = parts[0]
		}
	}

	if pid, ok := b.getCardinal(win, "_NET_WM_PID"); ok {
		info.PID = int(pid)
	}

	if desktop, ok := b.getCardinal(win, "_NET_WM_DESKTOP"); ok {
		// 0xFFFFFFFF means the window is on all desktops (sticky)
		if desktop == 0xFFFFFFFF {
			info.Desktop = -1
		} else {
			info.Desktop = int(desktop)
		}
	}

	return info, nil
}

// atom gets an atom ID by name, caching the result
func (b *X11Backend) atom(name string) (xproto.Atom, error) {
	b.atomMu.Lock()
	defer b.atomMu.Unlock()

	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}

	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}

	return string(reply.Value), nil
}

// getCardinal reads a single CARDINAL property
func (b *X11Backend) getCardinal(win xproto.Window, name string) (uint32, bool) {
	atom, err := b.atom(name)
	if err != nil {
		return 0, false
	}
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.AtomCardinal,
		0,
		1,
	).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0, false
	}
	return le32(reply.Value), true
}

// IsBadWindow reports whether err is an X protocol error for a window or
// drawable that no longer exists.
func IsBadWindow(err error) bool {
	switch err.(type) {
	case xproto.WindowError, xproto.DrawableError:
		return true
	}
	return false
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
