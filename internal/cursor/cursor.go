// Package cursor implements live many-to-many cursor synchronization over a
// presence channel: a transmitter that encodes the local pointer into
// presence sub-locations, a receiver that aggregates remote sub-locations
// back into viewport positions, click expiry tracking, and the presentation
// adapter joining positions with user profiles.
package cursor

import (
	"context"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

// CursorPosition is a viewport-relative cursor position. It is ephemeral,
// recomputed from a Location on every viewport-affecting change.
type CursorPosition struct {
	ViewportX float64 `json:"viewportX"`
	ViewportY float64 `json:"viewportY"`
	Click     bool    `json:"click"`
}

// ClickPosition is a cursor position frozen at the moment of a click, kept
// until the click display duration elapses.
type ClickPosition struct {
	CursorPosition
	ClickTimestamp time.Time `json:"clickTimestamp"`
}

// PointerEvent is a raw pointer event from whatever input layer embeds the
// engine.
type PointerEvent struct {
	// PageX/PageY are document coordinates (viewport coordinates plus the
	// scroll offset).
	PageX float64
	PageY float64
	// Buttons is the pressed-button bitmask; bit 0 is the primary button.
	Buttons int
}

// Primary reports whether the primary button is held.
func (e PointerEvent) Primary() bool {
	return e.Buttons&1 != 0
}

// ViewportX/ViewportY convert the event to viewport coordinates given a
// scroll offset.
func (e PointerEvent) Viewport(scrollX, scrollY float64) (float64, float64) {
	return e.PageX - scrollX, e.PageY - scrollY
}

// Rect is an axis-aligned bounding rectangle in viewport coordinates.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Contains reports whether the point lies strictly inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x > r.Left && x < r.Left+r.Width &&
		y > r.Top && y < r.Top+r.Height
}

// Viewport exposes the current scroll state of the embedding surface.
type Viewport interface {
	ScrollOffset() (x, y float64)
}

// Anchorer is the optional annotation-anchoring service: it round-trips
// viewport coordinates through a durable string encoding tied to the
// document structure. The engine degrades to raw page coordinates whenever
// it is absent or fails.
type Anchorer interface {
	ViewportCoordinatesToString(ctx context.Context, x, y float64) (string, error)
	StringToViewportCoordinates(ctx context.Context, s string) (x, y float64, ok bool, err error)
}

// EventOptions parameterize event-to-location translation.
type EventOptions struct {
	SendClicks bool
}

// EventToLocationFunc converts a pointer event into a serializable location.
// It may be slow (it can consult the anchoring service); a stale resolution
// superseded by a newer event is discarded by the transmitter.
type EventToLocationFunc func(ctx context.Context, ev PointerEvent, opts EventOptions) (location.Location, error)

// LocationToDocumentFunc converts a received location back into a viewport
// position, or nil if the location carries nothing renderable.
type LocationToDocumentFunc func(ctx context.Context, loc location.Location) (*CursorPosition, error)

// Translations is a caller-supplied codec override. The two functions encode
// inverse transformations of the same scheme, so they must be replaced as a
// pair; supplying only one is a configuration error.
type Translations struct {
	EventToLocation    EventToLocationFunc
	LocationToDocument LocationToDocumentFunc
}
