package cursor

import (
	"context"

	"github.com/collabware/livecursor/internal/location"
)

// Codec is the default location codec. It prefers the anchoring service,
// which survives layout changes, and always carries raw page coordinates as
// a fallback so translation never fails outright.
type Codec struct {
	Viewport Viewport
	Anchorer Anchorer // optional
}

// EventToLocation encodes a pointer event as a cursor sub-location. Anchor
// resolution failures degrade silently to the raw coordinates.
func (c *Codec) EventToLocation(ctx context.Context, ev PointerEvent, opts EventOptions) (location.Location, error) {
	loc := location.Location{
		location.CursorXKey:  ev.PageX,
		location.CursorYKey:  ev.PageY,
		location.CursorClick: opts.SendClicks && ev.Primary(),
	}

	if c.Anchorer != nil {
		x, y := ev.PageX, ev.PageY
		if c.Viewport != nil {
			x, y = ev.Viewport(c.Viewport.ScrollOffset())
		}
		if s, err := c.Anchorer.ViewportCoordinatesToString(ctx, x, y); err == nil && s != "" {
			loc[location.AnnotationKey] = s
		}
	}
	return loc, nil
}

// LocationToDocument decodes a cursor sub-location into viewport
// coordinates: anchored resolution first, then raw coordinates adjusted for
// the current scroll offset, then nil.
func (c *Codec) LocationToDocument(ctx context.Context, loc location.Location) (*CursorPosition, error) {
	click := false
	if v, ok := loc[location.CursorClick].(bool); ok {
		click = v
	}

	if s, ok := loc[location.AnnotationKey].(string); ok && c.Anchorer != nil {
		x, y, found, err := c.Anchorer.StringToViewportCoordinates(ctx, s)
		if err == nil && found {
			return &CursorPosition{ViewportX: x, ViewportY: y, Click: click}, nil
		}
	}

	x, xok := numberValue(loc[location.CursorXKey])
	y, yok := numberValue(loc[location.CursorYKey])
	if xok && yok {
		var scrollX, scrollY float64
		if c.Viewport != nil {
			scrollX, scrollY = c.Viewport.ScrollOffset()
		}
		return &CursorPosition{ViewportX: x - scrollX, ViewportY: y - scrollY, Click: click}, nil
	}

	return nil, nil
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
