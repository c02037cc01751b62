package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
	"github.com/collabware/livecursor/internal/user"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options configures a LiveCursors instance.
type Options struct {
	// Location identifies the page/region whose cursors are shared. The
	// engine refuses to start without one; operating on an undefined channel
	// would silently cross cursor streams.
	Location location.Location
	GroupID  string

	ShowViewerCursor bool
	SendCursor       bool
	ShowCursors      bool
	SendClicks       bool
	ShowClicks       bool

	// Translations overrides the default codec. Both functions or neither.
	Translations *Translations
	Viewport     Viewport
	Anchorer     Anchorer
	BoundingRect func() (Rect, bool)

	ClickDisplayDuration   time.Duration `validate:"gte=0"`
	PositionUpdateInterval time.Duration `validate:"gte=0"`
	RecomputeDebounce      time.Duration `validate:"gte=0"`
}

// DefaultOptions returns the standard configuration for a location: send and
// show cursors, clicks off.
func DefaultOptions(loc location.Location) Options {
	return Options{
		Location:               loc,
		SendCursor:             true,
		ShowCursors:            true,
		ClickDisplayDuration:   DefaultClickDisplayDuration,
		PositionUpdateInterval: DefaultPositionUpdateInterval,
		RecomputeDebounce:      DefaultRecomputeDebounce,
	}
}

// LiveCursors owns the full engine for one location: transmitter, receiver,
// click tracker and the presentation adapter's inputs.
type LiveCursors struct {
	opts  Options
	users user.Provider
	base  location.Location

	tx     *Transmitter
	rx     *Receiver
	clicks *ClickTracker
}

// New validates the options and assembles the engine. Nothing runs until
// Start.
func New(client presence.Client, users user.Provider, opts Options) (*LiveCursors, error) {
	if client == nil {
		return nil, errors.New("live cursors: presence client is required")
	}
	if users == nil {
		return nil, errors.New("live cursors: user provider is required")
	}
	if opts.Location == nil {
		return nil, errors.New("live cursors: missing location")
	}
	if opts.Translations != nil &&
		(opts.Translations.EventToLocation == nil) != (opts.Translations.LocationToDocument == nil) {
		return nil, errors.New("live cursors: translations must override both directions or neither")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("live cursors: invalid options: %w", err)
	}

	base := location.WithMarker(opts.Location)

	eventToLocation, locationToDocument := codecFuncs(opts)

	lc := &LiveCursors{opts: opts, users: users, base: base}

	if opts.SendCursor {
		lc.tx = NewTransmitter(TransmitterConfig{
			Presence:        client,
			Base:            base,
			GroupID:         opts.GroupID,
			SendClicks:      opts.SendClicks,
			Interval:        opts.PositionUpdateInterval,
			EventToLocation: eventToLocation,
		})
	}

	if opts.ShowCursors {
		if opts.ShowClicks {
			lc.clicks = NewClickTracker(opts.ClickDisplayDuration, nil)
		}
		lc.rx = NewReceiver(ReceiverConfig{
			Presence:           client,
			Base:               base,
			ViewerID:           users.ViewerID,
			ShowViewerCursor:   opts.ShowViewerCursor,
			LocationToDocument: locationToDocument,
			BoundingRect:       opts.BoundingRect,
			Debounce:           opts.RecomputeDebounce,
			OnChange: func(positions map[string]CursorPosition) {
				if lc.clicks != nil {
					lc.clicks.Update(positions)
				}
			},
		})
	}

	return lc, nil
}

func codecFuncs(opts Options) (EventToLocationFunc, LocationToDocumentFunc) {
	if opts.Translations != nil && opts.Translations.EventToLocation != nil {
		return opts.Translations.EventToLocation, opts.Translations.LocationToDocument
	}
	codec := &Codec{Viewport: opts.Viewport, Anchorer: opts.Anchorer}
	return codec.EventToLocation, codec.LocationToDocument
}

// Start begins transmitting and/or observing, per the configured toggles.
func (lc *LiveCursors) Start(ctx context.Context) error {
	if lc.rx != nil {
		if err := lc.rx.Start(ctx); err != nil {
			return err
		}
	}
	if lc.tx != nil {
		lc.tx.Start(ctx)
	}
	return nil
}

// Stop tears the engine down. The transmitter's final clearing update is the
// one guaranteed cleanup action.
func (lc *LiveCursors) Stop() {
	if lc.tx != nil {
		lc.tx.Stop()
	}
	if lc.rx != nil {
		lc.rx.Stop()
	}
	if lc.clicks != nil {
		lc.clicks.Stop()
	}
}

// OnMouseMove forwards a pointer movement to the transmitter.
func (lc *LiveCursors) OnMouseMove(ev PointerEvent) {
	if lc.tx != nil {
		lc.tx.OnMouseMove(ev)
	}
}

// OnMouseDown forwards a button press to the transmitter.
func (lc *LiveCursors) OnMouseDown(ev PointerEvent) {
	if lc.tx != nil {
		lc.tx.OnMouseDown(ev)
	}
}

// OnMouseLeave tells the transmitter the pointer left the tracked surface.
func (lc *LiveCursors) OnMouseLeave() {
	if lc.tx != nil {
		lc.tx.OnMouseLeave()
	}
}

// ViewportChanged re-triggers position recomputation after scroll, wheel or
// resize.
func (lc *LiveCursors) ViewportChanged() {
	if lc.rx != nil {
		lc.rx.ViewportChanged()
	}
}

// CursorData returns the render-ready cursor records.
func (lc *LiveCursors) CursorData() []Props {
	if lc.rx == nil {
		return nil
	}
	positions := lc.rx.Positions()
	return LiveCursorsProps(lc.viewerID(), positions, lc.users.UserData(user.SortedIDs(positions)))
}

// ClickData returns the render-ready click markers.
func (lc *LiveCursors) ClickData() []Props {
	if lc.clicks == nil {
		return nil
	}
	clicks := lc.clicks.Clicks()
	return LiveClicksProps(lc.viewerID(), clicks, lc.users.UserData(user.SortedIDs(clicks)))
}

func (lc *LiveCursors) viewerID() string {
	id, ok := lc.users.ViewerID()
	if !ok {
		return ""
	}
	return id
}
