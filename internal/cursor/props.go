package cursor

import (
	"github.com/collabware/livecursor/internal/user"
)

// Props is a render-ready record: one remote user and where to draw them.
type Props struct {
	User user.Profile
	Pos  CursorPosition
}

// LiveCursorsProps joins cursor positions with resolved user profiles. An
// empty viewerID means the viewer's identity has not loaded, which yields
// nothing, since self-exclusion cannot be applied yet. Output is ordered by
// user ID so rendering is deterministic regardless of map iteration order.
func LiveCursorsProps(viewerID string, positions map[string]CursorPosition, users map[string]*user.Profile) []Props {
	if viewerID == "" {
		return nil
	}

	out := make([]Props, 0, len(positions))
	for _, id := range user.SortedIDs(positions) {
		profile := users[id]
		if profile == nil {
			continue // not yet renderable
		}
		out = append(out, Props{User: *profile, Pos: positions[id]})
	}
	return out
}

// LiveClicksProps is the click-marker variant of LiveCursorsProps.
func LiveClicksProps(viewerID string, clicks map[string]ClickPosition, users map[string]*user.Profile) []Props {
	positions := make(map[string]CursorPosition, len(clicks))
	for id, click := range clicks {
		positions[id] = click.CursorPosition
	}
	return LiveCursorsProps(viewerID, positions, users)
}
