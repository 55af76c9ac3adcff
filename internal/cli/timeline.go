package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/resolver"
)

// TrackView is one track's resolved stack as reported by the CLI.
type TrackView struct {
	Track    string        `json:"track"`
	Medium   string        `json:"medium"`
	Stack    []string      `json:"stack"`
	From     string        `json:"from"`
	Until    string        `json:"until"`
	Segments []SegmentView `json:"segments,omitempty"`
}

// SegmentView is a span with a constant stack.
type SegmentView struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Stack []string `json:"stack"`
}

// viewTracks resolves every track (or only track, when set) at at. A
// positive until adds the segments of [at, until).
func viewTracks(tl *engine.Timeline, track string, at, until time.Duration) ([]TrackView, error) {
	views := []TrackView{}
	for _, tr := range tl.Tracks() {
		if track != "" && string(tr.ID) != track {
			continue
		}
		stack, window, err := tl.Window(tr.ID, at)
		if err != nil {
			return nil, err
		}
		v := TrackView{
			Track:  string(tr.ID),
			Medium: string(tr.Medium),
			Stack:  stackIDs(stack),
			From:   formatTime(window.Start),
			Until:  formatTime(window.End),
		}
		if until > at {
			segs, err := tl.Segments(tr.ID, ir.TimeRange{Start: at, End: until})
			if err != nil {
				return nil, err
			}
			for _, s := range segs {
				v.Segments = append(v.Segments, SegmentView{
					Start: formatTime(s.Range.Start),
					End:   formatTime(s.Range.End),
					Stack: stackIDs(s.Stack),
				})
			}
		}
		views = append(views, v)
	}
	if track != "" && len(views) == 0 {
		return nil, ir.NewNotFound("track", track)
	}
	return views, nil
}

func stackIDs(s resolver.Stack) []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = string(e.ID)
	}
	return out
}

// formatTime prints a timeline instant, spelling out the unbounded ends.
func formatTime(d time.Duration) string {
	switch d {
	case resolver.Beginning:
		return "-inf"
	case resolver.Forever:
		return "+inf"
	}
	return d.String()
}

func writeTrackViews(b *strings.Builder, views []TrackView) {
	for _, v := range views {
		stack := strings.Join(v.Stack, ", ")
		if stack == "" {
			stack = "(empty)"
		}
		fmt.Fprintf(b, "  %s [%s]: %s  [%s, %s)\n", v.Track, v.Medium, stack, v.From, v.Until)
		for _, s := range v.Segments {
			seg := strings.Join(s.Stack, ", ")
			if seg == "" {
				seg = "(empty)"
			}
			fmt.Fprintf(b, "    [%s, %s) %s\n", s.Start, s.End, seg)
		}
	}
}
