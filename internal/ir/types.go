package ir

import (
	"fmt"
	"slices"
	"time"
)

// ElementID identifies a TrackElement.
type ElementID string

// TrackID identifies a Track.
type TrackID string

// ObjectID identifies a TimelineObject.
type ObjectID string

// LayerID identifies a Layer.
type LayerID string

// Kind distinguishes raw media producers from processing steps.
type Kind int

const (
	// KindSource produces media (a decoded clip, a test pattern).
	KindSource Kind = iota + 1
	// KindOperation transforms the media below it (effects, transitions).
	KindOperation
)

// String returns the lowercase kind name used in edit records.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindOperation:
		return "operation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "source" or "operation".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "source":
		return KindSource, nil
	case "operation":
		return KindOperation, nil
	default:
		return 0, fmt.Errorf("unknown kind %q: must be source or operation", s)
	}
}

// Medium is the media type carried by a Track.
type Medium string

const (
	MediumAudio Medium = "audio"
	MediumVideo Medium = "video"
	MediumText  Medium = "text"
)

// ParseMedium validates a medium name.
func ParseMedium(s string) (Medium, error) {
	switch m := Medium(s); m {
	case MediumAudio, MediumVideo, MediumText:
		return m, nil
	default:
		return "", fmt.Errorf("unknown medium %q: must be audio, video or text", s)
	}
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Span builds the range [start, start+duration).
func Span(start, duration time.Duration) TimeRange {
	return TimeRange{Start: start, End: start + duration}
}

// Empty reports whether the range contains no instant.
func (r TimeRange) Empty() bool {
	return r.End <= r.Start
}

// Duration returns End - Start, or 0 for empty ranges.
func (r TimeRange) Duration() time.Duration {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Duration) bool {
	return t >= r.Start && t < r.End
}

// Overlaps reports whether the two ranges share at least one instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Intersect returns the common part of two ranges (possibly empty).
func (r TimeRange) Intersect(o TimeRange) TimeRange {
	return TimeRange{Start: max(r.Start, o.Start), End: min(r.End, o.End)}
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// MergeRanges sorts ranges and coalesces overlapping or touching ones.
// Empty ranges are dropped.
func MergeRanges(ranges []TimeRange) []TimeRange {
	out := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b TimeRange) int {
		if a.Start != b.Start {
			return compareDurations(a.Start, b.Start)
		}
		return compareDurations(a.End, b.End)
	})

	merged := out[:0]
	for _, r := range out {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func compareDurations(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Track is a single medium-typed lane. It owns no elements; the element
// store indexes elements per track.
type Track struct {
	ID     TrackID `json:"id"`
	Medium Medium  `json:"medium"`
}

// TrackElement is a placed Source or Operation.
//
// Start, Duration and Priority are only changed by edits (move, trim,
// reprioritize). The resolver never mutates elements.
type TrackElement struct {
	ID       ElementID `json:"id"`
	TrackID  TrackID   `json:"track_id"`
	ObjectID ObjectID  `json:"object_id"`
	Kind     Kind      `json:"kind"`

	// Effect names the effect implementation for Operation elements.
	// The core never interprets it.
	Effect string `json:"effect,omitempty"`

	// AssetID references the media asset backing a Source, if any.
	AssetID string `json:"asset_id,omitempty"`

	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	InPoint  time.Duration `json:"in_point"`

	// Priority orders elements in a stack: lower values sit closer to the
	// raw source and are applied first.
	Priority int `json:"priority"`

	// Active elements take part in resolution. Inactive ones stay placed.
	Active bool `json:"active"`

	// Expandable elements fill the gaps of their track: they resolve at
	// every instant from 0 to the end of the track's last regular element,
	// whatever their own placement says.
	Expandable bool `json:"expandable,omitempty"`

	// Seq is the logical insertion order, used as the final tie-break.
	Seq int64 `json:"seq"`
}

// End returns Start + Duration.
func (e TrackElement) End() time.Duration {
	return e.Start + e.Duration
}

// Range returns the element's placement interval.
func (e TrackElement) Range() TimeRange {
	return Span(e.Start, e.Duration)
}
