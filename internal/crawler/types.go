// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"

	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

// Direction selects which way the engine walks the listing.
type Direction int

// Walk directions. Forward goes from page 1 toward older pages; Backward goes
// from the last page toward page 1.
const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Step is the page increment applied after each page.
func (d Direction) Step() int {
	if d == Backward {
		return -1
	}
	return 1
}

// Mode names the entry point that produced a Plan.
type Mode string

// Supported run modes.
const (
	ModeInit   Mode = "init"
	ModeUpdate Mode = "update"
	ModeResume Mode = "resume"
)

// Row is one (timestamp, title) pair as listed on a page.
type Row struct {
	Timestamp string
	Title     string
}

// Listing is the parsed content of the first page.
type Listing struct {
	Rows []Row
	// Newest is the most recent timestamp on the page.
	Newest string
	// LastPage is the highest page number offered by the pagination control.
	LastPage int
}

// Plan holds the parameters the mode selector hands to the engine.
type Plan struct {
	Mode      Mode
	StartPage int
	Boundary  timestamp.Instant
	Direction Direction
}

// PageWindow bounds the page numbers the engine may visit, exclusive on both ends.
type PageWindow struct {
	Lower int
	Upper int
}

// Contains reports whether Lower < page < Upper.
func (w PageWindow) Contains(page int) bool {
	return w.Lower < page && page < w.Upper
}

// StopDecision is the per-row verdict of StopCondition and the final reason of a run.
type StopDecision int

// Stop decisions.
const (
	Continue StopDecision = iota
	StopNormal
	StopBounds
	StopError
	// StopExhausted ends a backward walk that read page 1 without passing the
	// boundary: the whole listing has been consumed.
	StopExhausted
)

func (s StopDecision) String() string {
	switch s {
	case Continue:
		return "continue"
	case StopNormal:
		return "boundary_reached"
	case StopBounds:
		return "bounds_exceeded"
	case StopError:
		return "error"
	case StopExhausted:
		return "listing_exhausted"
	default:
		return "unknown"
	}
}

// StopCondition decides whether a row at instant in ends the walk. Forward
// runs stop once they reach known history (in <= boundary); backward runs stop
// once they pass the boundary captured when the crawl began (in > boundary).
func StopCondition(dir Direction, boundary, in timestamp.Instant) StopDecision {
	switch dir {
	case Forward:
		if !in.After(boundary) {
			return StopNormal
		}
	case Backward:
		if in.After(boundary) {
			return StopNormal
		}
	}
	return Continue
}

// Result summarizes one engine run.
type Result struct {
	Mode         Mode
	Direction    Direction
	Reason       StopDecision
	StartPage    int
	LastPage     int
	PagesFetched int
	Inserted     int
	Duplicates   int
	Conflicts    int
	SizeBefore   int
	SizeAfter    int
	Latest       timestamp.Instant
	Duration     time.Duration
}
