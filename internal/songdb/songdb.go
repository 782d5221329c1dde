// Package songdb holds the played-song history aggregate: one title per unique
// timestamp, a set of conflicting observations, and the resume point used by
// incremental updates.
package songdb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

// MergeOutcome classifies what Merge did with an observation.
type MergeOutcome int

// Merge outcomes.
const (
	Inserted MergeOutcome = iota
	DuplicateIgnored
	ConflictRecorded
)

func (o MergeOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case DuplicateIgnored:
		return "duplicate"
	case ConflictRecorded:
		return "conflict"
	default:
		return "unknown"
	}
}

// CorruptStateError reports a state document that does not have the expected shape.
type CorruptStateError struct {
	Reason string
	Err    error
}

func (e *CorruptStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt song database: %s: %v", e.Reason, e.Err)
	}
	return "corrupt song database: " + e.Reason
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Database is the played-song history. It is not safe for concurrent use; the
// crawl engine owns it for the duration of a run.
type Database struct {
	songs  map[string]string
	broken []string
	latest timestamp.Instant
}

// New returns an empty database with no resume point.
func New() *Database {
	return &Database{songs: make(map[string]string)}
}

// Merge folds one observation into the database. The first title seen for a
// timestamp wins; a different title for a known timestamp is kept as a
// "timestamp;title" conflict entry.
func (d *Database) Merge(ts timestamp.Instant, title string) MergeOutcome {
	existing, ok := d.songs[ts.Raw]
	switch {
	case !ok:
		d.songs[ts.Raw] = title
		return Inserted
	case existing == title:
		return DuplicateIgnored
	default:
		d.broken = append(d.broken, ts.Raw+";"+title)
		return ConflictRecorded
	}
}

// AdvanceLatest moves the resume point to ts if ts is later. It never moves it back.
func (d *Database) AdvanceLatest(ts timestamp.Instant) {
	if ts.IsZero() {
		return
	}
	if d.latest.IsZero() || ts.After(d.latest) {
		d.latest = ts
	}
}

// DedupeBroken removes repeated conflict entries, keeping first-seen order.
func (d *Database) DedupeBroken() {
	if len(d.broken) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(d.broken))
	out := d.broken[:0]
	for _, entry := range d.broken {
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	d.broken = out
}

// Latest returns the resume point; it is the zero Instant for a fresh database.
func (d *Database) Latest() timestamp.Instant {
	return d.latest
}

// Title returns the title stored for ts.
func (d *Database) Title(ts string) (string, bool) {
	title, ok := d.songs[ts]
	return title, ok
}

// Len is the number of unique timestamps.
func (d *Database) Len() int {
	return len(d.songs)
}

// BrokenLen is the number of conflict entries, duplicates included until DedupeBroken runs.
func (d *Database) BrokenLen() int {
	return len(d.broken)
}

// Size counts songs plus conflict entries.
func (d *Database) Size() int {
	return d.Len() + d.BrokenLen()
}

// Broken returns a copy of the conflict entries.
func (d *Database) Broken() []string {
	return append([]string(nil), d.broken...)
}

// Entry is one stored (timestamp, title) pair.
type Entry struct {
	Timestamp string
	Title     string
}

// Entries returns the stored songs ordered by timestamp string.
func (d *Database) Entries() []Entry {
	out := make([]Entry, 0, len(d.songs))
	for ts, title := range d.songs {
		out = append(out, Entry{Timestamp: ts, Title: title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Conflicts splits the conflict entries back into pairs.
func (d *Database) Conflicts() []Entry {
	out := make([]Entry, 0, len(d.broken))
	for _, raw := range d.broken {
		ts, title, _ := strings.Cut(raw, ";")
		out = append(out, Entry{Timestamp: ts, Title: title})
	}
	return out
}

// Earliest returns the oldest stored timestamp by instant.
func (d *Database) Earliest() (timestamp.Instant, bool) {
	var (
		earliest timestamp.Instant
		found    bool
	)
	for ts := range d.songs {
		in, err := timestamp.Parse(ts)
		if err != nil {
			continue
		}
		if !found || in.Before(earliest) {
			earliest, found = in, true
		}
	}
	return earliest, found
}

type document struct {
	Songs  *map[string]string `json:"songs_dic"`
	Broken *[]string          `json:"broken_ts_list"`
	Latest *string            `json:"latest_ts"`
}

// MarshalJSON encodes the database in the state-file layout.
func (d *Database) MarshalJSON() ([]byte, error) {
	songs := d.songs
	if songs == nil {
		songs = map[string]string{}
	}
	broken := d.broken
	if broken == nil {
		broken = []string{}
	}
	latest := d.latest.String()
	return json.Marshal(document{Songs: &songs, Broken: &broken, Latest: &latest})
}

// UnmarshalJSON decodes the state-file layout. Any shape mismatch or
// unparseable timestamp yields a *CorruptStateError.
func (d *Database) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &CorruptStateError{Reason: "decode", Err: err}
	}
	if doc.Songs == nil {
		return &CorruptStateError{Reason: "missing songs_dic"}
	}
	if doc.Broken == nil {
		return &CorruptStateError{Reason: "missing broken_ts_list"}
	}
	if doc.Latest == nil {
		return &CorruptStateError{Reason: "missing latest_ts"}
	}
	songs := *doc.Songs
	if songs == nil {
		songs = map[string]string{}
	}
	for ts := range songs {
		if _, err := timestamp.Parse(ts); err != nil {
			return &CorruptStateError{Reason: "songs_dic key", Err: err}
		}
	}
	var latest timestamp.Instant
	if *doc.Latest != "" {
		in, err := timestamp.Parse(*doc.Latest)
		if err != nil {
			return &CorruptStateError{Reason: "latest_ts", Err: err}
		}
		latest = in
	}
	d.songs = songs
	d.broken = append([]string(nil), (*doc.Broken)...)
	d.latest = latest
	return nil
}
