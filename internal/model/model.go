// Package model defines the Go shapes of TuneTrees' syncable and
// reference entities.
package model

import "time"

// SyncColumns holds the columns every syncable table carries per the
// replication contract. Entities embed it rather than repeating the
// fields, the way the teacher's issue type embeds its own common
// bookkeeping columns.
type SyncColumns struct {
	SyncVersion    int64
	LastModifiedAt time.Time
	DeviceID       *string
	Deleted        bool
}

// Bump increments SyncVersion and stamps LastModifiedAt to now. Callers
// that already set these fields explicitly (e.g. the adapter layer when
// replaying a remote row) should not call Bump again.
func (s *SyncColumns) Bump(now time.Time) {
	s.SyncVersion++
	s.LastModifiedAt = now
}

// UserProfile is the owner anchor for all user-scoped rows.
type UserProfile struct {
	ID   string
	Name string
	SyncColumns
}

// Playlist belongs to a user and has a default genre.
type Playlist struct {
	ID             string
	UserRef        string
	Name           string
	GenreDefault   *string
	InstrumentRef  *string
	SyncColumns
}

// Tune is a catalog or private tune. PrivateFor is nil for public catalog
// tunes.
type Tune struct {
	ID         string
	Title      string
	PrivateFor *string
	Genre      string
	Mode       *string
	SyncColumns
}

// PlaylistTune is the composite-key membership of a tune in a playlist.
// Playlist and Tune together form the immutable key; the row is deleted
// and re-inserted rather than having its key columns mutated, per
// invariant 4.
type PlaylistTune struct {
	Playlist    string
	Tune        string
	Goal        *string
	Scheduled   *time.Time
	LearnedAt   *time.Time
	SyncColumns
}

// PracticeRecord is an immutable append-style history row per
// (Playlist, Tune).
type PracticeRecord struct {
	ID          string
	Playlist    string
	Tune        string
	PracticedAt time.Time
	Quality     int
	Interval    float64
	EaseFactor  float64
	SyncColumns
}

// DailyPracticeQueueItem is a frozen per-window snapshot.
type DailyPracticeQueueItem struct {
	ID             string
	UserRef        string
	Playlist       string
	Tune           string
	WindowStartUTC time.Time
	CompletedAt    *time.Time
	SyncColumns
}

// Note annotates a tune, optionally scoped to a user.
type Note struct {
	ID      string
	Tune    string
	UserRef *string
	Body    string
	SyncColumns
}

// Reference annotates a tune with an external link or citation.
type Reference struct {
	ID   string
	Tune string
	URL  string
	SyncColumns
}

// Tag annotates a tune with a free-form label.
type Tag struct {
	ID    string
	Tune  string
	Label string
	SyncColumns
}

// TableTransientData is unsubmitted evaluation-preview staging data for a
// (user, playlist, tune) triple. Per the Open Question resolution in
// SPEC_FULL.md §3.7 this engine syncs it like any other user table.
type TableTransientData struct {
	UserRef     string
	Playlist    string
	Tune        string
	PreviewJSON string
	SyncColumns
}

// UserGenreSelection is the explicit set of genres a user wants
// downloaded.
type UserGenreSelection struct {
	UserRef string
	Genre   string
	SyncColumns
}

// Preferences holds spaced-repetition and scheduling options.
type Preferences struct {
	UserRef           string
	Algorithm         string
	DailyGoalMinutes  int
	SyncColumns
}

// Genre, TuneType, Instrument, GenreTuneType are system-wide reference
// entities: migrated by release, never user-writable, pull-only, and
// never present in the outbox (per the registry's "reference" change
// category).
type Genre struct {
	ID   string
	Name string
}

type TuneType struct {
	ID   string
	Name string
}

type Instrument struct {
	ID   string
	Name string
}

type GenreTuneType struct {
	Genre    string
	TuneType string
}
