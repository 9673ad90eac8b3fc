package registry

var syncCols = []string{"sync_version", "last_modified_at", "device_id", "deleted"}

func cols(entityCols ...string) []string {
	return append(append([]string{}, entityCols...), syncCols...)
}

// Default returns the registry populated with every syncable and
// reference table named in SPEC_FULL.md §3. Codegen tooling that
// generates this from the authoritative remote schema is out of scope
// per spec.md §1; this function stands in for that generator's output.
func Default() *Registry {
	r := New()

	r.Register(TableMeta{
		Name:             "user_profile",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "name"),
		PullRule:         EqUserID("id"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "playlist",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "user_ref", "name", "genre_default", "instrument_ref"),
		DependsOn:        []string{"user_profile", "instrument"},
		PullRule:         EqUserID("user_ref"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "tune",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "title", "private_for", "genre", "mode"),
		DependsOn:        []string{"genre"},
		PullRule: Compound(OpOR,
			OrNullEqUserID("private_for"),
			InCollection("genre", "selectedGenres"),
		),
		PushRule: PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category: CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "playlist_tune",
		PrimaryKey:       []string{"playlist", "tune"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("playlist", "tune", "goal", "scheduled", "learned_at"),
		DependsOn:        []string{"playlist", "tune"},
		PullRule:         RPC("sync_get_user_playlist_tunes", "userId", "afterTimestamp", "limit", "offset"),
		PushRule:         PushRule{ConflictTarget: []string{"playlist", "tune"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "practice_record",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "playlist", "tune", "practiced_at", "quality", "interval", "ease_factor"),
		DependsOn:        []string{"playlist_tune"},
		PullRule:         RPC("sync_get_user_practice_records", "userId", "afterTimestamp", "limit", "offset"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "daily_practice_queue",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "user_ref", "playlist", "tune", "window_start_utc", "completed_at"),
		DependsOn:        []string{"playlist_tune"},
		PullRule:         EqUserID("user_ref"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "note",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "tune", "user_ref", "body"),
		DependsOn:        []string{"tune"},
		PullRule:         RPC("sync_get_user_notes", "userId", "selectedGenreIds", "afterTimestamp", "limit", "offset"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "reference",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "tune", "url"),
		DependsOn:        []string{"tune"},
		PullRule:         InCollection("tune", "ownedTunes"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "tag",
		PrimaryKey:       []string{"id"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("id", "tune", "label"),
		DependsOn:        []string{"tune"},
		PullRule:         InCollection("tune", "ownedTunes"),
		PushRule:         PushRule{ConflictTarget: []string{"id"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "table_transient_data",
		PrimaryKey:       []string{"user_ref", "playlist", "tune"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("user_ref", "playlist", "tune", "preview_json"),
		DependsOn:        []string{"playlist_tune"},
		PullRule:         EqUserID("user_ref"),
		PushRule:         PushRule{ConflictTarget: []string{"user_ref", "playlist", "tune"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "user_genre_selection",
		PrimaryKey:       []string{"user_ref", "genre"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("user_ref", "genre"),
		DependsOn:        []string{"user_profile", "genre"},
		PullRule:         EqUserID("user_ref"),
		PushRule:         PushRule{ConflictTarget: []string{"user_ref", "genre"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	r.Register(TableMeta{
		Name:             "preferences",
		PrimaryKey:       []string{"user_ref"},
		TimestampColumns: []string{"last_modified_at"},
		Columns:          cols("user_ref", "algorithm", "daily_goal_minutes"),
		DependsOn:        []string{"user_profile"},
		PullRule:         EqUserID("user_ref"),
		PushRule:         PushRule{ConflictTarget: []string{"user_ref"}, SoftDelete: true},
		Category:         CategoryUser,
	})

	// Reference tables: migrated by release, pull-only, never in the
	// outbox (spec.md §3.2).
	r.Register(TableMeta{Name: "genre", PrimaryKey: []string{"id"}, Columns: []string{"id", "name"}, PullRule: All(), Category: CategoryReference})
	r.Register(TableMeta{Name: "tune_type", PrimaryKey: []string{"id"}, Columns: []string{"id", "name"}, PullRule: All(), Category: CategoryReference})
	r.Register(TableMeta{Name: "instrument", PrimaryKey: []string{"id"}, Columns: []string{"id", "name"}, PullRule: All(), Category: CategoryReference})
	r.Register(TableMeta{
		Name:       "genre_tune_type",
		PrimaryKey: []string{"genre", "tune_type"},
		Columns:    []string{"genre", "tune_type"},
		DependsOn:  []string{"genre", "tune_type"},
		PullRule:   All(),
		Category:   CategoryReference,
	})

	return r
}

// PreSyncTables is the ordered small-metadata pre-fetch list from
// spec.md §4.9 step 1. It is listed explicitly (rather than derived from
// FKOrder) because it intentionally excludes the large catalog tables
// (tune, note, reference, tag, practice_record, daily_practice_queue)
// even though those depend on some of these tables.
func PreSyncTables() []string {
	return []string{"user_profile", "user_genre_selection", "instrument", "genre", "playlist"}
}
