// Package registry is the single source of truth for how each table is
// synced. It is declarative: the engine (push, pull, adapter) contains
// no table names, only registry lookups. Modeled on the teacher's own
// declarative capability registry (internal/registry) generalized from
// "capabilities" to "sync contracts", and on internal/query's rule
// evaluator for the compound/predicate fallback shape.
package registry

import "fmt"

// ChangeCategory distinguishes tables that go through the outbox from
// read-only reference tables.
type ChangeCategory int

const (
	// CategoryUser tables are user-writable and go through the outbox.
	CategoryUser ChangeCategory = iota
	// CategoryReference tables are pull-only; no outbox, no triggers.
	CategoryReference
)

// RuleKind identifies which pull-rule shape a table declares.
type RuleKind int

const (
	// RuleEqUserID matches col = userId (private rows).
	RuleEqUserID RuleKind = iota
	// RuleOrNullEqUserID matches col IS NULL OR col = userId (public-or-mine).
	RuleOrNullEqUserID
	// RuleInCollection matches col IN U[collectionName].
	RuleInCollection
	// RuleCompound combines sub-rules with AND/OR.
	RuleCompound
	// RuleRPC delegates filtering entirely to a named server-side function.
	RuleRPC
	// RuleAll matches every row with no per-user filter — used by
	// reference tables, which are migrated by release and never scoped
	// to a user (spec.md §3.2).
	RuleAll
)

// BoolOp is the combinator for a RuleCompound.
type BoolOp int

const (
	OpAND BoolOp = iota
	OpOR
)

// PullRule is a node in the declarative filter-rule tree. Exactly one of
// the kind-specific fields is meaningful for a given Kind.
type PullRule struct {
	Kind RuleKind

	// RuleEqUserID / RuleOrNullEqUserID / RuleInCollection
	Column         string
	CollectionName string // RuleInCollection only

	// RuleCompound
	Op    BoolOp
	Rules []PullRule

	// RuleRPC
	RPCName   string
	ParamSpec []string // ordered param names drawn from the sync context
}

// EqUserID builds an eqUserId(col) rule.
func EqUserID(col string) PullRule { return PullRule{Kind: RuleEqUserID, Column: col} }

// OrNullEqUserID builds an orNullEqUserId(col) rule.
func OrNullEqUserID(col string) PullRule { return PullRule{Kind: RuleOrNullEqUserID, Column: col} }

// InCollection builds an inCollection(col, collectionName) rule.
func InCollection(col, collection string) PullRule {
	return PullRule{Kind: RuleInCollection, Column: col, CollectionName: collection}
}

// Compound builds a compound(ops, rules) rule. Nested compounds are
// allowed; the evaluator combines sub-results by op, skipping nil
// (meaning "no constraint possible") results from children.
func Compound(op BoolOp, rules ...PullRule) PullRule {
	return PullRule{Kind: RuleCompound, Op: op, Rules: rules}
}

// RPC builds an rpc(name, paramSpec) rule.
func RPC(name string, paramSpec ...string) PullRule {
	return PullRule{Kind: RuleRPC, RPCName: name, ParamSpec: paramSpec}
}

// All builds an unconditional, full-table pull rule.
func All() PullRule { return PullRule{Kind: RuleAll} }

// PushRule describes how to write a table's rows to the remote.
type PushRule struct {
	ConflictTarget []string // PK or unique columns used as the upsert conflict target
	SoftDelete     bool     // always true per spec.md §3.5 invariant 3; kept explicit for clarity
}

// TableMeta is the full sync contract for one table.
type TableMeta struct {
	Name string

	// PrimaryKey is the ordered key column list (single column, or a
	// composite key such as playlist_tune's (playlist, tune)).
	PrimaryKey []string

	// UniqueKeys are additional column sets usable as upsert conflict
	// targets.
	UniqueKeys [][]string

	// TimestampColumns are the LWW timestamp columns, in local-table
	// naming.
	TimestampColumns []string

	// BoolColumns lists columns that need integer-0/1 <-> bool coercion
	// when crossing the local/remote boundary.
	BoolColumns []string

	// Columns is the full local column list, in schema order, including
	// the primary key and the four required sync columns. The trigger
	// installer uses it to build the outbox payload snapshot and the
	// generic row-I/O helpers use it to build parameterized SQL.
	Columns []string

	// RemoteName records the table's name on the remote side; Register
	// sets it to Name when left empty (Name is always the local name).
	// Column name overrides live in the adapter package, beside
	// this registry entry but not inside it, per spec.md §4.2.
	RemoteName string

	// DependsOn lists tables that must be pulled before this one, for
	// FK-safe ordering (spec.md §4.6).
	DependsOn []string

	PullRule PullRule
	PushRule PushRule
	Category ChangeCategory
}

// Registry is the full set of table contracts, keyed by local table name.
type Registry struct {
	tables map[string]TableMeta
	order  []string // insertion order, preserved for deterministic iteration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tables: make(map[string]TableMeta)}
}

// Register adds a table contract. It panics on duplicate registration
// because a duplicate registry entry is a programming error caught at
// startup, not a runtime condition to handle gracefully.
func (r *Registry) Register(m TableMeta) {
	if _, exists := r.tables[m.Name]; exists {
		panic(fmt.Sprintf("registry: table %q registered twice", m.Name))
	}
	if m.RemoteName == "" {
		m.RemoteName = m.Name
	}
	r.tables[m.Name] = m
	r.order = append(r.order, m.Name)
}

// Lookup returns the contract for a table, or ok=false if unregistered.
func (r *Registry) Lookup(table string) (TableMeta, bool) {
	m, ok := r.tables[table]
	return m, ok
}

// MustLookup is Lookup but panics on a missing table; used at wiring
// time where an unregistered table name is always a bug.
func (r *Registry) MustLookup(table string) TableMeta {
	m, ok := r.tables[table]
	if !ok {
		panic(fmt.Sprintf("registry: unknown table %q", table))
	}
	return m
}

// SyncableTables returns the CategoryUser tables in registration order.
func (r *Registry) SyncableTables() []TableMeta {
	var out []TableMeta
	for _, name := range r.order {
		m := r.tables[name]
		if m.Category == CategoryUser {
			out = append(out, m)
		}
	}
	return out
}

// ReferenceTables returns the CategoryReference tables in registration
// order.
func (r *Registry) ReferenceTables() []TableMeta {
	var out []TableMeta
	for _, name := range r.order {
		m := r.tables[name]
		if m.Category == CategoryReference {
			out = append(out, m)
		}
	}
	return out
}

// FKOrder returns every registered table name topologically sorted so
// that every table appears after everything in its DependsOn list. It
// panics on a dependency cycle, which (like a duplicate registration)
// is a startup-time configuration bug.
func (r *Registry) FKOrder() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(r.order))
	var out []string

	var visit func(name string)
	visit = func(name string) {
		switch state[name] {
		case black:
			return
		case gray:
			panic(fmt.Sprintf("registry: dependency cycle involving %q", name))
		}
		state[name] = gray
		for _, dep := range r.tables[name].DependsOn {
			visit(dep)
		}
		state[name] = black
		out = append(out, name)
	}

	for _, name := range r.order {
		visit(name)
	}
	return out
}
