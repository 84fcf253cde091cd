package repository

import (
	"context"
	"fmt"

	"github.com/pulseone/pulseone/internal/cache"
	"github.com/pulseone/pulseone/internal/store"
)

// Mapper adapts one entity type E, keyed by K, to rows in a single SQL
// table. Concrete mappers (DeviceMapper, DataPointMapper, ...) live in
// this package, one file per entity; Repository itself has no entity-specific
// knowledge, matching spec §9's "generic repository parameterized by
// entity type" design note.
type Mapper[K comparable, E any] interface {
	// Table is the backing SQL table name.
	Table() string
	// Columns lists every column Repository should select, in order.
	Columns() []string
	// KeyColumn is the primary key column name.
	KeyColumn() string
	// KeyOf extracts the entity's key.
	KeyOf(e E) K
	// WithKey returns a copy of e with its key set to k, used to assign
	// an id on insert (spec §4.1: "assigns id on insert, upsert
	// semantics").
	WithKey(e E, k K) E
	// NewKey generates a fresh key for an insert whose entity arrives
	// with a zero key.
	NewKey() K
	// IsZeroKey reports whether k is the zero/unset key value.
	IsZeroKey(k K) bool
	// ToValues renders e as column -> SQL literal text (already
	// escaped) for INSERT/UPDATE statements, excluding the key column.
	ToValues(e E) map[string]string
	// FromRow reconstructs an entity from a raw store.Row.
	FromRow(row store.Row) (E, error)
	// KeyText renders k as SQL literal text for WHERE clauses.
	KeyText(k K) string
}

// Repository implements the uniform CRUD + conditional query contract of
// spec §4.1 for one entity kind, backed by a store.Store and fronted by
// a bounded TTL cache.Cache (spec: "Cache contract (integral to every
// repository)"). A database-layer failure is surfaced as false/empty/
// none here, never propagated as a panic or typed error across this
// boundary (spec §4.1 Failure), with the reason logged.
type Repository[K comparable, E any] struct {
	db     store.Store
	mapper Mapper[K, E]
	cache  *cache.Cache[K, E]
	log    func(format string, args ...any)
}

// New constructs a Repository. cacheOpts configure the underlying
// cache.Cache (size/TTL); logf receives diagnostic messages for
// store-layer failures (spec: "with the reason logged").
func New[K comparable, E any](db store.Store, mapper Mapper[K, E], logf func(string, ...any), cacheOpts ...cache.Option[K, E]) *Repository[K, E] {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Repository[K, E]{
		db:     db,
		mapper: mapper,
		cache:  cache.New(cacheOpts...),
		log:    logf,
	}
}

// Cache exposes the underlying cache for stats/ops callers (spec
// observable operations: clear_cache, clear_cache_for_id,
// set_cache_enabled).
func (r *Repository[K, E]) Cache() *cache.Cache[K, E] { return r.cache }

func (r *Repository[K, E]) selectClause() string {
	return fmt.Sprintf("SELECT %s FROM %s", joinColumns(r.mapper.Columns()), r.mapper.Table())
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// FindAll returns every row for this entity kind, uncached (a full scan
// is never a cache hit/miss candidate under this contract).
func (r *Repository[K, E]) FindAll(ctx context.Context) []E {
	sql := r.selectClause()
	rows, err := r.db.ExecuteQuery(ctx, sql)
	if err != nil {
		r.log("repository: find_all on %s failed: %v", r.mapper.Table(), err)
		return nil
	}
	out := make([]E, 0, len(rows))
	for _, row := range rows {
		e, err := r.mapper.FromRow(row)
		if err != nil {
			r.log("repository: find_all on %s: skipping unmappable row: %v", r.mapper.Table(), err)
			continue
		}
		out = append(out, e)
	}
	return out
}

// FindByID returns the entity with key id, consulting the cache first.
func (r *Repository[K, E]) FindByID(ctx context.Context, id K) (E, bool) {
	var zero E
	if e, ok := r.cache.Get(id); ok {
		return e, true
	}

	sql := fmt.Sprintf("%s WHERE %s = '%s'", r.selectClause(), r.mapper.KeyColumn(), r.mapper.KeyText(id))
	rows, err := r.db.ExecuteQuery(ctx, sql)
	if err != nil {
		r.log("repository: find_by_id on %s failed: %v", r.mapper.Table(), err)
		return zero, false
	}
	if len(rows) == 0 {
		return zero, false
	}
	e, err := r.mapper.FromRow(rows[0])
	if err != nil {
		r.log("repository: find_by_id on %s: unmappable row: %v", r.mapper.Table(), err)
		return zero, false
	}
	r.cache.Set(id, e)
	return e, true
}

// Exists reports whether id is present. It goes through FindByID, so
// it decodes the full entity and benefits from caching.
func (r *Repository[K, E]) Exists(ctx context.Context, id K) bool {
	_, ok := r.FindByID(ctx, id)
	return ok
}

// FindByIDs returns entities for every id that exists; missing ids are
// silently skipped (spec §4.1).
func (r *Repository[K, E]) FindByIDs(ctx context.Context, ids []K) []E {
	out := make([]E, 0, len(ids))
	var toFetch []K
	seen := make(map[int]bool)
	for i, id := range ids {
		if e, ok := r.cache.Get(id); ok {
			out = append(out, e)
			seen[i] = true
		} else {
			toFetch = append(toFetch, id)
		}
	}
	if len(toFetch) == 0 {
		return out
	}

	texts := make([]string, len(toFetch))
	for i, id := range toFetch {
		texts[i] = "'" + r.mapper.KeyText(id) + "'"
	}
	sql := fmt.Sprintf("%s WHERE %s IN (%s)", r.selectClause(), r.mapper.KeyColumn(), joinColumns(texts))
	rows, err := r.db.ExecuteQuery(ctx, sql)
	if err != nil {
		r.log("repository: find_by_ids on %s failed: %v", r.mapper.Table(), err)
		return out
	}
	for _, row := range rows {
		e, err := r.mapper.FromRow(row)
		if err != nil {
			continue
		}
		r.cache.Set(r.mapper.KeyOf(e), e)
		out = append(out, e)
	}
	return out
}

// Save inserts e if its key is unset, or upserts it otherwise, returning
// whether the operation succeeded and the (possibly newly assigned) key.
func (r *Repository[K, E]) Save(ctx context.Context, e E) (K, bool) {
	key := r.mapper.KeyOf(e)
	if r.mapper.IsZeroKey(key) {
		key = r.mapper.NewKey()
		e = r.mapper.WithKey(e, key)
	}

	values := r.mapper.ToValues(e)
	cols := make([]string, 0, len(values)+1)
	vals := make([]string, 0, len(values)+1)
	cols = append(cols, r.mapper.KeyColumn())
	vals = append(vals, "'"+r.mapper.KeyText(key)+"'")
	for col, val := range values {
		cols = append(cols, col)
		vals = append(vals, val)
	}

	assignments := make([]string, 0, len(values))
	for col, val := range values {
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, val))
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		r.mapper.Table(), joinColumns(cols), joinColumns(vals), joinColumns(assignments),
	)
	ok, err := r.db.ExecuteNonQuery(ctx, sql)
	if err != nil || !ok {
		r.log("repository: save on %s failed: %v", r.mapper.Table(), err)
		return key, false
	}
	r.cache.Set(key, e)
	return key, true
}

// Update overwrites an existing entity and invalidates its cache entry
// (spec §4.1/§8: a subsequent FindByID must not return the stale value).
func (r *Repository[K, E]) Update(ctx context.Context, e E) bool {
	key := r.mapper.KeyOf(e)
	values := r.mapper.ToValues(e)
	assignments := make([]string, 0, len(values))
	for col, val := range values {
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, val))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = '%s'",
		r.mapper.Table(), joinColumns(assignments), r.mapper.KeyColumn(), r.mapper.KeyText(key))

	ok, err := r.db.ExecuteNonQuery(ctx, sql)
	if err != nil || !ok {
		r.log("repository: update on %s failed: %v", r.mapper.Table(), err)
		return false
	}
	r.cache.Delete(key)
	r.cache.Set(key, e)
	return true
}

// DeleteByID removes one entity and evicts its cache entry.
func (r *Repository[K, E]) DeleteByID(ctx context.Context, id K) bool {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = '%s'", r.mapper.Table(), r.mapper.KeyColumn(), r.mapper.KeyText(id))
	ok, err := r.db.ExecuteNonQuery(ctx, sql)
	if err != nil || !ok {
		r.log("repository: delete_by_id on %s failed: %v", r.mapper.Table(), err)
		return false
	}
	r.cache.Delete(id)
	return true
}

// SaveBulk saves each entity independently, returning the count that
// succeeded (spec §4.1: "→ success count").
func (r *Repository[K, E]) SaveBulk(ctx context.Context, es []E) int {
	n := 0
	for _, e := range es {
		if _, ok := r.Save(ctx, e); ok {
			n++
		}
	}
	return n
}

// UpdateBulk updates each entity independently, returning the success count.
func (r *Repository[K, E]) UpdateBulk(ctx context.Context, es []E) int {
	n := 0
	for _, e := range es {
		if r.Update(ctx, e) {
			n++
		}
	}
	return n
}

// DeleteByIDs deletes each id independently, returning the success count.
func (r *Repository[K, E]) DeleteByIDs(ctx context.Context, ids []K) int {
	n := 0
	for _, id := range ids {
		if r.DeleteByID(ctx, id) {
			n++
		}
	}
	return n
}

// FindByConditions runs a conditional query with optional ordering and
// pagination (spec §4.1). Results of a conditional query are never
// cached as a set; individual entities returned are still written
// through to the per-id cache so a later FindByID benefits.
func (r *Repository[K, E]) FindByConditions(ctx context.Context, conds []QueryCondition, order []OrderBy, page *Pagination) []E {
	sql := r.selectClause()
	if where := buildWhere(conds); where != "" {
		sql += " WHERE " + where
	}
	if ob := buildOrderBy(order); ob != "" {
		sql += " ORDER BY " + ob
	}
	if page != nil {
		limit, offset := page.LimitOffset()
		if limit > 0 {
			sql += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
		}
	}

	rows, err := r.db.ExecuteQuery(ctx, sql)
	if err != nil {
		r.log("repository: find_by_conditions on %s failed: %v", r.mapper.Table(), err)
		return nil
	}
	out := make([]E, 0, len(rows))
	for _, row := range rows {
		e, err := r.mapper.FromRow(row)
		if err != nil {
			continue
		}
		r.cache.Set(r.mapper.KeyOf(e), e)
		out = append(out, e)
	}
	return out
}

// CountByConditions returns the number of rows matching conds, without
// paging (spec §8 testable property: equal to len(FindByConditions(C))
// for the same C without a page limit).
func (r *Repository[K, E]) CountByConditions(ctx context.Context, conds []QueryCondition) int {
	sql := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", r.mapper.Table())
	if where := buildWhere(conds); where != "" {
		sql += " WHERE " + where
	}
	rows, err := r.db.ExecuteQuery(ctx, sql)
	if err != nil || len(rows) == 0 {
		r.log("repository: count_by_conditions on %s failed: %v", r.mapper.Table(), err)
		return 0
	}
	n, _ := toInt(rows[0]["n"])
	return n
}

// FindFirstByConditions returns the first matching entity, if any.
func (r *Repository[K, E]) FindFirstByConditions(ctx context.Context, conds []QueryCondition, order []OrderBy) (E, bool) {
	page := &Pagination{Page: 1, Size: 1}
	res := r.FindByConditions(ctx, conds, order, page)
	var zero E
	if len(res) == 0 {
		return zero, false
	}
	return res[0], true
}

// ClearCache empties the repository's cache.
func (r *Repository[K, E]) ClearCache() { r.cache.Clear() }

// ClearCacheForID evicts a single cached entry.
func (r *Repository[K, E]) ClearCacheForID(id K) { r.cache.Delete(id) }

// SetCacheEnabled toggles the repository's cache on/off.
func (r *Repository[K, E]) SetCacheEnabled(enabled bool) { r.cache.SetEnabled(enabled) }

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
