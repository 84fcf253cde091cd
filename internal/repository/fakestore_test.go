package repository

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pulseone/pulseone/internal/store"
)

// fakeStore is a minimal in-memory stand-in for the store.Store
// collaborator, understanding exactly the SQL shapes Repository emits
// (spec §6 treats the persistent store as an external collaborator; a
// real implementation sits behind database/sql in cmd/pulseoned). It
// keeps every column as its literal SQL text, mirroring how the values
// arrive from Mapper.ToValues, and evaluates WHERE clauses against that
// text - enough to exercise Repository's contract without depending on
// a real database driver in unit tests.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]string // table -> key -> column -> literal text
	fail   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]map[string]map[string]string)}
}

var (
	reInsert = regexp.MustCompile(`(?s)^INSERT INTO (\w+) \((.+?)\) VALUES \((.+?)\) ON DUPLICATE KEY UPDATE (.+)$`)
	reUpdate = regexp.MustCompile(`(?s)^UPDATE (\w+) SET (.+) WHERE (\w+) = '(.*)'$`)
	reDelete = regexp.MustCompile(`(?s)^DELETE FROM (\w+) WHERE (\w+) = '(.*)'$`)
	reCount  = regexp.MustCompile(`(?s)^SELECT COUNT\(\*\) AS n FROM (\w+)(?: WHERE (.+))?$`)
	reSelect = regexp.MustCompile(`(?s)^SELECT (.+) FROM (\w+)(?: WHERE (.+?))?(?: ORDER BY (.+?))?(?: LIMIT (\d+) OFFSET (\d+))?$`)
)

func (f *fakeStore) ExecuteNonQuery(_ context.Context, sql string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errFake
	}

	if m := reInsert.FindStringSubmatch(sql); m != nil {
		table, cols, vals := m[1], splitCSV(m[2]), splitCSV(m[3])
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = unquote(vals[i])
		}
		tbl := f.table(table)
		key := row[cols[0]]
		tbl[key] = row
		return true, nil
	}
	if m := reUpdate.FindStringSubmatch(sql); m != nil {
		table, assigns, keyCol, keyVal := m[1], m[2], m[3], m[4]
		tbl := f.table(table)
		row, ok := tbl[keyVal]
		if !ok {
			return true, nil
		}
		for _, a := range splitCSV(assigns) {
			parts := strings.SplitN(a, "=", 2)
			col := strings.TrimSpace(parts[0])
			row[col] = unquote(strings.TrimSpace(parts[1]))
		}
		row[keyCol] = keyVal
		return true, nil
	}
	if m := reDelete.FindStringSubmatch(sql); m != nil {
		table, _, keyVal := m[1], m[2], m[3]
		delete(f.table(table), keyVal)
		return true, nil
	}
	return false, errUnrecognized
}

func (f *fakeStore) ExecuteQuery(_ context.Context, sql string) ([]store.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errFake
	}

	if m := reCount.FindStringSubmatch(sql); m != nil {
		table, where := m[1], m[2]
		rows := f.matching(table, where)
		return []store.Row{{"n": len(rows)}}, nil
	}

	if m := reSelect.FindStringSubmatch(sql); m != nil {
		cols, table, where, order, limit, offset := m[1], m[2], m[3], m[4], m[5], m[6]
		rows := f.matching(table, where)
		if order != "" {
			applyOrder(rows, order)
		}
		if limit != "" {
			l, _ := strconv.Atoi(limit)
			o, _ := strconv.Atoi(offset)
			if o >= len(rows) {
				rows = nil
			} else {
				end := o + l
				if end > len(rows) {
					end = len(rows)
				}
				rows = rows[o:end]
			}
		}
		out := make([]store.Row, len(rows))
		for i, r := range rows {
			sr := store.Row{}
			for _, c := range splitCSV(cols) {
				c = strings.TrimSpace(c)
				sr[c] = r[c]
			}
			out[i] = sr
		}
		return out, nil
	}
	return nil, errUnrecognized
}

func (f *fakeStore) table(name string) map[string]map[string]string {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]string)
		f.tables[name] = t
	}
	return t
}

func (f *fakeStore) matching(table, where string) []map[string]string {
	tbl := f.table(table)
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]string
	for _, k := range keys {
		row := tbl[k]
		if where == "" || evalWhere(row, where) {
			out = append(out, row)
		}
	}
	return out
}

func evalWhere(row map[string]string, where string) bool {
	for _, clause := range strings.Split(where, " AND ") {
		if !evalClause(row, strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

var reClause = regexp.MustCompile(`^(\w+) (=|!=|<=|>=|<|>|LIKE|IN) (.+)$`)

func evalClause(row map[string]string, clause string) bool {
	m := reClause.FindStringSubmatch(clause)
	if m == nil {
		return false
	}
	field, op, rhs := m[1], m[2], m[3]
	actual := row[field]

	switch op {
	case "LIKE":
		needle := strings.Trim(rhs, "'%")
		return strings.Contains(actual, needle)
	case "IN":
		list := strings.Trim(rhs, "()")
		for _, item := range splitCSV(list) {
			if unquote(strings.TrimSpace(item)) == actual {
				return true
			}
		}
		return false
	default:
		val := unquote(rhs)
		af, aerr := strconv.ParseFloat(actual, 64)
		vf, verr := strconv.ParseFloat(val, 64)
		if aerr == nil && verr == nil {
			switch op {
			case "=":
				return af == vf
			case "!=":
				return af != vf
			case "<":
				return af < vf
			case "<=":
				return af <= vf
			case ">":
				return af > vf
			case ">=":
				return af >= vf
			}
		}
		switch op {
		case "=":
			return actual == val
		case "!=":
			return actual != val
		case "<":
			return actual < val
		case "<=":
			return actual <= val
		case ">":
			return actual > val
		case ">=":
			return actual >= val
		}
		return false
	}
}

func applyOrder(rows []map[string]string, order string) {
	type term struct {
		field string
		asc   bool
	}
	var terms []term
	for _, part := range strings.Split(order, ", ") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			continue
		}
		terms = append(terms, term{field: fields[0], asc: fields[1] == "ASC"})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, t := range terms {
			a, b := rows[i][t.field], rows[j][t.field]
			if a == b {
				continue
			}
			if t.asc {
				return a < b
			}
			return a > b
		}
		return false
	})
}

// splitCSV splits a top-level comma list, respecting single-quoted
// substrings so commas inside quoted text (e.g. an IN(...) literal) are
// not mistaken for separators.
func splitCSV(s string) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const (
	errFake         fakeError = "fake store failure"
	errUnrecognized fakeError = "fake store: unrecognized statement shape"
)
