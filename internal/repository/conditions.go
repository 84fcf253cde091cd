// Package repository implements the uniform CRUD + conditional-query +
// bounded-TTL-cache contract spec §4.1 requires of every entity kind, as
// a single generic Repository[K, E] parameterized by an entity-specific
// Mapper, rather than the teacher's one-file-per-entity style (the
// teacher doesn't need this generalization since it only ever stores one
// entity kind, Issue; PulseOne's "repository layer" spec module
// explicitly asks for the opposite: a uniform contract applied across
// Device, DataPoint, CurrentValue, and the auxiliary entities).
package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pulseone/pulseone/internal/store"
)

// Op is a comparison operator supported by QueryCondition.
type Op string

const (
	OpEq   Op = "="
	OpNeq  Op = "!="
	OpLt   Op = "<"
	OpLte  Op = "<="
	OpGt   Op = ">"
	OpGte  Op = ">="
	OpLike Op = "LIKE"
	OpIn   Op = "IN"
)

// QueryCondition is one predicate in a find_by_conditions call (spec
// §4.1): a field name, an operator, and its value as text.
type QueryCondition struct {
	Field string
	Op    Op
	Value string
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Field     string
	Ascending bool
}

// Pagination is 1-based page + page size, translated to LIMIT/OFFSET.
type Pagination struct {
	Page int
	Size int
}

// LimitOffset returns the SQL LIMIT/OFFSET pair for this pagination,
// per spec §4.1: "limit=size, offset=(page-1)*size".
func (p Pagination) LimitOffset() (limit, offset int) {
	if p.Size <= 0 {
		return 0, 0
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return p.Size, (page - 1) * p.Size
}

// escapeLiteral doubles embedded single quotes (spec §6).
func escapeLiteral(s string) string {
	return store.EscapeLiteral(s)
}

// buildWhere renders a condition set as a SQL WHERE clause body (without
// the leading "WHERE"), matching spec §4.1's condition/op vocabulary:
// LIKE is a case-sensitive substring match wrapped as %v%; IN takes a
// comma-separated value list.
func buildWhere(conds []QueryCondition) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, renderCondition(c))
	}
	return strings.Join(parts, " AND ")
}

func renderCondition(c QueryCondition) string {
	switch c.Op {
	case OpLike:
		return fmt.Sprintf("%s LIKE '%%%s%%'", c.Field, escapeLiteral(c.Value))
	case OpIn:
		items := strings.Split(c.Value, ",")
		quoted := make([]string, len(items))
		for i, it := range items {
			quoted[i] = "'" + escapeLiteral(strings.TrimSpace(it)) + "'"
		}
		return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(quoted, ", "))
	default:
		return fmt.Sprintf("%s %s '%s'", c.Field, c.Op, escapeLiteral(c.Value))
	}
}

// buildOrderBy renders one or more ORDER BY terms.
func buildOrderBy(order []OrderBy) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, o := range order {
		dir := "ASC"
		if !o.Ascending {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", o.Field, dir)
	}
	return strings.Join(parts, ", ")
}

// quoteInList builds a quoted comma-separated IN(...) list from raw ids,
// used by FindByIDs/DeleteByIDs instead of going through QueryCondition.
func quoteInList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + escapeLiteral(id) + "'"
	}
	return strings.Join(quoted, ", ")
}

// formatFloat renders a float the same way for every float column value
// a mapper writes.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
