package repository

import (
	"context"
	"strconv"

	"github.com/pulseone/pulseone/internal/store"
)

// widget is a tiny test entity standing in for Device/DataPoint/etc. so
// these tests exercise Repository's generic contract without pulling in
// the full model package.
type widget struct {
	ID    string
	Name  string
	Score float64
}

type widgetMapper struct{ seq int }

func (m *widgetMapper) Table() string      { return "widgets" }
func (m *widgetMapper) Columns() []string  { return []string{"id", "name", "score"} }
func (m *widgetMapper) KeyColumn() string  { return "id" }
func (m *widgetMapper) KeyOf(w widget) string { return w.ID }
func (m *widgetMapper) WithKey(w widget, k string) widget {
	w.ID = k
	return w
}
func (m *widgetMapper) NewKey() string {
	m.seq++
	return "w" + strconv.Itoa(m.seq)
}
func (m *widgetMapper) IsZeroKey(k string) bool { return k == "" }
func (m *widgetMapper) KeyText(k string) string { return k }
func (m *widgetMapper) ToValues(w widget) map[string]string {
	return map[string]string{
		"name":  "'" + w.Name + "'",
		"score": strconv.FormatFloat(w.Score, 'g', -1, 64),
	}
}
func (m *widgetMapper) FromRow(row store.Row) (widget, error) {
	w := widget{ID: asString(row["id"]), Name: asString(row["name"])}
	if s, err := strconv.ParseFloat(asString(row["score"]), 64); err == nil {
		w.Score = s
	}
	return w, nil
}

func newTestRepo() (*Repository[string, widget], *fakeStore) {
	db := newFakeStore()
	repo := New[string, widget](db, &widgetMapper{}, nil)
	return repo, db
}

func ctx() context.Context { return context.Background() }
