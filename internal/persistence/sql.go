// Package persistence holds SQL helpers shared by the store implementations.
package persistence

import (
	"sort"
	"strings"

	"example.com/tracker/internal/domain"
)

// Dialect renders identifiers and positional parameters for one database.
type Dialect struct {
	Quote       func(ident string) string
	Placeholder func(n int) string
}

// DeleteChildrenSQL renders the delete statement for rel. The parent id is
// bound as the first parameter.
func (d Dialect) DeleteChildrenSQL(rel domain.ChildRelation) string {
	return "DELETE FROM " + d.Quote(rel.Table) + " WHERE " + d.parentFilter(rel, d.Placeholder(1))
}

// ChildIDsSQL renders the select of the ids of rel's rows, bound like
// DeleteChildrenSQL.
func (d Dialect) ChildIDsSQL(rel domain.ChildRelation) string {
	return "SELECT " + d.Quote("id") + " FROM " + d.Quote(rel.Table) + " WHERE " + d.parentFilter(rel, d.Placeholder(1))
}

func (d Dialect) parentFilter(rel domain.ChildRelation, param string) string {
	if rel.Through == nil {
		return d.Quote(rel.ForeignKey) + " = " + param
	}
	return d.Quote(rel.ForeignKey) + " IN (SELECT " + d.Quote("id") + " FROM " + d.Quote(rel.Through.Table) +
		" WHERE " + d.parentFilter(*rel.Through, param) + ")"
}

// ScheduleValues maps the schedule columns present on a source table to their
// new values. Columns the source does not have are omitted.
func ScheduleValues(cols domain.ScheduleColumns, patch domain.SchedulePatch) map[string]any {
	values := make(map[string]any, 3)
	if cols.Date != "" {
		values[cols.Date] = patch.Date
	}
	if cols.Start != "" {
		values[cols.Start] = patch.Start
	}
	if cols.End != "" {
		values[cols.End] = patch.End
	}
	return values
}

// UpdateScheduleSQL renders an UPDATE of the schedule columns of desc scoped
// to one user's row. Arguments are the column values followed by id and user id.
func (d Dialect) UpdateScheduleSQL(desc domain.SourceDescriptor, userID, id string, patch domain.SchedulePatch) (string, []any) {
	values := ScheduleValues(desc.Schedule, patch)
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, col := range cols {
		sets = append(sets, d.Quote(col)+" = "+d.Placeholder(i+1))
		args = append(args, values[col])
	}
	n := len(cols)
	query := "UPDATE " + d.Quote(desc.Table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + d.Quote("id") + " = " + d.Placeholder(n+1) + " AND " + d.Quote("user_id") + " = " + d.Placeholder(n+2)
	args = append(args, id, userID)
	return query, args
}
