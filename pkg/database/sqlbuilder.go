package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded refers to the row proposed for insertion in an ON CONFLICT clause.
func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

// OnConflictUpdate overwrites updateCols from the proposed row when the
// conflictCols constraint fires.
func (b *InsertBuilder) OnConflictUpdate(conflictCols []string, updateCols ...string) *InsertBuilder {
	sets := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), strings.Join(sets, ", ")))
	return b
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// Buildf builds a Postgres query from a format string; each %v becomes a placeholder.
func Buildf(format string, args ...any) (string, []any) {
	return sqlbuilder.WithFlavor(sqlbuilder.Buildf(format, args...), sqlbuilder.PostgreSQL).Build()
}
