package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// listQuery assembles the filtered, paged SELECTs behind the List methods.
type listQuery struct {
	sql   strings.Builder
	conds []string
	args  []any
}

func newListQuery(selectFrom string) *listQuery {
	q := &listQuery{}
	q.sql.WriteString(selectFrom)
	return q
}

// arg binds v and returns its placeholder.
func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) where(col, op string, v any) {
	q.conds = append(q.conds, col+" "+op+" "+q.arg(v))
}

// window restricts col to opts.Since/Until, both inclusive.
func (q *listQuery) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(col, ">=", *opts.Since)
	}
	if opts.Until != nil {
		q.where(col, "<=", *opts.Until)
	}
}

// build appends the WHERE clause, ordering and paging.
func (q *listQuery) build(orderBy string, opts domain.ListOpts) (string, []any) {
	if len(q.conds) > 0 {
		q.sql.WriteString(" WHERE ")
		q.sql.WriteString(strings.Join(q.conds, " AND "))
	}
	q.sql.WriteString(" ORDER BY ")
	q.sql.WriteString(orderBy)
	if opts.Limit > 0 {
		q.sql.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sql.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q.sql.String(), q.args
}
