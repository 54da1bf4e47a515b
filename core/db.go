package core

import (
	"context"
	"database/sql"
	"math"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Orderings is what a listing sorts by.
type Orderings []DBOrdering

// Allowed drops orderings on fields not present in `fields`.
func (o Orderings) Allowed(fields ...string) Orderings {
	out := make(Orderings, 0, len(o))
	for _, ord := range o {
		if StringInSlice(ord.Field, fields) {
			out = append(out, ord)
		}
	}
	return out
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is a page request; a zero Page means "everything".
type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) Enabled() bool { return p.Page > 0 }

func (p Pagination) Normalize() Pagination {
	if p.Page <= 0 {
		return p
	}
	switch {
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Bounds returns the [start, end) indexes of the page within n items.
func (p Pagination) Bounds(n int) (int, int) {
	if !p.Enabled() {
		return 0, n
	}
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.PageSize
	if end > n {
		end = n
	}
	return start, end
}

// Page is a paginated listing response.
type Page struct {
	Data        interface{} `json:"data"`
	TotalRows   int         `json:"total_rows"`
	TotalPages  int         `json:"total_pages"`
	CurrentPage int         `json:"current_page"`
	PageSize    int         `json:"page_size"`
}

func NewPage(data interface{}, total int, p Pagination) Page {
	pages := 0
	if total > 0 && p.PageSize > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.PageSize)))
	}
	return Page{Data: data, TotalRows: total, TotalPages: pages, CurrentPage: p.Page, PageSize: p.PageSize}
}
