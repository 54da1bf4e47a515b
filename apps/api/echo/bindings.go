package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const (
	orderingParam = "ordering"
	pageParam     = "page"
	pageSizeParam = "page_size"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `ordering=field,-field`; a "-" prefix sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindOrdering(ctx echo.Context) []core.DBOrdering {
	ord := new(Ordering)
	ord.Bind(ctx)
	return ord.Orderings
}

// bindPagination reads `page` & `page_size`; no `page` means no pagination.
func bindPagination(ctx echo.Context) (core.Pagination, error) {
	var page core.Pagination
	err := echo.QueryParamsBinder(ctx).
		Int(pageParam, &page.Page).
		Int(pageSizeParam, &page.PageSize).
		BindError()
	if err != nil {
		return core.Pagination{}, err
	}
	if page.Page < 0 {
		return core.Pagination{}, core.NewFieldValidationError(pageParam, "page must be positive")
	}
	return page.Normalize(), nil
}

// listResponse answers a bare array, or a page envelope when pagination was requested.
func listResponse(ctx echo.Context, data interface{}, total int, page core.Pagination) error {
	if !page.Enabled() {
		return ctx.JSON(http.StatusOK, data)
	}
	return ctx.JSON(http.StatusOK, core.NewPage(data, total, page))
}

// queryList reads a list param, either repeated (`?s=a&s=b`) or comma separated (`?s=a,b`).
func queryList(ctx echo.Context, name string) []string {
	var out []string
	for _, val := range ctx.QueryParams()[name] {
		for _, v := range strings.Split(val, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func bindBody(ctx echo.Context, dest interface{}, name string) error {
	if err := ctx.Bind(dest); err != nil {
		return errors.Wrap(err, "binding to "+name)
	}
	return nil
}

// queryBool reads an optional boolean param.
func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewFieldValidationError(name, "must be true or false")
	}
	return &b, nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
