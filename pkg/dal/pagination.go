package dal

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Pagination 分页参数
type Pagination struct {
	Page     int `query:"page" json:"page"`
	PageSize int `query:"pageSize" json:"pageSize"`
}

// NewPagination 创建分页参数，越界值回落到默认
func NewPagination(page, pageSize int) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

// Offset 偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	List     []T   `json:"list"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](list []T, total int64, p *Pagination) *PagedResult[T] {
	if list == nil {
		list = []T{}
	}
	return &PagedResult[T]{List: list, Total: total, Page: p.Page, PageSize: p.PageSize}
}

// PaginationFromQuery 从请求参数读取分页
func PaginationFromQuery(c *fiber.Ctx) *Pagination {
	return NewPagination(c.QueryInt("page", 1), c.QueryInt("pageSize", defaultPageSize))
}

// ParamID 读取路径中的ID参数
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("无效的" + name)
	}
	return id, nil
}
