// Package view holds pure derivations over a point-in-time order list:
// status and text filtering, page windows and per-status counts.
package view

import (
	"strings"

	"orderfeed/internal/model"
)

// AllStatuses disables the status filter.
const AllStatuses = "All"

// DefaultPerPage matches the dashboard's initial page size.
const DefaultPerPage = 10

// Query selects a subset of orders. Empty fields match everything.
type Query struct {
	Status string `form:"status"`
	Search string `form:"q"`
}

// Matches reports whether o passes the query. OrderID and contact name
// compare case-insensitively; the phone number is matched as typed.
func (q Query) Matches(o model.Order) bool {
	if q.Status != "" && q.Status != AllStatuses && o.Status != q.Status {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(o.OrderID), needle) ||
		strings.Contains(strings.ToLower(o.ContactName()), needle) ||
		strings.Contains(o.ContactPhone(), q.Search)
}

// Filter keeps the input order.
func Filter(orders []model.Order, q Query) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if q.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// Page is one window over a filtered list.
type Page struct {
	Orders     []model.Order `json:"orders"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// Paginate slices orders into 1-based pages. A page past the end yields an
// empty window but still reports Total and TotalPages.
func Paginate(orders []model.Order, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	total := len(orders)
	p := Page{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: total / perPage,
		Orders:     []model.Order{},
	}
	if total%perPage != 0 {
		p.TotalPages++
	}
	// page and perPage come from the query string; compare before
	// multiplying so neither can overflow.
	if page-1 >= p.TotalPages {
		return p
	}
	start := (page - 1) * perPage
	end := total
	if total-start > perPage {
		end = start + perPage
	}
	p.Orders = orders[start:end]
	return p
}

// Counts is a reduction of the list by status label.
type Counts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// Of returns the count for a status label.
func (c Counts) Of(status string) int { return c.ByStatus[status] }

// CountByStatus always reports the known labels, even at zero.
func CountByStatus(orders []model.Order) Counts {
	c := Counts{Total: len(orders), ByStatus: make(map[string]int, len(model.KnownStatuses))}
	for _, s := range model.KnownStatuses {
		c.ByStatus[s] = 0
	}
	for _, o := range orders {
		c.ByStatus[o.Status]++
	}
	return c
}
