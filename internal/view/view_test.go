package view

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"orderfeed/internal/model"
)

func sample() []model.Order {
	var orders []model.Order
	in := `[{"orderId":"ORD-1003","status":"Pending","address":{"contactName":"Asha Rao","contactPhone":"9876500001"}},
		{"orderId":"ORD-1002","status":"Delivered","address":{"contactName":"Vikram Singh","contactPhone":"9876500002"}},
		{"orderId":"ORD-1001","status":"Canceled","address":{"contactName":"asha mehta","contactPhone":9123400003}},
		{"orderId":"ORD-1000","status":"Returned","address":{"contactName":"Ravi","contactPhone":"9123400004"}}]`
	if err := json.Unmarshal([]byte(in), &orders); err != nil {
		panic(err)
	}
	return orders
}

func orderIDs(orders []model.Order) []string {
	out := []string{}
	for _, o := range orders {
		out = append(out, o.OrderID)
	}
	return out
}

func TestFilter_Status(t *testing.T) {
	got := orderIDs(Filter(sample(), Query{Status: "Delivered"}))
	if !reflect.DeepEqual(got, []string{"ORD-1002"}) {
		t.Fatalf("status filter=%v", got)
	}
	if n := len(Filter(sample(), Query{Status: AllStatuses})); n != 4 {
		t.Fatalf("All should keep everything, got %d", n)
	}
	if n := len(Filter(sample(), Query{})); n != 4 {
		t.Fatalf("empty query should keep everything, got %d", n)
	}
}

func TestFilter_Search(t *testing.T) {
	cases := []struct {
		q    string
		want []string
	}{
		{"asha", []string{"ORD-1003", "ORD-1001"}},
		{"ord-1002", []string{"ORD-1002"}},
		{"91234", []string{"ORD-1001", "ORD-1000"}},
		{"nobody", []string{}},
	}
	for _, tc := range cases {
		got := orderIDs(Filter(sample(), Query{Search: tc.q}))
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("search %q: got=%v want=%v", tc.q, got, tc.want)
		}
	}
}

func TestFilter_StatusAndSearch(t *testing.T) {
	got := orderIDs(Filter(sample(), Query{Status: "Pending", Search: "ASHA"}))
	if !reflect.DeepEqual(got, []string{"ORD-1003"}) {
		t.Fatalf("combined filter=%v", got)
	}
}

func TestPaginate(t *testing.T) {
	orders := sample()
	p := Paginate(orders, 2, 3)
	if p.Total != 4 || p.TotalPages != 2 || p.Page != 2 || p.PerPage != 3 {
		t.Fatalf("page meta: %+v", p)
	}
	if got := orderIDs(p.Orders); !reflect.DeepEqual(got, []string{"ORD-1000"}) {
		t.Fatalf("page 2 = %v", got)
	}

	p = Paginate(orders, 0, 0)
	if p.Page != 1 || p.PerPage != DefaultPerPage || len(p.Orders) != 4 || p.TotalPages != 1 {
		t.Fatalf("defaults: %+v", p)
	}

	p = Paginate(orders, 9, 2)
	if len(p.Orders) != 0 || p.TotalPages != 2 {
		t.Fatalf("out of range page: %+v", p)
	}

	for _, tc := range []struct{ page, perPage int }{
		{math.MaxInt64/10 + 2, 10},
		{math.MaxInt64, 2},
		{2, math.MaxInt64},
	} {
		p = Paginate(orders, tc.page, tc.perPage)
		if len(p.Orders) != 0 || p.Total != 4 {
			t.Fatalf("page=%d perPage=%d: %+v", tc.page, tc.perPage, p)
		}
	}
	if p = Paginate(orders, 1, math.MaxInt64); len(p.Orders) != 4 || p.TotalPages != 1 {
		t.Fatalf("single huge page: %+v", p)
	}

	p = Paginate(nil, 1, 10)
	if p.TotalPages != 0 || p.Orders == nil {
		t.Fatalf("empty list: %+v", p)
	}
}

func TestCountByStatus(t *testing.T) {
	c := CountByStatus(sample())
	if c.Total != 4 || c.Of("Pending") != 1 || c.Of("Delivered") != 1 || c.Of("Canceled") != 1 || c.Of("Returned") != 1 {
		t.Fatalf("counts: %+v", c)
	}
	empty := CountByStatus(nil)
	if _, ok := empty.ByStatus[model.StatusCanceled]; !ok || empty.Total != 0 {
		t.Fatalf("known labels should be present at zero: %+v", empty)
	}
}
