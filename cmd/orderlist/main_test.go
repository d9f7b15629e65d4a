package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"orderfeed/internal/model"
	"orderfeed/internal/view"
)

func TestPrintPage(t *testing.T) {
	var orders []model.Order
	in := `[{"orderId":"ORD-2","status":"Delivered","address":{"contactName":"Ravi","contactPhone":98450},` +
		`"items":[{"quantity":2},{"quantity":1}],"pricing":{"grandTotal":335}},` +
		`{"orderId":"ORD-1","status":"Pending"}]`
	if err := json.Unmarshal([]byte(in), &orders); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	var buf bytes.Buffer
	printPage(&buf, view.Paginate(orders, 1, 1), view.CountByStatus(orders))
	out := buf.String()
	for _, want := range []string{"ORD-2", "Delivered", "Ravi", "98450", "335.00", "page 1/2, 2 matching", "pending 1, delivered 1, canceled 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ORD-1") {
		t.Fatalf("second page leaked into first:\n%s", out)
	}
}
