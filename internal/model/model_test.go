package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOrder_PassesUnknownMembersThrough(t *testing.T) {
	in := `{"_id":"65f0","orderId":"A","status":"Pending",` +
		`"address":{"contactName":"Asha","contactPhone":9876500001,"pincode":560001},` +
		`"createdAt":"2024-01-01","paymentMethod":"COD"}`
	var o Order
	if err := json.Unmarshal([]byte(in), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.ID != "65f0" || o.OrderID != "A" || o.Status != StatusPending {
		t.Fatalf("typed fields: %+v", o)
	}
	out, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got, want map[string]any
	json.Unmarshal(out, &got)
	json.Unmarshal([]byte(in), &want)
	if !jsonEqual(got, want) {
		t.Fatalf("round trip changed payload:\n got=%s\nwant=%s", out, in)
	}
	if strings.Contains(string(out), "pricing") || strings.Contains(string(out), "items") {
		t.Fatalf("absent members were invented: %s", out)
	}
}

func TestOrder_StatusIsTheOnlyRewrittenMember(t *testing.T) {
	var o Order
	if err := json.Unmarshal([]byte(`{"orderId":"A","status":"Pending","pricing":{"grandTotal":"94.50"}}`), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	o.Status = StatusDelivered
	out, _ := json.Marshal(o)
	if string(out) != `{"orderId":"A","pricing":{"grandTotal":"94.50"},"status":"Delivered"}` {
		t.Fatalf("got %s", out)
	}
}

func TestOrder_RejectsNonStringIdentity(t *testing.T) {
	for _, in := range []string{`{"orderId":7}`, `{"orderId":"A","status":{}}`, `[1,2]`, `"A"`} {
		var o Order
		if err := json.Unmarshal([]byte(in), &o); err == nil {
			t.Fatalf("%s: expected error, got %+v", in, o)
		}
	}
	var o Order
	if err := json.Unmarshal([]byte(`{"orderId":"A","_id":null}`), &o); err != nil || o.ID != "" {
		t.Fatalf("null _id should read as empty: %v %+v", err, o)
	}
}

func TestOrder_LenientAccessors(t *testing.T) {
	var o Order
	in := `{"orderId":"A","address":{"contactName":"Ravi","contactPhone":98450},` +
		`"items":[{"name":"rice","quantity":2},{"name":"dal","quantity":"3"}],"pricing":{"grandTotal":94.5}}`
	if err := json.Unmarshal([]byte(in), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.ContactName() != "Ravi" || o.ContactPhone() != "98450" {
		t.Fatalf("contact: %q %q", o.ContactName(), o.ContactPhone())
	}
	if o.ItemCount() != 5 || o.GrandTotal() != 94.5 {
		t.Fatalf("items=%d total=%v", o.ItemCount(), o.GrandTotal())
	}
	empty := Order{OrderID: "B"}
	if empty.ContactName() != "" || empty.ItemCount() != 0 || empty.GrandTotal() != 0 {
		t.Fatalf("absent payload should read as zero")
	}
}

func TestSet(t *testing.T) {
	var o Order
	if err := o.Set("orderId", "A"); err != nil || o.OrderID != "A" {
		t.Fatalf("orderId: %v %+v", err, o)
	}
	if err := o.Set("status", 3); err == nil {
		t.Fatalf("non-string status accepted")
	}
	if err := o.Set("address", map[string]string{"contactName": "Asha"}); err != nil {
		t.Fatalf("address: %v", err)
	}
	if o.ContactName() != "Asha" || string(o.Field("address")) != `{"contactName":"Asha"}` {
		t.Fatalf("address not stored: %s", o.Field("address"))
	}
	if o.Field("missing") != nil {
		t.Fatalf("missing member should be nil")
	}
}

func TestClone_DoesNotShareMembers(t *testing.T) {
	o := Order{OrderID: "A"}
	o.Set("items", []map[string]any{{"name": "Rice", "quantity": 1}})
	c := o.Clone()
	c.Set("items", []map[string]any{{"name": "Rice", "quantity": 9}})
	c.Status = StatusCanceled
	if o.ItemCount() != 1 || o.Status != "" {
		t.Fatalf("clone mutated original: %+v", o)
	}
	if (Order{}).Clone().fields != nil {
		t.Fatalf("empty payload should stay nil")
	}
}

func TestCloneAll(t *testing.T) {
	a := Order{OrderID: "A"}
	a.Set("note", "x")
	in := []Order{a, {OrderID: "B"}}
	out := CloneAll(in)
	out[0].Set("note", "y")
	if string(in[0].Field("note")) != `"x"` || len(out) != 2 || out[1].OrderID != "B" {
		t.Fatalf("CloneAll shared state: in=%+v out=%+v", in, out)
	}
}

func jsonEqual(a, b map[string]any) bool {
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return string(x) == string(y)
}
