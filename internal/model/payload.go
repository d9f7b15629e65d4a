package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Read-only views over the pass-through payload. They tolerate whatever
// type the backend used: a phone number sent as a JSON number reads the
// same as one sent as a string, and anything unreadable reads as zero.

func (o Order) ContactName() string  { return o.addressText("contactName") }
func (o Order) ContactPhone() string { return o.addressText("contactPhone") }

// GrandTotal is pricing.grandTotal, or 0 when absent.
func (o Order) GrandTotal() float64 {
	var pricing map[string]json.RawMessage
	if json.Unmarshal(o.fields["pricing"], &pricing) != nil {
		return 0
	}
	return number(pricing["grandTotal"])
}

// ItemCount sums the quantity of every line in items.
func (o Order) ItemCount() int64 {
	var items []map[string]json.RawMessage
	if json.Unmarshal(o.fields["items"], &items) != nil {
		return 0
	}
	var n int64
	for _, it := range items {
		n += int64(number(it["quantity"]))
	}
	return n
}

func (o Order) addressText(key string) string {
	var addr map[string]json.RawMessage
	if json.Unmarshal(o.fields["address"], &addr) != nil {
		return ""
	}
	return text(addr[key])
}

func scalar(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var v any
	if d.Decode(&v) != nil {
		return nil
	}
	return v
}

func text(raw json.RawMessage) string {
	switch v := scalar(raw).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func number(raw json.RawMessage) float64 {
	switch v := scalar(raw).(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
