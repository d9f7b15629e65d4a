package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
	"orderfeed/internal/view"
)

type fakeSource struct {
	orders []model.Order
	state  ordersync.State
}

func (f *fakeSource) CurrentOrders() []model.Order { return model.CloneAll(f.orders) }
func (f *fakeSource) State() ordersync.State { return f.state }

func newSource() *fakeSource {
	mk := func(id, status, name, phone string) model.Order {
		o := model.Order{OrderID: id, Status: status}
		o.Set("address", map[string]string{"contactName": name, "contactPhone": phone})
		return o
	}
	return &fakeSource{
		orders: []model.Order{
			mk("ORD-5", model.StatusPending, "Asha Rao", "9845000005"),
			mk("ORD-4", model.StatusDelivered, "Ravi Kumar", "9845000004"),
			mk("ORD-3", model.StatusPending, "Meera Iyer", "9845000003"),
			mk("ORD-2", model.StatusCanceled, "asha k", "9845000002"),
			mk("ORD-1", model.StatusPending, "John", "9845000001"),
		},
		state: ordersync.Connected,
	}
}

func do(t *testing.T, r http.Handler, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: decode %s: %v", path, w.Body.String(), err)
		}
	}
	return w.Code
}

func init() { gin.SetMode(gin.TestMode) }

func TestListOrders_FilterAndPage(t *testing.T) {
	r := NewRouter(newSource(), nil, nil, nil)

	var p view.Page
	if code := do(t, r, "/orders?status=Pending&page=2&perPage=2", &p); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if p.Total != 3 || p.TotalPages != 2 || len(p.Orders) != 1 || p.Orders[0].OrderID != "ORD-1" {
		t.Fatalf("unexpected page: %+v", p)
	}

	if code := do(t, r, "/orders?q=ASHA", &p); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if p.Total != 2 || p.PerPage != view.DefaultPerPage || p.Orders[0].OrderID != "ORD-5" || p.Orders[1].OrderID != "ORD-2" {
		t.Fatalf("unexpected search page: %+v", p)
	}

	if code := do(t, r, "/orders?status=All&q=000004", &p); code != http.StatusOK || p.Total != 1 {
		t.Fatalf("phone search: code=%d page=%+v", code, p)
	}
}

func TestListOrders_BadQuery(t *testing.T) {
	r := NewRouter(newSource(), nil, nil, nil)
	if code := do(t, r, "/orders?page=-1", nil); code != http.StatusBadRequest {
		t.Fatalf("page=-1 code=%d", code)
	}
	if code := do(t, r, "/orders?perPage=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("perPage=abc code=%d", code)
	}
}

func TestListOrders_PageFarPastTheEnd(t *testing.T) {
	r := NewRouter(newSource(), nil, nil, nil)
	var p view.Page
	if code := do(t, r, "/orders?page=922337203685477582&perPage=10", &p); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if p.Total != 5 || p.TotalPages != 1 || len(p.Orders) != 0 {
		t.Fatalf("unexpected page: %+v", p)
	}
}

func TestCountsAndGetOrder(t *testing.T) {
	r := NewRouter(newSource(), nil, nil, nil)
	var c view.Counts
	if code := do(t, r, "/orders/counts", &c); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if c.Total != 5 || c.Of(model.StatusPending) != 3 || c.Of(model.StatusDelivered) != 1 || c.Of(model.StatusCanceled) != 1 {
		t.Fatalf("unexpected counts: %+v", c)
	}

	var o model.Order
	if code := do(t, r, "/orders/ORD-4", &o); code != http.StatusOK || o.ContactName() != "Ravi Kumar" {
		t.Fatalf("get: code=%d order=%+v", code, o)
	}
	if code := do(t, r, "/orders/NOPE", nil); code != http.StatusNotFound {
		t.Fatalf("missing order code=%d", code)
	}
}

func TestHealthAndConnection(t *testing.T) {
	src := newSource()
	conn := NewConnection()
	r := NewRouter(src, conn, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}), nil)

	if code := do(t, r, "/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz connected code=%d", code)
	}
	src.state = ordersync.Error
	if code := do(t, r, "/healthz", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("healthz error code=%d", code)
	}

	conn.Subscriber().OnStateChange(ordersync.StateChange{From: ordersync.Connected, To: ordersync.Error, Err: errors.New("connection lost: EOF")})
	var body map[string]string
	if code := do(t, r, "/connection", &body); code != http.StatusOK {
		t.Fatalf("connection code=%d", code)
	}
	if body["state"] != "error" || body["lastError"] != "connection lost: EOF" {
		t.Fatalf("connection body=%v", body)
	}

	// the error stays visible while reconnecting and goes once connected
	conn.Subscriber().OnStateChange(ordersync.StateChange{From: ordersync.Error, To: ordersync.Connecting})
	body = nil
	if do(t, r, "/connection", &body); body["state"] != "connecting" || body["lastError"] != "connection lost: EOF" {
		t.Fatalf("connecting body=%v", body)
	}
	conn.Subscriber().OnStateChange(ordersync.StateChange{From: ordersync.Connecting, To: ordersync.Connected})
	body = nil
	if do(t, r, "/connection", &body); body["state"] != "connected" {
		t.Fatalf("connected body=%v", body)
	}
	if _, ok := body["lastError"]; ok {
		t.Fatalf("stale lastError after reconnect: %v", body)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Body.String() != "metrics" {
		t.Fatalf("metrics body=%q", w.Body.String())
	}
}
