// Package httpapi serves the synchronized order list read-only over HTTP.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
	"orderfeed/internal/view"
)

// Source is the read side of ordersync.Client.
type Source interface {
	CurrentOrders() []model.Order
	State() ordersync.State
}

type listQuery struct {
	view.Query
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"perPage" binding:"omitempty,min=1,max=200"`
}

// Connection remembers the latest state change for /connection.
type Connection struct {
	mu      sync.RWMutex
	state   ordersync.State
	since   time.Time
	lastErr string
}

func NewConnection() *Connection {
	return &Connection{since: time.Now()}
}

func (c *Connection) Subscriber() ordersync.Subscriber {
	return ordersync.Subscriber{
		OnStateChange: func(ch ordersync.StateChange) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.state = ch.To
			c.since = time.Now()
			switch {
			case ch.Err != nil:
				c.lastErr = ch.Err.Error()
			case ch.To == ordersync.Connected:
				c.lastErr = ""
			}
		},
	}
}

func (c *Connection) view() gin.H {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := gin.H{"state": c.state.String(), "since": c.since.UTC().Format(time.RFC3339)}
	if c.lastErr != "" {
		h["lastError"] = c.lastErr
	}
	return h
}

type handler struct {
	src  Source
	conn *Connection
}

// NewRouter wires the read endpoints. metrics and conn may be nil.
func NewRouter(src Source, conn *Connection, metrics http.Handler, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	h := &handler{src: src, conn: conn}
	r.GET("/healthz", h.health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.GET("/connection", h.connection)
	r.GET("/orders", h.listOrders)
	r.GET("/orders/counts", h.counts)
	r.GET("/orders/:orderId", h.getOrder)
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// GET /healthz - 200 while connected, 503 otherwise
func (h *handler) health(c *gin.Context) {
	st := h.src.State()
	code := http.StatusOK
	if st != ordersync.Connected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"state": st.String()})
}

func (h *handler) connection(c *gin.Context) {
	if h.conn == nil {
		c.JSON(http.StatusOK, gin.H{"state": h.src.State().String()})
		return
	}
	c.JSON(http.StatusOK, h.conn.view())
}

// GET /orders?status=&q=&page=&perPage=
func (h *handler) listOrders(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "msg": err.Error()})
		return
	}
	filtered := view.Filter(h.src.CurrentOrders(), q.Query)
	c.JSON(http.StatusOK, view.Paginate(filtered, q.Page, q.PerPage))
}

func (h *handler) counts(c *gin.Context) {
	c.JSON(http.StatusOK, view.CountByStatus(h.src.CurrentOrders()))
}

func (h *handler) getOrder(c *gin.Context) {
	id := c.Param("orderId")
	for _, o := range h.src.CurrentOrders() {
		if o.OrderID == id {
			c.JSON(http.StatusOK, o)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
}
