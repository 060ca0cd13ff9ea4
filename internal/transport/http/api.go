package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ccruz0/crypto-2.0-sub003/internal/engine"
	"github.com/ccruz0/crypto-2.0-sub003/internal/pkg/symbol"
	"github.com/ccruz0/crypto-2.0-sub003/internal/position"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"

	"github.com/gin-gonic/gin"
)

// API wires the diagnostics routes onto a gin group.
type API struct {
	engine     *engine.Engine
	reconciler *position.Reconciler
	st         store.Store
}

func NewAPI(eng *engine.Engine, reconciler *position.Reconciler, st store.Store) *API {
	return &API{engine: eng, reconciler: reconciler, st: st}
}

func (a *API) Register(g *gin.RouterGroup) {
	g.GET("/decisions", a.listDecisions)
	g.GET("/positions/:symbol", a.getPosition)
	g.GET("/orders", a.listOrders)
	g.GET("/throttles", a.listThrottles)
	g.GET("/leverages", a.listLeverages)
}

func (a *API) listDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decisions": a.engine.RecentResults()})
}

func (a *API) getPosition(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	view, err := a.reconciler.Snapshot(c.Request.Context(), sym)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":          sym,
		"pending_buys":    view.PendingBuys,
		"filled_buy_qty":  view.FilledBuyQty,
		"filled_sell_qty": view.FilledSellQty,
		"net_qty":         view.NetQty,
		"open_lots":       view.OpenLots,
		"open":            view.Open(),
	})
}

func (a *API) listOrders(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := a.st.Orders().ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}

func (a *API) listThrottles(c *gin.Context) {
	rows, err := a.st.Throttles().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"throttles": rows})
}

func (a *API) listLeverages(c *gin.Context) {
	rows, err := a.st.Leverages().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leverages": rows})
}
