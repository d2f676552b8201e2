package trading

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lensseoyhshi/crypto-trading/internal/exchange"
	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"github.com/lensseoyhshi/crypto-trading/pkg/response"
)

// GinHandlers contains HTTP handlers for order, position and market data
// endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return 0, false
	}
	return uint(id), true
}

func queryAccountID(c *gin.Context) (uint, bool) {
	raw := c.Query("account_id")
	if raw == "" {
		response.BadRequest(c, "account_id is required")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid account_id")
		return 0, false
	}
	return uint(id), true
}

// queryTime parses an optional unix-millisecond query parameter. A missing
// parameter yields nil.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return nil, false
	}
	t := time.UnixMilli(ms)
	return &t, true
}

// CreateOrderHandler handles POST requests to place an order on the
// account's venue.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		order, err := h.service.PlaceOrder(c.Request.Context(), &req, "")
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		order, err := h.service.GetOrder(id)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, _ := strconv.ParseUint(c.Query("account_id"), 10, 32)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		orders, err := h.service.ListOrders(OrderFilter{
			AccountID: uint(accountID),
			Symbol:    exchange.NormalizeSymbol(c.Query("symbol")),
			Status:    types.OrderStatus(c.Query("status")),
			Limit:     limit,
			Offset:    offset,
		})
		response.Handle(c, orders, err)
	}
}

// RefreshOrderHandler re-reads the order from the venue and persists the
// authoritative state.
func (h *GinHandlers) RefreshOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		order, err := h.service.RefreshOrder(c.Request.Context(), id)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		order, err := h.service.CancelOrder(c.Request.Context(), id)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, _ := strconv.ParseUint(c.Query("account_id"), 10, 32)
		positions, err := h.service.ListPositions(PositionFilter{
			AccountID: uint(accountID),
			Symbol:    exchange.NormalizeSymbol(c.Query("symbol")),
		})
		response.Handle(c, positions, err)
	}
}

// ClosePositionHandler handles POST requests to close an open position with
// a reduce-only market order.
func (h *GinHandlers) ClosePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ClosePositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		order, err := h.service.ClosePosition(c.Request.Context(), &req)
		response.Handle(c, order, err)
	}
}

// SyncPositionsHandler replaces the local position ledger with the venue's
// current snapshot for the account.
func (h *GinHandlers) SyncPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := queryAccountID(c)
		if !ok {
			return
		}
		positions, err := h.service.SyncPositions(c.Request.Context(), id)
		response.Handle(c, positions, err)
	}
}

func (h *GinHandlers) TickerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := queryAccountID(c)
		if !ok {
			return
		}
		symbol := c.Query("symbol")
		if symbol == "" {
			response.BadRequest(c, "symbol is required")
			return
		}
		ticker, err := h.service.GetTicker(c.Request.Context(), id, symbol)
		response.Handle(c, ticker, err)
	}
}

func (h *GinHandlers) KlinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := queryAccountID(c)
		if !ok {
			return
		}
		symbol := c.Query("symbol")
		if symbol == "" {
			response.BadRequest(c, "symbol is required")
			return
		}
		interval := c.DefaultQuery("interval", "1h")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		start, ok := queryTime(c, "start_time")
		if !ok {
			return
		}
		end, ok := queryTime(c, "end_time")
		if !ok {
			return
		}
		klines, err := h.service.GetKlines(c.Request.Context(), id, symbol, interval, limit, start, end)
		response.Handle(c, klines, err)
	}
}
