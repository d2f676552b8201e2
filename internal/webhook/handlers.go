package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"github.com/lensseoyhshi/crypto-trading/pkg/response"
)

// Trader is the slice of the trading service the webhook endpoints drive.
type Trader interface {
	PlaceOrder(ctx context.Context, req *types.CreateOrderRequest, webhookData string) (*types.Order, error)
	ClosePosition(ctx context.Context, req *types.ClosePositionRequest) (*types.Order, error)
}

// GinHandlers contains HTTP handlers for the signal intake endpoints.
type GinHandlers struct {
	verifier *Verifier
	trader   Trader
}

func NewGinHandlers(verifier *Verifier, trader Trader) *GinHandlers {
	return &GinHandlers{verifier: verifier, trader: trader}
}

// readVerified reads the raw body and authenticates it. A missing or invalid
// signature aborts with 401 before the payload is parsed; an unreadable body
// aborts with 400.
func (h *GinHandlers) readVerified(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "unable to read request body")
		return nil, false
	}

	signature := c.GetHeader(HeaderSignature)
	if signature == "" {
		signature = c.GetHeader(HeaderSignatureAlt)
	}
	if err := h.verifier.Verify(body, signature); err != nil {
		log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("rejected webhook")
		response.Unauthorized(c, "invalid webhook signature")
		return nil, false
	}
	return body, true
}

func parsePayload(body []byte) (*types.WebhookPayload, error) {
	var payload types.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	if payload.AccountID == 0 {
		return nil, fmt.Errorf("account_id is required")
	}
	if payload.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !payload.Side.Valid() {
		return nil, fmt.Errorf("invalid side %q", payload.Side)
	}
	return &payload, nil
}

// OpenPositionHandler accepts signals that open or add to a position. Close
// signals on this endpoint are rejected.
func (h *GinHandlers) OpenPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.handle(c, types.ActionOpen)
	}
}

// ClosePositionHandler accepts signals that close a position. Open signals
// on this endpoint are rejected.
func (h *GinHandlers) ClosePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.handle(c, types.ActionClose)
	}
}

// TradeHandler accepts both open and close signals and dispatches on the
// payload's action field.
func (h *GinHandlers) TradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.handle(c, "")
	}
}

// TestHandler confirms the webhook endpoint is reachable without touching
// any venue and documents the intake surface. It is unauthenticated on
// purpose.
func (h *GinHandlers) TestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{
			"status":  "ok",
			"message": "webhook intake is running",
			"endpoints": gin.H{
				"open_position":  "/webhooks/open-position",
				"close_position": "/webhooks/close-position",
				"trade":          "/webhooks/trade",
			},
			"payload_example": gin.H{
				"action":     types.ActionOpen,
				"account_id": 1,
				"symbol":     "BTCUSDT",
				"side":       string(types.SideBuy),
				"amount":     "0.001",
				"order_type": string(types.TypeMarket),
				"price":      "50000.0",
			},
		})
	}
}

// handle runs the shared verify-parse-dispatch pipeline. An empty allowed
// action accepts any action the payload names.
func (h *GinHandlers) handle(c *gin.Context, allowed string) {
	body, ok := h.readVerified(c)
	if !ok {
		return
	}
	payload, err := parsePayload(body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if allowed != "" && payload.Action != allowed {
		response.BadRequest(c, fmt.Sprintf("action %q not accepted on this endpoint", payload.Action))
		return
	}

	log.Info().
		Str("action", payload.Action).
		Uint("account_id", payload.AccountID).
		Str("symbol", payload.Symbol).
		Str("side", string(payload.Side)).
		Msg("webhook signal accepted")

	switch payload.Action {
	case types.ActionOpen:
		order, err := h.openFromSignal(c.Request.Context(), payload, body)
		response.Handle(c, order, err)
	case types.ActionClose:
		order, err := h.closeFromSignal(c.Request.Context(), payload)
		response.Handle(c, order, err)
	default:
		response.BadRequest(c, fmt.Sprintf("unknown action %q", payload.Action))
	}
}

func (h *GinHandlers) openFromSignal(ctx context.Context, payload *types.WebhookPayload, raw []byte) (*types.Order, error) {
	orderType := payload.OrderType
	if orderType == "" {
		orderType = types.TypeMarket
	}
	return h.trader.PlaceOrder(ctx, &types.CreateOrderRequest{
		AccountID: payload.AccountID,
		Symbol:    payload.Symbol,
		Side:      payload.Side,
		Type:      orderType,
		Amount:    payload.Amount,
		Price:     payload.Price,
		StopPrice: payload.StopPrice,
	}, string(raw))
}

// closeFromSignal inverts the signal's side into the position it closes: a
// buy signal closes a short, a sell signal closes a long, because the
// closing order sits on the opposite side of the position.
func (h *GinHandlers) closeFromSignal(ctx context.Context, payload *types.WebhookPayload) (*types.Order, error) {
	side := types.PositionLong
	if payload.Side == types.SideBuy {
		side = types.PositionShort
	}

	req := &types.ClosePositionRequest{
		AccountID: payload.AccountID,
		Symbol:    payload.Symbol,
		Side:      side,
	}
	if payload.Amount.IsPositive() {
		amount := payload.Amount
		req.Amount = &amount
	}
	return h.trader.ClosePosition(ctx, req)
}
