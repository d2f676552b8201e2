package accounts

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"github.com/lensseoyhshi/crypto-trading/pkg/response"
)

// GinHandlers contains HTTP handlers for account management endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func accountID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("account_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid account id")
		return 0, false
	}
	return uint(id), true
}

// CreateAccountHandler handles POST requests to register a new account.
// Credentials arrive in plaintext exactly once and are stored encrypted.
func (h *GinHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		account, err := h.service.CreateAccount(&req)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		account, err := h.service.GetAccount(id)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		accounts, err := h.service.ListAccounts(limit, offset)
		response.Handle(c, accounts, err)
	}
}

func (h *GinHandlers) UpdateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		var req types.UpdateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		account, err := h.service.UpdateAccount(id, &req)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) DeleteAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		err := h.service.DeleteAccount(id)
		response.Handle(c, gin.H{"deleted": err == nil}, err)
	}
}

// AccountInfoHandler returns live venue balances, positions and equity.
func (h *GinHandlers) AccountInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		snapshot, err := h.service.Snapshot(c.Request.Context(), id)
		response.Handle(c, snapshot, err)
	}
}

// TestConnectionHandler probes venue connectivity for an account.
func (h *GinHandlers) TestConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		connected, err := h.service.TestConnection(c.Request.Context(), id)
		response.Handle(c, gin.H{"connected": connected}, err)
	}
}
