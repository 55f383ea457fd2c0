package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/middleware"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	Debit(context.Context, cqrs.DebitAccountCommand) (*models.AccountSnapshot, error)
	Credit(context.Context, cqrs.CreditAccountCommand) (*models.AccountSnapshot, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	GetBalance(context.Context, cqrs.GetAccountQuery) (*models.BalanceView, error)
}

// AccountHandler exposes the account operations other services call.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type BalanceMutationRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId" validate:"required,max=80"`
	Description   string          `json:"description" validate:"max=255"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{
		AccountNumber: c.Param("accountNumber"),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to get account")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) GetBalance(c *gin.Context) {
	balance, err := h.queries.GetBalance(c.Request.Context(), cqrs.GetAccountQuery{
		AccountNumber: c.Param("accountNumber"),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to get balance")
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *AccountHandler) Debit(c *gin.Context) {
	req, ok := bindMutation(c)
	if !ok {
		return
	}
	snap, err := h.commands.Debit(c.Request.Context(), cqrs.DebitAccountCommand{
		AccountNumber: c.Param("accountNumber"),
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
		Description:   req.Description,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to debit account")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *AccountHandler) Credit(c *gin.Context) {
	req, ok := bindMutation(c)
	if !ok {
		return
	}
	snap, err := h.commands.Credit(c.Request.Context(), cqrs.CreditAccountCommand{
		AccountNumber: c.Param("accountNumber"),
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
		Description:   req.Description,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to credit account")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func bindMutation(c *gin.Context) (*BalanceMutationRequest, bool) {
	var req BalanceMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return nil, false
	}
	if !req.Amount.IsPositive() {
		middleware.RespondWithAppError(c, apperrors.New(apperrors.ErrValidation, "Amount must be greater than zero"), "")
		return nil, false
	}
	return &req, true
}
