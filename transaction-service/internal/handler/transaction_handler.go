package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/middleware"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionCommander defines the write-side operations used by TransactionHandler.
type TransactionCommander interface {
	Transfer(context.Context, cqrs.TransferCommand) (*models.TransactionView, error)
	Deposit(context.Context, cqrs.SingleAccountCommand) (*models.TransactionView, error)
	Withdraw(context.Context, cqrs.SingleAccountCommand) (*models.TransactionView, error)
	Compensate(context.Context, cqrs.CompensateCommand) (*models.TransactionView, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	GetTransaction(context.Context, cqrs.GetTransactionQuery) (*models.TransactionView, error)
	ListByAccount(context.Context, cqrs.ListByAccountQuery) (*models.TransactionPage, error)
	ListByUser(context.Context, cqrs.ListByUserQuery) ([]models.Transaction, error)
	ListByStatus(context.Context, cqrs.ListByStatusQuery) ([]models.Transaction, error)
	ListRequiringReconciliation(context.Context, cqrs.ListReconciliationQuery) ([]models.Transaction, error)
}

type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
}

type TransferRequest struct {
	FromAccount   string          `json:"fromAccount" validate:"required,max=50"`
	ToAccount     string          `json:"toAccount" validate:"required,max=50"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
	TransactionID string          `json:"transactionId" validate:"max=64"`
}

type SingleAccountRequest struct {
	AccountNumber string          `json:"accountNumber" validate:"required,max=50"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
	TransactionID string          `json:"transactionId" validate:"max=64"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

// Transfer runs a transfer saga. Both COMPLETED and FAILED outcomes are
// returned as 201 with the transaction record.
func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !bind(c, &req) {
		return
	}
	userID, _ := middleware.GetUserID(c)

	view, err := h.commands.Transfer(c.Request.Context(), cqrs.TransferCommand{
		TransactionID: req.TransactionID,
		FromAccount:   req.FromAccount,
		ToAccount:     req.ToAccount,
		Amount:        req.Amount,
		Description:   req.Description,
		InitiatedBy:   userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to process transfer")
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *TransactionHandler) Deposit(c *gin.Context) {
	h.singleAccount(c, h.commands.Deposit, "Failed to process deposit")
}

func (h *TransactionHandler) Withdraw(c *gin.Context) {
	h.singleAccount(c, h.commands.Withdraw, "Failed to process withdrawal")
}

func (h *TransactionHandler) singleAccount(
	c *gin.Context,
	run func(context.Context, cqrs.SingleAccountCommand) (*models.TransactionView, error),
	fallback string,
) {
	var req SingleAccountRequest
	if !bind(c, &req) {
		return
	}
	userID, _ := middleware.GetUserID(c)

	view, err := run(c.Request.Context(), cqrs.SingleAccountCommand{
		TransactionID: req.TransactionID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Description:   req.Description,
		InitiatedBy:   userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, fallback)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *TransactionHandler) Compensate(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	view, err := h.commands.Compensate(c.Request.Context(), cqrs.CompensateCommand{
		TransactionID:    c.Param("transactionId"),
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to compensate transaction")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	view, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: c.Param("transactionId"),
		Requester:     requester(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to get transaction")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) ListByAccount(c *gin.Context) {
	page, err := queryInt(c, "page", 0)
	if err != nil || page < 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	size, err := queryInt(c, "size", defaultPageSize)
	if err != nil || size < 1 {
		middleware.RespondWithError(c, http.StatusBadRequest, "size must be a positive integer")
		return
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	result, err := h.queries.ListByAccount(c.Request.Context(), cqrs.ListByAccountQuery{
		AccountNumber: c.Param("accountNumber"),
		Page:          page,
		Size:          size,
		Requester:     requester(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) ListByUser(c *gin.Context) {
	txs, err := h.queries.ListByUser(c.Request.Context(), cqrs.ListByUserQuery{
		UserID:    c.Param("userId"),
		Requester: requester(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: txs})
}

func (h *TransactionHandler) ListByStatus(c *gin.Context) {
	status, ok := models.ParseTransactionStatus(c.Param("status"))
	if !ok {
		middleware.RespondWithError(c, http.StatusBadRequest, "Unknown transaction status: "+c.Param("status"))
		return
	}
	txs, err := h.queries.ListByStatus(c.Request.Context(), cqrs.ListByStatusQuery{
		Status:    status,
		Requester: requester(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: txs})
}

func (h *TransactionHandler) ListRequiringReconciliation(c *gin.Context) {
	txs, err := h.queries.ListRequiringReconciliation(c.Request.Context(), cqrs.ListReconciliationQuery{
		Requester: requester(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: txs})
}

func requester(c *gin.Context) cqrs.Requester {
	userID, _ := middleware.GetUserID(c)
	return cqrs.Requester{UserID: userID, Operator: middleware.HasRole(c, middleware.RoleOperator)}
}

// bind decodes and validates a request body. Amounts are checked by the saga.
func bind[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(*req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
