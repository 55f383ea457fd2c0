// Package client calls the account service's balance endpoints. Every call is
// bounded by a deadline and runs through a circuit breaker; any outcome other
// than success is returned as an error carrying an apperrors code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/middleware"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const serviceName = "transaction-service"

// SnapshotCache holds recently seen account snapshots.
type SnapshotCache interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, bool)
	CacheAccount(ctx context.Context, account *models.AccountSnapshot)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Secret signs the short-lived service token sent with every call.
	Secret []byte

	// Breaker tuning; zero values fall back to defaults.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

type AccountClient struct {
	baseURL    string
	timeout    time.Duration
	secret     []byte
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      SnapshotCache
	logger     *zap.SugaredLogger
}

type mutationRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	Description   string          `json:"description,omitempty"`
}

// NewAccountClient builds a client. cache may be nil.
func NewAccountClient(cfg Config, cache SnapshotCache, logger *zap.SugaredLogger) *AccountClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	c := &AccountClient{
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		secret:     cfg.Secret,
		httpClient: &http.Client{},
		cache:      cache,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "account-service",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isBusinessRejection(err)
		},
	})
	return c
}

// GetAccount returns a cached snapshot when one is available.
func (c *AccountClient) GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error) {
	if c.cache != nil {
		if snap, ok := c.cache.GetAccount(ctx, accountNumber); ok {
			return snap, nil
		}
	}
	snap, err := c.call(ctx, http.MethodGet, accountPath(accountNumber, ""), nil)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, snap)
	return snap, nil
}

func (c *AccountClient) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal, transactionID, description string) (*models.AccountSnapshot, error) {
	return c.mutate(ctx, "debit", accountNumber, amount, transactionID, description)
}

func (c *AccountClient) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal, transactionID, description string) (*models.AccountSnapshot, error) {
	return c.mutate(ctx, "credit", accountNumber, amount, transactionID, description)
}

func (c *AccountClient) mutate(ctx context.Context, op, accountNumber string, amount decimal.Decimal, transactionID, description string) (*models.AccountSnapshot, error) {
	snap, err := c.call(ctx, http.MethodPost, accountPath(accountNumber, op), mutationRequest{
		Amount:        amount,
		TransactionID: transactionID,
		Description:   description,
	})
	if err != nil {
		return nil, err
	}
	c.remember(ctx, snap)
	return snap, nil
}

func (c *AccountClient) remember(ctx context.Context, snap *models.AccountSnapshot) {
	if c.cache != nil {
		c.cache.CacheAccount(ctx, snap)
	}
}

func (c *AccountClient) call(ctx context.Context, method, path string, body any) (*models.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "Account service unavailable: %v", err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*models.AccountSnapshot), nil
}

func (c *AccountClient) do(ctx context.Context, method, path string, body any) (*models.AccountSnapshot, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(c.secret) > 0 {
		token, err := middleware.IssueToken(c.secret, serviceName, []string{middleware.RoleService}, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("failed to sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "Account service did not respond within %s", c.timeout)
		}
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "Account service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var snap models.AccountSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "Account service returned an unreadable response: %v", err)
		}
		return &snap, nil
	}

	var errResp middleware.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Message == "" {
		errResp.Message = fmt.Sprintf("Account service returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusInternalServerError || errResp.Code == "" {
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "%s", errResp.Message)
	}
	return nil, apperrors.FromCode(errResp.Code, errResp.Message)
}

// isBusinessRejection reports errors where the account service answered and
// said no. They do not count against the breaker.
func isBusinessRejection(err error) bool {
	return errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrAccountNotFound) ||
		errors.Is(err, apperrors.ErrInsufficientBalance) ||
		errors.Is(err, apperrors.ErrAccountNotActive)
}

func accountPath(accountNumber, op string) string {
	path := "/v1/accounts/" + url.PathEscape(accountNumber)
	if op != "" {
		path += "/" + op
	}
	return path
}
