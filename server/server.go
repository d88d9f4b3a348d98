package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

// Service is the ingestion surface the HTTP transport fronts.
type Service interface {
	Accept(ctx context.Context, input core.AcceptTransactionInput) (core.AcceptResult, error)
	Lookup(ctx context.Context, transactionID string) (core.Transaction, error)
}

type Server struct {
	service Service
	logger  core.Logger
	engine  *gin.Engine
	now     func() time.Time
}

type Option func(*Server)

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(service Service, options ...Option) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("server: service is required")
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &Server{
		service: service,
		logger:  glog.Nop(),
		engine:  gin.New(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(srv)
	}
	srv.engine.Use(gin.Recovery())
	srv.registerRoutes()
	return srv, nil
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.engine
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s == nil || s.engine == nil {
		return fmt.Errorf("server: server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleHealth)
	v1 := s.engine.Group("/v1")
	v1.POST("/webhooks/transactions", s.handleAcceptTransaction)
	v1.GET("/transactions/:transaction_id", s.handleGetTransaction)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "HEALTHY",
		"current_time": s.clock().Format(time.RFC3339Nano),
	})
}

type webhookTransactionRequest struct {
	TransactionID      string      `json:"transaction_id"`
	SourceAccount      string      `json:"source_account"`
	DestinationAccount string      `json:"destination_account"`
	Amount             json.Number `json:"amount"`
	Currency           string      `json:"currency"`
}

func (s *Server) handleAcceptTransaction(c *gin.Context) {
	var req webhookTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "server: invalid webhook payload").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.TxnErrorBadInput))
		return
	}

	amountMinor, err := parseAmountMinor(req.Amount.String())
	if err != nil {
		s.writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "server: invalid amount").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.TxnErrorBadInput))
		return
	}

	input := core.AcceptTransactionInput{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		AmountMinor:        amountMinor,
		Currency:           req.Currency,
	}

	// New and retried deliveries get the same acknowledgment; the sender has
	// no way to tell a duplicate was dropped.
	if _, err := s.service.Accept(c.Request.Context(), input); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "accepted"})
}

type transactionResponse struct {
	TransactionID      string  `json:"transaction_id"`
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
	Amount             string  `json:"amount"`
	Currency           string  `json:"currency"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`
	ProcessedAt        *string `json:"processed_at"`
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	transactionID := strings.TrimSpace(c.Param("transaction_id"))
	txn, err := s.service.Lookup(c.Request.Context(), transactionID)
	if err != nil {
		if core.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Transaction not found"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(txn))
}

func toTransactionResponse(txn core.Transaction) transactionResponse {
	resp := transactionResponse{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.AmountString(),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		CreatedAt:          txn.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if txn.ProcessedAt != nil {
		processedAt := txn.ProcessedAt.UTC().Format(time.RFC3339Nano)
		resp.ProcessedAt = &processedAt
	}
	return resp
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "An unexpected error occurred"
	textCode := core.TxnErrorInternal

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code > 0 {
			status = richErr.Code
		}
		if strings.TrimSpace(richErr.Message) != "" {
			message = richErr.Message
		}
		if strings.TrimSpace(richErr.TextCode) != "" {
			textCode = richErr.TextCode
		}
	}

	if status >= http.StatusInternalServerError {
		s.logError(c.Request.Context(), "request failed", map[string]any{
			"path":   c.FullPath(),
			"status": status,
			"error":  err.Error(),
		})
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"message":   message,
			"text_code": textCode,
		},
	})
}

// parseAmountMinor converts a decimal string with at most two fractional
// digits to minor units.
func parseAmountMinor(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("server: amount is required")
	}
	negative := strings.HasPrefix(value, "-")
	if negative {
		return 0, fmt.Errorf("server: amount must not be negative")
	}

	whole, frac, hasFrac := strings.Cut(value, ".")
	if hasFrac && len(frac) > 2 {
		return 0, fmt.Errorf("server: amount supports at most two decimal places")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	wholePart, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("server: invalid amount %q", value)
	}
	fracPart, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("server: invalid amount %q", value)
	}
	return wholePart*100 + fracPart, nil
}

func (s *Server) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) logError(ctx context.Context, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	logger.Error(message, args...)
}
