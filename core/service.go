package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service is the ingestion gate. It owns the synchronous accept path
// (insert-or-detect-duplicate) and the lookup read; all downstream settlement
// work is detached through the SettlementEnqueuer.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	store           TransactionStore
	settlement      SettlementEnqueuer
	now             func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("txprocessor", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("txprocessor"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}
	if builder.store == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transaction store is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		store:           builder.store,
		settlement:      builder.settlement,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Accept records an inbound webhook transaction exactly once. A first-seen
// transaction_id is inserted in PROCESSING state and a settlement task is
// enqueued; a retried delivery is acknowledged with Deduped=true and no side
// effects. Storage failures other than the uniqueness violation propagate.
func (s *Service) Accept(ctx context.Context, in AcceptTransactionInput) (AcceptResult, error) {
	if s == nil || s.store == nil {
		return AcceptResult{}, mapBuildError(nil, fmt.Errorf("core: service is not configured"))
	}
	startedAt := s.clock()
	fields := map[string]any{
		"transaction_id": strings.TrimSpace(in.TransactionID),
		"currency":       strings.TrimSpace(in.Currency),
	}

	if err := in.Validate(); err != nil {
		mapped := s.mapError(
			goerrors.Wrap(err, goerrors.CategoryBadInput, "core: invalid transaction payload").
				WithTextCode(TxnErrorBadInput),
		)
		s.observeOperation(ctx, startedAt, "transaction_accept", mapped, fields)
		return AcceptResult{}, mapped
	}

	createdAt := s.clock()
	txn := Transaction{
		ID:                 uuid.NewString(),
		TransactionID:      strings.TrimSpace(in.TransactionID),
		SourceAccount:      strings.TrimSpace(in.SourceAccount),
		DestinationAccount: strings.TrimSpace(in.DestinationAccount),
		AmountMinor:        in.AmountMinor,
		Currency:           strings.TrimSpace(in.Currency),
		Status:             TransactionStatusProcessing,
		CreatedAt:          createdAt,
	}

	inserted, err := s.store.InsertIfAbsent(ctx, txn)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "transaction_accept", mapped, fields)
		return AcceptResult{}, mapped
	}

	result := AcceptResult{
		TransactionID: txn.TransactionID,
		Deduped:       !inserted,
		AcceptedAt:    createdAt,
	}
	fields["deduped"] = result.Deduped

	if inserted && s.settlement != nil {
		if err := s.settlement.Enqueue(ctx, SettlementTask{TransactionID: txn.TransactionID}); err != nil {
			// The record is durable; a failed enqueue leaves it PROCESSING
			// and observable through lookup, which matches best-effort
			// settlement semantics.
			s.logError(ctx, "settlement enqueue failed", map[string]any{
				"transaction_id": txn.TransactionID,
				"error":          err.Error(),
			})
		}
	}

	s.observeOperation(ctx, startedAt, "transaction_accept", nil, fields)
	return result, nil
}

// Lookup returns the stored record for the external id. The observed status
// depends on timing relative to the detached settlement task; callers may see
// PROCESSING or PROCESSED.
func (s *Service) Lookup(ctx context.Context, transactionID string) (Transaction, error) {
	if s == nil || s.store == nil {
		return Transaction{}, mapBuildError(nil, fmt.Errorf("core: service is not configured"))
	}
	startedAt := s.clock()
	transactionID = strings.TrimSpace(transactionID)
	fields := map[string]any{"transaction_id": transactionID}

	if transactionID == "" {
		mapped := s.mapError(
			goerrors.New("core: transaction id is required", goerrors.CategoryBadInput).
				WithTextCode(TxnErrorBadInput),
		)
		s.observeOperation(ctx, startedAt, "transaction_lookup", mapped, fields)
		return Transaction{}, mapped
	}

	txn, err := s.store.FindByTransactionID(ctx, transactionID)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "transaction_lookup", mapped, fields)
		return Transaction{}, mapped
	}

	s.observeOperation(ctx, startedAt, "transaction_lookup", nil, fields)
	return txn, nil
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s != nil && s.errorMapper != nil {
		if mapped := s.errorMapper(err); mapped != nil {
			return mapped
		}
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper != nil {
		if mapped := mapper(err); mapped != nil {
			return mapped
		}
	}
	return txnErrorMapper(err)
}
