// Package emission drives a sale through the NFC-e emission pipeline:
// Loading, Authenticating, Sequencing, Mapping, Submitting, Reconciling.
//
// A document number is consumed only once every precondition has been checked
// and a gateway token obtained. From Sequencing on, the work is detached from
// the caller's cancellation and bounded by the submit timeout, so a number that
// was reserved is always followed by a recorded outcome.
package emission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"comanda/internal/core/apperror"
	appctx "comanda/internal/core/context"
	"comanda/internal/core/id"
	"comanda/internal/core/numerator"
	"comanda/internal/core/tx"
	"comanda/internal/domain/fiscal"
	"comanda/internal/domain/fiscal/nfce"
	"comanda/pkg/logger"
)

var tracer = otel.Tracer("comanda/emission")

// Stage is a step of the pipeline.
type Stage string

const (
	StageLoading        Stage = "loading"
	StageAuthenticating Stage = "authenticating"
	StageSequencing     Stage = "sequencing"
	StageMapping        Stage = "mapping"
	StageSubmitting     Stage = "submitting"
	StageReconciling    Stage = "reconciling"
	StageDone           Stage = "done"
)

// Defaults for Config.
const (
	DefaultSubmitTimeout = 20 * time.Second
	DefaultLockTTL       = 2 * time.Minute
)

// Config wires the pipeline.
type Config struct {
	Store     fiscal.Store
	Allocator numerator.Allocator
	Tokens    TokenProvider
	Gateway   Gateway
	TxManager tx.Manager
	// Locker is optional; without it concurrent emissions of one sale are not prevented.
	Locker Locker

	// SubmitTimeout bounds everything after a number is reserved.
	SubmitTimeout time.Duration
	LockTTL       time.Duration
}

// Service is the submission orchestrator.
type Service struct {
	store      fiscal.Store
	allocator  numerator.Allocator
	tokens     TokenProvider
	gateway    Gateway
	locker     Locker
	reconciler *fiscal.Reconciler

	submitTimeout time.Duration
	lockTTL       time.Duration
}

// NewService creates the orchestrator.
func NewService(cfg Config) *Service {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	// The lock must outlive the detached submission.
	if cfg.LockTTL < cfg.SubmitTimeout*2 {
		cfg.LockTTL = cfg.SubmitTimeout * 2
	}

	return &Service{
		store:         cfg.Store,
		allocator:     cfg.Allocator,
		tokens:        cfg.Tokens,
		gateway:       cfg.Gateway,
		locker:        cfg.Locker,
		reconciler:    fiscal.NewReconciler(cfg.Store, cfg.Store, cfg.TxManager),
		submitTimeout: cfg.SubmitTimeout,
		lockTTL:       cfg.LockTTL,
	}
}

// Result describes a finished emission, authorized or rejected by the authority.
type Result struct {
	SaleID      int64
	AttemptID   id.ID
	Environment fiscal.Environment
	Serie       int
	Number      int64
	Status      fiscal.Status
	FiscalKey   string
	Protocol    string
	Message     string
	// Resubmitted is set when the document went out a second time after the
	// gateway refused the first bearer token.
	Resubmitted bool
	// GatewayBody is the gateway answer, verbatim.
	GatewayBody json.RawMessage
}

// Authorized reports whether the document was authorized.
func (r *Result) Authorized() bool {
	return r.Status == fiscal.StatusAuthorized
}

// emissionInput is everything Loading gathers.
type emissionInput struct {
	sale     *fiscal.Sale
	config   *fiscal.FiscalConfig
	settings *fiscal.CompanySettings
	key      numerator.Key
}

// Emit issues the fiscal document of a sale.
//
// Failures before Sequencing leave no trace. Failures after it are recorded
// on the sale as "erro" (best effort) and returned with the number, serie and
// attempt id as details. A persistence failure after a gateway answer is
// logged and does not fail the call. Emit never retries; calling it again
// allocates a new number.
func (s *Service) Emit(ctx context.Context, saleID int64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "fiscal.emit", trace.WithAttributes(attribute.Int64("sale.id", saleID)))
	defer span.End()

	ctx = logger.WithFields(ctx, "sale_id", saleID)

	res, stage, err := s.emit(ctx, saleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		logger.Warn(ctx, "fiscal emission failed", "stage", stage, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("fiscal.number", res.Number),
		attribute.String("fiscal.status", string(res.Status)),
	)
	logger.Info(ctx, "fiscal emission finished",
		"number", res.Number, "serie", res.Serie, "status", res.Status, "fiscal_key", res.FiscalKey)
	return res, nil
}

func (s *Service) emit(ctx context.Context, saleID int64) (*Result, Stage, error) {
	if saleID <= 0 {
		return nil, StageLoading, apperror.NewValidation("saleId must be a positive integer").WithDetail("sale_id", saleID)
	}

	// Loading
	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx, fmt.Sprintf("fiscal:emit:sale:%d", saleID), s.lockTTL)
		if err != nil {
			return nil, StageLoading, apperror.NewInternal(fmt.Errorf("acquire emission lock: %w", err))
		}
		if !acquired {
			return nil, StageLoading, apperror.NewConflict("an emission for this sale is already in progress").
				WithDetail("sale_id", saleID)
		}
		defer unlock()
	}

	in, err := s.load(ctx, saleID)
	if err != nil {
		return nil, StageLoading, err
	}

	// Authenticating
	token, err := s.authenticate(ctx, in.config)
	if err != nil {
		return nil, StageAuthenticating, err
	}

	// Cancellation up to here abandons the emission with nothing consumed.
	if err := ctx.Err(); err != nil {
		return nil, StageSequencing, fmt.Errorf("emission abandoned before sequencing: %w", err)
	}

	// Sequencing
	number, err := s.allocate(ctx, in.key)
	if err != nil {
		return nil, StageSequencing, err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()
	wctx = logger.WithFields(wctx, "number", number, "serie", in.key.Serie)

	attempt := &fiscal.Attempt{
		ID:          id.New(),
		SaleID:      saleID,
		CompanyID:   in.sale.CompanyID,
		Environment: in.key.Environment,
		Serie:       in.key.Serie,
		Number:      number,
	}

	// Mapping
	payload, err := nfce.BuildDocument(in.sale, in.settings, in.config, number).Marshal()
	if err != nil {
		return nil, StageMapping, s.failAfterSequencing(wctx, attempt, false,
			apperror.NewInternal(fmt.Errorf("encode document: %w", err)))
	}
	attempt.Document = payload

	journaled := true
	if err := s.reconciler.Reserve(wctx, attempt); err != nil {
		journaled = false
		logger.Error(wctx, "journal reserved number failed",
			"code", apperror.CodePersistenceFailed, "attempt_id", attempt.ID, "error", err)
	}

	// Submitting
	reply, resubmitted, err := s.submit(wctx, in.config, token, attempt)
	if err != nil {
		err = s.failAfterSequencing(wctx, attempt, journaled, err)
		if resubmitted {
			if appErr, ok := apperror.AsAppError(err); ok {
				err = appErr.WithDetail("resubmitted", true)
			}
		}
		return nil, StageSubmitting, err
	}

	// Reconciling
	outcome := reply.Outcome()
	s.persist(wctx, attempt, journaled, outcome)

	result := outcome.Result()
	return &Result{
		SaleID:      saleID,
		AttemptID:   attempt.ID,
		Environment: attempt.Environment,
		Serie:       attempt.Serie,
		Number:      number,
		Status:      result.Status,
		FiscalKey:   result.FiscalKey,
		Protocol:    result.ProtocolNumber,
		Message:     result.Message,
		Resubmitted: resubmitted,
		GatewayBody: reply.Body,
	}, StageDone, nil
}

// load gathers and validates every precondition of the emission.
func (s *Service) load(ctx context.Context, saleID int64) (*emissionInput, error) {
	ctx, span := tracer.Start(ctx, "fiscal.emit.loading")
	defer span.End()

	sale, err := s.store.GetSaleWithItems(ctx, saleID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, saleNotFound(saleID)
		}
		return nil, apperror.NewInternal(fmt.Errorf("load sale %d: %w", saleID, err))
	}

	// Tenant-scoped callers only see their own sales.
	if companyID := appctx.GetCompanyID(ctx); companyID != 0 && companyID != sale.CompanyID {
		return nil, saleNotFound(saleID)
	}

	if sale.FiscalStatus == fiscal.StatusAuthorized {
		return nil, apperror.NewConflict("sale already has an authorized fiscal document").
			WithDetail("sale_id", saleID).
			WithDetail("fiscal_key", sale.FiscalKey)
	}
	if len(sale.Items) == 0 {
		return nil, apperror.NewValidation("sale has no items").WithDetail("sale_id", saleID)
	}

	cfg, err := s.store.GetFiscalConfig(ctx, sale.CompanyID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewConfigurationMissing("fiscal configuration not found for company").
				WithDetail("company_id", sale.CompanyID)
		}
		return nil, apperror.NewInternal(fmt.Errorf("load fiscal config: %w", err))
	}
	if !cfg.HasCredentials() {
		return nil, apperror.NewConfigurationMissing("gateway credentials are not configured").
			WithDetail("company_id", sale.CompanyID)
	}
	key := cfg.SequenceKey()
	if err := key.Validate(); err != nil {
		return nil, apperror.NewConfigurationMissing("invalid fiscal configuration").
			WithDetail("company_id", sale.CompanyID).
			WithCause(err)
	}

	settings, err := s.store.GetCompanySettings(ctx, sale.CompanyID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewConfigurationMissing("company settings not found").
				WithDetail("company_id", sale.CompanyID)
		}
		return nil, apperror.NewInternal(fmt.Errorf("load company settings: %w", err))
	}
	if err := nfce.ValidateIssuer(settings); err != nil {
		return nil, err
	}
	if _, err := nfce.LookupRegime(cfg.TaxRegime); err != nil {
		return nil, err
	}

	return &emissionInput{sale: sale, config: cfg, settings: settings, key: key}, nil
}

func (s *Service) authenticate(ctx context.Context, cfg *fiscal.FiscalConfig) (string, error) {
	ctx, span := tracer.Start(ctx, "fiscal.emit.authenticating")
	defer span.End()

	token, err := s.tokens.GetToken(ctx, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			return "", err
		}
		return "", apperror.NewAuthenticationFailed("").WithCause(err)
	}
	return token, nil
}

func (s *Service) allocate(ctx context.Context, key numerator.Key) (int64, error) {
	ctx, span := tracer.Start(ctx, "fiscal.emit.sequencing", trace.WithAttributes(attribute.String("sequence", key.String())))
	defer span.End()

	number, err := s.allocator.Allocate(ctx, key)
	if err != nil {
		if apperror.Is(err, apperror.CodeSequenceUnavailable) {
			return 0, err
		}
		return 0, apperror.NewSequenceUnavailable(err).WithDetail("sequence", key.String())
	}
	return number, nil
}

// submit posts the attempt's document. A 401 triggers one re-authentication and
// one resubmission of the same document; resubmitted reports whether that happened.
func (s *Service) submit(ctx context.Context, cfg *fiscal.FiscalConfig, token string, attempt *fiscal.Attempt) (reply *GatewayReply, resubmitted bool, err error) {
	ctx, span := tracer.Start(ctx, "fiscal.emit.submitting")
	defer span.End()

	reply, err = s.gateway.Submit(ctx, token, attempt.Document)
	if err == nil || !isUnauthorized(err) {
		return reply, false, err
	}

	logger.Error(ctx, "gateway refused bearer token; resubmitting numbered document once",
		"number", attempt.Number,
		"serie", attempt.Serie,
		"attempt_id", attempt.ID,
		"error", err,
	)
	s.tokens.Invalidate(cfg.ClientID)
	fresh, err := s.tokens.GetToken(ctx, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, false, err
	}
	span.AddEvent("resubmit", trace.WithAttributes(attribute.String("attempt_id", attempt.ID.String())))
	reply, err = s.gateway.Submit(ctx, fresh, attempt.Document)
	return reply, true, err
}

// persist records the outcome. Errors are logged, never returned: the gateway
// already decided and the caller must see that decision.
func (s *Service) persist(ctx context.Context, attempt *fiscal.Attempt, journaled bool, outcome fiscal.Outcome) {
	ctx, span := tracer.Start(ctx, "fiscal.emit.reconciling")
	defer span.End()

	var err error
	if journaled {
		err = s.reconciler.PersistAttempt(ctx, attempt.SaleID, attempt.ID, outcome)
	} else {
		err = s.reconciler.Persist(ctx, attempt.SaleID, outcome)
	}
	if err != nil {
		span.RecordError(err)
		result := outcome.Result()
		logger.Error(ctx, "persist fiscal result failed; manual reconciliation required",
			"code", apperror.CodePersistenceFailed,
			"attempt_id", attempt.ID,
			"fiscal_status", result.Status,
			"fiscal_key", result.FiscalKey,
			"protocol", result.ProtocolNumber,
			"error", err,
		)
	}
}

// failAfterSequencing records "erro" on the sale and decorates err with the
// identifiers needed to reconcile the consumed number by hand.
func (s *Service) failAfterSequencing(ctx context.Context, attempt *fiscal.Attempt, journaled bool, err error) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}

	s.persist(ctx, attempt, journaled, fiscal.Failed{Message: failureMessage(appErr)})

	return appErr.
		WithDetail("number", attempt.Number).
		WithDetail("serie", attempt.Serie).
		WithDetail("attempt_id", attempt.ID.String())
}

func failureMessage(err *apperror.AppError) string {
	if err.Err != nil && errors.Is(err.Err, context.DeadlineExceeded) {
		return err.Message + ": timeout"
	}
	return err.Message
}

func saleNotFound(saleID int64) *apperror.AppError {
	return apperror.NewStageFailure(apperror.CodeNotFound, "sale not found").WithDetail("sale_id", saleID)
}
