package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"incident-console/internal/audit"
	"incident-console/internal/config"
	"incident-console/internal/identity"
	"incident-console/internal/models"
	"incident-console/internal/repository/scylla"
	"incident-console/internal/retry"
	"incident-console/internal/util"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrRateLimited      = errors.New("provisioning rate limit exceeded")
	ErrOperatorNotFound = errors.New("operator not found")
)

const minPasswordLength = 6

// ProvisionRateLimiter is the slice of the rate-limit cache the saga
// needs. An admin who trips the counter is locked out for the
// configured duration; the lock survives the counter window.
type ProvisionRateLimiter interface {
	IncrementProvisionCounter(ctx context.Context, adminID string, window time.Duration) (int, error)
	SetTemporaryLock(ctx context.Context, adminID string, ttl time.Duration) error
	IsLocked(ctx context.Context, adminID string) (bool, error)
}

// ProvisionRequest is an administrator's request to create an operator.
type ProvisionRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	CameraIDs   []string `json:"cameras"`
	RequestedBy string   `json:"-"`
	SourceIP    string   `json:"-"`
}

// ProvisioningService runs the operator-creation saga: identity
// creation (retried on transient provider timeouts), role claim
// assignment, profile write, audit. The first step commits state in
// the identity provider, so any later terminal failure triggers a
// compensating delete; an orphaned credential with no profile would
// let someone log in with no role and no camera scope.
//
// The saga is not retriable as a whole once step 1 has succeeded:
// re-invoking with the same email fails as a duplicate without
// recovering the half-finished attempt.
type ProvisioningService struct {
	identity    identity.Client
	operators   scylla.OperatorRepository
	auditLogger *audit.Logger
	rateLimiter ProvisionRateLimiter
	retryPolicy *retry.Policy
	config      *config.ProvisionConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewProvisioningService(
	identityClient identity.Client,
	operatorRepo scylla.OperatorRepository,
	auditLogger *audit.Logger,
	rateLimiter ProvisionRateLimiter,
	cfg *config.ProvisionConfig,
	logger *zap.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		identity:    identityClient,
		operators:   operatorRepo,
		auditLogger: auditLogger,
		rateLimiter: rateLimiter,
		retryPolicy: retry.NewPolicy(cfg.MaxCreateAttempts, cfg.BackoffStep, identity.IsTransient),
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Provision creates an operator across the identity provider and the
// record store, returning the provider-assigned operator id.
func (s *ProvisioningService) Provision(ctx context.Context, req *ProvisionRequest) (string, error) {
	if err := validateProvisionRequest(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.checkRateLimit(ctx, req.RequestedBy); err != nil {
		return "", err
	}

	// Known emails fail here without touching the identity provider.
	// The provider still enforces uniqueness, so a lookup failure only
	// defers the duplicate check to step 1.
	if existingID, err := s.operators.GetIDByEmail(ctx, req.Email); err == nil {
		s.logger.Debug("provisioning rejected, email already has a profile",
			zap.String("operator_id", existingID))
		return "", fmt.Errorf("%w: %s", ErrDuplicateEmail, req.Email)
	} else if !errors.Is(err, scylla.ErrOperatorNotFound) {
		s.logger.Warn("email lookup failed, deferring duplicate check to identity provider",
			zap.Error(err))
	}

	// Step 1: create the credential. Only recognized transient
	// timeouts are retried; duplicate email and invalid input fail on
	// the first attempt.
	operatorID, err := retry.DoValue(ctx, s.retryPolicy, func(ctx context.Context) (string, error) {
		return s.identity.CreateUser(ctx, req.Email, req.Password)
	})
	if err != nil {
		if identity.IsDuplicate(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateEmail, req.Email)
		}
		return "", fmt.Errorf("identity creation failed: %w", err)
	}

	// Step 2: attach the role claim so issued tokens carry it.
	if err := s.identity.SetRoleClaim(ctx, operatorID, models.RoleOperator); err != nil {
		s.compensate(ctx, operatorID, err)
		return "", fmt.Errorf("role claim assignment failed: %w", err)
	}

	// Step 3: write the queryable profile.
	operator := &models.Operator{
		OperatorID: operatorID,
		Email:      req.Email,
		Role:       models.RoleOperator,
		Cameras:    req.CameraIDs,
		Status:     models.OperatorStatusActive,
		CreatedAt:  s.now().UTC(),
		CreatedBy:  req.RequestedBy,
	}
	if err := s.operators.Create(ctx, operator); err != nil {
		s.compensate(ctx, operatorID, err)
		return "", fmt.Errorf("profile write failed: %w", err)
	}

	// Step 4: best-effort audit; never fails the saga.
	s.auditLogger.Record(ctx, &models.AuditRecord{
		OperatorID:    operatorID,
		OperatorEmail: req.Email,
		Action:        models.AuditActionOperatorCreated,
		Description:   fmt.Sprintf("operator provisioned by admin %s", req.RequestedBy),
		IPAddress:     req.SourceIP,
		Metadata:      map[string]string{"created_by": req.RequestedBy},
	})

	s.logger.Info("operator provisioned",
		zap.String("operator_id", operatorID),
		zap.Int("cameras", len(req.CameraIDs)),
		zap.String("requested_by", req.RequestedBy))
	return operatorID, nil
}

// compensate undoes the committed identity step after a later step
// failed terminally. The original failure is what the caller sees; a
// failed rollback is only logged.
func (s *ProvisioningService) compensate(ctx context.Context, operatorID string, cause error) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err := s.identity.DeleteUser(rollbackCtx, operatorID); err != nil {
		s.logger.Error("compensating identity delete failed, orphaned credential remains",
			zap.String("operator_id", operatorID),
			zap.NamedError("saga_error", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("rolled back identity after saga failure",
		zap.String("operator_id", operatorID),
		zap.NamedError("saga_error", cause))
}

// ResetPassword replaces an operator's credential. A single external
// step, so no compensation is needed.
func (s *ProvisioningService) ResetPassword(ctx context.Context, operatorID, newPassword, requestedBy string) error {
	if operatorID == "" {
		return fmt.Errorf("%w: operator id is required", ErrInvalidInput)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, scylla.ErrOperatorNotFound) {
			return fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
		}
		return fmt.Errorf("failed to load operator: %w", err)
	}

	if err := s.identity.UpdatePassword(ctx, operatorID, newPassword); err != nil {
		return fmt.Errorf("password update failed: %w", err)
	}

	s.auditLogger.Record(ctx, &models.AuditRecord{
		OperatorID:    operatorID,
		OperatorEmail: operator.Email,
		Action:        models.AuditActionPasswordReset,
		Description:   fmt.Sprintf("password reset by admin %s", requestedBy),
		Metadata:      map[string]string{"requested_by": requestedBy},
	})
	return nil
}

// SetStatus toggles an operator between active and inactive.
func (s *ProvisioningService) SetStatus(ctx context.Context, operatorID, status string) error {
	if status != models.OperatorStatusActive && status != models.OperatorStatusInactive {
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidInput,
			models.OperatorStatusActive, models.OperatorStatusInactive)
	}
	if err := s.operators.UpdateStatus(ctx, operatorID, status); err != nil {
		return fmt.Errorf("status update failed: %w", err)
	}
	return nil
}

// ReplaceCameras swaps an operator's camera assignment wholesale.
func (s *ProvisioningService) ReplaceCameras(ctx context.Context, operatorID string, cameraIDs []string) error {
	if len(cameraIDs) == 0 {
		return fmt.Errorf("%w: at least one camera is required", ErrInvalidInput)
	}
	if err := s.operators.ReplaceCameras(ctx, operatorID, cameraIDs); err != nil {
		return fmt.Errorf("camera replacement failed: %w", err)
	}
	return nil
}

// GetOperator loads an operator profile.
func (s *ProvisioningService) GetOperator(ctx context.Context, operatorID string) (*models.Operator, error) {
	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, scylla.ErrOperatorNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
		}
		return nil, err
	}
	return operator, nil
}

func (s *ProvisioningService) checkRateLimit(ctx context.Context, adminID string) error {
	if s.rateLimiter == nil {
		return nil
	}

	locked, err := s.rateLimiter.IsLocked(ctx, adminID)
	if err != nil {
		// Rate limiting is advisory; an unreachable cache must not
		// take provisioning down with it.
		s.logger.Warn("lockout check failed, allowing request", zap.Error(err))
	} else if locked {
		return fmt.Errorf("%w: admin %s is temporarily locked", ErrRateLimited, adminID)
	}

	count, err := s.rateLimiter.IncrementProvisionCounter(ctx, adminID, s.config.RateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
		return nil
	}
	if count > s.config.RateLimitMax {
		if err := s.rateLimiter.SetTemporaryLock(ctx, adminID, s.config.LockoutDuration); err != nil {
			s.logger.Warn("failed to set provisioning lockout",
				zap.String("admin_id", adminID),
				zap.Error(err))
		}
		return fmt.Errorf("%w: admin %s", ErrRateLimited, adminID)
	}
	return nil
}

func validateProvisionRequest(req *ProvisionRequest) error {
	if req == nil {
		return errors.New("request is required")
	}
	if !util.ValidEmail(req.Email) || util.ContainsSuspicious(req.Email) {
		return errors.New("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(req.CameraIDs) == 0 {
		return errors.New("at least one camera is required")
	}
	for _, id := range req.CameraIDs {
		if id == "" || util.ContainsSuspicious(id) {
			return fmt.Errorf("invalid camera id: %q", id)
		}
	}
	if req.RequestedBy == "" {
		return errors.New("requesting administrator id is required")
	}
	return nil
}
