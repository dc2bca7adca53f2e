package service

import (
	"go.uber.org/zap"

	"incident-console/internal/audit"
	"incident-console/internal/config"
	"incident-console/internal/identity"
	"incident-console/internal/repository/scylla"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	identityClient identity.Client
	operatorRepo   scylla.OperatorRepository
	incidentRepo   scylla.IncidentRepository
	auditLogger    *audit.Logger
	rateLimiter    ProvisionRateLimiter
	config         *config.Config
	logger         *zap.Logger

	provisioningService *ProvisioningService
	escalationService   *EscalationService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	identityClient identity.Client,
	operatorRepo scylla.OperatorRepository,
	incidentRepo scylla.IncidentRepository,
	auditLogger *audit.Logger,
	rateLimiter ProvisionRateLimiter,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		identityClient: identityClient,
		operatorRepo:   operatorRepo,
		incidentRepo:   incidentRepo,
		auditLogger:    auditLogger,
		rateLimiter:    rateLimiter,
		config:         cfg,
		logger:         logger,
	}
}

// ProvisioningService returns the provisioning service instance (singleton)
func (f *ServiceFactory) ProvisioningService() *ProvisioningService {
	if f.provisioningService == nil {
		f.provisioningService = NewProvisioningService(
			f.identityClient,
			f.operatorRepo,
			f.auditLogger,
			f.rateLimiter,
			&f.config.Provision,
			f.logger,
		)
	}
	return f.provisioningService
}

// EscalationService returns the escalation service instance (singleton)
func (f *ServiceFactory) EscalationService() *EscalationService {
	if f.escalationService == nil {
		f.escalationService = NewEscalationService(
			f.incidentRepo,
			f.config.Escalation,
			f.logger,
		)
	}
	return f.escalationService
}
