package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config carries the file-backed casbin setup.
type Config struct {
	ModelPath  string
	PolicyPath string
	Mode       Mode
	Logger     *logrus.Logger
}

func (c Config) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model path is required", ErrInvalidConfig)
	}
	if c.PolicyPath == "" {
		return fmt.Errorf("%w: policy path is required", ErrInvalidConfig)
	}
	switch c.Mode {
	case ModeDisabled, ModeShadow, ModeEnforce:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// Service provides helpers for enforcing authorization decisions.
type Service struct {
	cfg      Config
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
	mu       sync.RWMutex
}

// NewService constructs a Service with the provided config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	enf, err := casbin.NewEnforcer(cfg.ModelPath, fileadapter.NewAdapter(cfg.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if err := enf.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}

	return &Service{
		cfg:      cfg,
		enforcer: enf,
		logger:   logger,
	}, nil
}

// Authorize returns an error if the request is denied.
func (s *Service) Authorize(ctx context.Context, req Request) error {
	switch s.cfg.Mode {
	case ModeDisabled:
		return nil
	case ModeEnforce:
		allowed, err := s.Check(ctx, req)
		if err != nil {
			return err
		}
		if !allowed {
			s.logDeny(ctx, req, ModeEnforce)
			return forbiddenError(req)
		}
		return nil
	default:
		allowed, err := s.Check(ctx, req)
		if err != nil {
			return err
		}
		if !allowed {
			s.logDeny(ctx, req, ModeShadow)
		}
		return nil
	}
}

// Check evaluates a request without returning an authorization error.
func (s *Service) Check(ctx context.Context, req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.enforcer.Enforce(req.Subject, req.Object, req.Action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return res, nil
}

// IsAdministrator reports whether the actor holds the administrator role.
// The workflow consults this directly; it never trusts role claims supplied
// by the transport layer.
func (s *Service) IsAdministrator(ctx context.Context, actorID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	has, err := s.enforcer.HasRoleForUser(SubjectForActor(actorID), AdminRole)
	if err != nil {
		return false, fmt.Errorf("authz: role lookup failed: %w", err)
	}
	return has, nil
}

// GrantAdministrator adds the admin role for an actor. Used by seeds and
// tests.
func (s *Service) GrantAdministrator(actorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.enforcer.AddRoleForUser(SubjectForActor(actorID), AdminRole); err != nil {
		return fmt.Errorf("authz: grant failed: %w", err)
	}
	return nil
}

func (s *Service) logDeny(ctx context.Context, req Request, mode Mode) {
	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"subject": req.Subject,
		"object":  req.Object,
		"action":  req.Action,
		"mode":    mode,
	}).Warn("authz denied request")
}

var (
	useMu   sync.RWMutex
	current *Service
)

// Setup installs the process-wide service instance.
func Setup(svc *Service) {
	useMu.Lock()
	defer useMu.Unlock()
	current = svc
}

// Use returns the installed service. It panics when Setup has not run, which
// is a deployment error rather than a runtime condition.
func Use() *Service {
	useMu.RLock()
	defer useMu.RUnlock()
	if current == nil {
		panic("authz: Setup was not called")
	}
	return current
}
