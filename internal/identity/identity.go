package identity

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies identity-provider failures. The provisioning
// saga only retries Transient errors; everything else fails the step
// on first sight.
type ErrorKind string

const (
	KindDuplicate    ErrorKind = "DUPLICATE"
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	KindTransient    ErrorKind = "TRANSIENT_TIMEOUT"
	KindUnknown      ErrorKind = "UNKNOWN"
	KindInvalidToken ErrorKind = "INVALID_TOKEN"
	KindExpiredToken ErrorKind = "EXPIRED_TOKEN"
)

// Error wraps a provider failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity provider error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a kinded identity error.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to Unknown.
func KindOf(err error) ErrorKind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying unchanged.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsDuplicate reports a unique-constraint conflict (email already
// registered).
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}

// TokenInfo is the verified identity carried by a bearer token.
type TokenInfo struct {
	UserID string
	Email  string
	Role   string
}

// Client is the narrow surface this service consumes from the identity
// provider. Implementations are constructor-injected so tests can
// substitute fakes.
type Client interface {
	// CreateUser registers a credential and returns the provider-assigned id.
	CreateUser(ctx context.Context, email, password string) (string, error)

	// DeleteUser removes a credential. Used only as saga compensation.
	DeleteUser(ctx context.Context, userID string) error

	// SetRoleClaim attaches the role custom claim to the user so tokens
	// carry it without a store lookup.
	SetRoleClaim(ctx context.Context, userID, role string) error

	// UpdatePassword replaces the user's password.
	UpdatePassword(ctx context.Context, userID, password string) error

	// VerifyToken validates a bearer token and returns its identity.
	VerifyToken(ctx context.Context, token string) (*TokenInfo, error)
}
