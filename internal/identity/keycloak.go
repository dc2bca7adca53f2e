package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"incident-console/internal/config"
)

// KeycloakClient implements Client against a Keycloak realm using the
// admin REST API.
type KeycloakClient struct {
	client *gocloak.GoCloak
	config *config.KeycloakConfig
	logger *zap.Logger

	tokenMu    sync.Mutex
	adminToken *gocloak.JWT
	tokenUntil time.Time
}

func NewKeycloakClient(cfg *config.Config, logger *zap.Logger) *KeycloakClient {
	return &KeycloakClient{
		client: gocloak.NewClient(cfg.Keycloak.BaseURL),
		config: &cfg.Keycloak,
		logger: logger,
	}
}

// adminAccessToken returns a cached admin token, refreshing it shortly
// before expiry.
func (k *KeycloakClient) adminAccessToken(ctx context.Context) (string, error) {
	k.tokenMu.Lock()
	defer k.tokenMu.Unlock()

	if k.adminToken != nil && time.Now().Before(k.tokenUntil) {
		return k.adminToken.AccessToken, nil
	}

	token, err := k.client.LoginAdmin(ctx, k.config.AdminUser, k.config.AdminPassword, k.config.AdminRealm)
	if err != nil {
		return "", classify(fmt.Errorf("admin login failed: %w", err))
	}

	k.adminToken = token
	k.tokenUntil = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - 10*time.Second)
	return token.AccessToken, nil
}

func (k *KeycloakClient) CreateUser(ctx context.Context, email, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	token, err := k.adminAccessToken(ctx)
	if err != nil {
		return "", err
	}

	user := gocloak.User{
		Username:      gocloak.StringP(email),
		Email:         gocloak.StringP(email),
		Enabled:       gocloak.BoolP(true),
		EmailVerified: gocloak.BoolP(false),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type:      gocloak.StringP("password"),
			Value:     gocloak.StringP(password),
			Temporary: gocloak.BoolP(false),
		}},
	}

	userID, err := k.client.CreateUser(ctx, token, k.config.Realm, user)
	if err != nil {
		return "", classify(err)
	}

	k.logger.Info("identity created",
		zap.String("user_id", userID),
	)
	return userID, nil
}

func (k *KeycloakClient) DeleteUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	token, err := k.adminAccessToken(ctx)
	if err != nil {
		return err
	}
	if err := k.client.DeleteUser(ctx, token, k.config.Realm, userID); err != nil {
		return classify(err)
	}
	return nil
}

func (k *KeycloakClient) SetRoleClaim(ctx context.Context, userID, role string) error {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	token, err := k.adminAccessToken(ctx)
	if err != nil {
		return err
	}

	user, err := k.client.GetUserByID(ctx, token, k.config.Realm, userID)
	if err != nil {
		return classify(err)
	}

	attrs := map[string][]string{}
	if user.Attributes != nil {
		attrs = *user.Attributes
	}
	attrs["role"] = []string{role}
	user.Attributes = &attrs

	if err := k.client.UpdateUser(ctx, token, k.config.Realm, *user); err != nil {
		return classify(err)
	}
	return nil
}

func (k *KeycloakClient) UpdatePassword(ctx context.Context, userID, password string) error {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	token, err := k.adminAccessToken(ctx)
	if err != nil {
		return err
	}
	if err := k.client.SetPassword(ctx, token, userID, k.config.Realm, password, false); err != nil {
		return classify(err)
	}
	return nil
}

func (k *KeycloakClient) VerifyToken(ctx context.Context, accessToken string) (*TokenInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	token, claims, err := k.client.DecodeAccessToken(ctx, accessToken, k.config.Realm)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewError(KindExpiredToken, err)
		}
		return nil, NewError(KindInvalidToken, err)
	}
	if token == nil || !token.Valid {
		return nil, NewError(KindInvalidToken, errors.New("token is not valid"))
	}

	info := &TokenInfo{}
	if claims != nil {
		m := map[string]interface{}(*claims)
		if sub, ok := m["sub"].(string); ok {
			info.UserID = sub
		}
		if email, ok := m["email"].(string); ok {
			info.Email = email
		}
		if role, ok := m["role"].(string); ok {
			info.Role = role
		}
	}
	if info.UserID == "" {
		return nil, NewError(KindInvalidToken, errors.New("token has no subject"))
	}
	return info, nil
}

// classify maps transport and Keycloak API errors onto the error kinds
// the saga acts on.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTransient, err)
	}

	var apiErr *gocloak.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 409:
			return NewError(KindDuplicate, err)
		case apiErr.Code == 400:
			return NewError(KindInvalidInput, err)
		case apiErr.Code == 408 || apiErr.Code == 504:
			return NewError(KindTransient, err)
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return NewError(KindTransient, err)
	}
	return NewError(KindUnknown, err)
}
