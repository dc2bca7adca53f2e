package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incident-console/internal/identity"
	"incident-console/internal/models"
	"incident-console/internal/service"
)

type fakeProvisioner struct {
	provisionID  string
	provisionErr error
	lastRequest  *service.ProvisionRequest

	resetErr    error
	statusErr   error
	camerasErr  error
	operator    *models.Operator
	operatorErr error
}

func (f *fakeProvisioner) Provision(ctx context.Context, req *service.ProvisionRequest) (string, error) {
	f.lastRequest = req
	return f.provisionID, f.provisionErr
}

func (f *fakeProvisioner) ResetPassword(ctx context.Context, operatorID, newPassword, requestedBy string) error {
	return f.resetErr
}

func (f *fakeProvisioner) SetStatus(ctx context.Context, operatorID, status string) error {
	return f.statusErr
}

func (f *fakeProvisioner) ReplaceCameras(ctx context.Context, operatorID string, cameraIDs []string) error {
	return f.camerasErr
}

func (f *fakeProvisioner) GetOperator(ctx context.Context, operatorID string) (*models.Operator, error) {
	return f.operator, f.operatorErr
}

type fakeAuditReader struct {
	records []models.AuditRecord
	err     error
}

func (f *fakeAuditReader) ByOperator(ctx context.Context, operatorID string, limit int) ([]models.AuditRecord, error) {
	return f.records, f.err
}

type fakeVerifier struct {
	info *identity.TokenInfo
	err  error
}

func (f *fakeVerifier) CreateUser(ctx context.Context, email, password string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeVerifier) DeleteUser(ctx context.Context, userID string) error {
	return errors.New("not implemented")
}
func (f *fakeVerifier) SetRoleClaim(ctx context.Context, userID, role string) error {
	return errors.New("not implemented")
}
func (f *fakeVerifier) UpdatePassword(ctx context.Context, userID, password string) error {
	return errors.New("not implemented")
}
func (f *fakeVerifier) VerifyToken(ctx context.Context, token string) (*identity.TokenInfo, error) {
	return f.info, f.err
}

func newTestRouter(p *fakeProvisioner, a *fakeAuditReader) chi.Router {
	h := NewAdminHandler(p, a, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestProvisionOperatorCreated(t *testing.T) {
	p := &fakeProvisioner{provisionID: "op-1"}
	router := newTestRouter(p, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/operators", map[string]interface{}{
		"email":    "operator@example.com",
		"password": "s3cret-pass",
		"cameras":  []string{"cam-1"},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	require.NotNil(t, p.lastRequest)
	assert.Equal(t, "operator@example.com", p.lastRequest.Email)
	assert.Equal(t, []string{"cam-1"}, p.lastRequest.CameraIDs)
}

func TestProvisionOperatorErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"duplicate email", service.ErrDuplicateEmail, http.StatusConflict},
		{"rate limited", service.ErrRateLimited, http.StatusTooManyRequests},
		{"provider failure", errors.New("keycloak unreachable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvisioner{provisionErr: tt.err}
			router := newTestRouter(p, &fakeAuditReader{})

			rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/operators", map[string]interface{}{
				"email":    "operator@example.com",
				"password": "s3cret-pass",
				"cameras":  []string{"cam-1"},
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
		})
	}
}

func TestProvisionOperatorRejectsBadBody(t *testing.T) {
	router := newTestRouter(&fakeProvisioner{}, &fakeAuditReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/operators", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOperatorOmitsStorageOnlyFields(t *testing.T) {
	p := &fakeProvisioner{operator: &models.Operator{
		OperatorID:     "op-1",
		Email:          "operator@example.com",
		EmailHash:      "deadbeef",
		EmailEncrypted: []byte("ciphertext"),
		EmailKeyID:     "key-1",
		Cameras:        []string{"cam-1"},
	}}
	router := newTestRouter(p, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/operators/op-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadbeef")
	assert.NotContains(t, rec.Body.String(), "ciphertext")
	assert.NotContains(t, rec.Body.String(), "key-1")

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "op-1", data["operator_id"])
	assert.Equal(t, "operator@example.com", data["email"])
	assert.NotContains(t, data, "email_hash")
	assert.NotContains(t, data, "OperatorID")
}

func TestGetOperatorNotFound(t *testing.T) {
	p := &fakeProvisioner{operatorErr: service.ErrOperatorNotFound}
	router := newTestRouter(p, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/operators/op-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetPasswordNotFound(t *testing.T) {
	p := &fakeProvisioner{resetErr: service.ErrOperatorNotFound}
	router := newTestRouter(p, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/operators/op-1/reset-password",
		map[string]string{"new_password": "new-secret"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	p := &fakeProvisioner{}
	router := newTestRouter(p, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/admin/operators/op-1/status",
		map[string]string{"status": "inactive"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOperatorLogs(t *testing.T) {
	a := &fakeAuditReader{records: []models.AuditRecord{
		{RecordID: "rec-1", OperatorID: "op-1", Action: models.AuditActionLogin},
	}}
	router := newTestRouter(&fakeProvisioner{}, a)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/operator-logs/op-1?limit=50", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rec-1")
}

func TestGetOperatorLogsRejectsBadLimit(t *testing.T) {
	router := newTestRouter(&fakeProvisioner{}, &fakeAuditReader{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/operator-logs/op-1?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuthMiddleware(t *testing.T) {
	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		info := TokenInfoFromContext(r.Context())
		require.NotNil(t, info)
		assert.Equal(t, "admin-1", info.UserID)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		verifier   *fakeVerifier
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "missing header",
			header:     "",
			verifier:   &fakeVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			header:     "Basic dXNlcjpwYXNz",
			verifier:   &fakeVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			header:     "Bearer bad-token",
			verifier:   &fakeVerifier{err: identity.NewError(identity.KindInvalidToken, errors.New("bad signature"))},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "operator token rejected",
			header:     "Bearer operator-token",
			verifier:   &fakeVerifier{info: &identity.TokenInfo{UserID: "op-1", Role: "operator"}},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin token accepted",
			header:     "Bearer admin-token",
			verifier:   &fakeVerifier{info: &identity.TokenInfo{UserID: "admin-1", Role: "admin"}},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			mw := AdminAuth(tt.verifier, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/operators/op-1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, handlerCalled)
		})
	}
}
