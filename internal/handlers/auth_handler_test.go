package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"relay-backend/internal/auth"
	"relay-backend/internal/dto"
	"relay-backend/internal/middleware"
	"relay-backend/internal/models"
)

// linkingAccountRepo tracks links in memory and surfaces the unique-violation
// and not-found errors the real repository returns.
type linkingAccountRepo struct {
	links map[string]string // aaAddress -> userID
}

func newLinkingAccountRepo() *linkingAccountRepo {
	return &linkingAccountRepo{links: map[string]string{}}
}

func (r *linkingAccountRepo) Link(ctx context.Context, userID, aaAddress string) (*models.SmartAccount, error) {
	if _, ok := r.links[aaAddress]; ok {
		return nil, errors.New("duplicate key value violates unique constraint")
	}
	r.links[aaAddress] = userID
	return &models.SmartAccount{UserID: userID, AAAddress: aaAddress}, nil
}

func (r *linkingAccountRepo) Unlink(ctx context.Context, userID, aaAddress string) error {
	if r.links[aaAddress] != userID {
		return gorm.ErrRecordNotFound
	}
	delete(r.links, aaAddress)
	return nil
}

func (r *linkingAccountRepo) FindByUser(ctx context.Context, userID string) ([]*models.SmartAccount, error) {
	var out []*models.SmartAccount
	for addr, owner := range r.links {
		if owner == userID {
			out = append(out, &models.SmartAccount{UserID: owner, AAAddress: addr})
		}
	}
	return out, nil
}

func (r *linkingAccountRepo) GetByAddress(ctx context.Context, aaAddress string) (*models.SmartAccount, error) {
	return nil, nil
}

func (r *linkingAccountRepo) IsOwnedBy(ctx context.Context, userID, aaAddress string) (bool, error) {
	return r.links[aaAddress] == userID, nil
}

func newAuthTestEngine(t *testing.T) (*gin.Engine, *linkingAccountRepo) {
	t.Helper()
	testConfig()

	logger := testLogger()
	repo := newLinkingAccountRepo()
	h := NewAuthHandler(repo, logger)
	authMW := middleware.NewAuthMiddleware(logger)

	engine := gin.New()
	engine.POST("/auth/login", h.LoginHandler)

	protected := engine.Group("/", authMW.RequireAuth())
	protected.GET("/auth/profile", h.ProfileHandler)
	protected.POST("/auth/accounts", h.LinkAccountHandler)
	protected.DELETE("/auth/accounts/:address", h.UnlinkAccountHandler)

	return engine, repo
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, engine *gin.Engine, userID string) string {
	t.Helper()
	w := doJSON(t, engine, http.MethodPost, "/auth/login", `{"user_id":"`+userID+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.LoginResponse
	decodeJSON(t, w, &resp)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLoginIssuesValidToken(t *testing.T) {
	engine, _ := newAuthTestEngine(t)

	token := login(t, engine, "alice")

	claims, err := auth.ValidateUserToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
}

func TestLoginDevPassword(t *testing.T) {
	engine, _ := newAuthTestEngine(t)
	cfg := testConfig()
	cfg.Auth.DevPassword = "hunter2"
	defer func() { cfg.Auth.DevPassword = "" }()

	w := doJSON(t, engine, http.MethodPost, "/auth/login", `{"user_id":"alice","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/auth/login", `{"user_id":"alice","password":"hunter2"}`, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestProtectedRouteRejectsBadTokens(t *testing.T) {
	engine, _ := newAuthTestEngine(t)

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"no header", "", "MISSING_AUTH_HEADER"},
		{"wrong scheme", "Basic abc", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.jwt", "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestLinkAndProfileRoundTrip(t *testing.T) {
	engine, _ := newAuthTestEngine(t)
	token := login(t, engine, "alice")

	w := doJSON(t, engine, http.MethodPost, "/auth/accounts",
		`{"aa_address":"`+testAAAddr+`"}`, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, engine, http.MethodGet, "/auth/profile", "", token)
	require.Equal(t, http.StatusOK, w.Code)

	var profile dto.ProfileResponse
	decodeJSON(t, w, &profile)
	assert.Equal(t, "alice", profile.UserID)
	assert.Equal(t, []string{testAAAddr}, profile.Accounts)
}

func TestLinkDuplicateAccountConflicts(t *testing.T) {
	engine, _ := newAuthTestEngine(t)
	token := login(t, engine, "alice")

	body := `{"aa_address":"` + testAAAddr + `"}`
	require.Equal(t, http.StatusOK, doJSON(t, engine, http.MethodPost, "/auth/accounts", body, token).Code)

	w := doJSON(t, engine, http.MethodPost, "/auth/accounts", body, token)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_ALREADY_LINKED")
}

func TestLinkRejectsInvalidAddress(t *testing.T) {
	engine, _ := newAuthTestEngine(t)
	token := login(t, engine, "alice")

	w := doJSON(t, engine, http.MethodPost, "/auth/accounts", `{"aa_address":"nope"}`, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ADDRESS")
}

func TestUnlinkAccount(t *testing.T) {
	engine, repo := newAuthTestEngine(t)
	token := login(t, engine, "alice")

	body := `{"aa_address":"` + testAAAddr + `"}`
	require.Equal(t, http.StatusOK, doJSON(t, engine, http.MethodPost, "/auth/accounts", body, token).Code)

	w := doJSON(t, engine, http.MethodDelete, "/auth/accounts/"+testAAAddr, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, repo.links)

	// A second unlink finds nothing.
	w = doJSON(t, engine, http.MethodDelete, "/auth/accounts/"+testAAAddr, "", token)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_NOT_FOUND")
}

func TestAdminTokenRejectedOnUserRoutes(t *testing.T) {
	engine, _ := newAuthTestEngine(t)
	cfg := testConfig()
	cfg.Admin.JWTSecret = "admin-secret-0123456789"

	adminToken, err := auth.GenerateAdminToken("root", []byte(cfg.Admin.JWTSecret))
	require.NoError(t, err)

	claims, err := auth.ValidateAdminToken(adminToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "root", claims.Username)

	// Admin tokens are signed with a different secret, so they never pass
	// as user sessions.
	w := doJSON(t, engine, http.MethodGet, "/auth/profile", "", adminToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
