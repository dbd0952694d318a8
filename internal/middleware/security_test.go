package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/config"
	"relay-backend/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGuardedEngine(t *testing.T, class security.Class) (*gin.Engine, *security.State) {
	t.Helper()

	cfg := &config.Config{
		Network: config.NetworkConfig{
			ChainID:           80002,
			TokenAddress:      "0x1111111111111111111111111111111111111111",
			RedemptionAddress: "0x2222222222222222222222222222222222222222",
		},
		Security: config.SecurityConfig{
			HMACSecret: "test-hmac-secret-0123456789",
		},
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	sec := security.NewState(cfg, logger)

	mw := NewSecurityMiddleware(sec, logger)
	engine := gin.New()
	engine.GET("/guarded", mw.Guard(class), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return engine, sec
}

func hit(engine *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGuardRateLimitsHighRiskClass(t *testing.T) {
	engine, _ := newGuardedEngine(t, security.ClassHighRisk)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(engine).Code, "request %d", i)
	}

	w := hit(engine)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 61)
}

func TestGuardRejectsBlockedIdentity(t *testing.T) {
	engine, sec := newGuardedEngine(t, security.ClassDefault)

	// httptest requests always come from 192.0.2.1.
	sec.Blocklist.Block("ip", "192.0.2.1")

	w := hit(engine)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "IDENTITY_BLOCKED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGuardHammeringTurnsIntoBlock(t *testing.T) {
	engine, _ := newGuardedEngine(t, security.ClassHighRisk)

	// 3 allowed, then rate_limit_hit events accumulate; the 5th hit trips
	// the abuse threshold and blocks the identity.
	var sawBlock bool
	for i := 0; i < 20; i++ {
		w := hit(engine)
		if w.Code == http.StatusForbidden {
			sawBlock = true
			assert.Contains(t, w.Body.String(), "IDENTITY_BLOCKED")
			break
		}
	}
	assert.True(t, sawBlock, "expected repeated rate limit hits to escalate into a block")
}

func TestRequestIdentityPrefersUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Equal(t, "ip:192.0.2.1", RequestIdentity(c))

	c.Set("user_id", "alice")
	assert.Equal(t, "user:alice", RequestIdentity(c))
}
