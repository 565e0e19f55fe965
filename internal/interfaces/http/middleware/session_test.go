package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/auth"
	"github.com/licensehub/backend/internal/infrastructure/config"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	masterKey = "MAST-ER00-0000-0001"
	tenantKey = "TENA-NT00-0000-0001"
)

func newJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                  "test-secret-that-is-long-enough-for-hs256",
		Issuer:                  "licensehub-test",
		AccessTokenExpiration:   time.Hour,
		ImpersonationExpiration: 10 * time.Minute,
	}, masterKey)
}

func newSessionRouter(cfg SessionConfig, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), SessionAuth(cfg))
	router.Use(extra...)
	router.GET("/whoami", func(c *gin.Context) {
		actor, _ := GetActor(c)
		c.JSON(http.StatusOK, gin.H{
			"license_key":     actor.LicenseKey,
			"actor_id":        actor.ActorID,
			"is_master":       actor.IsMaster,
			"impersonated_by": actor.ImpersonatedBy,
		})
	})
	return router
}

func get(router http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSessionAuth(t *testing.T) {
	svc := newJWTService()
	router := newSessionRouter(SessionConfig{Validator: svc})

	t.Run("missing header", func(t *testing.T) {
		w := get(router, "/whoami", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeUnauthorized, errorCode(t, w))
	})

	t.Run("malformed token", func(t *testing.T) {
		w := get(router, "/whoami", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, errorCode(t, w))
	})

	t.Run("tenant session", func(t *testing.T) {
		token, _, err := svc.IssueSession(tenantKey, "")
		require.NoError(t, err)

		w := get(router, "/whoami", token)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenantKey, body["license_key"])
		assert.Equal(t, false, body["is_master"])
	})

	t.Run("impersonation acts as target and is never master", func(t *testing.T) {
		master := licensing.Actor{LicenseKey: masterKey, ActorID: "ops", IsMaster: true}
		token, _, err := svc.IssueImpersonation(master, tenantKey)
		require.NoError(t, err)

		w := get(router, "/whoami", token)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenantKey, body["license_key"])
		assert.Equal(t, masterKey, body["impersonated_by"])
		assert.Equal(t, false, body["is_master"])
	})
}

func TestSessionAuth_InvalidatedLicense(t *testing.T) {
	svc := newJWTService()
	blacklist := auth.NewInMemorySessionBlacklist()
	router := newSessionRouter(SessionConfig{Validator: svc, Blacklist: blacklist})

	token, _, err := svc.IssueSession(tenantKey, "")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get(router, "/whoami", token).Code)

	require.NoError(t, blacklist.InvalidateLicense(context.Background(), tenantKey))

	w := get(router, "/whoami", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenRevoked, errorCode(t, w))
}

type failingBlacklist struct{}

func (failingBlacklist) IsInvalidated(context.Context, licensing.LicenseKey, time.Time) (bool, error) {
	return false, errors.New("redis down")
}

func TestSessionAuth_BlacklistErrorFailsOpen(t *testing.T) {
	svc := newJWTService()
	router := newSessionRouter(SessionConfig{Validator: svc, Blacklist: failingBlacklist{}})

	token, _, err := svc.IssueSession(tenantKey, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(router, "/whoami", token).Code)
}

func TestRequireMaster(t *testing.T) {
	svc := newJWTService()
	router := newSessionRouter(SessionConfig{Validator: svc}, RequireMaster())

	tenantToken, _, err := svc.IssueSession(tenantKey, "")
	require.NoError(t, err)
	w := get(router, "/whoami", tenantToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, dto.ErrCodeForbidden, errorCode(t, w))

	masterToken, _, err := svc.IssueSession(masterKey, "ops")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(router, "/whoami", masterToken).Code)

	// an impersonation session minted by master does not inherit master rights
	imp, _, err := svc.IssueImpersonation(licensing.Actor{LicenseKey: masterKey, IsMaster: true}, tenantKey)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(router, "/whoami", imp).Code)
}
