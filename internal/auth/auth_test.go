package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key"

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue(42, "career-quest", testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := Parse(tok.AccessToken, testKey, "career-quest")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	id, err := claims.AdminID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = Parse(tok.AccessToken, "other-key", "career-quest")
	assert.Error(t, err)
	_, err = Parse(tok.AccessToken, testKey, "someone-else")
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	tok, err := Issue(1, "", testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(tok.AccessToken, testKey, "")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssueRequiresKey(t *testing.T) {
	_, err := Issue(1, "", "", time.Hour)
	assert.Error(t, err)
}

type adminSet map[int64]bool

func (a adminSet) IsAdmin(_ context.Context, id int64) (bool, error) {
	if id == 500 {
		return false, errors.New("db down")
	}
	return a[id], nil
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AdminAuth(testKey, "", adminSet{7: true}, nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin": c.GetInt64(AdminIDKey)})
	})

	token := func(id int64) string {
		tok, err := Issue(id, "", testKey, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok.AccessToken
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"admin", token(7), http.StatusOK},
		{"revoked", token(8), http.StatusForbidden},
		{"lookup error", token(500), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
