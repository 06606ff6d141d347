// README: Auth middleware tests.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "role": role})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func buildRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Auth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user": c.GetString(ContextUserID),
			"role": c.GetString(ContextRole),
		})
	})
	r.GET("/rider-only", Auth(testSecret), RequireRole("rider"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doGet(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingToken(t *testing.T) {
	if w := doGet(buildRouter(), "/whoami", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_MalformedToken(t *testing.T) {
	if w := doGet(buildRouter(), "/whoami", "Bearer not.a.jwt"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	r := buildRouter()
	token := signToken(t, "other-secret", "r1", "rider")
	if w := doGet(r, "/whoami", "Bearer "+token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	r := buildRouter()
	token := signToken(t, testSecret, "r1", "rider")
	w := doGet(r, "/whoami", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	r := buildRouter()

	rider := signToken(t, testSecret, "r1", "rider")
	if w := doGet(r, "/rider-only", "Bearer "+rider); w.Code != http.StatusOK {
		t.Fatalf("rider: expected 200, got %d", w.Code)
	}

	seller := signToken(t, testSecret, "s1", "seller")
	if w := doGet(r, "/rider-only", "Bearer "+seller); w.Code != http.StatusForbidden {
		t.Fatalf("seller: expected 403, got %d", w.Code)
	}
}
