package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	again, _ := HashPassword("password123")
	if hash == again {
		t.Error("same password hashed twice gave the same hash")
	}

	tests := []struct {
		name string
		hash string
		pw   string
		want bool
	}{
		{"match", hash, "password123", true},
		{"wrong password", hash, "password124", false},
		{"empty password", hash, "", false},
		{"not a hash", "plain", "plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.pw); got != tt.want {
				t.Errorf("VerifyPassword = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Now()
	token, exp, err := generateAccessToken("3f2b7c1e-user", "secret", now, 15*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := exp.Sub(now); got != 15*time.Minute {
		t.Errorf("expiry offset = %v", got)
	}
	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "3f2b7c1e-user" || claims.Subject != "3f2b7c1e-user" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseAccessToken_Rejects(t *testing.T) {
	good, _ := GenerateAccessToken("u1", "secret", 15)
	expired, _, _ := generateAccessToken("u1", "secret", time.Now().Add(-time.Hour), time.Minute)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name, token, secret string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "secret"},
		{"alg none", unsigned, "secret"},
		{"garbage", "not.a.token", "secret"},
		{"empty", "", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAccessToken(tt.token, tt.secret); err == nil {
				t.Error("token accepted")
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := GenerateRefreshToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 64 {
			t.Fatalf("len = %d, want 64 hex chars", len(tok))
		}
		if seen[tok] {
			t.Fatal("duplicate refresh token")
		}
		seen[tok] = true
	}
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name, header, query, want string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"lower case scheme", "bearer  abc ", "", "abc"},
		{"query for websockets", "", "xyz", "xyz"},
		{"header wins", "Bearer abc", "xyz", "abc"},
		{"other scheme", "Basic Zm9v", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			target := "/ws"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			c.Request = httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(c); got != strings.TrimSpace(tt.want) {
				t.Errorf("BearerToken = %q, want %q", got, tt.want)
			}
		})
	}
}
