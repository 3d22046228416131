package auth

import (
	"cardstudio/core"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCreateAndParseJWT(t *testing.T) {
	InitAuth("test-secret")

	token, err := CreateJWT(&core.User{Subject: "user-1", Login: "alice", Email: "alice@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("CreateJWT() error = %v", err)
	}

	claims, err := ParseJWT(token)
	if err != nil {
		t.Fatalf("ParseJWT() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Login != "alice" || claims.Email != "alice@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	InitAuth("test-secret")

	expired, _ := CreateJWT(&core.User{Subject: "user-1"}, -time.Minute)
	noSubject, _ := CreateJWT(&core.User{}, time.Hour)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	forged, _ := other.SignedString([]byte("another-secret"))

	testCases := map[string]string{
		"expired":    expired,
		"no subject": noSubject,
		"forged":     forged,
		"garbage":    "not-a-token",
	}
	for name, token := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseJWT(token); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestHandleMe(t *testing.T) {
	claims := &AppClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, Login: "alice"}

	handler := HandleMe(func(*http.Request) (*AppClaims, bool) { return claims, true })
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/me", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var user core.User
	if err := json.NewDecoder(rr.Body).Decode(&user); err != nil {
		t.Fatal(err)
	}
	if user.Subject != "user-1" || user.Login != "alice" {
		t.Errorf("unexpected user: %+v", user)
	}

	handler = HandleMe(func(*http.Request) (*AppClaims, bool) { return nil, false })
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
