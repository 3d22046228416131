package middleware

import (
	"cardstudio/core"
	"cardstudio/handlers/auth"
	"cardstudio/i18n"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAuthJWT(t *testing.T) {
	auth.InitAuth("middleware-secret")
	token, err := auth.CreateJWT(&core.User{Subject: "user-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotSubject string
	handler := AuthJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(w, r)
		if ok {
			gotSubject = id
		}
	}))

	testCases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Errorf("status = %d, want %d", rr.Code, tc.status)
			}
			if tc.status == http.StatusOK && gotSubject != "user-1" {
				t.Errorf("subject = %q, want user-1", gotSubject)
			}
		})
	}
}

func TestUserID_WithoutClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	if _, ok := UserID(rr, httptest.NewRequest("GET", "/", nil)); ok {
		t.Fatal("expected no user")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(ip string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, code)
		}
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client throttled: status = %d", code)
	}

	rl.evict(0)
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Errorf("evicted client still throttled: status = %d", code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP() = %q", got)
	}
}

func TestLocale(t *testing.T) {
	store := i18n.NewStore(nil, "en")
	var got string
	handler := Locale(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = i18n.FromContext(r.Context()).Code()
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if got != "en" {
		t.Errorf("language in context = %q, want en", got)
	}
	if rr.Header().Get("Content-Language") != "en" {
		t.Errorf("Content-Language = %q", rr.Header().Get("Content-Language"))
	}
}
