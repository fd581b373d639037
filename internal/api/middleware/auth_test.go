package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signToken подписывает HS256-токен с указанными claims.
func signToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// validClaims — живой токен для user-1.
func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

// echoSubject — обработчик, отдающий sub из контекста.
func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SubjectFromContext(r.Context())))
	})
}

func TestJWTAuth_ValidToken(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, ожидается 200", rr.Code)
	}
	if rr.Body.String() != "user-1" {
		t.Errorf("subject = %q, ожидается user-1", rr.Body.String())
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, ожидается 401", rr.Code)
	}
}

func TestJWTAuth_MalformedHeader(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	for _, header := range []string{"Token abc", "Bearer", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("заголовок %q: status = %d, ожидается 401", header, rr.Code)
		}
	}
}

func TestJWTAuth_WrongSignature(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, поддельная подпись должна давать 401", rr.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	expired := jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, expired))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, просроченный токен должен давать 401", rr.Code)
	}
}

func TestJWTAuth_MissingSubject(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	noSub := validClaims()
	noSub.Subject = ""
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, noSub))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, токен без sub должен давать 401", rr.Code)
	}
}

func TestJWTAuth_IssuerCheck(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "expected-issuer", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	wrong := validClaims()
	wrong.Issuer = "other-issuer"
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, wrong))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, чужой issuer должен давать 401", rr.Code)
	}

	ok := validClaims()
	ok.Issuer = "expected-issuer"
	req2 := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req2.Header.Set("Authorization", "Bearer "+signToken(t, ok))
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Fatalf("status = %d, корректный issuer должен проходить", rr2.Code)
	}
}

// TestJWTAuth_CacheRespectsTokenExpiry проверяет, что запись в кэше claims
// не переживает exp самого токена: после истечения токен отклоняется,
// даже если его claims ещё лежат в LRU.
func TestJWTAuth_CacheRespectsTokenExpiry(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	now := time.Now()
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Second)),
	})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("живой токен: status = %d, ожидается 200", rr.Code)
	}
	if auth.cache.Len() != 1 {
		t.Fatalf("в кэше claims %d записей, ожидается 1", auth.cache.Len())
	}

	// Токен истёк, запись в кэше ещё жива
	auth.now = func() time.Time { return now.Add(2 * time.Minute) }

	req2 := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req2.Header.Set("Authorization", "Bearer "+token)
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req2)
	if rr2.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, просроченный токен не должен приниматься из кэша", rr2.Code)
	}
	if auth.cache.Len() != 0 {
		t.Error("просроченная запись должна удаляться из кэша")
	}
}

// TestJWTAuth_CachedToken проверяет, что повторный запрос с тем же
// токеном обслуживается из кэша claims с тем же результатом.
func TestJWTAuth_CachedToken(t *testing.T) {
	auth := NewJWTAuthHS256(testSecret, "", 30*time.Second, testLogger())
	h := auth.Middleware()(echoSubject())

	token := signToken(t, validClaims())
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK || rr.Body.String() != "user-1" {
			t.Fatalf("запрос %d: status = %d, body = %q", i+1, rr.Code, rr.Body.String())
		}
	}
	if auth.cache.Len() != 1 {
		t.Errorf("в кэше claims %d записей, ожидается 1", auth.cache.Len())
	}
}
