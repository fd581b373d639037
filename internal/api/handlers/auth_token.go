// auth_token.go — выдача dev-токенов для локальной разработки и стендов.
// Включается флагом RO_DEV_TOKENS и работает только в HS256-режиме:
// в production токены выдаёт внешний IdP, этот endpoint не регистрируется.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/resumeopt/internal/api/errors"
	"github.com/bigkaa/resumeopt/internal/ratelimit"
)

// TokenHandler — обработчик POST /api/auth/token.
// Endpoint анонимный, поэтому квота считается по IP клиента,
// а не по идентичности пользователя.
type TokenHandler struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	limiter  ratelimit.Admitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewTokenHandler создаёт обработчик выдачи dev-токенов.
func NewTokenHandler(
	secret string,
	issuer string,
	tokenTTL time.Duration,
	limiter ratelimit.Admitter,
	logger *slog.Logger,
) *TokenHandler {
	return &TokenHandler{
		secret:   []byte(secret),
		issuer:   issuer,
		tokenTTL: tokenTTL,
		limiter:  limiter,
		logger:   logger.With(slog.String("component", "token_handler")),
		now:      time.Now,
	}
}

// tokenRequestBody — тело запроса токена.
// userId опционален: без него субъект генерируется.
type tokenRequestBody struct {
	UserID string `json:"userId"`
}

// tokenResponse — выданный токен.
type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
	UserID      string `json:"userId"`
}

// IssueToken — POST /api/auth/token.
func (h *TokenHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	decision := h.limiter.TryAcquire(clientIP(r), ratelimit.OpAuth)
	if !decision.Admitted {
		apierrors.RateLimited(w, "Превышен лимит запросов токенов", decision.Remaining, decision.ResetAt)
		return
	}

	var body tokenRequestBody
	if r.Body != nil {
		// Пустое тело допустимо
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body)
	}

	userID := body.UserID
	if userID == "" {
		userID = "dev-" + uuid.NewString()
	}

	now := h.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	if h.issuer != "" {
		claims.Issuer = h.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		h.logger.Error("Ошибка подписи dev-токена", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выдать токен")
		return
	}

	h.logger.Info("Выдан dev-токен",
		slog.String("user_id", userID),
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokenTTL.Seconds()),
		UserID:      userID,
	})
}

// clientIP извлекает IP клиента без порта.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
