// secure.go — middleware базовых заголовков безопасности ответа.
package middleware

import "net/http"

// SecurityHeaders выставляет стандартный набор защитных заголовков.
// Сервис отдаёт JSON и скачиваемый HTML-артефакт; встраивание в фреймы
// и MIME-sniffing не нужны ни одному из endpoints.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
