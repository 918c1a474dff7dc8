package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/doccollab/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена.
// Идентичность актора из токена кладется в контекст запроса.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				writeJSONError(w, http.StatusUnauthorized, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.Warn("Invalid Authorization header format")
				writeJSONError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := handlers.WithActor(r.Context(), claims.ActorID, claims.DisplayName)

			logger.Debug("Actor authenticated", "actor_id", claims.ActorID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
