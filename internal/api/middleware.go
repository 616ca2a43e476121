package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/storage"
)

// AuthMiddleware handles API key authentication
type AuthMiddleware struct {
	clients storage.ClientStore
	logger  *slog.Logger
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(clients storage.ClientStore, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{clients: clients, logger: logger}
}

// Authenticate verifies the API key from the Authorization header
// ("Bearer pk_xxx" or a raw key), the X-API-Key header, or for websocket
// clients that cannot set headers, the api_key query parameter.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing_api_key", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		client, err := m.clients.GetClientByApiKey(r.Context(), apiKey)
		if err != nil {
			m.logger.Error("failed to lookup api client", "error", err, "key_prefix", models.MaskKey(apiKey))
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		if client == nil {
			m.logger.Warn("invalid api key attempt", "key_prefix", models.MaskKey(apiKey), "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
			return
		}

		if !client.IsActive {
			m.logger.Warn("inactive client attempt", "client", client.Name, "key_prefix", models.MaskKey(apiKey))
			respondError(w, http.StatusUnauthorized, "client_inactive", "this api key has been deactivated")
			return
		}

		// last_used_at is bookkeeping; don't block the request on it
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.clients.UpdateClientLastUsed(ctx, apiKey); err != nil {
				m.logger.Error("failed to update client last_used_at", "error", err, "client", client.Name)
			}
		}()

		m.logger.Debug("authenticated request", "client", client.Name, "key_prefix", client.MaskedApiKey())

		next.ServeHTTP(w, r.WithContext(ContextWithClient(r.Context(), client)))
	})
}

// RequirePermission returns middleware that checks for specific permission
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientFromContext(r.Context())
			if client == nil {
				respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
				return
			}

			if !client.HasPermission(permission) {
				m.logger.Warn("permission denied",
					"client", client.Name,
					"required", permission,
					"has", client.Permissions,
				)
				respondError(w, http.StatusForbidden, "permission_denied",
					"client does not have required permission: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}
