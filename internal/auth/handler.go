package auth

import (
	"net/http"

	"github.com/frahmantamala/credit-payments/internal/transport"
)

type TokenValidator interface {
	Validate(tokenString string) (*Claims, error)
}

type Handler struct {
	*transport.BaseHandler
	tokens TokenValidator
}

func NewHandler(base *transport.BaseHandler, tokens TokenValidator) *Handler {
	return &Handler{
		BaseHandler: base,
		tokens:      tokens,
	}
}

// RequireOperator admits requests bearing a valid token with the operator role.
func (h *Handler) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.WriteAppError(w, ErrMissingToken)
			return
		}

		claims, err := h.tokens.Validate(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err, "path", r.URL.Path)
			h.WriteAppError(w, err)
			return
		}

		if claims.Role != RoleOperator {
			h.Logger.Warn("access denied: token lacks operator role",
				"subject", claims.Subject,
				"role", claims.Role)
			h.WriteAppError(w, ErrForbidden)
			return
		}

		ctx := WithOperator(r.Context(), Operator{Subject: claims.Subject, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
