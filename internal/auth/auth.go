package auth

import (
	"context"

	errors "github.com/frahmantamala/credit-payments/internal"
	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator may read and resolve the reconciliation review queue.
const RoleOperator = "operator"

var (
	ErrMissingToken = errors.NewUnauthorizedError("missing authorization token", errors.ErrCodeMissingToken)
	ErrInvalidToken = errors.NewUnauthorizedError("invalid token", errors.ErrCodeInvalidToken)
	ErrTokenExpired = errors.NewUnauthorizedError("token expired", errors.ErrCodeTokenExpired)
	ErrForbidden    = errors.NewForbiddenError("token does not grant operator access", errors.ErrCodeInsufficientRole)
)

// Claims represents JWT token claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Operator is the authenticated caller of an admin route.
type Operator struct {
	Subject string
	Role    string
}

type contextKey string

const operatorKey contextKey = "operator"

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}
