package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	userRoleKey contextKey = "user_role"
)

// Roles carried by tokens. Admin covers moderation and settlement
// operations performed by back-office tooling.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims carries the authenticated user identity inside the JWT.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

// Authenticator validates bearer tokens and stamps the caller's user ID
// into the request context.
type Authenticator struct {
	secret []byte
	expiry time.Duration
}

func NewAuthenticator(secret string, expiry time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), expiry: expiry}
}

// GenerateToken issues a signed HS256 token for a user with the given role.
func (a *Authenticator) GenerateToken(userID uuid.UUID, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
		UserID: userID,
		Role:   role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, unauthorized("missing bearer token"))
			return
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !parsed.Valid || claims.UserID == uuid.Nil {
			writeError(w, r, unauthorized("invalid or expired token"))
			return
		}

		role := claims.Role
		if role == "" {
			role = RoleUser
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, userRoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(msg string) *domainErrors.AppError {
	err := domainErrors.NewAuthorizationError("UNAUTHORIZED", msg)
	err.StatusCode = http.StatusUnauthorized
	return err
}

// userIDFrom returns the authenticated user ID stamped by the
// Authenticator middleware.
func userIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// isAdmin reports whether the authenticated caller carries the admin role.
func isAdmin(ctx context.Context) bool {
	role, _ := ctx.Value(userRoleKey).(string)
	return role == RoleAdmin
}
