package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"leaveflow/authz"
	"leaveflow/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// TokenCookie is the cookie carrying the session token.
const TokenCookie = "token"

type Claims struct {
	UserID   uint        `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

type UserLoader interface {
	User(ctx context.Context, id uint) (*models.User, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, actorID uint, perm authz.Permission, res *authz.Resource) bool
}

type Auth struct {
	secret     []byte
	expiration time.Duration
	users      UserLoader
	now        func() time.Time
}

func NewAuth(secret string, expiration time.Duration, users UserLoader) *Auth {
	return &Auth{
		secret:     []byte(secret),
		expiration: expiration,
		users:      users,
		now:        time.Now,
	}
}

func (a *Auth) Expiration() time.Duration {
	return a.expiration
}

func (a *Auth) GenerateToken(user *models.User) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// Middleware resolves the session token from the cookie or a Bearer header
// and loads the user into the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			ClearTokenCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := a.users.User(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePasswordChange blocks users with a pending password change from
// everything but the allowed paths.
func RequirePasswordChange(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user != nil && user.MustChangePassword {
				for _, path := range allowed {
					if r.URL.Path == path {
						next.ServeHTTP(w, r)
						return
					}
				}
				writeError(w, http.StatusForbidden, "password change required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission lets the request through only when gate grants perm to
// the authenticated user.
func RequirePermission(gate Authorizer, perm authz.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !gate.Authorize(r.Context(), user.ID, perm, nil) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
