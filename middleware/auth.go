package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/seo-maskinen/backend/logging"
)

const (
	msgNoAuth       = "Ingen giltig autentisering hittades. Logga in för att fortsätta."
	msgInvalidToken = "Ogiltig token-struktur. Logga in igen."
)

const userKey = "user"

// DevUserID is the user attached to requests when authentication is disabled
const DevUserID = "dev-user"

// User is the authenticated caller taken from the access token
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// JWTRequired verifies HS256 access tokens issued by the auth backend and
// stores the caller under the "user" key. The subject claim is the user id.
func JWTRequired(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || strings.TrimSpace(tokenStr) == "" {
			AbortWithError(c, http.StatusUnauthorized, CodeAuthentication, msgNoAuth)
			return
		}

		user, err := validateToken(strings.TrimSpace(tokenStr), key)
		if err != nil {
			logging.FromContext(c.Request.Context()).Warn("JWT validation failed", "error", err)
			msg := msgNoAuth
			if errors.Is(err, errInvalidClaims) {
				msg = msgInvalidToken
			}
			AbortWithError(c, http.StatusUnauthorized, CodeAuthentication, msg)
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// DevAuth attaches a fixed user so the API can run locally without tokens
func DevAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-User-ID")
		if id == "" {
			id = DevUserID
		}
		setUser(c, User{ID: id})
		c.Next()
	}
}

func setUser(c *gin.Context, user User) {
	c.Set(userKey, user)
	logger := logging.FromContext(c.Request.Context()).With("user_id", user.ID)
	c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
}

// GetUser returns the authenticated caller
func GetUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

var errInvalidClaims = errors.New("invalid token claims")

func validateToken(tokenStr string, key []byte) (User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return User{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return User{}, errInvalidClaims
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return User{}, errInvalidClaims
	}
	email, _ := claims["email"].(string)
	return User{ID: sub, Email: email}, nil
}
