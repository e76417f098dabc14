package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/yoscreen/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"`         // usually "authenticated" / "anon"
	AppMetadata  map[string]any `json:"app_metadata"` // put {"role":"admin"} here
	UserMetadata map[string]any `json:"user_metadata"`
}

type tokenConfig struct {
	secret   string
	issuer   string // optional
	audience string // optional
}

func loadTokenConfig() tokenConfig {
	return tokenConfig{
		secret:   os.Getenv("SUPABASE_JWT_SECRET"),
		issuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
		audience: os.Getenv("SUPABASE_JWT_AUDIENCE"),
	}
}

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// parse validates the bearer token in the request. It returns errMissingToken
// when the request carries none.
func (tc tokenConfig) parse(c *gin.Context) (*supabaseClaims, error) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, errMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if raw == "" {
		return nil, errMissingToken
	}

	claims := &supabaseClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(tc.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || tok == nil || !tok.Valid {
		return nil, errInvalidToken
	}

	if tc.issuer != "" && claims.Issuer != tc.issuer {
		return nil, errors.New("invalid token issuer")
	}
	if tc.audience != "" {
		valid := false
		for _, aud := range claims.Audience {
			if aud == tc.audience {
				valid = true
				break
			}
		}
		if !valid {
			return nil, errors.New("invalid token audience")
		}
	}

	// Supabase user UUID is in "sub"
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims *supabaseClaims) {
	// Default role: "user" (app-level role)
	appRole := "user"
	if claims.AppMetadata != nil {
		if v, ok := claims.AppMetadata["role"]; ok {
			if s, ok := v.(string); ok && s != "" {
				appRole = s
			}
		}
	}

	c.Set("user_id", claims.Subject)
	c.Set("email", claims.Email)
	c.Set("role", appRole)
}

// JWTAuth rejects requests without a valid Supabase access token.
func JWTAuth() gin.HandlerFunc {
	tc := loadTokenConfig()

	return func(c *gin.Context) {
		if tc.secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "SUPABASE_JWT_SECRET is not set",
			})
			return
		}

		claims, err := tc.parse(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: err.Error(),
			})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth lets guests through. A token that is present must still be valid.
func OptionalJWTAuth() gin.HandlerFunc {
	tc := loadTokenConfig()

	return func(c *gin.Context) {
		if tc.secret == "" {
			c.Next()
			return
		}

		claims, err := tc.parse(c)
		switch {
		case errors.Is(err, errMissingToken):
			c.Next()
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: err.Error(),
			})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}
