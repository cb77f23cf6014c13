package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/refundtracker/internal/infrastructure/auth"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTUsernameKey = "jwt_username"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "

	// UserIDHeader carries the acting user when no bearer token is presented
	UserIDHeader = "X-User-ID"
)

// publicPaths answer without a token. They are matched as suffixes so the
// API version prefix does not matter.
var publicPaths = []string{"/health", "/system/ping", "/system/info"}

// JWTAuthConfig configures JWTAuth
type JWTAuthConfig struct {
	Service *auth.JWTService
	// Required rejects requests without a valid token. When false a valid token
	// still sets the actor and anything else falls through to the X-User-ID header.
	Required bool
	// PublicPaths overrides the default health-check paths that skip authentication
	PublicPaths []string
	Logger      *zap.Logger
}

// JWTAuth authenticates bearer tokens and records the token's user as the request actor
func JWTAuth(cfg JWTAuthConfig) gin.HandlerFunc {
	public := cfg.PublicPaths
	if public == nil {
		public = publicPaths
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path, public) {
			c.Next()
			return
		}

		claims, err := authenticate(c, cfg.Service)
		switch {
		case err == nil:
			setClaims(c, claims)
			log.Debug("JWT authentication successful",
				zap.String("actor", claims.Actor()),
				zap.String("username", claims.Username),
			)
		case cfg.Required:
			log.Warn("JWT authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)
			abortUnauthorized(c, err)
			return
		}
		c.Next()
	}
}

func isPublic(path string, public []string) bool {
	for _, p := range public {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

func authenticate(c *gin.Context, svc *auth.JWTService) (*auth.Claims, error) {
	token, err := bearerToken(c)
	if err != nil {
		return nil, err
	}
	return svc.ValidateToken(token)
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader(AuthHeaderKey)
	if authHeader == "" || !strings.HasPrefix(authHeader, BearerPrefix) {
		return "", auth.ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	if token == "" {
		return "", auth.ErrInvalidToken
	}
	return token, nil
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(JWTClaimsKey, claims)
	c.Set(JWTUserIDKey, claims.Actor())
	c.Set(JWTUsernameKey, claims.Username)

	ctx, log := logger.WithActor(c.Request.Context(), logger.GetGinLogger(c), claims.Actor())
	c.Request = c.Request.WithContext(ctx)
	logger.SetGinLogger(c, log)
}

func abortUnauthorized(c *gin.Context, err error) {
	code := dto.ErrCodeUnauthorized
	message := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code = dto.ErrCodeTokenExpired
		message = "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code = dto.ErrCodeTokenInvalid
		message = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidClaims), errors.Is(err, auth.ErrMissingUserID):
		code = dto.ErrCodeTokenInvalid
		message = "Token claims are invalid"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponse(code, message, requestIDFromContext(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID retrieves the acting user from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetJWTUsername retrieves the username from JWT claims in context
func GetJWTUsername(c *gin.Context) string {
	return c.GetString(JWTUsernameKey)
}
