// Package middleware provides the HTTP middleware shared by the inbox API:
// authentication, request logging, rate limiting and tracing.
package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"ridehail/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RevokedTokenPrefix namespaces revoked token ids in Redis.
const RevokedTokenPrefix = "revoked_jti:"

// AuthConfig configures bearer token verification. Issuer and Audience are
// only enforced when set.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// AuthRequired verifies the bearer token and stores the subject as the
// caller's user id in c.Locals("userID") and the request context. Tokens are
// minted by the identity service; revoked ids are looked up in rdb when it is
// not nil.
func AuthRequired(cfg AuthConfig, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get("Authorization"))
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		if cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Audience))
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, opts...)
		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		userID := strings.TrimSpace(claims.Subject)
		if userID == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}

		if rdb != nil && claims.ID != "" {
			revoked, err := isRevoked(c.UserContext(), rdb, claims.ID)
			if err != nil {
				Logger.WarnContext(c.UserContext(), "token revocation lookup failed", "error", err)
			} else if revoked {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("userID", userID)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func isRevoked(ctx context.Context, rdb *redis.Client, jti string) (bool, error) {
	n, err := rdb.Exists(ctx, RevokedTokenPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeToken marks jti as revoked until ttl elapses.
func RevokeToken(ctx context.Context, rdb *redis.Client, jti string, ttl time.Duration) error {
	if rdb == nil {
		return errNilRedis
	}
	return rdb.Set(ctx, RevokedTokenPrefix+jti, "1", ttl).Err()
}

// IssueToken signs an HS256 token for userID. The inbox never issues tokens
// on the request path; this serves development tooling and tests.
func IssueToken(cfg AuthConfig, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Issuer != "" {
		claims.Issuer = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
