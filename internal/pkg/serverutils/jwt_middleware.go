package serverutils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDLocal is the fiber local holding the authenticated user id.
const UserIDLocal = "user_id"

// ParseUserID validates an HMAC-signed token and returns its user_id claim.
func ParseUserID(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Token missing user_id")
	}
	return userID, nil
}

// BearerToken returns the token from "Authorization: Bearer ...", or the
// token query parameter browsers use for websocket handshakes.
func BearerToken(ctx *fiber.Ctx) string {
	if h := ctx.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return h[len("Bearer "):]
	}
	return ctx.Query("token")
}

// NewJwtMiddleware rejects requests without a valid token signed with secret.
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse("Missing token"))
		}

		userID, err := ParseUserID(tokenStr, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(err.Error()))
		}

		ctx.Locals(UserIDLocal, userID)
		return ctx.Next()
	}
}
