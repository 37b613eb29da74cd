package middleware // reusable HTTP middleware for the store surface

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// shopperHeader carries the signed shopper session token in both
// directions: the client echoes back whatever the server last issued.
const shopperHeader = "X-Shopper-Token"

// contextKey under which the shopper session id is stored.
const shopperContextKey = "shopper_id"

// ShopperToken identifies the anonymous shopper session that owns a
// cart.  This is not user authentication — the token carries no
// identity beyond a random id — but signing it prevents one shopper
// from forging another's id and releasing their holds.
//
// A request without a valid token gets a fresh id; the signed token
// is returned in the X-Shopper-Token response header and the client
// must echo it on subsequent requests to keep its cart.
func ShopperToken(secret string, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get(shopperHeader))
			if raw != "" {
				if id, err := parseShopperToken(raw, secret); err == nil {
					c.Set(shopperContextKey, id)
					return next(c)
				}
				// Invalid or expired token: fall through and issue a
				// fresh one.  The old cart, if any, expires on its own.
			}
			id, token, err := issueShopperToken(secret, ttl)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue shopper token"})
			}
			c.Set(shopperContextKey, id)
			c.Response().Header().Set(shopperHeader, token)
			return next(c)
		}
	}
}

// ShopperID extracts the shopper session id placed in the context by
// ShopperToken.  Handlers must be registered behind the middleware;
// a missing id is a wiring error.
func ShopperID(c echo.Context) (string, error) {
	v := c.Get(shopperContextKey)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("no shopper id in context")
}

func parseShopperToken(raw, secret string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", errors.New("invalid shopper token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing subject")
	}
	return sub, nil
}

func issueShopperToken(secret string, ttl time.Duration) (id, token string, err error) {
	b := make([]byte, 16)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	id = hex.EncodeToString(b)
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": id,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return id, token, nil
}
