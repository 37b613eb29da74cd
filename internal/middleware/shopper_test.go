package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// run sends one request through the middleware and returns the shopper
// id seen by the handler plus the recorder.
func run(t *testing.T, token string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
	if token != "" {
		req.Header.Set("X-Shopper-Token", token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := ShopperToken(testSecret, time.Hour)(func(c echo.Context) error {
		id, err := ShopperID(c)
		require.NoError(t, err)
		seen = id
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return seen, rec
}

func TestShopperToken_IssuesFreshSession(t *testing.T) {
	id, rec := run(t, "")

	assert.NotEmpty(t, id)
	assert.NotEmpty(t, rec.Header().Get("X-Shopper-Token"), "fresh token must be returned to the client")
}

func TestShopperToken_EchoedTokenKeepsIdentity(t *testing.T) {
	first, rec := run(t, "")
	token := rec.Header().Get("X-Shopper-Token")
	require.NotEmpty(t, token)

	second, rec2 := run(t, token)

	assert.Equal(t, first, second, "echoing the issued token must preserve the shopper id")
	assert.Empty(t, rec2.Header().Get("X-Shopper-Token"), "a valid token is not reissued")
}

func TestShopperToken_GarbageTokenGetsNewSession(t *testing.T) {
	id, rec := run(t, "not-a-jwt")

	assert.NotEmpty(t, id)
	assert.NotEmpty(t, rec.Header().Get("X-Shopper-Token"))
}

func TestShopperToken_ForgedTokenRejected(t *testing.T) {
	first, rec := run(t, "")
	token := rec.Header().Get("X-Shopper-Token")
	require.NotEmpty(t, token)

	// A token signed with a different secret must not be trusted even
	// though it is structurally valid.
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
	req.Header.Set("X-Shopper-Token", token)
	rec2 := httptest.NewRecorder()
	c := e.NewContext(req, rec2)

	var seen string
	h := ShopperToken("another-secret", time.Hour)(func(c echo.Context) error {
		seen, _ = ShopperID(c)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))

	assert.NotEqual(t, first, seen, "token signed with the wrong secret must yield a new id")
	assert.NotEmpty(t, rec2.Header().Get("X-Shopper-Token"))
}

func TestShopperID_MissingFromContext(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := ShopperID(c)
	assert.Error(t, err)
}
