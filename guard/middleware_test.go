package guard_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-client/guard"
	"github.com/stretchr/testify/require"
)

func TestChainMiddleware_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	handler := guard.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	handler := guard.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, guard.LoggingMiddleware, guard.RecoverMiddleware, guard.FrameSecurityMiddleware)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}
