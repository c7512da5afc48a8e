package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/binder"
	"github.com/dmitrymomot/saasbilling/handler"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

type pageRequest struct {
	Limit  int    `query:"limit"`
	Return string `json:"returnUrl"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorBody {
	t.Helper()
	var body handler.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binds and renders JSON", func(t *testing.T) {
		t.Parallel()
		h := func(ctx handler.Context, req pageRequest) handler.Response {
			return handler.JSON(map[string]any{"limit": req.Limit, "returnUrl": req.Return})
		}
		srv := handler.Wrap(h, handler.WithBinders[handler.Context, pageRequest](binder.BindQuery(), binder.BindJSON()))

		req := httptest.NewRequest(http.MethodPost, "/?limit=5", strings.NewReader(`{"returnUrl":"/billing"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"limit":5,"returnUrl":"/billing"}`, rec.Body.String())
	})

	t.Run("skips binders that do not apply", func(t *testing.T) {
		t.Parallel()
		var called bool
		h := func(ctx handler.Context, req pageRequest) handler.Response {
			called = true
			assert.Empty(t, req.Return)
			return handler.Empty()
		}
		srv := handler.Wrap(h, handler.WithBinders[handler.Context, pageRequest](binder.BindJSON()))

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.True(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("binding error is a bad request", func(t *testing.T) {
		t.Parallel()
		h := func(ctx handler.Context, req pageRequest) handler.Response {
			t.Fatal("handler must not run")
			return nil
		}
		srv := handler.Wrap(h, handler.WithBinders[handler.Context, pageRequest](binder.BindQuery()))

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?limit=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := func(ctx handler.Context, req struct{}) handler.Response { return nil }
		srv := handler.Wrap(h, handler.WithErrorHandler[handler.Context, struct{}](func(ctx handler.Context, err error) {
			got = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.ErrorIs(t, got, handler.ErrNilResponse)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("fail renders HTTP errors", func(t *testing.T) {
		t.Parallel()
		h := func(ctx handler.Context, req struct{}) handler.Response {
			return handler.Fail(handler.NewHTTPError(http.StatusConflict, "TAKEN", "Already taken").WithDetails("try again"))
		}
		rec := httptest.NewRecorder()
		handler.Wrap(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, handler.ErrorBody{Error: "Already taken", Code: "TAKEN", Details: "try again"}, decodeError(t, rec))
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, struct{}] {
			return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
				return func(ctx handler.Context, req struct{}) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := func(ctx handler.Context, req struct{}) handler.Response {
			order = append(order, "handler")
			return handler.EmptyWithStatus(http.StatusAccepted)
		}
		srv := handler.Wrap(h, handler.WithDecorators(mark("outer"), mark("inner")))

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	errDomain := errors.New("domain failure")
	classifier := func(err error) (handler.HTTPError, bool) {
		if errors.Is(err, errDomain) {
			return handler.NewHTTPError(http.StatusServiceUnavailable, "DOMAIN_UNAVAILABLE", "Domain unavailable"), true
		}
		return handler.HTTPError{}, false
	}
	eh := handler.NewErrorHandler(logger.Nop(), classifier)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"classified", errDomain, http.StatusServiceUnavailable, "DOMAIN_UNAVAILABLE"},
		{"wrapped classified", errors.Join(errors.New("ctx"), errDomain), http.StatusServiceUnavailable, "DOMAIN_UNAVAILABLE"},
		{"http error", handler.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"binding", binder.ErrInvalidJSON, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			eh(handler.NewContext(rec, httptest.NewRequest(http.MethodGet, "/", nil)), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}
