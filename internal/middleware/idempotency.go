package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/strayaid/rescue-dispatch/internal/model"
)

// HeaderIdempotencyKey is the client-supplied retry-safety token carried
// on every mutating request.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys set for downstream handlers.
const (
	ctxIdemKey      = "idem_key"
	ctxIdemEndpoint = "idem_endpoint"
)

// ReplayStore is the read side of the idempotency envelope.  The write
// side happens inside each handler's transaction so record and mutation
// commit together.
type ReplayStore interface {
	Lookup(ctx context.Context, actorID, endpoint, key string) (*model.IdempotencyRecord, error)
}

// Idempotency returns a middleware that rejects mutating requests
// without an Idempotency-Key header and replays the stored response for
// keys that have already completed.  On replay the wrapped handler never
// runs, so no side effect can repeat.  The replayed body is the exact
// bytes persisted for the first request.
func Idempotency(store ReplayStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderIdempotencyKey)
			if key == "" {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing Idempotency-Key header"})
			}
			actor := ActorID(c)
			endpoint := c.Request().Method + " " + c.Path()

			rec, err := store.Lookup(c.Request().Context(), actor, endpoint, key)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable", "retryable": true})
			}
			if rec != nil {
				return c.JSONBlob(rec.Status, rec.Body)
			}

			c.Set(ctxIdemKey, key)
			c.Set(ctxIdemEndpoint, endpoint)
			return next(c)
		}
	}
}

// IdempotencyScope returns the key and endpoint the middleware stored
// for the current request.  Handlers use it to persist the response
// record inside their mutation transaction.
func IdempotencyScope(c echo.Context) (key, endpoint string) {
	key, _ = c.Get(ctxIdemKey).(string)
	endpoint, _ = c.Get(ctxIdemEndpoint).(string)
	return key, endpoint
}
