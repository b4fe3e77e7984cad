package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/context"
)

const (
	// HeaderCorrelationID ties a request to work it triggers downstream
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderSource names the product source a caller submits for
	HeaderSource = "X-Source"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			if correlationID := req.Header.Get(HeaderCorrelationID); correlationID != "" {
				ctx = context.SetCorrelationID(ctx, correlationID)
			}
			if source := req.Header.Get(HeaderSource); source != "" {
				ctx = context.SetSource(ctx, source)
			}
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetRemoteIP(ctx, c.RealIP())

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
