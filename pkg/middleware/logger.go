package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/context"
)

// quietPrefixes are polled constantly and logged at debug level.
var quietPrefixes = []string{"/api/v1/health", "/metrics"}

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			log := logger.WithContext(req.Context()).WithFields(map[string]interface{}{
				"request_id":    context.GetRequestID(req.Context()),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": stop.Sub(start),
				"request_size":  req.Header.Get(echo.HeaderContentLength),
				"response_size": strconv.FormatInt(res.Size, 10),
			})

			for _, prefix := range quietPrefixes {
				if strings.HasPrefix(req.URL.Path, prefix) {
					log.Debug("Request")
					return nil
				}
			}
			log.Info("Request")

			return nil
		}
	}
}
