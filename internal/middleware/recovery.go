package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/logger"
	"github.com/julienbonastre/fullstock/pkg/apierror"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.L().Error("panic recovered",
					zap.Any("panic", err),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.ByteString("stack", debug.Stack()))

				apierror.InternalError("internal server error").Write(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
