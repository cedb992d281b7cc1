package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// CallFunc performs one bridge round trip
type CallFunc func(ctx context.Context, req *Request) (json.RawMessage, error)

// Middleware wraps a CallFunc
type Middleware func(next CallFunc) CallFunc

func chain(final CallFunc, mws []Middleware) CallFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}
	return final
}

// DebugMiddleware logs every request and its outcome at debug level
func DebugMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *Request) (json.RawMessage, error) {
			start := time.Now()
			logger.Debug("Bridge request", "method", req.Method, "requestId", req.RequestID, "params", req.Params)

			result, err := next(ctx, req)
			if err != nil {
				logger.Debug("Bridge error", "method", req.Method, "requestId", req.RequestID,
					"duration", time.Since(start), "error", err)
				return nil, err
			}

			logger.Debug("Bridge response", "method", req.Method, "requestId", req.RequestID,
				"duration", time.Since(start), "result", string(result))
			return result, nil
		}
	}
}

// MethodGuard rejects methods for which allow returns false before they reach the host
func MethodGuard(allow func(method string) bool, reject func(method string) error) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *Request) (json.RawMessage, error) {
			if !allow(req.Method) {
				return nil, reject(req.Method)
			}
			return next(ctx, req)
		}
	}
}
