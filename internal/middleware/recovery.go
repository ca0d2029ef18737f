package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

// RecoveryMiddleware recovers from handler panics, logs the stack trace, and
// responds with a 500 rather than letting the connection die mid-write.
type RecoveryMiddleware struct {
	logger *logging.Logger
}

// NewRecoveryMiddleware constructs a RecoveryMiddleware bound to logger.
func NewRecoveryMiddleware(logger *logging.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

// Handler wraps next with panic recovery.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.logger.WithContext(r.Context()).WithField("stack", string(debug.Stack())).
					Errorf("panic recovered: %v", rec)
				err := svcerrors.New(svcerrors.ErrCodeUpstream, "internal server error", http.StatusInternalServerError).
					WithDetails("panic", fmt.Sprintf("%v", rec))
				httputil.WriteErrorResponse(w, r, err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
