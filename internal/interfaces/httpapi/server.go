package httpapi

import (
	"net/http"

	"github.com/sabiscore/predictor/internal/platform/logging"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

func registerRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /v1/predictions/telemetry", handler.PredictionTelemetry)
	mux.HandleFunc("GET /v1/predictions/{fixtureID}", handler.GetPrediction)
	mux.HandleFunc("POST /v1/predictions/batch", handler.PredictBatch)
	mux.HandleFunc("GET /v1/ingestion/recent", handler.RecentIngestionEvents)
	mux.HandleFunc("GET /v1/fixtures/upcoming", handler.ListUpcomingFixtures)
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
