package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/app"
)

// NewRouter mounts the websocket, JSON API, health and metrics endpoints.
func NewRouter(service *app.Service, gatherer prometheus.Gatherer, log logrus.FieldLogger) http.Handler {
	ws := NewWSHandler(service, log)
	api := NewAPIHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.ServeWS)
	mux.HandleFunc("POST /users", api.RegisterUser)
	mux.HandleFunc("GET /users/{userId}/profile", api.Profile)
	mux.HandleFunc("GET /users/{userId}/challenges/{challengeId}", api.AttemptStatus)
	mux.HandleFunc("GET /users/{userId}/challenges/{challengeId}/attempts", api.Attempts)
	mux.HandleFunc("GET /ranking", api.RankingPage)
	mux.HandleFunc("GET /ranking/{userId}", api.Position)
	mux.HandleFunc("GET /challenges/{challengeId}/success-rate", api.SuccessRate)
	mux.HandleFunc("GET /progress", api.Progress)
	mux.HandleFunc("DELETE /attempts/{attemptId}", api.DeleteAttempt)
	mux.HandleFunc("DELETE /challenges/{challengeId}", api.DeleteChallenge)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
