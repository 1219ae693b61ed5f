package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/wsensor/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SetupRoutes builds the router. Every route sits behind the token check.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.AuthMiddleware(s.TokenHash))

	api := r.PathPrefix("/api").Subrouter()
	if s.RateLimit > 0 {
		api.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(s.RateLimit, time.Minute)))
	}
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/radios", s.handleRadios).Methods(http.MethodGet)
	api.HandleFunc("/radios/{role}", s.handleRadio).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config/persistence", s.handleTogglePersistence).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.WSManager.HandleWebSocket)

	return otelhttp.NewHandler(r, telemetry.ServiceName+"-api")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleRadios(w http.ResponseWriter, r *http.Request) {
	radios := s.Status.Radios()
	if radios == nil {
		radios = []domain.RadioRecord{}
	}
	writeJSON(w, http.StatusOK, radios)
}

func (s *Server) handleRadio(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(mux.Vars(r)["role"])
	rec, ok := s.Status.Radio(role)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such radio"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	enabled := false
	if s.Persistence != nil {
		enabled = s.Persistence.IsEnabled()
	}
	writeJSON(w, http.StatusOK, map[string]any{"persistenceEnabled": enabled})
}

func (s *Server) handleTogglePersistence(w http.ResponseWriter, r *http.Request) {
	if s.Persistence == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled must be true or false"})
		return
	}
	s.Persistence.SetEnabled(enabled)
	s.logger.Info("Persistence toggled", "enabled", enabled)
	writeJSON(w, http.StatusOK, map[string]any{"status": "persistence_updated", "enabled": enabled})
}
