package ws

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livesync/backend/internal/config"
	"github.com/livesync/backend/internal/monitor"
	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/report"
	"github.com/livesync/backend/internal/session"
)

type Server struct {
	broadcaster    *Broadcaster
	registry       *monitor.Registry
	records        *persist.Store
	privacy        *session.PrivacyFilter
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	stats          func() report.Stats
}

func NewServer(cfg config.ServerConfig, privacy *session.PrivacyFilter, broadcaster *Broadcaster, registry *monitor.Registry, records *persist.Store) *Server {
	if privacy == nil {
		privacy = &session.PrivacyFilter{}
	}
	s := &Server{
		broadcaster:    broadcaster,
		registry:       registry,
		records:        records,
		privacy:        privacy,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetStatsSource configures the reporter queue counters served by
// /api/stats. Must be called before SetupRoutes.
func (s *Server) SetStatsSource(fn func() report.Stats) {
	s.stats = fn
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/api/kinds", s.handleKinds)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
}

// Handler returns every route behind the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("ws upgrade error: %v", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		log.Warningf("Rejecting WebSocket client %s: %v", r.RemoteAddr, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	log.Infof("WebSocket client connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Infof("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.broadcaster.FilterSessions(s.broadcaster.tracked.GetAll()))
}

// recordView is a persisted record as served by /api/records. The token
// itself is never served.
type recordView struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	CreationDate string             `json:"creationDate"`
	Status       session.Status     `json:"status"`
	HasToken     bool               `json:"hasToken"`
	UserID       string             `json:"userId,omitempty"`
	Topic        string             `json:"topic"`
	Custom       session.Properties `json:"custom,omitempty"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	kind := r.URL.Query().Get("kind")
	views := []recordView{}
	for _, rec := range s.records.Load() {
		if kind != "" && rec.KindName != kind {
			continue
		}
		if !s.privacy.IsAllowed(session.Kind(rec.KindName)) {
			continue
		}
		views = append(views, recordView{
			ID:           s.privacy.MaskID(rec.ID),
			Kind:         rec.KindName,
			CreationDate: persist.FormatTime(rec.CreationDate),
			Status:       rec.Status,
			HasToken:     rec.PushToken != nil,
			UserID:       rec.UserID,
			Topic:        rec.Topic,
			Custom:       rec.Custom,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	writeJSON(w, views)
}

type kindView struct {
	Kind     session.Kind `json:"kind"`
	Observed int          `json:"observed"`
	Records  int          `json:"records"`
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	byKind := s.records.IDsByKind()
	views := []kindView{}
	for _, k := range s.registry.Kinds() {
		if !s.privacy.IsAllowed(k) {
			continue
		}
		views = append(views, kindView{
			Kind:     k,
			Observed: s.broadcaster.tracked.Count(k),
			Records:  len(byKind[string(k)]),
		})
	}
	writeJSON(w, views)
}

type healthView struct {
	Status monitor.HealthStatus `json:"status"`
	Kinds  []monitor.KindHealth `json:"kinds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	kinds := s.broadcaster.FilterHealth(s.registry.Health())
	view := healthView{Status: monitor.StatusHealthy, Kinds: kinds}
	for _, k := range kinds {
		switch {
		case k.Status == monitor.StatusFailed:
			view.Status = monitor.StatusFailed
		case k.Status == monitor.StatusDegraded && view.Status != monitor.StatusFailed:
			view.Status = monitor.StatusDegraded
		}
	}
	if view.Status != monitor.StatusHealthy {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(view)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.broadcaster.Recent())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.stats == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Livesync-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}
