// Package api exposes the monitor's operational surface over HTTP: health,
// stats, live scene state, baseline inspection and the daily report.
package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/db"
	"github.com/banshee-data/vigil.report/internal/httputil"
	"github.com/banshee-data/vigil.report/internal/report"
	"github.com/banshee-data/vigil.report/internal/vigil"
)

type Server struct {
	monitor  *vigil.Monitor
	tracker  *vigil.Tracker
	baseline *vigil.Baseline
	archive  *db.DB
	clock    vigil.Clock
	log      *zap.Logger
}

// NewServer wires the API against the live pipeline components. archive may
// be nil, in which case report endpoints answer 404.
func NewServer(monitor *vigil.Monitor, tracker *vigil.Tracker, baseline *vigil.Baseline, archive *db.DB, clock vigil.Clock, log *zap.Logger) *Server {
	if clock == nil {
		clock = vigil.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		monitor:  monitor,
		tracker:  tracker,
		baseline: baseline,
		archive:  archive,
		clock:    clock,
		log:      log,
	}
}

// LoggingMiddleware logs method, path, status and duration for each request.
func LoggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Info("http request",
			zap.Int("status", lrw.statusCode),
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.Duration("duration", time.Since(start)))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.showHealth)
	mux.HandleFunc("/stats", s.showStats)
	mux.HandleFunc("/scene", s.showScene)
	mux.HandleFunc("/patterns", s.listPatterns)
	mux.HandleFunc("/baseline/build", s.buildBaseline)
	mux.HandleFunc("/report", s.showReport)
	mux.HandleFunc("/charts/activity", s.showActivityChart)
	return mux
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"active_states": s.tracker.ActiveCount(),
		"events":        s.baseline.EventCount(),
		"patterns":      s.baseline.PatternCount(),
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.monitor.Stats())
}

func (s *Server) showScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if camera := r.URL.Query().Get("camera"); camera != "" {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"camera": camera,
			"scene":  s.tracker.SceneSummary(camera),
		})
		return
	}

	type presenceView struct {
		Camera     string    `json:"camera"`
		Subject    string    `json:"subject"`
		Objects    []string  `json:"objects,omitempty"`
		FirstSeen  time.Time `json:"first_seen"`
		LastSeen   time.Time `json:"last_seen"`
		AlertCount int       `json:"alert_count"`
	}
	states := s.tracker.ActiveStates()
	views := make([]presenceView, 0, len(states))
	for key, st := range states {
		objs := make([]string, 0, len(st.Objects))
		for o := range st.Objects {
			objs = append(objs, o)
		}
		sort.Strings(objs)
		views = append(views, presenceView{
			Camera:     key.Camera,
			Subject:    key.Subject,
			Objects:    objs,
			FirstSeen:  st.FirstSeen,
			LastSeen:   st.LastSeen,
			AlertCount: st.AlertCount,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Camera != views[j].Camera {
			return views[i].Camera < views[j].Camera
		}
		return views[i].Subject < views[j].Subject
	})
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sufficient_baseline": s.baseline.HasSufficientBaseline(),
		"patterns":            s.baseline.Patterns(),
	})
}

func (s *Server) buildBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 0
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = parsed
	}

	summary, err := s.baseline.Build(days, s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build baseline: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) reportDay(r *http.Request) (time.Time, error) {
	day := s.clock.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, day.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid 'date' parameter, want YYYY-MM-DD")
		}
		day = parsed
	}
	return day, nil
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.archive == nil {
		httputil.NotFound(w, "archive database not configured")
		return
	}

	day, err := s.reportDay(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	events, err := s.archive.EventsForDay(day, day.Location())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load events: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report.BuildDailyReport(events, day))
}

func (s *Server) showActivityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.archive == nil {
		httputil.NotFound(w, "archive database not configured")
		return
	}

	day, err := s.reportDay(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	events, err := s.archive.EventsForDay(day, day.Location())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load events: %v", err))
		return
	}

	perCamera := make(map[string]map[int]int)
	for _, ev := range events {
		if perCamera[ev.Camera] == nil {
			perCamera[ev.Camera] = make(map[int]int)
		}
		perCamera[ev.Camera][ev.Timestamp.Hour()]++
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderActivityChart(w, report.BuildDailyReport(events, day), perCamera); err != nil {
		s.log.Warn("failed to render activity chart", zap.Error(err))
	}
}
