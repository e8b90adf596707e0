package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxEvents = 100

type place struct {
	epicenter, closest string
	lat, lng           float64
}

var places = []place{
	{"Sindirgi (Balikesir)", "Balikesir", 39.23, 28.17},
	{"Akdeniz", "Antalya", 36.12, 30.54},
	{"Kahramanmaras", "Kahramanmaras", 37.58, 36.93},
	{"Marmara Denizi", "Istanbul", 40.81, 28.66},
	{"Ege Denizi", "Izmir", 38.52, 26.21},
}

// feedServer imitates the live earthquake list: newest first, wrapped in the
// {status, result} envelope.
type feedServer struct {
	mu       sync.RWMutex
	events   []map[string]any
	requests atomic.Int64
	slow     time.Duration
	logger   *slog.Logger
}

func newFeedServer(logger *slog.Logger) *feedServer {
	return &feedServer{slow: 3 * time.Second, logger: logger}
}

func (s *feedServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := s.requests.Add(1)
			s.logger.Info("request", "n", count, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/live", s.live)
	r.Post("/quake", s.quake)
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(s.slow):
		case <-r.Context().Done():
			return
		}
		s.live(w, r)
	})
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": false, "desc": "upstream unavailable"})
	})
	r.Get("/malformed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":true,"result":[{"earthquake_id"`)
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		n := len(s.events)
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]int64{"total_requests": s.requests.Load(), "events": int64(n)})
	})
	return r
}

func (s *feedServer) live(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	result := make([]map[string]any, len(s.events))
	copy(result, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "result": result})
}

func (s *feedServer) quake(w http.ResponseWriter, r *http.Request) {
	ev := s.emit(time.Now())
	writeJSON(w, http.StatusCreated, ev)
}

// emit prepends a synthetic event and returns it.
func (s *feedServer) emit(at time.Time) map[string]any {
	pl := places[rand.IntN(len(places))]
	mag := 1.5 + rand.Float64()*4
	lat := pl.lat + (rand.Float64()-0.5)/5
	lng := pl.lng + (rand.Float64()-0.5)/5

	ev := map[string]any{
		"earthquake_id": uuid.NewString(),
		"provider":      "mock",
		"title":         pl.epicenter,
		"mag":           float64(int(mag*10)) / 10,
		"depth":         float64(int(rand.Float64()*300)) / 10,
		"geojson": map[string]any{
			"type":        "Point",
			"coordinates": []float64{lng, lat},
		},
		"location_properties": map[string]any{
			"epiCenter":   map[string]any{"name": pl.epicenter},
			"closestCity": map[string]any{"name": pl.closest},
		},
		"date_time":  at.In(time.FixedZone("TRT", 3*60*60)).Format("2006-01-02 15:04:05"),
		"created_at": at.Unix(),
	}

	s.mu.Lock()
	s.events = append([]map[string]any{ev}, s.events...)
	if len(s.events) > maxEvents {
		s.events = s.events[:maxEvents]
	}
	s.mu.Unlock()

	s.logger.Info("event emitted", "event_id", ev["earthquake_id"], "mag", ev["mag"], "location", pl.epicenter)
	return ev
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	fs := newFeedServer(logger)
	now := time.Now()
	for i := 10; i > 0; i-- {
		fs.emit(now.Add(-time.Duration(i) * time.Minute))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if v := os.Getenv("MOCK_EMIT_INTERVAL"); v != "" {
		every, err := time.ParseDuration(v)
		if err != nil || every <= 0 {
			logger.Error("invalid MOCK_EMIT_INTERVAL", "value", v)
			os.Exit(1)
		}
		go func() {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-ticker.C:
					fs.emit(t)
				}
			}
		}()
	}

	server := &http.Server{Addr: ":" + port, Handler: fs.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("mock feed starting", "port", port,
		"routes", []string{"GET /live", "POST /quake", "GET /slow", "GET /fail", "GET /malformed", "GET /stats"})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
