package overlay

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

//go:embed assets
var assetsFS embed.FS

// DefaultPort is where OBS expects the overlay.
const DefaultPort = 8787

// Config controls the overlay server and the caption's appearance.
type Config struct {
	Host      string
	Port      int
	Title     string
	ShowMeta  bool
	TopicTemp float64
}

// DefaultConfig returns the standard local-only overlay setup.
func DefaultConfig(topicTemp float64) Config {
	return Config{
		Host:      "127.0.0.1",
		Port:      DefaultPort,
		Title:     "現在の話題",
		ShowMeta:  true,
		TopicTemp: topicTemp,
	}
}

// Server renders the caption page and exposes the live topic state.
type Server struct {
	cfg   Config
	state *State

	html []byte
	css  []byte
	js   []byte
}

// NewServer loads the embedded assets and applies the config's template
// values.
func NewServer(cfg Config, state *State) (*Server, error) {
	s := &Server{cfg: cfg, state: state}
	for _, a := range []struct {
		name string
		dst  *[]byte
	}{
		{"overlay.html", &s.html},
		{"overlay.css", &s.css},
		{"overlay.js", &s.js},
	} {
		raw, err := assetsFS.ReadFile("assets/" + a.name)
		if err != nil {
			return nil, fmt.Errorf("overlay asset %s: %w", a.name, err)
		}
		*a.dst = []byte(s.applyTemplate(string(raw)))
	}
	return s, nil
}

func (s *Server) applyTemplate(src string) string {
	metaStyle := ""
	if !s.cfg.ShowMeta {
		metaStyle = "display:none;"
	}
	r := strings.NewReplacer(
		"__OVERLAY_TITLE__", s.cfg.Title,
		"__SHOW_META_STYLE__", metaStyle,
		"__TOPIC_BRAIN_TEMP__", strconv.FormatFloat(s.cfg.TopicTemp, 'g', -1, 64),
		"__TOPIC_BRAIN_TEMP_FIXED__", strconv.FormatFloat(s.cfg.TopicTemp, 'f', 2, 64),
	)
	return r.Replace(src)
}

// Handler returns the overlay routes, including /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/topic", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(s.state.Snapshot()); err != nil {
			log.Debug().Err(err).Msg("Overlay state encode failed")
		}
	})
	mux.HandleFunc("/overlay", s.asset("text/html; charset=utf-8", &s.html))
	mux.HandleFunc("/overlay.css", s.asset("text/css; charset=utf-8", &s.css))
	mux.HandleFunc("/overlay.js", s.asset("application/javascript; charset=utf-8", &s.js))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/overlay", http.StatusFound)
	})
	return mux
}

func (s *Server) asset(contentType string, body *[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(*body)
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("url", fmt.Sprintf("http://%s/overlay", addr)).Msg("Topic overlay ready")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("overlay server: %w", err)
		}
		return nil
	}
}
