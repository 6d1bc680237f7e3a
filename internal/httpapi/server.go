// Package httpapi exposes the service surface: a health probe, Prometheus
// metrics, the TwiML document that points Twilio at this host, and the
// /media websocket endpoint where calls are bridged.
package httpapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/CaptainTK1/elevenlabs-websocket/internal/audio"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/bridge"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/config"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/elevenlabs"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/observability"
)

type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	transcoder audio.Transcoder
	upgrader   websocket.Upgrader

	signedURL func(ctx context.Context) (string, error)
	dialAgent func(ctx context.Context, signedURL string) (bridge.Conn, error)
}

func New(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics, client *elevenlabs.Client, transcoder audio.Transcoder) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		transcoder: transcoder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Twilio's media-stream client sends no Origin header;
				// browsers do, and only same-origin ones are accepted
				// unless the deployment opts out.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	if client != nil {
		s.signedURL = client.SignedURL
		s.dialAgent = func(ctx context.Context, signedURL string) (bridge.Conn, error) {
			conn, err := client.Dial(ctx, signedURL)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/twiml", s.handleTwiML)
	r.Post("/twiml", s.handleTwiML)
	r.Get("/media", s.handleMedia)

	return r
}

// logRequests writes one structured line per finished request. The media
// websocket logs its own lifecycle, so upgraded requests are skipped here.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/media" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// handleTwiML answers Twilio's voice webhook with instructions to open a
// media stream back to this host.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(s.cfg.PublicHost)
	if host == "" {
		host = r.Host
	}
	doc := twimlResponse{
		Connect: twimlConnect{Stream: twimlStream{URL: "wss://" + host + "/media"}},
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, "twiml encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.signedURL == nil || s.dialAgent == nil {
		respondError(w, http.StatusServiceUnavailable, "agent_unconfigured", "agent client not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("media upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("call connected")

	b := bridge.New(bridge.Config{
		SignedURL:  s.signedURL,
		Dial:       s.dialAgent,
		Transcoder: s.transcoder,
		Initiation: elevenlabs.InitiationConfig{
			Prompt:       s.cfg.AgentPrompt,
			FirstMessage: s.cfg.AgentFirstMessage,
		},
		OptimizeStreamingLatency: s.cfg.OptimizeStreamingLatency,
		Logger:                   logger,
		Metrics:                  s.metrics,
	}, conn)

	if err := b.Run(r.Context()); err != nil {
		logger.Error("call ended with failure", "error", err)
		return
	}
	logger.Info("call finished")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
