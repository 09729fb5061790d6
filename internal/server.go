package internal

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"roomrelay/internal/storage"
)

const (
	DefaultUploadDir      = "static/uploads"
	DefaultMaxUploadBytes = 50 * 1024 * 1024
	uploadURLPrefix       = "/uploads/"
	authRateLimit         = 10
	authRateWindow        = time.Minute
)

// ServerOptions tunes a Server. Zero values fall back to defaults.
type ServerOptions struct {
	UploadDir       string
	MaxUploadBytes  int64
	HistorySize     int
	ChannelCapacity int
	JWTSecret       string
	TokenTTL        time.Duration
	Logger          zerolog.Logger
}

// Server ties the realtime core to its collaborators: the user store, the
// token issuer/verifier and the media log.
type Server struct {
	hub            *Hub
	media          *MediaLog
	store          *storage.Store
	directory      UserDirectory
	tokens         *HMACTokens
	verifier       TokenVerifier
	metrics        *Metrics
	online         *OnlineUsers
	authLimiter    *RateLimiter
	uploadDir      string
	maxUploadBytes int64
	logger         zerolog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewServer(store *storage.Store, opts ServerOptions) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = DefaultUploadDir
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		hub:            NewHubWithConfig(opts.HistorySize, opts.ChannelCapacity),
		media:          NewMediaLog(),
		store:          store,
		tokens:         NewHMACTokens(opts.JWTSecret, opts.TokenTTL),
		metrics:        NewMetrics(),
		online:         NewOnlineUsers(),
		authLimiter:    NewRateLimiter(authRateLimit, authRateWindow),
		uploadDir:      opts.UploadDir,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
	}
	server.verifier = server.tokens
	if store != nil {
		server.directory = store
	}
	return server
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) MediaLog() *MediaLog {
	return s.media
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Tokens() *HMACTokens {
	return s.tokens
}

func (s *Server) UploadDir() string {
	return s.uploadDir
}

// Close ends every live session. Rooms stay registered.
func (s *Server) Close() {
	s.cancel()
	s.hub.Close()
}

// Routes mounts every endpoint on mux, with the websocket entry at wsPath.
func (s *Server) Routes(mux *http.ServeMux, wsPath string) {
	mux.HandleFunc(wsPath, s.ServeWS)
	mux.HandleFunc("/api/register", s.HandleRegister)
	mux.HandleFunc("/api/login", s.HandleLogin)
	mux.HandleFunc("/api/upload", s.HandleUpload)
	mux.HandleFunc("/api/rooms", s.HandleRooms)
	mux.HandleFunc("/exists", s.HandleRoomExists)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.Handle(uploadURLPrefix, http.StripPrefix(uploadURLPrefix, http.FileServer(http.Dir(s.uploadDir))))
}

// clientIP keys the auth limiter on the connection peer. Forwarding headers
// are client controlled and ignored.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
