package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roomsResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	username, password, err := decodeCredentials(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	userID := uuid.NewString()
	if err := s.store.CreateUser(r.Context(), userID, username, hash); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.metrics.IncRegistration()
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID, "username": username})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	username, password, err := decodeCredentials(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if err := s.store.RecordLogin(r.Context(), user.ID, time.Now()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("record login")
	}
	token, expiresAt, err := s.tokens.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncLogin()
	writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: user.ID, Username: user.Username, ExpiresAt: expiresAt})
}

func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, roomsResponse{Rooms: s.hub.Rooms()})
}

func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.hub.Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := s.metrics.Snapshot()
	if s.store != nil {
		if users, err := s.store.CountUsers(r.Context()); err == nil {
			payload["users_total"] = users
		}
	}
	payload["messages_relayed_total"] = s.hub.Relayed()
	payload["deliveries_dropped_total"] = s.hub.Dropped()
	payload["online_users"] = s.online.Count()
	payload["rooms"] = len(s.hub.Rooms())
	payload["media_tracked_bytes"] = s.media.TotalSize()
	payload["media_tracked_files"] = s.media.Len()
	writeJSON(w, http.StatusOK, payload)
}

func decodeCredentials(r *http.Request) (string, string, error) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", "", badInput("decode body: %v", err)
	}
	username := strings.TrimSpace(req.Username)
	password := req.Password
	if username == "" || strings.TrimSpace(password) == "" {
		return "", "", badInput("username and password are required")
	}
	return username, password, nil
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
