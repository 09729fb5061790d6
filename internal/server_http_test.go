package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"roomrelay/internal/storage"
)

// newTestServer wires a Server over a fresh SQLite file and mounts it on an
// httptest server.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	relay := NewServer(store, ServerOptions{
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1024,
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		Logger:         zerolog.Nop(),
	})
	mux := http.NewServeMux()
	relay.Routes(mux, "/ws/chat")
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		relay.Close()
		ts.Close()
		_ = store.Close()
	})
	return relay, ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// registerAndLogin creates an account and returns its login response.
func registerAndLogin(t *testing.T, baseURL, username string) loginResponse {
	t.Helper()
	creds := credentialsRequest{Username: username, Password: "hunter22"}
	resp := postJSON(t, baseURL+"/api/register", creds)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	resp = postJSON(t, baseURL+"/api/login", creds)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatal(err)
	}
	return login
}

func TestRegisterAndLogin(t *testing.T) {
	relay, ts := newTestServer(t)
	login := registerAndLogin(t, ts.URL, "ann")

	if login.Token == "" || login.Username != "ann" || login.UserID == "" {
		t.Fatalf("unexpected login response %+v", login)
	}
	userID, err := relay.Tokens().Verify(login.Token)
	if err != nil || userID != login.UserID {
		t.Fatalf("issued token does not verify: %q %v", userID, err)
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	_, ts := newTestServer(t)
	creds := credentialsRequest{Username: "ann", Password: "pw"}
	first := postJSON(t, ts.URL+"/api/register", creds)
	first.Body.Close()
	second := postJSON(t, ts.URL+"/api/register", creds)
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.StatusCode)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/register", map[string]string{"username": "ann"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/register")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, ts := newTestServer(t)
	registerAndLogin(t, ts.URL, "ann")
	resp := postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "ann", Password: "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "nobody", Password: "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", resp.StatusCode)
	}
}

func TestRoomsExistsAndMetrics(t *testing.T) {
	relay, ts := newTestServer(t)
	room := relay.Hub().GetOrCreate("ops")
	relay.Hub().RecordAndBroadcast(room, []byte(`{"type":"text","text":"hi"}`))

	resp, err := http.Get(ts.URL + "/exists?room=ops")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exists: expected 200, got %d", resp.StatusCode)
	}
	resp, err = http.Get(ts.URL + "/exists?room=missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room: expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatal(err)
	}
	var rooms roomsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].Name != "ops" || rooms.Rooms[0].History != 1 {
		t.Fatalf("unexpected rooms %+v", rooms)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var metrics map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if metrics["messages_relayed_total"] != 1 || metrics["rooms"] != 1 {
		t.Fatalf("unexpected metrics %v", metrics)
	}
}

func TestAuthRateLimitIgnoresForwardedFor(t *testing.T) {
	_, ts := newTestServer(t)
	body, err := json.Marshal(credentialsRequest{Username: "nobody", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	limited := 0
	for i := 0; i < authRateLimit+5; i++ {
		request, err := http.NewRequest(http.MethodPost, ts.URL+"/api/login", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp, err := http.DefaultClient.Do(request)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 5 {
		t.Fatalf("expected 5 limited attempts, got %d", limited)
	}
}

func TestPasswordWhitespaceIsSignificant(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/register", credentialsRequest{Username: " ann ", Password: " padded "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "ann", Password: "padded"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("trimmed password must not match, got %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "ann", Password: " padded "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exact password should log in, got %d", resp.StatusCode)
	}
}
