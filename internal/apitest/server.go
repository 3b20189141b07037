// Package apitest runs an in-process fake of the fitness API for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/guarzo/gymapi/common/model"
)

// Reasons returned in 401 bodies.
const (
	ReasonExpired        = "token.expired"
	ReasonInvalid        = "token.invalid"
	ReasonMissing        = "token.missing"
	ReasonBadCredentials = "credentials.invalid"
	ReasonBadRefresh     = "refresh_token.invalid"
)

type account struct {
	user     model.User
	password string
}

type failure struct {
	status int
	body   string
}

// Server is a fake fitness API. Access tokens are valid, expired, or unknown;
// refresh tokens are single use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  map[string]*account // by email
	access    map[string]int64    // valid access token -> user id
	expired   map[string]int64
	refresh   map[string]int64 // refresh token -> user id
	nextPair  *model.TokenResponse
	gate      chan struct{}
	refreshOK failure
	failures  map[string]failure
	seen      map[string][]string
	history   []model.History
	nextID    int64

	refreshCalls int32
	refreshing   int32
	maxRefresh   int32
}

// NewServer starts a server seeded with the exercise catalog. It is closed
// when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		accounts: map[string]*account{},
		access:   map[string]int64{},
		expired:  map[string]int64{},
		refresh:  map[string]int64{},
		failures: map[string]failure{},
		seen:     map[string][]string{},
		nextID:   1,
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// Exercises is the fixed catalog served by the fake.
var Exercises = []model.Exercise{
	{ID: 1, Name: "Puxada frontal", Series: 3, Repetitions: 12, Group: "costas", Demo: "puxada_frontal.gif", Thumb: "puxada_frontal.png"},
	{ID: 2, Name: "Remada curvada", Series: 3, Repetitions: 12, Group: "costas", Demo: "remada_curvada.gif", Thumb: "remada_curvada.png"},
	{ID: 3, Name: "Supino inclinado", Series: 4, Repetitions: 10, Group: "peito", Demo: "supino_inclinado.gif", Thumb: "supino_inclinado.png"},
	{ID: 4, Name: "Agachamento", Series: 4, Repetitions: 8, Group: "pernas", Demo: "agachamento.gif", Thumb: "agachamento.png"},
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record)

	r.Path("/sessions").Methods(http.MethodPost).HandlerFunc(s.signIn)
	r.Path("/sessions/refresh-token").Methods(http.MethodPost).HandlerFunc(s.refreshToken)
	r.Path("/users").Methods(http.MethodPost).HandlerFunc(s.signUp)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.authenticate)
	protected.Path("/users").Methods(http.MethodPut).HandlerFunc(s.updateUser)
	protected.Path("/groups").Methods(http.MethodGet).HandlerFunc(s.groups)
	protected.Path("/exercises/bygroup/{group}").Methods(http.MethodGet).HandlerFunc(s.exercisesByGroup)
	protected.Path("/exercises/{id:[0-9]+}").Methods(http.MethodGet).HandlerFunc(s.exercise)
	protected.Path("/history").Methods(http.MethodGet).HandlerFunc(s.listHistory)
	protected.Path("/history").Methods(http.MethodPost).HandlerFunc(s.addHistory)
	protected.Path("/ping").Methods(http.MethodGet).HandlerFunc(s.ping)

	return r
}

// ----------------------------------------------------------------------
// Test controls
// ----------------------------------------------------------------------

// AddUser registers an account.
func (s *Server) AddUser(name, email, password string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addUserLocked(name, email, password)
}

func (s *Server) addUserLocked(name, email, password string) model.User {
	user := model.User{ID: s.nextID, Name: name, Email: email}
	s.nextID++
	s.accounts[email] = &account{user: user, password: password}
	return user
}

// Issue registers an access/refresh pair for userID.
func (s *Server) Issue(userID int64, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access[accessToken] = userID
	if refreshToken != "" {
		s.refresh[refreshToken] = userID
	}
}

// Expire makes accessToken answer token.expired.
func (s *Server) Expire(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.access[accessToken]; ok {
		delete(s.access, accessToken)
		s.expired[accessToken] = id
	}
}

// RevokeRefresh forgets refreshToken.
func (s *Server) RevokeRefresh(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, refreshToken)
}

// SetNextPair fixes the pair handed out by the next refresh or sign in.
func (s *Server) SetNextPair(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPair = &model.TokenResponse{Token: accessToken, RefreshToken: refreshToken}
}

// HoldRefresh makes refresh calls block until the returned function is
// called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailRefresh makes refresh calls answer status with body.
func (s *Server) FailRefresh(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshOK = failure{status: status, body: body}
}

// Fail makes requests to "METHOD /path" answer status with body.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = failure{status: status, body: body}
}

// RefreshCalls is the number of refresh requests received.
func (s *Server) RefreshCalls() int {
	return int(atomic.LoadInt32(&s.refreshCalls))
}

// MaxConcurrentRefresh is the highest number of refresh requests seen in
// flight at once.
func (s *Server) MaxConcurrentRefresh() int {
	return int(atomic.LoadInt32(&s.maxRefresh))
}

// Seen returns the Authorization headers received on "METHOD /path".
func (s *Server) Seen(route string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.seen[route]...)
}

// History returns the recorded history entries.
func (s *Server) History() []model.History {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.History(nil), s.history...)
}

// ----------------------------------------------------------------------
// Middleware
// ----------------------------------------------------------------------

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.seen[route] = append(s.seen[route], r.Header.Get("Authorization"))
		f, failing := s.failures[route]
		s.mu.Unlock()

		if failing {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, http.StatusUnauthorized, ReasonMissing)
			return
		}

		s.mu.Lock()
		_, valid := s.access[token]
		_, expired := s.expired[token]
		s.mu.Unlock()

		switch {
		case valid:
			next.ServeHTTP(w, r)
		case expired:
			writeError(w, http.StatusUnauthorized, ReasonExpired)
		default:
			writeError(w, http.StatusUnauthorized, ReasonInvalid)
		}
	})
}

// ----------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, ReasonBadCredentials)
		return
	}
	pair := s.issueLocked(acc.user.ID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, model.SessionResponse{
		User:         acc.user,
		Token:        pair.Token,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.refreshCalls, 1)
	inFlight := atomic.AddInt32(&s.refreshing, 1)
	defer atomic.AddInt32(&s.refreshing, -1)
	for {
		max := atomic.LoadInt32(&s.maxRefresh)
		if inFlight <= max || atomic.CompareAndSwapInt32(&s.maxRefresh, max, inFlight) {
			break
		}
	}

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Second):
		}
	}

	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshOK.status != 0 {
		w.WriteHeader(s.refreshOK.status)
		_, _ = w.Write([]byte(s.refreshOK.body))
		return
	}

	userID, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, ReasonBadRefresh)
		return
	}
	delete(s.refresh, req.RefreshToken)

	writeJSON(w, http.StatusOK, s.issueLocked(userID))
}

func (s *Server) issueLocked(userID int64) model.TokenResponse {
	pair := model.TokenResponse{Token: uuid.NewString(), RefreshToken: uuid.NewString()}
	if s.nextPair != nil {
		pair = *s.nextPair
		s.nextPair = nil
	}
	s.access[pair.Token] = userID
	s.refresh[pair.RefreshToken] = userID
	return pair
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req model.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[req.Email]; exists {
		writeError(w, http.StatusBadRequest, "Este e-mail já está em uso.")
		return
	}
	s.addUserLocked(req.Name, req.Email, req.Password)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := s.userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if acc.user.ID != userID {
			continue
		}
		if req.Password != "" {
			if req.OldPassword != acc.password {
				writeError(w, http.StatusBadRequest, "A senha antiga não confere.")
				return
			}
			acc.password = req.Password
		}
		acc.user.Name = req.Name
		w.WriteHeader(http.StatusOK)
		return
	}
	writeError(w, http.StatusNotFound, "Usuário não encontrado")
}

func (s *Server) groups(w http.ResponseWriter, _ *http.Request) {
	seen := map[string]bool{}
	groups := []string{}
	for _, e := range Exercises {
		if !seen[e.Group] {
			seen[e.Group] = true
			groups = append(groups, e.Group)
		}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) exercisesByGroup(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	out := []model.Exercise{}
	for _, e := range Exercises {
		if e.Group == group {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) exercise(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	for _, e := range Exercises {
		if e.ID == id {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Exercício não encontrado.")
}

func (s *Server) addHistory(w http.ResponseWriter, r *http.Request) {
	var req model.HistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	for _, e := range Exercises {
		if e.ID != req.ExerciseID {
			continue
		}
		s.mu.Lock()
		s.history = append(s.history, model.History{
			ID:         int64(len(s.history) + 1),
			Name:       e.Name,
			Group:      e.Group,
			Hour:       "08:00",
			CreatedAt:  "2024-03-01 08:00:00",
			ExerciseID: e.ID,
		})
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeError(w, http.StatusNotFound, "Exercício não encontrado.")
}

func (s *Server) listHistory(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days := []model.HistoryByDay{}
	if len(s.history) > 0 {
		days = append(days, model.HistoryByDay{
			Title: "01.03.2024",
			Data:  append([]model.History(nil), s.history...),
		})
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) userID(r *http.Request) int64 {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.access[token]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorBody{Status: "error", Message: message})
}
