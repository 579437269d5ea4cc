// Package testserver provides a target HTTP server for load tests. Besides
// plain status and latency endpoints it serves a small shop with HTML pages,
// a cookie session and a JSON login, enough to drive scripted call cycles.
package testserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SessionCookie is the cookie the shop keeps its session in.
const SessionCookie = "session"

// Products is the shop's catalog size.
const Products = 5

// Server is a configurable HTTP test server.
type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	requests atomic.Int64

	rngMu sync.Mutex
	rng   *mrand.Rand

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	user  string
	cart  []int
	views int
}

// NewServer creates a server. seed drives the random endpoints; logger may
// be nil.
func NewServer(seed int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		rng:      mrand.New(mrand.NewSource(seed)),
		sessions: make(map[string]*session),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		s.mux.ServeHTTP(w, r)
	})
}

// Requests returns how many requests were served.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Endpoints lists what the server answers, for usage output.
var Endpoints = []struct{ Pattern, Description string }{
	{"GET  /health", "Health check"},
	{"GET  /status/{code}", "Return specific status code"},
	{"GET  /delay/{ms}", "Delay response by milliseconds"},
	{"GET  /random-delay", "Random delay (?min=50&max=200)"},
	{"GET  /fail-rate", "Fail percentage of requests (?rate=10)"},
	{"POST /echo", "Echo request body"},
	{"PUT  /echo", "Echo request body"},
	{"POST /login", "JSON login, starts a session"},
	{"GET  /shop", "HTML catalog with product links"},
	{"GET  /product/{id}", "HTML product page"},
	{"POST /cart/{id}", "Add product to the session cart"},
	{"GET  /cart", "Session cart as JSON"},
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status/{code}", s.handleStatus)
	s.mux.HandleFunc("GET /delay/{ms}", s.handleDelay)
	s.mux.HandleFunc("GET /random-delay", s.handleRandomDelay)
	s.mux.HandleFunc("GET /fail-rate", s.handleFailRate)
	s.mux.HandleFunc("POST /echo", s.handleEcho)
	s.mux.HandleFunc("PUT /echo", s.handleEcho)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /shop", s.handleShop)
	s.mux.HandleFunc("GET /product/{id}", s.handleProduct)
	s.mux.HandleFunc("POST /cart/{id}", s.handleAddToCart)
	s.mux.HandleFunc("GET /cart", s.handleCart)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the status code named in the path.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
}

func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}
	if !sleep(r, time.Duration(ms)*time.Millisecond) {
		return
	}
	fmt.Fprintf(w, "delayed %dms", ms)
}

// handleRandomDelay waits for a random duration in [min, max) milliseconds.
func (s *Server) handleRandomDelay(w http.ResponseWriter, r *http.Request) {
	minMs, err := strconv.Atoi(r.URL.Query().Get("min"))
	if err != nil || minMs < 0 {
		minMs = 0
	}
	maxMs, err := strconv.Atoi(r.URL.Query().Get("max"))
	if err != nil || maxMs < minMs {
		maxMs = minMs + 100
	}

	delay := minMs
	if maxMs > minMs {
		delay = minMs + s.intn(maxMs-minMs)
	}
	if !sleep(r, time.Duration(delay)*time.Millisecond) {
		return
	}
	fmt.Fprintf(w, "delayed %dms (range: %d-%d)", delay, minMs, maxMs)
}

// handleFailRate answers 500 for rate percent of requests.
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}
	if s.intn(100) < rate {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "success")
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Echo-Method", r.Method)
	w.Header().Set("X-Echo-User-Agent", r.UserAgent())
	w.Write(body)
}

// handleLogin accepts {"user": "..."}, opens a session and returns a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	id := newSessionID()
	s.mu.Lock()
	s.sessions[id] = &session{user: req.User}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"token": id,
		"user":  map[string]any{"name": req.User},
	})
}

// handleShop lists the catalog as links.
func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	if sess := s.session(r); sess != nil {
		s.mu.Lock()
		sess.views++
		s.mu.Unlock()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintln(w, "<html><body>")
	fmt.Fprintln(w, "<h1>Shop</h1>")
	fmt.Fprintln(w, "<ul>")
	for id := 1; id <= Products; id++ {
		fmt.Fprintf(w, "<li><a href=\"/product/%d\">Product %d</a></li>\n", id, id)
	}
	fmt.Fprintln(w, "</ul>")
	fmt.Fprintln(w, "</body></html>")
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body>\n<h1>Product %d</h1>\n", id)
	fmt.Fprintf(w, "<span class=\"price\">%d.99</span>\n", id*10)
	fmt.Fprintf(w, "<form method=\"post\" action=\"/cart/%d\"></form>\n</body></html>\n", id)
}

// handleAddToCart requires a session cookie.
func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	sess.cart = append(sess.cart, id)
	items := len(sess.cart)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"items": items})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	out := map[string]any{
		"user":  sess.user,
		"items": append([]int(nil), sess.cart...),
		"views": sess.views,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) session(r *http.Request) *session {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func productID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(r.PathValue("id")))
	if err != nil || id < 1 || id > Products {
		return 0, false
	}
	return id, true
}

// sleep waits for d unless the client goes away first.
func sleep(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func newSessionID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
