// Package apitest is an in-memory fleet backend for tests. It applies the
// authoritative transition rules, emits notifications and honours
// checkpoint idempotency keys, so clients can be exercised end to end
// without a database.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/auth"
	"github.com/ukydev/fleet-requests/internal/middleware"
	"github.com/ukydev/fleet-requests/internal/models"
)

// Notifier receives every notification the backend emits.
// *push.Notifier implements it.
type Notifier interface {
	Notify(n models.Notification) error
}

type account struct {
	user         models.User
	passwordHash string
}

// Backend holds the fake state.
type Backend struct {
	auth     *auth.Service
	authMW   *middleware.AuthMiddleware
	limiter  func(http.Handler) http.Handler
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry

	mu            sync.Mutex
	accounts      map[string]*account
	emails        map[string]string
	drivers       map[string]models.Driver
	vehicles      map[string]models.Vehicle
	requests      map[string]*models.Request
	checkpoints   map[string][]models.CheckPoint
	idempotency   map[string]models.CheckPoint
	notifications []*models.Notification
}

// Option configures a Backend.
type Option func(*Backend)

// WithNotifier forwards emitted notifications, e.g. to MQTT. Notify runs
// with the backend lock held and must not call back into the backend.
func WithNotifier(n Notifier) Option {
	return func(b *Backend) { b.notifier = n }
}

// WithRateLimit throttles each client IP to maxRequests per window.
func WithRateLimit(maxRequests, windowSeconds int) Option {
	return func(b *Backend) {
		b.limiter = middleware.NewRateLimiter(maxRequests, time.Duration(windowSeconds)*time.Second).Middleware()
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithLogger sets the request log destination.
func WithLogger(log *logrus.Entry) Option {
	return func(b *Backend) { b.log = log }
}

// New returns an empty backend.
func New(opts ...Option) *Backend {
	authService := auth.NewServiceWith("apitest-secret", time.Hour)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	b := &Backend{
		auth:        authService,
		authMW:      middleware.NewAuthMiddleware(authService),
		now:         time.Now,
		log:         logrus.NewEntry(logger),
		accounts:    map[string]*account{},
		emails:      map[string]string{},
		drivers:     map[string]models.Driver{},
		vehicles:    map[string]models.Vehicle{},
		requests:    map[string]*models.Request{},
		checkpoints: map[string][]models.CheckPoint{},
		idempotency: map[string]models.CheckPoint{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Serve starts an httptest server; the API lives under URL + "/api".
func (b *Backend) Serve() *httptest.Server {
	return httptest.NewServer(b.Handler())
}

// Handler returns the routed API.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	manager := b.authMW.RequireManager

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/auth/login", b.login)
	mux.HandleFunc("GET /api/auth/me", b.me)

	mux.HandleFunc("GET /api/requests", b.listRequests)
	mux.HandleFunc("POST /api/requests", b.createRequest)
	mux.HandleFunc("GET /api/requests/{id}", b.getRequest)
	mux.Handle("POST /api/requests/{id}/approve", manager(http.HandlerFunc(b.approve)))
	mux.Handle("POST /api/requests/{id}/reject", manager(http.HandlerFunc(b.reject)))
	mux.HandleFunc("POST /api/requests/{id}/cancel", b.cancel)
	mux.HandleFunc("POST /api/requests/{id}/start", b.start)
	mux.HandleFunc("POST /api/requests/{id}/end", b.end)
	mux.Handle("POST /api/requests/{id}/remind", manager(http.HandlerFunc(b.remind)))
	mux.HandleFunc("POST /api/requests/{id}/checkpoints", b.submitCheckPoint)
	mux.HandleFunc("GET /api/requests/{id}/checkpoints", b.listCheckPoints)

	mux.HandleFunc("GET /api/drivers", b.listDrivers)
	mux.HandleFunc("GET /api/vehicles", b.listVehicles)
	mux.HandleFunc("GET /api/notifications", b.listNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", b.markRead)

	var h http.Handler = mux
	h = middleware.Logging(b.log)(h)
	h = b.authMW.Authenticate(h)
	if b.limiter != nil {
		h = b.limiter(h)
	}
	return h
}

// AddUser seeds an account. An empty UserID gets a fresh one; a password
// that fails the login policy panics.
func (b *Backend) AddUser(u models.User, password string) models.User {
	if err := b.auth.ValidatePassword(password); err != nil {
		panic(err)
	}
	hash, err := b.auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	if u.UserID == "" {
		u.UserID = models.NewID()
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[u.UserID] = &account{user: u, passwordHash: hash}
	b.emails[strings.ToLower(u.Email)] = u.UserID
	return u
}

// AddDriver seeds a driver.
func (b *Backend) AddDriver(d models.Driver) models.Driver {
	if d.DriverID == "" {
		d.DriverID = models.NewID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drivers[d.DriverID] = d
	return d
}

// AddVehicle seeds a vehicle.
func (b *Backend) AddVehicle(v models.Vehicle) models.Vehicle {
	if v.VehicleID == "" {
		v.VehicleID = models.NewID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vehicles[v.VehicleID] = v
	return v
}

// AddRequest seeds a request in any state, bypassing validation.
func (b *Backend) AddRequest(r models.Request) models.Request {
	if r.RequestID == "" {
		r.RequestID = models.NewID()
	}
	for i := range r.Locations {
		if r.Locations[i].ID == "" {
			r.Locations[i].ID = models.NewID()
		}
		r.Locations[i].RequestID = r.RequestID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = b.now()
		r.UpdatedAt = r.CreatedAt
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := r
	stored.Locations = append([]models.Location(nil), r.Locations...)
	b.requests[r.RequestID] = &stored
	return r
}

// Update mutates a stored request, standing in for a concurrent actor.
func (b *Backend) Update(id string, fn func(*models.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.requests[id]; ok {
		fn(r)
		r.UpdatedAt = b.now()
	}
}

// Request returns the stored snapshot of id.
func (b *Backend) Request(id string) (models.Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.requests[id]
	if !ok {
		return models.Request{}, false
	}
	return *r, true
}

// CheckPoints returns the stored checkpoints of a request.
func (b *Backend) CheckPoints(id string) []models.CheckPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.CheckPoint(nil), b.checkpoints[id]...)
}

// Notifications returns what userID has received, newest first.
func (b *Backend) Notifications(userID string) []models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notificationsFor(userID, false)
}

// Token signs a session for a seeded user.
func (b *Backend) Token(userID string) string {
	b.mu.Lock()
	acc, ok := b.accounts[userID]
	b.mu.Unlock()
	if !ok {
		panic("apitest: unknown user " + userID)
	}
	token, err := b.auth.GenerateToken(&acc.user)
	if err != nil {
		panic(err)
	}
	return token
}

func (b *Backend) notificationsFor(userID string, unreadOnly bool) []models.Notification {
	out := []models.Notification{}
	for i := len(b.notifications) - 1; i >= 0; i-- {
		n := b.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	return out
}

// notify records a notification for each recipient. Callers hold b.mu.
func (b *Backend) notify(t models.NotificationType, requestID, message string, recipients ...string) {
	for _, userID := range recipients {
		n := &models.Notification{
			NotificationID: models.NewID(),
			UserID:         userID,
			Type:           t,
			Message:        message,
			RequestID:      requestID,
			CreatedAt:      b.now(),
		}
		b.notifications = append(b.notifications, n)
		if b.notifier != nil {
			if err := b.notifier.Notify(*n); err != nil {
				b.log.WithError(err).WithField("user_id", userID).Warn("push failed")
			}
		}
	}
}

// managerIDs lists manager-equivalent accounts. Callers hold b.mu.
func (b *Backend) managerIDs(except string) []string {
	var ids []string
	for id, acc := range b.accounts {
		if acc.user.Role.IsManager() && id != except {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// sortRequests orders newest first.
func sortRequests(rs []models.Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].RequestID > rs[j].RequestID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

func sortByKey[T any](items []T, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
