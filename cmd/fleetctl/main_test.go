package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-requests/internal/apitest"
	"github.com/ukydev/fleet-requests/internal/auth"
	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/config"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/push"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

type env struct {
	backend  *apitest.Backend
	api      string
	dir      string
	employee models.User
	manager  models.User
	vehicle  models.Vehicle
	driver   models.Driver
}

func newEnv(t *testing.T, opts ...apitest.Option) *env {
	t.Helper()
	b := apitest.New(opts...)
	srv := b.Serve()
	t.Cleanup(srv.Close)
	return &env{
		backend:  b,
		api:      srv.URL + "/api",
		dir:      t.TempDir(),
		employee: b.AddUser(models.User{FullName: "Eve Employee", Email: "eve@example.com", Role: models.RoleEmployee}, "password123"),
		manager:  b.AddUser(models.User{FullName: "Max Manager", Email: "max@example.com", Role: models.RoleManager}, "password123"),
		vehicle:  b.AddVehicle(models.Vehicle{PlateNumber: "51A-123.45", Brand: "Toyota", Model: "Innova", Seats: 7}),
		driver:   b.AddDriver(models.Driver{FullName: "Dan Driver", Phone: "0901", LicenseNumber: "B2-001", IsActive: true}),
	}
}

// cli runs fleetctl as the user whose session lives in tokenFile.
func (e *env) cli(t *testing.T, who string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	global := []string{"-api", e.api, "-token-file", filepath.Join(e.dir, who+".json"), "-log-level", "warn"}
	code := run(context.Background(), append(global, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (e *env) mustCLI(t *testing.T, who string, args ...string) string {
	t.Helper()
	out, errOut, code := e.cli(t, who, args...)
	require.Equal(t, exitOK, code, "fleetctl %v: %s", args, errOut)
	return out
}

func TestRun_Usage(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.cli(t, "eve")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "commands:")

	_, errOut, code = e.cli(t, "eve", "teleport")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, `unknown command "teleport"`)

	_, errOut, code = e.cli(t, "eve", "start")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "usage: fleetctl start ID")
}

func TestRun_RequiresLogin(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.cli(t, "eve", "list")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "not signed in")

	_, errOut, code = e.cli(t, "eve", "login", "-email", "eve@example.com", "-password", "wrong")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "invalid credentials")
}

func TestRun_LoginSession(t *testing.T) {
	e := newEnv(t)

	out := e.mustCLI(t, "eve", "login", "-email", "eve@example.com", "-password", "password123")
	assert.Contains(t, out, "Signed in as Eve Employee (Employee)")

	info, err := os.Stat(filepath.Join(e.dir, "eve.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out = e.mustCLI(t, "eve", "whoami")
	assert.Contains(t, out, e.employee.UserID)
	assert.Contains(t, out, "Eve Employee")

	assert.Contains(t, e.mustCLI(t, "eve", "logout"), "Signed out")
	_, _, code := e.cli(t, "eve", "whoami")
	assert.Equal(t, exitError, code)
}

func TestRun_TripLifecycle(t *testing.T) {
	e := newEnv(t)
	e.mustCLI(t, "eve", "login", "-email", "eve@example.com", "-password", "password123")
	e.mustCLI(t, "max", "login", "-email", "max@example.com", "-password", "password123")

	assert.Contains(t, e.mustCLI(t, "eve", "vehicles"), "51A-123.45")
	assert.Contains(t, e.mustCLI(t, "max", "drivers", "-active"), "Dan Driver")

	id := strings.TrimSpace(e.mustCLI(t, "eve", "create",
		"-vehicle", e.vehicle.VehicleID,
		"-purpose", "Customer visit",
		"-start", "2026-10-20T08:00:00Z",
		"-end", "2026-10-20T17:00:00Z",
		"-driver",
		"-stop", "10.77,106.70,Office, District 1",
		"-stop", "10.80,106.65,Customer"))
	require.NoError(t, models.ValidateID(id))

	out := e.mustCLI(t, "max", "list", "-status", "pending")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Eve Employee")

	_, errOut, code := e.cli(t, "max", "approve", id)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "driver must be assigned")

	out = e.mustCLI(t, "max", "approve", "-driver", e.driver.DriverID, id)
	assert.Contains(t, out, "Approved")
	assert.Contains(t, out, "Dan Driver")

	e.mustCLI(t, "eve", "start", id)
	out = e.mustCLI(t, "eve", "checkin", "-lat", "10.7701", "-lon", "106.7001", "-note", "arrived", id)
	assert.Contains(t, out, "Progress 1/2")
	assert.Contains(t, out, "[x] 1. Office, District 1")
	assert.Contains(t, out, "[>] 2. Customer")

	var view struct {
		Request  models.Request     `json:"request"`
		Progress *workflow.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.mustCLI(t, "max", "show", "-json", id)), &view))
	assert.Equal(t, models.StatusInProgress, view.Request.Status)
	require.NotNil(t, view.Progress)
	assert.Equal(t, 1, view.Progress.CurrentIndex)

	var route struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.mustCLI(t, "eve", "route", id)), &route))
	assert.Equal(t, "FeatureCollection", route.Type)
	assert.Len(t, route.Features, 4)

	assert.Contains(t, e.mustCLI(t, "eve", "checkpoints", id), "Check-in")

	out = e.mustCLI(t, "eve", "end", id)
	assert.Contains(t, out, "Done")
	assert.NotContains(t, out, "Actions:")
}

func TestRun_CancelNeedsReason(t *testing.T) {
	e := newEnv(t)
	req := e.backend.AddRequest(models.Request{UserID: e.employee.UserID, VehicleID: e.vehicle.VehicleID, Status: models.StatusPending})
	e.mustCLI(t, "eve", "login", "-email", "eve@example.com", "-password", "password123")

	_, errOut, code := e.cli(t, "eve", "cancel", "-reason", "nah", req.RequestID)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "longer than 5 characters")

	stored, _ := e.backend.Request(req.RequestID)
	assert.Equal(t, models.StatusPending, stored.Status)

	out := e.mustCLI(t, "eve", "cancel", "-reason", "Plans changed", req.RequestID)
	assert.Contains(t, out, "Cancelled")
	assert.Contains(t, out, "Plans changed")
}

func TestRun_Notifications(t *testing.T) {
	e := newEnv(t)
	req := e.backend.AddRequest(models.Request{UserID: e.employee.UserID, VehicleID: e.vehicle.VehicleID, Status: models.StatusPending})
	e.mustCLI(t, "max", "login", "-email", "max@example.com", "-password", "password123")
	e.mustCLI(t, "eve", "login", "-email", "eve@example.com", "-password", "password123")
	e.mustCLI(t, "max", "approve", req.RequestID)

	notes := e.backend.Notifications(e.employee.UserID)
	require.Len(t, notes, 1)

	out := e.mustCLI(t, "eve", "notifications", "-unread")
	assert.Contains(t, out, notes[0].NotificationID)

	e.mustCLI(t, "eve", "read", notes[0].NotificationID)
	out = e.mustCLI(t, "eve", "notifications", "-unread")
	assert.NotContains(t, out, notes[0].NotificationID)

	_, _, code := e.cli(t, "eve", "read", models.NewID())
	assert.Equal(t, exitError, code)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected models.Status
		wantErr  bool
	}{
		{"pending", models.StatusPending, false},
		{"In progress", models.StatusInProgress, false},
		{"in-progress", models.StatusInProgress, false},
		{"5", models.StatusDone, false},
		{"9", 0, true},
		{"parked", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseStatus(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStopList(t *testing.T) {
	var s stopList
	require.NoError(t, s.Set("10.77, 106.70, 12 Le Loi, District 1"))
	require.Len(t, s, 1)
	assert.Equal(t, "12 Le Loi, District 1", s[0].Address)
	assert.Equal(t, 106.70, s[0].Longitude)

	assert.Error(t, s.Set("10.77,106.70"))
	assert.Error(t, s.Set("north,106.70,Somewhere"))
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-10-20T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseTime("2026-10-20 08:30")
	require.NoError(t, err)
	assert.Equal(t, 30, got.Minute())

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}

// asyncBroker delivers publishes on their own goroutine, as paho does.
type asyncBroker struct {
	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

func (b *asyncBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	cb := b.subs[topic]
	b.mu.Unlock()
	if cb != nil {
		go cb(nil, message{topic: topic, payload: payload.([]byte)})
	}
	return doneToken{}
}

func (b *asyncBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[string]mqtt.MessageHandler{}
	}
	b.subs[topic] = cb
	return doneToken{}
}

func (b *asyncBroker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subs, t)
	}
	return doneToken{}
}

func (b *asyncBroker) Disconnect(uint) {}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestWatch(t *testing.T) {
	broker := &asyncBroker{}
	e := newEnv(t, apitest.WithNotifier(push.NewNotifier(broker, push.DefaultTopicPrefix)))
	req := e.backend.AddRequest(models.Request{UserID: e.employee.UserID, VehicleID: e.vehicle.VehicleID, Status: models.StatusPending})

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	var stdout syncBuffer
	tokens := &auth.MemoryTokenStore{}
	require.NoError(t, tokens.Save(e.backend.Token(e.employee.UserID)))
	a := &app{
		cfg:    config.Config{APIBaseURL: e.api, APITimeout: 5 * time.Second},
		log:    log,
		tokens: tokens,
		stdout: &stdout,
		stderr: &bytes.Buffer{},
		now:    time.Now,
	}
	svc, sess, _, err := a.service()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, a, svc, sess, push.NewListener(broker, push.DefaultTopicPrefix, logrus.NewEntry(log)))
	}()

	mgr, err := client.New(e.api, client.WithToken(e.backend.Token(e.manager.UserID)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.subs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, err = mgr.Approve(context.Background(), req.RequestID, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "request "+req.RequestID+" is now Approved")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, broker.subs)
}
