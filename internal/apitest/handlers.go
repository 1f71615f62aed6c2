package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ukydev/fleet-requests/internal/middleware"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return io.EOF
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// actor resolves the authenticated account. Callers hold b.mu.
func (b *Backend) actor(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return models.User{}, false
	}
	acc, ok := b.accounts[claims.UserID]
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found")
		return models.User{}, false
	}
	if !acc.user.IsActive() {
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return models.User{}, false
	}
	return acc.user, true
}

// visible reports whether u may read req.
func visible(u models.User, req *models.Request) bool {
	return u.Role.IsManager() || req.IsOwnedBy(u.UserID)
}

// render fills the embedded relations of a response copy. Callers hold b.mu.
func (b *Backend) render(req *models.Request) models.Request {
	out := *req
	out.Locations = req.OrderedLocations()
	if acc, ok := b.accounts[req.UserID]; ok {
		u := acc.user
		out.User = &u
	}
	if acc, ok := b.accounts[req.ActionBy]; ok {
		u := acc.user
		out.ActionByUser = &u
	}
	if v, ok := b.vehicles[req.VehicleID]; ok {
		out.Vehicle = &v
	}
	if req.Assignment != nil {
		a := *req.Assignment
		if d, ok := b.drivers[a.DriverID]; ok {
			a.Driver = &d
		}
		out.Assignment = &a
	}
	return out
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[b.emails[strings.ToLower(in.Email)]]
	b.mu.Unlock()
	if !ok || !b.auth.CheckPassword(in.Password, acc.passwordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !acc.user.IsActive() {
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}

	token, err := b.auth.GenerateToken(&acc.user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refreshToken, err := b.auth.GenerateRefreshToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate refresh token")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, RefreshToken: refreshToken, User: acc.user})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) listRequests(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}

	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "status must be an integer")
			return
		}
		s, err := models.ParseStatus(n)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &s
	}
	mine := r.URL.Query().Get("mine") == "true"

	out := []models.Request{}
	for _, req := range b.requests {
		if !visible(u, req) || (mine && !req.IsOwnedBy(u.UserID)) {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		out = append(out, b.render(req))
	}
	sortRequests(out)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createRequest(w http.ResponseWriter, r *http.Request) {
	var in models.CreateRequestInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	if err := workflow.ValidateCreate(in); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if _, ok := b.vehicles[in.VehicleID]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "vehicleId: unknown vehicle")
		return
	}

	now := b.now()
	req := &models.Request{
		RequestID:        models.NewID(),
		UserID:           u.UserID,
		VehicleID:        in.VehicleID,
		Purpose:          in.Purpose,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Status:           models.StatusPending,
		IsDriverRequired: in.IsDriverRequired,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, l := range in.Locations {
		req.Locations = append(req.Locations, models.Location{
			ID:        models.NewID(),
			RequestID: req.RequestID,
			Order:     i,
			Address:   l.Address,
			Name:      l.Name,
			Note:      l.Note,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		})
	}
	b.requests[req.RequestID] = req
	b.notify(models.NotifRequestCreated, req.RequestID, u.FullName+" requested a vehicle", b.managerIDs(u.UserID)...)

	writeJSON(w, http.StatusCreated, b.render(req))
}

func (b *Backend) getRequest(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	req, ok := b.lookup(w, r, u)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.render(req))
}

// lookup finds the {id} request visible to u. Callers hold b.mu.
func (b *Backend) lookup(w http.ResponseWriter, r *http.Request, u models.User) (*models.Request, bool) {
	id := r.PathValue("id")
	if err := models.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	req, ok := b.requests[id]
	if !ok || !visible(u, req) {
		writeError(w, http.StatusNotFound, "Request not found")
		return nil, false
	}
	return req, true
}

// transition authorizes one action on the {id} request. prepare may veto it
// with a validation error; apply runs after the status change with b.mu held.
func (b *Backend) transition(w http.ResponseWriter, r *http.Request, action workflow.Action, prepare func(models.User, *models.Request) error, apply func(models.User, *models.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	req, ok := b.lookup(w, r, u)
	if !ok {
		return
	}

	next, err := workflow.Authorize(u, *req, action)
	switch {
	case errors.Is(err, workflow.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, workflow.ErrNotPermitted):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if prepare != nil {
		if err := prepare(u, req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	req.Status = next
	req.UpdatedAt = b.now()
	if apply != nil {
		apply(u, req)
	}

	if action == workflow.ActionRemind {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, b.render(req))
}

func (b *Backend) approve(w http.ResponseWriter, r *http.Request) {
	var in *models.AssignmentInput
	var body models.AssignmentInput
	switch err := decodeBody(r, &body); {
	case err == nil:
		in = &body
	case errors.Is(err, io.EOF):
	default:
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	b.transition(w, r, workflow.ActionApprove,
		func(_ models.User, req *models.Request) error {
			if err := workflow.ValidateAssignment(*req, in, nil); err != nil {
				return err
			}
			if in == nil || in.DriverID == "" {
				return nil
			}
			d, ok := b.drivers[in.DriverID]
			if !ok {
				return &workflow.ValidationError{Field: "driverId", Message: "unknown driver"}
			}
			return workflow.ValidateAssignment(*req, in, &d)
		},
		func(u models.User, req *models.Request) {
			req.ActionBy = u.UserID
			b.notify(models.NotifRequestApproved, req.RequestID, "Your vehicle request was approved", req.UserID)
			if in == nil || in.DriverID == "" {
				return
			}
			req.Assignment = &models.Assignment{
				AssignmentID: models.NewID(),
				RequestID:    req.RequestID,
				DriverID:     in.DriverID,
				Note:         in.Note,
				CreatedAt:    b.now(),
			}
			b.notify(models.NotifDriverAssigned, req.RequestID, b.drivers[in.DriverID].FullName+" will drive you", req.UserID)
		})
}

func (b *Backend) reasonAction(action workflow.Action, validate func(string) error, t models.NotificationType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.ReasonInput
		if err := decodeBody(r, &in); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := validate(in.Reason); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		b.transition(w, r, action, nil, func(u models.User, req *models.Request) {
			req.ActionBy = u.UserID
			req.CancelOrRejectReason = strings.TrimSpace(in.Reason)
			msg := fmt.Sprintf("%s %s: %s", u.FullName, strings.ToLower(req.Status.String()), req.CancelOrRejectReason)
			if req.IsOwnedBy(u.UserID) {
				b.notify(t, req.RequestID, msg, b.managerIDs(u.UserID)...)
				return
			}
			b.notify(t, req.RequestID, msg, req.UserID)
		})
	}
}

func (b *Backend) reject(w http.ResponseWriter, r *http.Request) {
	b.reasonAction(workflow.ActionReject, workflow.ValidateRejectReason, models.NotifRequestRejected)(w, r)
}

func (b *Backend) cancel(w http.ResponseWriter, r *http.Request) {
	b.reasonAction(workflow.ActionCancel, workflow.ValidateCancelReason, models.NotifRequestCancelled)(w, r)
}

func (b *Backend) start(w http.ResponseWriter, r *http.Request) {
	b.transition(w, r, workflow.ActionStartUsing, nil, func(u models.User, req *models.Request) {
		b.notify(models.NotifRequestStarted, req.RequestID, u.FullName+" started the trip", b.managerIDs(u.UserID)...)
	})
}

func (b *Backend) end(w http.ResponseWriter, r *http.Request) {
	b.transition(w, r, workflow.ActionEndUsage, nil, func(u models.User, req *models.Request) {
		b.notify(models.NotifRequestCompleted, req.RequestID, u.FullName+" returned the vehicle", b.managerIDs(u.UserID)...)
	})
}

func (b *Backend) remind(w http.ResponseWriter, r *http.Request) {
	b.transition(w, r, workflow.ActionRemind, nil, func(_ models.User, req *models.Request) {
		b.notify(models.NotifUsageReminder, req.RequestID, "Please remember to return the vehicle", req.UserID)
	})
}

func (b *Backend) submitCheckPoint(w http.ResponseWriter, r *http.Request) {
	var in models.CheckPointInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	req, ok := b.lookup(w, r, u)
	if !ok {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if cp, seen := b.idempotency[req.RequestID+"/"+key]; seen {
			writeJSON(w, http.StatusOK, cp)
			return
		}
	}

	// Checkpoints share the end-usage rule: owner only, trip in progress.
	if _, err := workflow.Authorize(u, *req, workflow.ActionEndUsage); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, workflow.ErrIllegalTransition) {
			status = http.StatusConflict
		}
		writeError(w, status, "checkpoints can only be added by the driver of an in-progress trip")
		return
	}
	if err := workflow.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if _, err := models.CheckPointTypeDisplay(in.Type); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cp := models.CheckPoint{
		CheckPointID: models.NewID(),
		RequestID:    req.RequestID,
		Type:         in.Type,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Note:         in.Note,
		CreatedAt:    b.now(),
	}
	for _, p := range in.Photos {
		cp.Photos = append(cp.Photos, "/uploads/"+cp.CheckPointID+"/"+p.Name)
	}
	b.checkpoints[req.RequestID] = append(b.checkpoints[req.RequestID], cp)
	if key != "" {
		b.idempotency[req.RequestID+"/"+key] = cp
	}
	b.notify(models.NotifCheckPointRecorded, req.RequestID, u.FullName+" reached a stop", b.managerIDs(u.UserID)...)

	writeJSON(w, http.StatusCreated, cp)
}

func (b *Backend) listCheckPoints(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	req, ok := b.lookup(w, r, u)
	if !ok {
		return
	}
	out := append([]models.CheckPoint{}, b.checkpoints[req.RequestID]...)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listDrivers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.actor(w, r); !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	out := []models.Driver{}
	for _, d := range b.drivers {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	sortByKey(out, func(d models.Driver) string { return d.FullName })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listVehicles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.actor(w, r); !ok {
		return
	}
	out := []models.Vehicle{}
	for _, v := range b.vehicles {
		out = append(out, v)
	}
	sortByKey(out, func(v models.Vehicle) string { return v.PlateNumber })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listNotifications(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.notificationsFor(u.UserID, r.URL.Query().Get("unread") == "true"))
}

func (b *Backend) markRead(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	for _, n := range b.notifications {
		if n.NotificationID != id || n.UserID != u.UserID {
			continue
		}
		if err := n.MarkRead(); err != nil && !errors.Is(err, models.ErrAlreadyRead) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, *n)
		return
	}
	writeError(w, http.StatusNotFound, "Notification not found")
}
