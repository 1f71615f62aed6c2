// Package requests drives the request workflow for one signed-in user: it
// always acts on a freshly fetched snapshot, validates input before anything
// is sent, surfaces outcomes as toasts and keeps the per-session reminder
// flags.
package requests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

// Backend is the REST collaborator. *client.Client implements it.
type Backend interface {
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	Approve(ctx context.Context, id string, assignment *models.AssignmentInput) (*models.Request, error)
	Reject(ctx context.Context, id, reason string) (*models.Request, error)
	Cancel(ctx context.Context, id, reason string) (*models.Request, error)
	StartUsing(ctx context.Context, id string) (*models.Request, error)
	EndUsage(ctx context.Context, id string) (*models.Request, error)
	Remind(ctx context.Context, id string) error
	SubmitCheckPoint(ctx context.Context, id string, in models.CheckPointInput, key string) (*models.CheckPoint, error)
	ListCheckPoints(ctx context.Context, id string) ([]models.CheckPoint, error)
	ListDrivers(ctx context.Context, activeOnly bool) ([]models.Driver, error)
	MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error)
}

// ToastKind selects how a toast is styled.
type ToastKind int

const (
	ToastInfo ToastKind = iota
	ToastSuccess
	ToastError
)

// Toaster shows a short message to the user.
type Toaster interface {
	Toast(kind ToastKind, message string)
}

// Locator reports the device position.
type Locator interface {
	CurrentLocation(ctx context.Context) (models.Coordinates, error)
}

// PhotoPicker captures or picks photos to attach to a checkpoint.
type PhotoPicker interface {
	PickPhotos(ctx context.Context) ([]models.Photo, error)
}

// Generic messages; backend error texts are logged, not shown.
const (
	msgNotAvailable = "This action is not available for this request."
	msgConflict     = "This request was changed by someone else. Showing the latest version."
	msgTransient    = "Could not reach the server. Please try again."
	msgUnknown      = "Something went wrong."
)

var successMessages = map[workflow.Action]string{
	workflow.ActionApprove:    "Request approved.",
	workflow.ActionReject:     "Request rejected.",
	workflow.ActionCancel:     "Request cancelled.",
	workflow.ActionStartUsing: "Trip started.",
	workflow.ActionEndUsage:   "Trip finished.",
	workflow.ActionRemind:     "Reminder sent.",
}

// Input carries the optional payload of an action.
type Input struct {
	Reason     string
	Assignment *models.AssignmentInput
}

// CheckInInput carries the optional parts of a checkpoint.
type CheckInInput struct {
	Note string
}

// View is everything a screen needs to render one request.
type View struct {
	Request     models.Request      `json:"request"`
	Actions     workflow.ActionSet  `json:"-"`
	Controls    []workflow.Control  `json:"controls"`
	CheckPoints []models.CheckPoint `json:"checkPoints,omitempty"`
	Progress    *workflow.Progress  `json:"progress,omitempty"`
	Reminder    *workflow.Reminder  `json:"reminder,omitempty"`
}

// Session holds state that lives as long as one user session: which
// requests have been reminded. It is not persisted.
type Session struct {
	User models.User

	mu       sync.Mutex
	reminded map[string]bool
}

// NewSession starts a session for user.
func NewSession(user models.User) *Session {
	return &Session{User: user, reminded: map[string]bool{}}
}

// ReminderSent reports whether a reminder went out for id in this session.
func (s *Session) ReminderSent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminded[id]
}

func (s *Session) markReminded(id string) {
	s.mu.Lock()
	s.reminded[id] = true
	s.mu.Unlock()
}

// Service is the workflow controller.
type Service struct {
	backend Backend
	toaster Toaster
	locator Locator
	photos  PhotoPicker
	now     func() time.Time
	log     *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

func WithToaster(t Toaster) Option {
	return func(s *Service) { s.toaster = t }
}

func WithLocator(l Locator) Option {
	return func(s *Service) { s.locator = l }
}

func WithPhotoPicker(p PhotoPicker) Option {
	return func(s *Service) { s.photos = p }
}

// WithClock replaces time.Now, for the reminder policy.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) { s.log = log }
}

type discardToaster struct{}

func (discardToaster) Toast(ToastKind, string) {}

// NewService wires a controller to its backend.
func NewService(b Backend, opts ...Option) *Service {
	s := &Service{
		backend: b,
		toaster: discardToaster{},
		now:     time.Now,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches a fresh snapshot of id and derives its view.
func (s *Service) Load(ctx context.Context, sess *Session, id string) (*View, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, wrap(workflow.ActionViewDetail, err)
	}
	req, err := s.backend.GetRequest(ctx, id)
	if err != nil {
		return nil, s.fail(workflow.ActionViewDetail, id, err)
	}
	view, err := s.view(ctx, sess, req)
	if err != nil {
		return nil, s.fail(workflow.ActionViewDetail, id, err)
	}
	return view, nil
}

// Perform runs one workflow action against a freshly fetched snapshot.
// A conflict returns the refreshed view together with the error.
func (s *Service) Perform(ctx context.Context, sess *Session, id string, action workflow.Action, in Input) (*View, error) {
	if !action.Mutates() {
		return s.Load(ctx, sess, id)
	}
	if err := validateInput(id, action, in); err != nil {
		return nil, wrap(action, err)
	}

	log := s.log.WithFields(logrus.Fields{"request_id": id, "action": action.String(), "user_id": sess.User.UserID})

	req, err := s.backend.GetRequest(ctx, id)
	if err != nil {
		return nil, s.fail(action, id, err)
	}
	if !workflow.ResolveActions(sess.User, *req).Has(action) {
		log.WithField("status", req.Status.String()).Warn("action not offered for snapshot")
		s.toaster.Toast(ToastError, msgNotAvailable)
		view, verr := s.view(ctx, sess, req)
		if verr != nil {
			log.WithError(verr).Warn("view of refused request failed")
		}
		return view, &Error{
			Kind:   KindAuthorization,
			Action: action,
			Err:    fmt.Errorf("%w: %s on %s request", workflow.ErrNotPermitted, action, req.Status),
		}
	}

	switch action {
	case workflow.ActionApprove:
		if err := s.checkAssignment(ctx, *req, in.Assignment); err != nil {
			return nil, wrap(action, err)
		}
	case workflow.ActionRemind:
		if sess.ReminderSent(id) {
			return nil, wrap(action, &workflow.ValidationError{Field: "reminder", Message: "a reminder was already sent"})
		}
	}

	updated, err := s.dispatch(ctx, id, action, in)
	if ctx.Err() != nil {
		log.Debug("result dropped")
		return nil, ErrDropped
	}
	if err != nil {
		return s.afterFailure(ctx, sess, action, id, err)
	}

	if action == workflow.ActionRemind {
		sess.markReminded(id)
		updated = req
	}
	log.WithField("status", updated.Status.String()).Info("action applied")
	s.toaster.Toast(ToastSuccess, successMessages[action])
	return s.view(ctx, sess, updated)
}

func validateInput(id string, action workflow.Action, in Input) error {
	if err := models.ValidateID(id); err != nil {
		return err
	}
	switch action {
	case workflow.ActionReject:
		return workflow.ValidateRejectReason(in.Reason)
	case workflow.ActionCancel:
		return workflow.ValidateCancelReason(in.Reason)
	}
	return nil
}

// checkAssignment validates the approve payload, looking the driver up so
// an inactive one is refused before anything is sent.
func (s *Service) checkAssignment(ctx context.Context, req models.Request, in *models.AssignmentInput) error {
	if err := workflow.ValidateAssignment(req, in, nil); err != nil || in == nil || in.DriverID == "" {
		return err
	}
	drivers, err := s.backend.ListDrivers(ctx, false)
	if err != nil {
		s.log.WithError(err).Warn("driver lookup failed; leaving the check to the backend")
		return nil
	}
	for i := range drivers {
		if drivers[i].DriverID == in.DriverID {
			return workflow.ValidateAssignment(req, in, &drivers[i])
		}
	}
	return &workflow.ValidationError{Field: "driverId", Message: "unknown driver " + in.DriverID}
}

func (s *Service) dispatch(ctx context.Context, id string, action workflow.Action, in Input) (*models.Request, error) {
	switch action {
	case workflow.ActionApprove:
		return s.backend.Approve(ctx, id, in.Assignment)
	case workflow.ActionReject:
		return s.backend.Reject(ctx, id, in.Reason)
	case workflow.ActionCancel:
		return s.backend.Cancel(ctx, id, in.Reason)
	case workflow.ActionStartUsing:
		return s.backend.StartUsing(ctx, id)
	case workflow.ActionEndUsage:
		return s.backend.EndUsage(ctx, id)
	case workflow.ActionRemind:
		return nil, s.backend.Remind(ctx, id)
	}
	return nil, fmt.Errorf("%w: %s", workflow.ErrIllegalTransition, action)
}

// afterFailure handles a failed mutation. Conflicts re-fetch so the caller can
// render reality; nothing is retried.
func (s *Service) afterFailure(ctx context.Context, sess *Session, action workflow.Action, id string, err error) (*View, error) {
	opErr := wrap(action, err)
	if opErr.Kind != KindConflict {
		return nil, s.fail(action, id, err)
	}

	s.log.WithError(err).WithField("request_id", id).Info("conflict; refreshing snapshot")
	s.toaster.Toast(ToastError, msgConflict)
	req, ferr := s.backend.GetRequest(ctx, id)
	if ferr != nil {
		s.log.WithError(ferr).Warn("refresh after conflict failed")
		return nil, opErr
	}
	view, verr := s.view(ctx, sess, req)
	if verr != nil {
		return nil, opErr
	}
	return view, opErr
}

// fail toasts and classifies an error from the backend.
func (s *Service) fail(action workflow.Action, id string, err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrDropped
	}
	opErr := wrap(action, err)
	entry := s.log.WithError(err).WithFields(logrus.Fields{"request_id": id, "action": action.String(), "kind": opErr.Kind.String()})
	switch opErr.Kind {
	case KindTransient:
		entry.Warn("backend unavailable")
		s.toaster.Toast(ToastError, msgTransient)
	case KindAuthorization:
		entry.Warn("backend refused action")
		s.toaster.Toast(ToastError, msgNotAvailable)
	case KindConflict:
		entry.Info("state changed under us")
		s.toaster.Toast(ToastError, msgConflict)
	case KindValidation:
		entry.Info("backend rejected input")
		s.toaster.Toast(ToastError, validationMessage(err))
	default:
		entry.Error("action failed")
		s.toaster.Toast(ToastError, msgUnknown)
	}
	return opErr
}

func validationMessage(err error) string {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "The request could not be processed."
}

// view derives the render state of a snapshot. In-progress requests also
// load their checkpoints.
func (s *Service) view(ctx context.Context, sess *Session, req *models.Request) (*View, error) {
	if err := req.Validate(); err != nil {
		s.log.WithError(err).WithField("request_id", req.RequestID).Warn("backend snapshot violates invariants")
	}
	now := s.now()
	v := &View{
		Request:  *req,
		Actions:  workflow.ResolveActions(sess.User, *req),
		Controls: workflow.ResolveControls(sess.User, *req, now, sess.ReminderSent(req.RequestID)),
	}
	if req.Status != models.StatusInProgress {
		return v, nil
	}

	cps, err := s.backend.ListCheckPoints(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	progress := workflow.TrackProgress(req.Locations, cps)
	reminder := workflow.ClassifyReminder(req.EndTime, now)
	v.CheckPoints = cps
	v.Progress = &progress
	v.Reminder = &reminder
	return v, nil
}

// CheckIn records the device position as the next checkpoint of an
// in-progress trip and returns the recomputed view.
func (s *Service) CheckIn(ctx context.Context, sess *Session, id string, in CheckInInput) (*View, error) {
	const action = workflow.ActionEndUsage // only the trip owner may record checkpoints
	if err := models.ValidateID(id); err != nil {
		return nil, wrap(action, err)
	}
	if s.locator == nil {
		return nil, wrap(action, &workflow.ValidationError{Field: "location", Message: "no location source available"})
	}

	req, err := s.backend.GetRequest(ctx, id)
	if err != nil {
		return nil, s.fail(action, id, err)
	}
	if !workflow.ResolveActions(sess.User, *req).Has(action) {
		s.toaster.Toast(ToastError, msgNotAvailable)
		return nil, &Error{Kind: KindAuthorization, Action: action, Err: fmt.Errorf("%w: checkpoint on %s request", workflow.ErrNotPermitted, req.Status)}
	}

	cps, err := s.backend.ListCheckPoints(ctx, id)
	if err != nil {
		return nil, s.fail(action, id, err)
	}
	progress := workflow.TrackProgress(req.Locations, cps)
	if progress.Total == 0 || progress.Complete() {
		return nil, wrap(action, &workflow.ValidationError{Field: "checkpoint", Message: "every stop already has a checkpoint"})
	}

	pos, err := s.locator.CurrentLocation(ctx)
	if err != nil {
		return nil, wrap(action, &workflow.ValidationError{Field: "location", Message: err.Error()})
	}
	if err := workflow.ValidateCoordinates(pos.Latitude, pos.Longitude); err != nil {
		return nil, wrap(action, err)
	}
	var photos []models.Photo
	if s.photos != nil {
		if photos, err = s.photos.PickPhotos(ctx); err != nil {
			return nil, wrap(action, &workflow.ValidationError{Field: "photos", Message: err.Error()})
		}
	}

	input := models.CheckPointInput{
		Type:      workflow.KindAt(progress.CurrentIndex, progress.Total),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Photos:    photos,
		Note:      in.Note,
	}
	cp, err := s.backend.SubmitCheckPoint(ctx, id, input, client.NewIdempotencyKey())
	if ctx.Err() != nil {
		return nil, ErrDropped
	}
	if err != nil {
		return nil, s.fail(action, id, err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": id,
		"stop":       progress.CurrentIndex,
		"type":       cp.Type.String(),
	}).Info("checkpoint recorded")
	s.toaster.Toast(ToastSuccess, fmt.Sprintf("Checkpoint %d of %d recorded.", progress.CurrentIndex+1, progress.Total))

	now := s.now()
	cps = append(cps, *cp)
	next := workflow.TrackProgress(req.Locations, cps)
	reminder := workflow.ClassifyReminder(req.EndTime, now)
	return &View{
		Request:     *req,
		Actions:     workflow.ResolveActions(sess.User, *req),
		Controls:    workflow.ResolveControls(sess.User, *req, now, sess.ReminderSent(id)),
		CheckPoints: cps,
		Progress:    &next,
		Reminder:    &reminder,
	}, nil
}

// MarkRead flags n as read. Already-read notifications are left alone.
func (s *Service) MarkRead(ctx context.Context, n *models.Notification) error {
	if n.IsRead {
		return nil
	}
	if _, err := s.backend.MarkNotificationRead(ctx, n.NotificationID); err != nil {
		if errors.Is(err, models.ErrInvalidID) {
			return wrap(workflow.ActionViewDetail, err)
		}
		return s.fail(workflow.ActionViewDetail, n.NotificationID, err)
	}
	return n.MarkRead()
}

// Refresh reloads the request a notification refers to when the
// notification announces a status change. It returns nil, nil otherwise.
func (s *Service) Refresh(ctx context.Context, sess *Session, n models.Notification) (*View, error) {
	if !n.Type.AffectsRequestStatus() || n.RequestID == "" {
		return nil, nil
	}
	return s.Load(ctx, sess, n.RequestID)
}
