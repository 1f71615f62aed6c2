package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/push"
	"github.com/ukydev/fleet-requests/internal/requests"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

const timeLayout = "2006-01-02 15:04"

func newFlags(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// oneID parses flags and requires exactly one positional request id.
func oneID(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login", a)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (FLEET_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("FLEET_PASSWORD")
	}
	if *email == "" || *password == "" {
		return errUsage
	}

	c, err := a.newClient(true)
	if err != nil {
		return err
	}
	resp, err := c.Login(ctx, *email, *password)
	if err != nil {
		if client.IsUnauthorized(err) {
			return errors.New("invalid credentials")
		}
		return err
	}
	if err := a.tokens.Save(resp.Token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(a.stdout, "Signed in as %s (%s)\n", resp.User.FullName, resp.User.Role)
	return nil
}

func cmdLogout(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	if err := a.tokens.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	u := sess.User
	fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", u.UserID, u.FullName, u.Role)
	return nil
}

// parseStatus accepts a status label ("In progress", "in-progress") or
// its wire integer.
func parseStatus(s string) (models.Status, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return models.ParseStatus(n)
	}
	want := normalize(s)
	for _, st := range models.Statuses {
		if normalize(st.String()) == want {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := newFlags("list", a)
	status := fs.String("status", "", "only requests in this status")
	mine := fs.Bool("mine", false, "only my own requests")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := client.ListFilter{Mine: *mine}
	if *status != "" {
		st, err := parseStatus(*status)
		if err != nil {
			return err
		}
		filter.Status = &st
	}

	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	list, err := c.ListRequests(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTART\tEND\tOWNER\tPURPOSE")
	for _, r := range list {
		owner := r.UserID
		if r.User != nil {
			owner = r.User.FullName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RequestID, r.Status, r.StartTime.Local().Format(timeLayout), r.EndTime.Local().Format(timeLayout), owner, r.Purpose)
	}
	return tw.Flush()
}

// stopList collects repeated -stop LAT,LON,ADDRESS flags.
type stopList []models.LocationInput

func (s *stopList) String() string { return fmt.Sprintf("%d stops", len(*s)) }

func (s *stopList) Set(v string) error {
	parts := strings.SplitN(v, ",", 3)
	if len(parts) != 3 {
		return errors.New("want LAT,LON,ADDRESS")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	*s = append(*s, models.LocationInput{Address: strings.TrimSpace(parts[2]), Latitude: lat, Longitude: lon})
	return nil
}

// parseTime accepts RFC 3339 or local "2006-01-02 15:04" / "2006-01-02".
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{timeLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q: want RFC 3339 or %q", s, timeLayout)
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("create", a)
	vehicle := fs.String("vehicle", "", "vehicle id")
	purpose := fs.String("purpose", "", "why the vehicle is needed")
	start := fs.String("start", "", "start time")
	end := fs.String("end", "", "end time; defaults to start")
	driver := fs.Bool("driver", false, "a driver is required")
	var stops stopList
	fs.Var(&stops, "stop", "waypoint LAT,LON,ADDRESS; repeat in visiting order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vehicle == "" || *start == "" || fs.NArg() != 0 {
		return errUsage
	}

	in := models.CreateRequestInput{
		VehicleID:        *vehicle,
		Purpose:          *purpose,
		IsDriverRequired: *driver,
		Locations:        stops,
	}
	var err error
	if in.StartTime, err = parseTime(*start); err != nil {
		return err
	}
	in.EndTime = in.StartTime
	if *end != "" {
		if in.EndTime, err = parseTime(*end); err != nil {
			return err
		}
	}
	if err := workflow.ValidateCreate(in); err != nil {
		return err
	}

	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	req, err := c.CreateRequest(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, req.RequestID)
	return nil
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	fs := newFlags("show", a)
	asJSON := fs.Bool("json", false, "print the view as JSON")
	id, err := oneID(fs, args)
	if err != nil {
		return err
	}
	svc, sess, _, err := a.service()
	if err != nil {
		return err
	}
	view, err := svc.Load(ctx, sess, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.stdout, view)
	}
	return printView(a.stdout, view)
}

// perform runs one workflow action and prints the resulting view. A
// conflict still prints the refreshed view before failing.
func perform(ctx context.Context, a *app, id string, action workflow.Action, in requests.Input) error {
	svc, sess, _, err := a.service()
	if err != nil {
		return err
	}
	view, err := svc.Perform(ctx, sess, id, action, in)
	if view != nil {
		if perr := printView(a.stdout, view); perr != nil {
			return perr
		}
	}
	return err
}

func cmdApprove(ctx context.Context, a *app, args []string) error {
	fs := newFlags("approve", a)
	driver := fs.String("driver", "", "driver to assign")
	note := fs.String("note", "", "note for the driver")
	id, err := oneID(fs, args)
	if err != nil {
		return err
	}
	var in requests.Input
	if *driver != "" {
		in.Assignment = &models.AssignmentInput{DriverID: *driver, Note: *note}
	}
	return perform(ctx, a, id, workflow.ActionApprove, in)
}

func cmdReject(ctx context.Context, a *app, args []string) error {
	fs := newFlags("reject", a)
	reason := fs.String("reason", "", "why the request is rejected")
	id, err := oneID(fs, args)
	if err != nil {
		return err
	}
	return perform(ctx, a, id, workflow.ActionReject, requests.Input{Reason: *reason})
}

func cmdCancel(ctx context.Context, a *app, args []string) error {
	fs := newFlags("cancel", a)
	reason := fs.String("reason", "", "why the request is cancelled")
	id, err := oneID(fs, args)
	if err != nil {
		return err
	}
	return perform(ctx, a, id, workflow.ActionCancel, requests.Input{Reason: *reason})
}

// simpleAction runs an action that takes no input; the command name is the
// action name.
func simpleAction(name string) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		action, err := workflow.ParseAction(name)
		if err != nil {
			return err
		}
		id, err := oneID(newFlags(name, a), args)
		if err != nil {
			return err
		}
		return perform(ctx, a, id, action, requests.Input{})
	}
}

func cmdStart(ctx context.Context, a *app, args []string) error {
	return simpleAction("start")(ctx, a, args)
}

func cmdEnd(ctx context.Context, a *app, args []string) error {
	return simpleAction("end")(ctx, a, args)
}

func cmdRemind(ctx context.Context, a *app, args []string) error {
	return simpleAction("remind")(ctx, a, args)
}

func cmdCheckIn(ctx context.Context, a *app, args []string) error {
	fs := newFlags("checkin", a)
	lat := fs.Float64("lat", 0, "current latitude")
	lon := fs.Float64("lon", 0, "current longitude")
	note := fs.String("note", "", "note for the checkpoint")
	var photos filePhotos
	fs.Var(&photos, "photo", "image file to attach; repeatable")
	id, err := oneID(fs, args)
	if err != nil {
		return err
	}

	loc := flagLocator{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			loc.lat = lat
		case "lon":
			loc.lon = lon
		}
	})

	svc, sess, _, err := a.service(requests.WithLocator(loc), requests.WithPhotoPicker(&photos))
	if err != nil {
		return err
	}
	view, err := svc.CheckIn(ctx, sess, id, requests.CheckInInput{Note: *note})
	if err != nil {
		return err
	}
	return printView(a.stdout, view)
}

func cmdCheckPoints(ctx context.Context, a *app, args []string) error {
	id, err := oneID(newFlags("checkpoints", a), args)
	if err != nil {
		return err
	}
	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	cps, err := c.ListCheckPoints(ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tLATITUDE\tLONGITUDE\tAT\tPHOTOS\tNOTE")
	for i, cp := range cps {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\t%s\t%d\t%s\n",
			i+1, cp.Type, cp.Latitude, cp.Longitude, cp.CreatedAt.Local().Format(timeLayout), len(cp.Photos), cp.Note)
	}
	return tw.Flush()
}

func cmdRoute(ctx context.Context, a *app, args []string) error {
	id, err := oneID(newFlags("route", a), args)
	if err != nil {
		return err
	}
	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	req, err := c.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	cps, err := c.ListCheckPoints(ctx, id)
	if err != nil {
		return err
	}
	data, err := workflow.RouteGeoJSON(req.Locations, cps)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func cmdDrivers(ctx context.Context, a *app, args []string) error {
	fs := newFlags("drivers", a)
	active := fs.Bool("active", false, "only active drivers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	drivers, err := c.ListDrivers(ctx, *active)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tLICENSE\tACTIVE")
	for _, d := range drivers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", d.DriverID, d.FullName, d.Phone, d.LicenseNumber, d.IsActive)
	}
	return tw.Flush()
}

func cmdVehicles(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	vehicles, err := c.ListVehicles(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLATE\tVEHICLE\tSEATS\tMAINTENANCE")
	for _, v := range vehicles {
		maintenance := "-"
		if v.MaintenanceStatus != nil {
			if d, err := models.MaintenanceStatusDisplay(*v.MaintenanceStatus); err == nil {
				maintenance = d.Label
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%d\t%s\n", v.VehicleID, v.PlateNumber, v.Brand, v.Model, v.Seats, maintenance)
	}
	return tw.Flush()
}

func cmdNotifications(ctx context.Context, a *app, args []string) error {
	fs := newFlags("notifications", a)
	unread := fs.Bool("unread", false, "only unread notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := a.newClient(false)
	if err != nil {
		return err
	}
	list, err := c.ListNotifications(ctx, *unread)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t\tTYPE\tAT\tMESSAGE")
	for _, n := range list {
		fmt.Fprintln(tw, notificationLine(n))
	}
	return tw.Flush()
}

func notificationLine(n models.Notification) string {
	mark := " "
	if !n.IsRead {
		mark = "*"
	}
	label := string(n.Type)
	if d, err := models.NotificationTypeDisplay(n.Type); err == nil {
		label = d.Label
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", n.NotificationID, mark, label, n.CreatedAt.Local().Format(timeLayout), n.Message)
}

func cmdRead(ctx context.Context, a *app, args []string) error {
	id, err := oneID(newFlags("read", a), args)
	if err != nil {
		return err
	}
	svc, _, c, err := a.service()
	if err != nil {
		return err
	}
	list, err := c.ListNotifications(ctx, false)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].NotificationID == id {
			return svc.MarkRead(ctx, &list[i])
		}
	}
	return fmt.Errorf("notification %s not found", id)
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	if a.cfg.MQTTBrokerURL == "" {
		return errors.New("no broker configured; pass -mqtt or set FLEET_MQTT_BROKER_URL")
	}
	svc, sess, _, err := a.service()
	if err != nil {
		return err
	}

	log := logrus.NewEntry(a.log).WithField("user_id", sess.User.UserID)
	broker, err := push.Dial(push.Config{
		BrokerURL:   a.cfg.MQTTBrokerURL,
		ClientID:    a.cfg.MQTTClientID + "-" + sess.User.UserID,
		Username:    a.cfg.MQTTUsername,
		Password:    a.cfg.MQTTPassword,
		TopicPrefix: a.cfg.MQTTTopicPrefix,
		Timeout:     a.cfg.APITimeout,
	}, log)
	if err != nil {
		return err
	}
	return watch(ctx, a, svc, sess, push.NewListener(broker, a.cfg.MQTTTopicPrefix, log))
}

// watch prints notifications as they arrive until ctx ends, reloading the
// referenced request when its status changed.
func watch(ctx context.Context, a *app, svc *requests.Service, sess *requests.Session, l *push.Listener) error {
	defer l.Close()

	err := l.Subscribe(sess.User.UserID, func(n models.Notification) {
		fmt.Fprintln(a.stdout, strings.ReplaceAll(notificationLine(n), "\t", "  "))
		view, err := svc.Refresh(ctx, sess, n)
		if err != nil || view == nil {
			return
		}
		fmt.Fprintf(a.stdout, "  request %s is now %s\n", view.Request.RequestID, view.Request.Status)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stderr, "watching for notifications; press Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printView(w io.Writer, v *requests.View) error {
	r := v.Request
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Request\t%s\n", r.RequestID)
	fmt.Fprintf(tw, "Status\t%s\n", r.Status)
	if r.User != nil {
		fmt.Fprintf(tw, "Owner\t%s\n", r.User.FullName)
	}
	if r.Vehicle != nil {
		fmt.Fprintf(tw, "Vehicle\t%s (%s %s)\n", r.Vehicle.PlateNumber, r.Vehicle.Brand, r.Vehicle.Model)
	}
	if r.IsSingleDay() {
		fmt.Fprintf(tw, "When\t%s\n", r.StartTime.Local().Format(timeLayout))
	} else {
		fmt.Fprintf(tw, "When\t%s to %s\n", r.StartTime.Local().Format(timeLayout), r.EndTime.Local().Format(timeLayout))
	}
	if r.Purpose != "" {
		fmt.Fprintf(tw, "Purpose\t%s\n", r.Purpose)
	}
	if r.Assignment != nil {
		name := r.Assignment.DriverID
		if r.Assignment.Driver != nil {
			name = r.Assignment.Driver.FullName
		}
		fmt.Fprintf(tw, "Driver\t%s\n", name)
	}
	if r.CancelOrRejectReason != "" {
		fmt.Fprintf(tw, "Reason\t%s\n", r.CancelOrRejectReason)
	}
	if v.Reminder != nil && (v.Reminder.Overdue || v.Reminder.NearDue) {
		fmt.Fprintf(tw, "Due\t%s\n", v.Reminder.Urgency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if v.Progress != nil {
		fmt.Fprintf(w, "\nProgress %d/%d\n", v.Progress.CurrentIndex, v.Progress.Total)
		for _, s := range v.Progress.Stops {
			line := fmt.Sprintf("  %s %d. %s", stopMark(s.State), s.Index+1, s.Location.Title())
			if s.CheckPoint != nil {
				line += fmt.Sprintf(" (%s, %.0f m off)", s.CheckPoint.Type, s.DeviationMeters)
			}
			fmt.Fprintln(w, line)
		}
	} else if len(r.Locations) > 0 {
		fmt.Fprintln(w, "\nStops")
		for i, l := range r.OrderedLocations() {
			fmt.Fprintf(w, "  %d. %s\n", i+1, l.Title())
		}
	}

	labels := make([]string, 0, len(v.Controls))
	for _, c := range v.Controls {
		if c.Action == workflow.ActionViewDetail {
			continue
		}
		label := fmt.Sprintf("%s [%s]", c.Label, c.Action)
		if c.Disabled {
			label += " (disabled)"
		}
		labels = append(labels, label)
	}
	if len(labels) > 0 {
		fmt.Fprintf(w, "\nActions: %s\n", strings.Join(labels, ", "))
	}
	return nil
}

func stopMark(s workflow.StopState) string {
	switch s {
	case workflow.StopCompleted:
		return "[x]"
	case workflow.StopCurrent:
		return "[>]"
	default:
		return "[ ]"
	}
}
