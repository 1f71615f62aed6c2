// Command fleetctl is a terminal client for the fleet request workflow.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/auth"
	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/config"
	"github.com/ukydev/fleet-requests/internal/logger"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/requests"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":         {"login -email EMAIL -password PASSWORD", cmdLogin},
	"logout":        {"logout", cmdLogout},
	"whoami":        {"whoami", cmdWhoami},
	"list":          {"list [-status NAME] [-mine]", cmdList},
	"create":        {"create -vehicle ID -start TIME -end TIME -stop LAT,LON,ADDRESS... [-purpose TEXT] [-driver]", cmdCreate},
	"show":          {"show [-json] ID", cmdShow},
	"approve":       {"approve [-driver ID] [-note TEXT] ID", cmdApprove},
	"reject":        {"reject -reason TEXT ID", cmdReject},
	"cancel":        {"cancel -reason TEXT ID", cmdCancel},
	"start":         {"start ID", cmdStart},
	"end":           {"end ID", cmdEnd},
	"remind":        {"remind ID", cmdRemind},
	"checkin":       {"checkin -lat LAT -lon LON [-note TEXT] [-photo FILE...] ID", cmdCheckIn},
	"checkpoints":   {"checkpoints ID", cmdCheckPoints},
	"route":         {"route ID", cmdRoute},
	"drivers":       {"drivers [-active]", cmdDrivers},
	"vehicles":      {"vehicles", cmdVehicles},
	"notifications": {"notifications [-unread]", cmdNotifications},
	"read":          {"read NOTIFICATION_ID", cmdRead},
	"watch":         {"watch", cmdWatch},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	tokens auth.TokenStore
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(stderr, "fleetctl:", err)
		return exitError
	}

	fset := flag.NewFlagSet("fleetctl", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() { usage(stderr) }
	cfg, err := config.ParseConfig(fset, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "fleetctl:", err)
		return exitUsage
	}

	log, err := logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintln(stderr, "fleetctl:", err)
		return exitUsage
	}

	rest := fset.Args()
	if len(rest) == 0 {
		usage(stderr)
		return exitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "fleetctl: unknown command %q\n", rest[0])
		usage(stderr)
		return exitUsage
	}

	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		if tokenPath, err = auth.DefaultTokenPath(); err != nil {
			fmt.Fprintln(stderr, "fleetctl:", err)
			return exitError
		}
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		tokens: auth.NewFileTokenStore(tokenPath),
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}

	err = cmd.run(ctx, a, rest[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintln(stderr, "usage: fleetctl", cmd.usage)
		return exitUsage
	default:
		fmt.Fprintln(stderr, "fleetctl:", err)
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fleetctl [global flags] COMMAND [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

// newClient builds an API client. Anonymous clients carry no token.
func (a *app) newClient(anonymous bool) (*client.Client, error) {
	opts := []client.Option{
		client.WithTimeout(a.cfg.APITimeout),
		client.WithLogger(logrus.NewEntry(a.log)),
	}
	if a.cfg.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst))
	}
	if !anonymous {
		token, err := a.tokens.Load()
		if errors.Is(err, auth.ErrNoToken) {
			return nil, errors.New("not signed in; run fleetctl login")
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithToken(token))
	}
	return client.New(a.cfg.APIBaseURL, opts...)
}

// session decodes the saved token into the signed-in user.
func (a *app) session() (*requests.Session, error) {
	token, err := a.tokens.Load()
	if errors.Is(err, auth.ErrNoToken) {
		return nil, errors.New("not signed in; run fleetctl login")
	}
	if err != nil {
		return nil, err
	}
	claims, err := auth.ParseSession(token, a.now())
	if errors.Is(err, auth.ErrExpiredToken) {
		return nil, errors.New("session expired; run fleetctl login")
	}
	if err != nil {
		return nil, fmt.Errorf("saved session: %w", err)
	}
	return requests.NewSession(claims.User()), nil
}

// service wires the workflow controller for the signed-in user.
func (a *app) service(opts ...requests.Option) (*requests.Service, *requests.Session, *client.Client, error) {
	sess, err := a.session()
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := a.newClient(false)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append([]requests.Option{
		requests.WithToaster(&toaster{w: a.stderr}),
		requests.WithLogger(logrus.NewEntry(a.log).WithField("user_id", sess.User.UserID)),
		requests.WithClock(a.now),
	}, opts...)
	return requests.NewService(c, opts...), sess, c, nil
}

// toaster prints workflow feedback on stderr.
type toaster struct {
	w io.Writer
}

func (t *toaster) Toast(kind requests.ToastKind, message string) {
	prefix := "*"
	switch kind {
	case requests.ToastSuccess:
		prefix = "ok:"
	case requests.ToastError:
		prefix = "error:"
	}
	fmt.Fprintln(t.w, prefix, message)
}

// flagLocator reports the position given on the command line.
type flagLocator struct {
	lat, lon *float64
}

func (l flagLocator) CurrentLocation(context.Context) (models.Coordinates, error) {
	if l.lat == nil || l.lon == nil {
		return models.Coordinates{}, errors.New("pass -lat and -lon")
	}
	return models.Coordinates{Latitude: *l.lat, Longitude: *l.lon}, nil
}

// filePhotos attaches image files from disk.
type filePhotos []string

func (p *filePhotos) String() string { return strings.Join(*p, ",") }

func (p *filePhotos) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func (p *filePhotos) PickPhotos(context.Context) ([]models.Photo, error) {
	photos := make([]models.Photo, 0, len(*p))
	for _, path := range *p {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read photo: %w", err)
		}
		photos = append(photos, models.Photo{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Data:        data,
		})
	}
	return photos, nil
}
