// Command simulator drives one approved request through a full trip: it
// starts the trip, records a checkpoint near every waypoint and ends it.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

// Config is read from the environment.
type Config struct {
	APIBaseURL   string        `env:"API_BASE_URL" envDefault:"http://localhost:8081/api"`
	Username     string        `env:"SIM_USERNAME,required"`
	Password     string        `env:"SIM_PASSWORD,required"`
	RequestID    string        `env:"SIM_REQUEST_ID,required"`
	TickSeconds  int           `env:"SIM_TICK_SECONDS" envDefault:"2"`
	JitterMeters float64       `env:"SIM_JITTER_METERS" envDefault:"30"`
	Retries      int           `env:"SIM_RETRIES" envDefault:"3"`
	Timeout      time.Duration `env:"SIM_TIMEOUT" envDefault:"10s"`
}

func (c Config) interval() time.Duration {
	if c.TickSeconds < 0 {
		return 0
	}
	return time.Duration(c.TickSeconds) * time.Second
}

func jitterLocation(base models.Coordinates, meters float64) models.Coordinates {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Latitude*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Coordinates{Latitude: base.Latitude + dLat, Longitude: base.Longitude + dLon}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// submitWithRetry resends the same checkpoint under one idempotency key
// until it lands or a non-transient error comes back.
func submitWithRetry(ctx context.Context, c *client.Client, cfg Config, in models.CheckPointInput) (*models.CheckPoint, error) {
	key := client.NewIdempotencyKey()
	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			log.WithError(lastErr).WithField("attempt", attempt).Warn("Retrying checkpoint")
			if err := sleep(ctx, cfg.interval()); err != nil {
				return nil, err
			}
		}
		cp, err := c.SubmitCheckPoint(ctx, cfg.RequestID, in, key)
		if err == nil {
			return cp, nil
		}
		if !client.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("checkpoint not recorded after %d attempts: %w", cfg.Retries+1, lastErr)
}

func runTrip(ctx context.Context, cfg Config, c *client.Client) error {
	resp, err := c.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.WithField("user", resp.User.FullName).Info("Signed in")

	req, err := c.GetRequest(ctx, cfg.RequestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	switch actions := workflow.ResolveActions(resp.User, *req); {
	case actions.Has(workflow.ActionStartUsing):
		if req, err = c.StartUsing(ctx, cfg.RequestID); err != nil {
			return fmt.Errorf("start trip: %w", err)
		}
		log.WithField("request_id", req.RequestID).Info("Trip started")
	case actions.Has(workflow.ActionEndUsage):
		log.WithField("request_id", req.RequestID).Info("Resuming trip")
	default:
		return fmt.Errorf("request %s is %s; %s cannot drive it", req.RequestID, req.Status, resp.User.FullName)
	}

	cps, err := c.ListCheckPoints(ctx, cfg.RequestID)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	progress := workflow.TrackProgress(req.Locations, cps)

	for !progress.Complete() {
		stop, ok := progress.Next()
		if !ok {
			break
		}
		if err := sleep(ctx, cfg.interval()); err != nil {
			return err
		}

		pos := jitterLocation(stop.Location.Coordinates(), cfg.JitterMeters)
		cp, err := submitWithRetry(ctx, c, cfg, models.CheckPointInput{
			Type:      stop.Kind,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Note:      "simulated arrival at " + stop.Location.Title(),
		})
		if err != nil {
			return fmt.Errorf("stop %d: %w", stop.Index+1, err)
		}
		cps = append(cps, *cp)
		progress = workflow.TrackProgress(req.Locations, cps)

		log.WithFields(log.Fields{
			"request_id": cfg.RequestID,
			"stop":       stop.Index + 1,
			"of":         progress.Total,
			"type":       cp.Type.String(),
			"off_meters": math.Round(workflow.DistanceMeters(cp.Coordinates(), stop.Location.Coordinates())),
		}).Info("Checkpoint recorded")
	}

	if err := sleep(ctx, cfg.interval()); err != nil {
		return err
	}
	if req, err = c.GetRequest(ctx, cfg.RequestID); err != nil {
		return fmt.Errorf("reload request: %w", err)
	}
	if !workflow.ResolveActions(resp.User, *req).Has(workflow.ActionEndUsage) {
		return fmt.Errorf("request %s is %s; trip can no longer be ended", req.RequestID, req.Status)
	}
	if _, err := c.EndUsage(ctx, cfg.RequestID); err != nil {
		return fmt.Errorf("end trip: %w", err)
	}
	log.WithField("request_id", cfg.RequestID).Info("Trip finished")
	return nil
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	log.WithFields(log.Fields{
		"api_url":    cfg.APIBaseURL,
		"request_id": cfg.RequestID,
		"interval":   cfg.interval(),
	}).Info("Starting trip simulation")

	c, err := client.New(cfg.APIBaseURL, client.WithTimeout(cfg.Timeout))
	if err != nil {
		log.WithError(err).Fatal("Invalid API URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runTrip(ctx, cfg, c); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Simulation interrupted")
			return
		}
		log.WithError(err).Error("Simulation failed")
		stop()
		os.Exit(1)
	}
}
