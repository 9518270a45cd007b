package background

import (
	"context"
	"sync"
	"time"

	"bookero/internal/repositories"
	"bookero/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

const sweepBatchSize = 100

// JobScheduler drives the periodic maintenance jobs: the proactive token
// refresh sweep and OTP cleanup.
type JobScheduler struct {
	scheduler    gocron.Scheduler
	tokenSvc     services.TokenService
	otpSvc       services.OTPService
	credRepo     repositories.CredentialRepository
	providerName string
	refreshAhead time.Duration
	jobs         map[string]gocron.Job
	mu           sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(tokenSvc services.TokenService, otpSvc services.OTPService,
	credRepo repositories.CredentialRepository, providerName string, refreshAhead time.Duration) (*JobScheduler, error) {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler:    scheduler,
		tokenSvc:     tokenSvc,
		otpSvc:       otpSvc,
		credRepo:     credRepo,
		providerName: providerName,
		refreshAhead: refreshAhead,
		jobs:         make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	logrus.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	logrus.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() error {
	// Proactive refresh sweep every 2 minutes
	refreshJob, err := js.scheduler.NewJob(
		gocron.DurationJob(2*time.Minute),
		gocron.NewTask(js.refreshExpiringCredentials),
	)
	if err != nil {
		return err
	}

	// OTP cleanup hourly
	otpJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.purgeExpiredOTPs),
	)
	if err != nil {
		return err
	}

	js.mu.Lock()
	js.jobs["credential_refresh_sweep"] = refreshJob
	js.jobs["otp_cleanup"] = otpJob
	js.mu.Unlock()
	return nil
}

// refreshExpiringCredentials refreshes every renewable credential inside
// the refresh-ahead window. GetValidAccessToken still refreshes lazily; the
// sweep just keeps interactive calls off the slow path.
func (js *JobScheduler) refreshExpiringCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	withinSeconds := int(js.refreshAhead / time.Second)
	creds, err := js.credRepo.ListExpiring(ctx, js.providerName, withinSeconds, sweepBatchSize)
	if err != nil {
		logrus.WithError(err).Error("refresh sweep: failed to list expiring credentials")
		return
	}

	refreshed := 0
	for _, cred := range creds {
		if err := js.tokenSvc.RefreshIfExpiring(ctx, cred.TenantID); err != nil {
			logrus.WithError(err).WithField("tenant_id", cred.TenantID).Warn("refresh sweep: refresh failed")
			continue
		}
		refreshed++
	}
	if len(creds) > 0 {
		logrus.WithFields(logrus.Fields{
			"candidates": len(creds),
			"refreshed":  refreshed,
		}).Info("refresh sweep completed")
	}
}

func (js *JobScheduler) purgeExpiredOTPs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := js.otpSvc.PurgeExpired(ctx)
	if err != nil {
		logrus.WithError(err).Error("otp cleanup failed")
		return
	}
	if purged > 0 {
		logrus.WithField("purged", purged).Info("otp cleanup completed")
	}
}
