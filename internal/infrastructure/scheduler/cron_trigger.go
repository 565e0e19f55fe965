package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CronTriggerConfig holds configuration for the daily trigger
type CronTriggerConfig struct {
	// Hour and Minute are the UTC time the previous day's job is submitted
	Hour   int
	Minute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		Hour:          2,
		Minute:        0,
		CheckInterval: time.Minute,
	}
}

// CronTrigger submits one job per day for the day that just ended
type CronTrigger struct {
	config     CronTriggerConfig
	scheduler  *Scheduler
	jobName    string
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCronTrigger creates a daily trigger for jobName
func NewCronTrigger(config CronTriggerConfig, scheduler *Scheduler, jobName string, maxRetries int, logger *zap.Logger) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:     config,
		scheduler:  scheduler,
		jobName:    jobName,
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     logger,
	}
}

// Start starts the trigger loop
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.String("job", c.jobName),
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped", zap.String("job", c.jobName))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits the job once per UTC date, at or after the
// configured time, so a missed tick is caught up later the same day
func (c *CronTrigger) checkAndTrigger() bool {
	now := c.now().UTC()
	currentDate := now.Format(time.DateOnly)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRunDate == currentDate {
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, time.UTC)
	if now.Before(due) {
		return false
	}

	yesterday := due.AddDate(0, 0, -1)
	day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	if err := c.scheduler.SubmitJob(NewJob(c.jobName, day, c.maxRetries)); err != nil {
		c.logger.Error("Failed to submit daily job", zap.String("job", c.jobName), zap.Error(err))
		return false
	}
	c.lastRunDate = currentDate
	c.logger.Info("Daily job submitted",
		zap.String("job", c.jobName),
		zap.String("day", day.Format(time.DateOnly)))
	return true
}
