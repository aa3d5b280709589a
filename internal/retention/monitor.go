package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
)

// Notifier receives the monitor's notification triggers. The monitor only
// decides when to notify, never how; delivery belongs to the email layer.
type Notifier interface {
	SendStorageAlert(ctx context.Context, usedBytes, quotaBytes int64, usedPct float64) error
	SendDailyReport(ctx context.Context, usage models.DailyUsage) error
}

// UsageSource exposes the tracked storage usage the monitor watches.
type UsageSource interface {
	Usage() (files, bytes int64)
	QuotaBytes() int64
	UsagePercent() float64
}

// Monitor state keys.
const (
	stateLastAlertAt    = "last_alert_at"
	stateLastReportDate = "last_report_date"
)

// alertThrottle is the minimum interval between storage alerts.
const alertThrottle = 24 * time.Hour

// Daily report window (local time).
const (
	reportWindowHour    = 8
	reportWindowMinutes = 30
)

// Monitor watches storage usage. On its hourly tick it sends an alert when
// usage is at or above the threshold (throttled to one alert per 24 hours)
// and, once per calendar day inside a fixed morning window, a usage summary.
// Throttle state is persisted so restarts do not re-alert.
type Monitor struct {
	usage        UsageSource
	history      database.UsageRepository
	state        database.MonitorStateRepository
	notifier     Notifier
	thresholdPct float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewMonitor creates a storage monitor. thresholdPct of zero or less
// disables alerting but keeps the daily report. A nil notifier keeps the
// threshold check running in log-only mode (throttled like a sent alert)
// and skips the daily report, which has nowhere to go.
func NewMonitor(usage UsageSource, history database.UsageRepository, state database.MonitorStateRepository,
	notifier Notifier, thresholdPct float64, logger *slog.Logger) *Monitor {
	return &Monitor{
		usage:        usage,
		history:      history,
		state:        state,
		notifier:     notifier,
		thresholdPct: thresholdPct,
		logger:       logger.With("subsystem", "storage-monitor"),
		now:          time.Now,
	}
}

// Run ticks hourly until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	m.logger.Info("storage monitor started", "threshold_pct", m.thresholdPct)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("storage monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one monitoring cycle: threshold alert, then daily report.
func (m *Monitor) Check(ctx context.Context) {
	m.checkThreshold(ctx)
	m.checkDailyReport(ctx)
}

// checkThreshold sends a storage alert when usage is at or above the
// threshold and no alert went out in the preceding 24 hours.
func (m *Monitor) checkThreshold(ctx context.Context) {
	if m.thresholdPct <= 0 {
		return
	}

	pct := m.usage.UsagePercent()
	if pct < m.thresholdPct {
		return
	}

	now := m.now()
	if last, err := m.state.Get(ctx, stateLastAlertAt); err != nil {
		m.logger.Error("reading alert throttle state failed", "error", err)
		return
	} else if last != "" {
		lastAt, err := time.Parse(time.RFC3339, last)
		if err == nil && now.Sub(lastAt) < alertThrottle {
			return
		}
	}

	_, used := m.usage.Usage()
	quota := m.usage.QuotaBytes()
	m.logger.Warn("storage usage above alert threshold",
		"used_pct", pct, "used_bytes", used, "quota_bytes", quota)

	if m.notifier != nil {
		if err := m.notifier.SendStorageAlert(ctx, used, quota, pct); err != nil {
			// A failed send does not consume the throttle; retry next tick.
			m.logger.Error("sending storage alert failed", "error", err, "used_pct", pct)
			return
		}
	}

	if err := m.state.Set(ctx, stateLastAlertAt, now.UTC().Format(time.RFC3339)); err != nil {
		m.logger.Error("recording alert send time failed", "error", err)
	}
}

// checkDailyReport sends the usage summary once per calendar day when the
// tick lands inside the morning window.
func (m *Monitor) checkDailyReport(ctx context.Context) {
	if m.notifier == nil {
		return
	}

	now := m.now()
	if now.Hour() != reportWindowHour || now.Minute() >= reportWindowMinutes {
		return
	}

	today := now.Format("2006-01-02")
	if last, err := m.state.Get(ctx, stateLastReportDate); err != nil {
		m.logger.Error("reading report state failed", "error", err)
		return
	} else if last == today {
		return
	}

	// Report yesterday's snapshot; fall back to live counters when the
	// snapshot row does not exist yet.
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	snapshot, err := m.history.GetByDate(ctx, yesterday)
	if err != nil {
		m.logger.Error("reading usage snapshot failed", "date", yesterday, "error", err)
		return
	}
	if snapshot == nil {
		files, bytes := m.usage.Usage()
		snapshot = &models.DailyUsage{Date: yesterday, TotalFiles: files, TotalBytes: bytes}
	}

	if err := m.notifier.SendDailyReport(ctx, *snapshot); err != nil {
		m.logger.Error("sending daily report failed", "error", err)
		return
	}

	m.logger.Info("daily usage report sent", "date", yesterday)
	if err := m.state.Set(ctx, stateLastReportDate, today); err != nil {
		m.logger.Error("recording report date failed", "error", err)
	}
}
