package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageUsageProvider exposes the tracked storage usage.
type StorageUsageProvider interface {
	Usage() (files, bytes int64)
	QuotaBytes() int64
	UsagePercent() float64
}

// SessionStatsProvider exposes capture session statistics.
type SessionStatsProvider interface {
	ActiveCount() int
	DroppedPackets() int64
}

// LifetimeCounterProvider returns all-time stored/deleted recording counts.
type LifetimeCounterProvider interface {
	LifetimeCounters(ctx context.Context) (added, deleted int64, err error)
}

// CleanupStatsProvider exposes retention cleanup run statistics.
type CleanupStatsProvider interface {
	LastBatch() (at time.Time, took time.Duration, size int)
}

// Collector is a prometheus.Collector that gathers VoiceVault metrics at scrape time.
type Collector struct {
	storage   StorageUsageProvider
	sessions  SessionStatsProvider
	counters  LifetimeCounterProvider
	cleanup   CleanupStatsProvider
	startTime time.Time

	// Metric descriptors.
	storageUsedDesc     *prometheus.Desc
	storageQuotaDesc    *prometheus.Desc
	storageFilesDesc    *prometheus.Desc
	storageRatioDesc    *prometheus.Desc
	sessionsDesc        *prometheus.Desc
	packetsDroppedDesc  *prometheus.Desc
	storedTotalDesc     *prometheus.Desc
	deletedTotalDesc    *prometheus.Desc
	cleanupBatchDesc    *prometheus.Desc
	cleanupDurationDesc *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	storage StorageUsageProvider,
	sessions SessionStatsProvider,
	counters LifetimeCounterProvider,
	cleanup CleanupStatsProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		storage:   storage,
		sessions:  sessions,
		counters:  counters,
		cleanup:   cleanup,
		startTime: startTime,

		storageUsedDesc: prometheus.NewDesc(
			"voicevault_storage_used_bytes",
			"Bytes of encrypted recordings currently stored",
			nil, nil,
		),
		storageQuotaDesc: prometheus.NewDesc(
			"voicevault_storage_quota_bytes",
			"Configured storage quota in bytes",
			nil, nil,
		),
		storageFilesDesc: prometheus.NewDesc(
			"voicevault_storage_files",
			"Number of recording files currently stored",
			nil, nil,
		),
		storageRatioDesc: prometheus.NewDesc(
			"voicevault_storage_usage_ratio",
			"Storage usage as a fraction of the quota (0-1)",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"voicevault_capture_sessions_active",
			"Number of active recording capture sessions",
			nil, nil,
		),
		packetsDroppedDesc: prometheus.NewDesc(
			"voicevault_capture_packets_dropped_total",
			"Total packets dropped at the capture buffer cap",
			nil, nil,
		),
		storedTotalDesc: prometheus.NewDesc(
			"voicevault_recordings_stored_total",
			"Total recordings stored since first start",
			nil, nil,
		),
		deletedTotalDesc: prometheus.NewDesc(
			"voicevault_recordings_deleted_total",
			"Total recordings deleted since first start",
			nil, nil,
		),
		cleanupBatchDesc: prometheus.NewDesc(
			"voicevault_cleanup_last_batch_size",
			"Candidates processed by the most recent retention cleanup batch",
			nil, nil,
		),
		cleanupDurationDesc: prometheus.NewDesc(
			"voicevault_cleanup_last_duration_seconds",
			"Duration of the most recent retention cleanup batch",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voicevault_uptime_seconds",
			"Seconds since the VoiceVault process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.storageUsedDesc
	ch <- c.storageQuotaDesc
	ch <- c.storageFilesDesc
	ch <- c.storageRatioDesc
	ch <- c.sessionsDesc
	ch <- c.packetsDroppedDesc
	ch <- c.storedTotalDesc
	ch <- c.deletedTotalDesc
	ch <- c.cleanupBatchDesc
	ch <- c.cleanupDurationDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.storage != nil {
		files, bytes := c.storage.Usage()
		ch <- prometheus.MustNewConstMetric(c.storageUsedDesc, prometheus.GaugeValue, float64(bytes))
		ch <- prometheus.MustNewConstMetric(c.storageQuotaDesc, prometheus.GaugeValue, float64(c.storage.QuotaBytes()))
		ch <- prometheus.MustNewConstMetric(c.storageFilesDesc, prometheus.GaugeValue, float64(files))
		ch <- prometheus.MustNewConstMetric(c.storageRatioDesc, prometheus.GaugeValue, c.storage.UsagePercent()/100)
	}

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(c.sessions.ActiveCount()))
		ch <- prometheus.MustNewConstMetric(c.packetsDroppedDesc, prometheus.CounterValue, float64(c.sessions.DroppedPackets()))
	}

	if c.counters != nil {
		added, deleted, err := c.counters.LifetimeCounters(ctx)
		if err != nil {
			slog.Error("metrics: failed to read lifetime counters", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(c.storedTotalDesc, prometheus.CounterValue, float64(added))
			ch <- prometheus.MustNewConstMetric(c.deletedTotalDesc, prometheus.CounterValue, float64(deleted))
		}
	}

	if c.cleanup != nil {
		_, took, size := c.cleanup.LastBatch()
		ch <- prometheus.MustNewConstMetric(c.cleanupBatchDesc, prometheus.GaugeValue, float64(size))
		ch <- prometheus.MustNewConstMetric(c.cleanupDurationDesc, prometheus.GaugeValue, took.Seconds())
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
