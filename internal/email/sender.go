package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/voicevault/voicevault/internal/database/models"
)

// SMTPConfig holds the SMTP server configuration for outbound notifications.
type SMTPConfig struct {
	Host     string
	Port     int // 25, 587, or 465 (implicit TLS)
	Username string
	Password string
	From     string
	To       string // operator alert address
}

// Valid returns true if the minimum required fields are set.
func (c SMTPConfig) Valid() bool {
	return c.Host != "" && c.From != "" && c.To != ""
}

// Sender delivers storage notifications via SMTP. It satisfies the retention
// package's Notifier interface.
type Sender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	// dialFunc allows injecting a custom dialer for testing.
	dialFunc func(addr string, tlsConfig *tls.Config, implicitTLS bool) (smtpClient, error)
}

// smtpClient abstracts the methods used from *smtp.Client for testing.
type smtpClient interface {
	Hello(localName string) error
	Extension(ext string) (bool, string)
	StartTLS(config *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// NewSender creates a new email Sender.
func NewSender(cfg SMTPConfig, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:      cfg,
		logger:   logger.With("subsystem", "email"),
		dialFunc: defaultDial,
	}
}

// SendStorageAlert notifies the operator that storage usage crossed the
// alert threshold.
func (s *Sender) SendStorageAlert(ctx context.Context, usedBytes, quotaBytes int64, usedPct float64) error {
	subject := fmt.Sprintf("Storage alert: %.1f%% of recording quota used", usedPct)
	body := fmt.Sprintf(
		"Recording storage usage has reached %.1f%% of the configured quota.\n\n"+
			"Used:  %s\n"+
			"Quota: %s\n\n"+
			"Expired recordings are removed automatically each night. If usage keeps\n"+
			"growing, consider raising the quota or shortening retention policies.\n",
		usedPct, formatBytes(usedBytes), formatBytes(quotaBytes),
	)
	if err := s.send(subject, body); err != nil {
		return err
	}
	s.logger.Info("storage alert email sent", "to", s.cfg.To, "used_pct", usedPct)
	return nil
}

// SendDailyReport sends the daily storage usage summary.
func (s *Sender) SendDailyReport(ctx context.Context, usage models.DailyUsage) error {
	subject := fmt.Sprintf("Recording storage report for %s", usage.Date)
	body := fmt.Sprintf(
		"Daily recording storage summary for %s.\n\n"+
			"Total recordings: %d\n"+
			"Total size:       %s\n"+
			"Added:            %d\n"+
			"Deleted:          %d\n",
		usage.Date, usage.TotalFiles, formatBytes(usage.TotalBytes),
		usage.RecordingsAdded, usage.RecordingsDeleted,
	)
	if err := s.send(subject, body); err != nil {
		return err
	}
	s.logger.Info("daily report email sent", "to", s.cfg.To, "date", usage.Date)
	return nil
}

// SendCleanupSummary reports the outcome of a retention cleanup batch.
func (s *Sender) SendCleanupSummary(ctx context.Context, deleted, failed int) error {
	subject := fmt.Sprintf("Retention cleanup: %d recordings removed", deleted)
	body := fmt.Sprintf(
		"The nightly retention cleanup finished.\n\n"+
			"Deleted: %d\n"+
			"Failed:  %d\n",
		deleted, failed,
	)
	if failed > 0 {
		body += "\nFailed deletions are retried on the next run.\n"
	}
	if err := s.send(subject, body); err != nil {
		return err
	}
	s.logger.Info("cleanup summary email sent", "to", s.cfg.To, "deleted", deleted, "failed", failed)
	return nil
}

// send delivers one plain-text message to the configured alert address.
func (s *Sender) send(subject, body string) error {
	if !s.cfg.Valid() {
		return fmt.Errorf("smtp not configured")
	}

	msg := buildMessage(s.cfg.From, s.cfg.To, subject, body)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	client, err := s.dialFunc(addr, tlsConfig, s.cfg.Port == 465)
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}

	// STARTTLS upgrade when the server offers it and the connection is not
	// already TLS.
	if s.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(s.cfg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit error (non-fatal)", "error", err)
	}
	return nil
}

// defaultDial connects to the SMTP server using either plain TCP or implicit TLS.
func defaultDial(addr string, tlsConfig *tls.Config, implicitTLS bool) (smtpClient, error) {
	if implicitTLS {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, tlsConfig.ServerName)
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	return smtp.NewClient(conn, host)
}

// buildMessage constructs the full plain-text message bytes.
func buildMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(gib))
	case n >= mib:
		return fmt.Sprintf("%.2f MiB", float64(n)/float64(mib))
	case n >= kib:
		return fmt.Sprintf("%.2f KiB", float64(n)/float64(kib))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
