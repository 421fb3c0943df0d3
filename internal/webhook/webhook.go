package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"grafana-backup/internal/config"
	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	HMACHeaderName = "X-GrafanaBackup-Signature-SHA256"
	UserAgent      = "grafana-backup/1.0"
	queueSize      = 100
)

// WebhookSender defines the interface for sending webhooks.
type WebhookSender interface {
	Enqueue(payload NotificationPayload)
	Stop()
}

// NotificationPayload is the JSON body posted after every backup run.
type NotificationPayload struct {
	RunID           string   `json:"run_id"`
	Environment     string   `json:"environment"`
	GrafanaHost     string   `json:"grafana_host"`
	Success         bool     `json:"success"`
	FilesWritten    int      `json:"files_written"`
	ErrorCount      int      `json:"error_count"`
	Errors          []string `json:"errors,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
	Timestamp       string   `json:"timestamp_utc"`
	BackupRoot      string   `json:"backup_root"`
	DestinationURL  string   `json:"destination_url,omitempty"`
	DestinationType string   `json:"destination_type,omitempty"`
}

// Sender posts notifications from a single background worker, retrying
// failed deliveries with exponential backoff.
type Sender struct {
	httpClient *http.Client
	targetURL  string
	secret     string
	maxRetries int
	backoff    func(attempt int) time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan NotificationPayload
	wg     sync.WaitGroup
}

var _ WebhookSender = (*Sender)(nil)

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(2<<attempt) * time.Second // 2s, 4s, 8s...
}

// extractHost returns the hostname of urlString for logging.
func extractHost(urlString string) string {
	u, err := url.Parse(urlString)
	if err != nil || u.Hostname() == "" {
		return "unknown_host"
	}
	return u.Hostname()
}

// NewSender creates a Sender and starts its worker. With no URL configured
// the sender accepts and discards notifications.
func NewSender(cfg config.WebhookConfig) *Sender {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultWebhookTimeoutSeconds) * time.Second
	}
	s := &Sender{
		httpClient: &http.Client{Timeout: timeout},
		targetURL:  cfg.URL,
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		backoff:    defaultBackoff,
		queue:      make(chan NotificationPayload, queueSize),
	}

	s.wg.Add(1)
	go s.worker()

	logger.Log.Info("Webhook Sender initialized.",
		zap.String("targetHost", extractHost(s.targetURL)),
		zap.Bool("enabled", s.targetURL != ""),
		zap.Int("maxRetries", s.maxRetries),
		zap.Duration("timeout", s.httpClient.Timeout),
		zap.Bool("hmacSecretConfigured", s.secret != ""),
	)
	return s
}

// Enqueue adds a notification to the send queue. It never blocks: a full
// queue drops the notification.
func (s *Sender) Enqueue(payload NotificationPayload) {
	logFields := []zap.Field{
		zap.String("runID", payload.RunID),
		zap.String("environment", payload.Environment),
	}
	if s.targetURL == "" {
		logger.Log.Debug("Webhook skipped: no target URL configured.", logFields...)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		logger.Log.Warn("Webhook sender stopped. Dropping notification.", logFields...)
		return
	}
	select {
	case s.queue <- payload:
		logger.Log.Info("Enqueued webhook notification", logFields...)
	default:
		logger.Log.Warn("Webhook queue full. Dropping notification.", logFields...)
	}
}

// worker delivers queued notifications until the queue is closed and empty.
func (s *Sender) worker() {
	defer s.wg.Done()
	for payload := range s.queue {
		s.sendWithRetries(payload)
	}
	logger.Log.Debug("Webhook worker stopping.")
}

// sendWithRetries attempts to send the payload, retrying on failure.
func (s *Sender) sendWithRetries(payload NotificationPayload) {
	baseLogFields := []zap.Field{
		zap.String("runID", payload.RunID),
		zap.String("targetHost", extractHost(s.targetURL)),
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attemptFields := append(baseLogFields[:len(baseLogFields):len(baseLogFields)],
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", s.maxRetries+1),
		)
		lastErr = s.sendAttempt(payload)
		if lastErr == nil {
			logger.Log.Info("Webhook sent successfully", attemptFields...)
			return
		}
		logger.Log.Warn("Webhook send attempt failed", append(attemptFields, zap.Error(lastErr))...)
		if attempt < s.maxRetries {
			backoffDuration := s.backoff(attempt)
			logger.Log.Info("Retrying webhook...", append(attemptFields, zap.Duration("backoff", backoffDuration))...)
			time.Sleep(backoffDuration)
		}
	}
	logger.Log.Error("Webhook failed after all retries.", append(baseLogFields, zap.Error(lastErr))...)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// sendAttempt performs a single attempt to send the webhook.
func (s *Sender) sendAttempt(payload NotificationPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.targetURL, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if s.secret != "" {
		req.Header.Set(HMACHeaderName, Sign(s.secret, jsonData))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed for webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("webhook returned non-2xx status: %s. Body: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Stop closes the queue and waits until every queued notification has been
// delivered or has exhausted its retries.
func (s *Sender) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	logger.Log.Debug("Stopping webhook sender, draining queue...", zap.Int("pending", len(s.queue)))
	s.wg.Wait()
	logger.Log.Info("Webhook sender stopped.")
}
