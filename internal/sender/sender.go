// Package sender exports host snapshots. Batches are marshaled to JSON,
// gzip-compressed and POSTed to the export endpoint with exponential backoff;
// a batch that cannot be delivered is kept in the local buffer.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/buffer"
	"github.com/vitalis-app/hwmon/internal/config"
	"github.com/vitalis-app/hwmon/internal/models"
)

const (
	// maxRetries is the number of retries before a batch is buffered.
	maxRetries = 3

	baseRetryDelay = 2 * time.Second

	requestTimeout = 10 * time.Second
)

// Sender delivers snapshot batches to the export endpoint.
type Sender struct {
	client     *http.Client
	cfg        config.ExportConfig
	logger     *zap.Logger
	buf        *buffer.Buffer
	retryDelay time.Duration
}

// New creates a sender. buf may be nil, undeliverable batches are then dropped.
func New(cfg config.ExportConfig, logger *zap.Logger, buf *buffer.Buffer) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		client:     &http.Client{Timeout: requestTimeout},
		cfg:        cfg,
		logger:     logger.Named("sender"),
		buf:        buf,
		retryDelay: baseRetryDelay,
	}
}

// Send delivers a batch of snapshots, retrying with exponential backoff.
// When every attempt fails, or the server rate limits the agent, the batch
// is buffered.
func (s *Sender) Send(ctx context.Context, snapshots []models.HostSnapshot) {
	body, err := encode(models.SnapshotBatch{AgentToken: s.cfg.Token, Snapshots: snapshots})
	if err != nil {
		s.logger.Error("Failed to encode batch", zap.Error(err))
		s.bufferBatch(snapshots)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		err := s.doSend(ctx, body)
		var rl *rateLimitError
		if errors.As(err, &rl) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx), func(err error, delay time.Duration) {
		s.logger.Warn("Send failed, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	})

	if err == nil {
		s.logger.Debug("Batch sent", zap.Int("snapshots", len(snapshots)))
		return
	}

	var rl *rateLimitError
	if errors.As(err, &rl) {
		s.logger.Warn("Rate limited by server, buffering batch", zap.Error(err))
	} else {
		s.logger.Error("All retries exhausted, buffering batch", zap.Error(err))
	}
	s.bufferBatch(snapshots)
}

func encode(batch models.SnapshotBatch) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalize gzip: %w", err)
	}
	return compressed.Bytes(), nil
}

func (s *Sender) doSend(ctx context.Context, body []byte) error {
	url := strings.TrimRight(s.cfg.URL, "/") + "/api/ingest"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &rateLimitError{statusCode: resp.StatusCode}
	default:
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
}

func (s *Sender) bufferBatch(snapshots []models.HostSnapshot) {
	if s.buf == nil {
		s.logger.Warn("No buffer available, dropping snapshots", zap.Int("count", len(snapshots)))
		return
	}
	if err := s.buf.Store(snapshots); err != nil {
		s.logger.Error("Failed to buffer snapshots", zap.Error(err))
	}
}

// FlushBuffer resends the batches buffered during earlier outages.
func (s *Sender) FlushBuffer(ctx context.Context) {
	if s.buf == nil {
		return
	}
	batches, err := s.buf.RetrieveAll()
	if err != nil {
		s.logger.Error("Failed to retrieve buffered snapshots", zap.Error(err))
		return
	}
	if len(batches) == 0 {
		return
	}

	s.logger.Info("Flushing buffered snapshots", zap.Int("batches", len(batches)))
	for _, batch := range batches {
		s.Send(ctx, batch)
	}
}

// rateLimitError indicates the server returned HTTP 429.
type rateLimitError struct {
	statusCode int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%d)", e.statusCode)
}
