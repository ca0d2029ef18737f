// Package heartbeat implements PLATER's periodic liveness ping to its
// configured AUTOMAT registry.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kgraph-io/plater-automat/internal/config"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

type payload struct {
	Host string `json:"host"`
	Port string `json:"port"`
	Tag  string `json:"tag"`
}

// Sender periodically POSTs this backend's heartbeat to its AUTOMAT host.
type Sender struct {
	automatURL string
	self       payload
	interval   time.Duration
	httpClient *http.Client
	logger     *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSender constructs a Sender. automatURL is the AUTOMAT instance's base
// URL (scheme+host); host/port/tag identify this PLATER instance as it
// should be dialed by AUTOMAT's reverse proxy. interval is how often a
// heartbeat is sent; sendTimeout bounds each individual send (falling back to
// config.GetDefaultTimeouts().Heartbeat when zero).
func NewSender(automatURL, host, port, tag string, interval, sendTimeout time.Duration, logger *logging.Logger) *Sender {
	if sendTimeout <= 0 {
		sendTimeout = config.GetDefaultTimeouts().Heartbeat
	}
	transport := httputil.DefaultTransportWithMinTLS12()
	client := httputil.CopyHTTPClientWithTimeout(&http.Client{Transport: transport}, sendTimeout, true)

	return &Sender{
		automatURL: automatURL,
		self:       payload{Host: host, Port: port, Tag: tag},
		interval:   interval,
		httpClient: client,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run sends an initial heartbeat, then ticks at the configured interval
// until ctx is cancelled or Stop is called.
func (s *Sender) Run(ctx context.Context) {
	s.beat(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

// Stop halts the heartbeat loop; safe to call multiple times.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Sender) beat(ctx context.Context) {
	body, err := json.Marshal(s.self)
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/heartbeat", s.automatURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		if s.logger != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to build heartbeat request")
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	if s.logger != nil {
		s.logger.LogServiceCall(ctx, s.automatURL, http.MethodPost, status, duration, err)
	}
}
