package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"crm-backend/internal/webhook/domain"
	"crm-backend/internal/webhook/repository"
	"crm-backend/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrorLogger is the persisted error sink
type ErrorLogger interface {
	LogError(ctx context.Context, errContext, message, trace string, extra map[string]interface{})
}

// DeliveryResult describes one outbound HTTP call
type DeliveryResult struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

type outboundJob struct {
	webhook *domain.Webhook
	event   domain.TriggerEvent
}

// OutboundEngine delivers trigger events to OUTGOING webhooks on a fixed
// worker pool. Deliveries are attempted once.
type OutboundEngine struct {
	repo        repository.WebhookRepository
	errorLog    ErrorLogger
	client      *http.Client
	jobQueue    chan outboundJob
	workerWg    sync.WaitGroup
	workerCount int
	started     bool
	stopped     bool
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewOutboundEngine creates a new outbound engine
func NewOutboundEngine(repo repository.WebhookRepository, errorLog ErrorLogger, timeout time.Duration, workerCount int) *OutboundEngine {
	if workerCount <= 0 {
		workerCount = 3 // Default to 3 workers
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OutboundEngine{
		repo:        repo,
		errorLog:    errorLog,
		client:      &http.Client{Timeout: timeout},
		jobQueue:    make(chan outboundJob, 500), // Buffered channel
		workerCount: workerCount,
		log:         logger.Component("outbound"),
	}
}

// Start starts the delivery workers
func (e *OutboundEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return
	}
	for i := 0; i < e.workerCount; i++ {
		e.workerWg.Add(1)
		go e.worker(i)
	}
	e.started = true
	e.log.Info().Int("workers", e.workerCount).Msg("started outbound workers")
}

// Stop drains queued deliveries and stops the workers
func (e *OutboundEngine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.jobQueue)
	e.mu.Unlock()

	e.workerWg.Wait()
	e.log.Info().Msg("all outbound workers stopped")
}

func (e *OutboundEngine) worker(id int) {
	defer e.workerWg.Done()

	for job := range e.jobQueue {
		e.processJob(job)
	}
	e.log.Debug().Int("worker", id).Msg("worker stopped")
}

func (e *OutboundEngine) processJob(job outboundJob) {
	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	result, err := e.Deliver(ctx, job.webhook, job.event)
	if err != nil {
		extra := map[string]interface{}{
			"webhook_id": job.webhook.ID,
			"event":      job.event.Name,
			"target_url": job.webhook.TargetURL,
		}
		if result != nil {
			extra["status_code"] = result.StatusCode
		}
		e.errorLog.LogError(ctx, "Outbound Webhook", err.Error(), "", extra)
		return
	}
	e.log.Info().Str("webhook_id", job.webhook.ID).Str("event", job.event.Name).
		Int("status", result.StatusCode).Msg("outbound webhook delivered")
}

// Publish queues the event for every active OUTGOING webhook of the user
// whose trigger matches. It never blocks; a full queue drops the job and
// records the drop in the error log.
func (e *OutboundEngine) Publish(event domain.TriggerEvent) {
	webhooks, err := e.repo.FindOutgoingByTrigger(event.UserID, event.Name)
	if err != nil {
		e.log.Error().Err(err).Str("event", event.Name).Msg("failed to load outgoing webhooks")
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	for _, w := range webhooks {
		select {
		case e.jobQueue <- outboundJob{webhook: w, event: event}:
		default:
			e.errorLog.LogError(context.Background(), "Outbound Webhook", "delivery queue full, event dropped", "", map[string]interface{}{
				"webhook_id": w.ID,
				"event":      event.Name,
			})
		}
	}
}

// Deliver renders and sends the event synchronously.
func (e *OutboundEngine) Deliver(ctx context.Context, webhook *domain.Webhook, event domain.TriggerEvent) (*DeliveryResult, error) {
	if webhook.TargetURL == "" {
		return nil, fmt.Errorf("webhook %s has no target_url", webhook.ID)
	}
	body, err := RenderPayload(webhook, event)
	if err != nil {
		return nil, err
	}

	method := webhook.Method()
	var reader io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, webhook.TargetURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "crm-backend-webhooks/1.0")
	for k, v := range webhook.HeaderMap() {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", webhook.TargetURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	result := &DeliveryResult{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Duration:   time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("target %s responded %d", webhook.TargetURL, resp.StatusCode)
	}

	if err := e.repo.RecordTrigger(webhook.ID, time.Now()); err != nil {
		e.log.Warn().Err(err).Str("webhook_id", webhook.ID).Msg("failed to record trigger")
	}
	return result, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// RenderPayload builds the request body. selected_fields are gjson paths into
// the event data (all top-level fields when empty). With a payload_template,
// {{path}} placeholders are replaced: strings JSON-escaped, other values
// JSON-encoded, missing values empty. Without one the body is
// {"event": ..., "data": {...}}.
func RenderPayload(webhook *domain.Webhook, event domain.TriggerEvent) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	if event.Data == nil {
		data = []byte(`{}`)
	}

	selected := data
	if len(webhook.SelectedFields) > 0 {
		selected = []byte(`{}`)
		for _, path := range webhook.SelectedFields {
			value := gjson.GetBytes(data, path)
			if !value.Exists() {
				continue
			}
			if selected, err = sjson.SetRawBytes(selected, path, []byte(value.Raw)); err != nil {
				return nil, fmt.Errorf("select field %q: %w", path, err)
			}
		}
	}

	if webhook.PayloadTemplate == "" {
		body, err := sjson.SetBytes([]byte(`{}`), "event", event.Name)
		if err != nil {
			return nil, err
		}
		return sjson.SetRawBytes(body, "data", selected)
	}

	rendered := placeholderPattern.ReplaceAllFunc([]byte(webhook.PayloadTemplate), func(match []byte) []byte {
		path := string(placeholderPattern.FindSubmatch(match)[1])
		switch path {
		case "event":
			return escapeString(event.Name)
		case "timestamp":
			return escapeString(event.OccurredAt.UTC().Format(time.RFC3339))
		}
		value := gjson.GetBytes(selected, path)
		switch {
		case !value.Exists():
			return nil
		case value.Type == gjson.String:
			return escapeString(value.Str)
		default:
			return []byte(value.Raw)
		}
	})
	return rendered, nil
}

func escapeString(s string) []byte {
	b, _ := json.Marshal(s)
	return b[1 : len(b)-1]
}
