package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/expenseflow/expenseflow/internal"
)

type Worker struct {
	ID         int
	WorkerPool chan chan Email
	JobChannel chan Email
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Email, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Email),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Email)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing mail job", "worker_id", w.ID, "to", job.To, "kind", job.Kind)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Mailer delivers email through an HTTP mail API with a bounded worker pool.
// Enqueue never blocks: a full queue drops the message with a warning.
type Mailer struct {
	apiURL      string
	apiKey      string
	fromAddress string
	sendTimeout time.Duration
	logger      *slog.Logger

	jobQueue   chan Email
	workerPool chan chan Email
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewMailer(cfg internal.MailConfig, logger *slog.Logger) *Mailer {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	m := &Mailer{
		apiURL:      cfg.APIURL,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		sendTimeout: sendTimeout,
		logger:      logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan Email, jobQueueSize),
		workerPool: make(chan chan Email, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.startWorkerPool()

	return m
}

func (m *Mailer) startWorkerPool() {
	m.once.Do(func() {
		for i := 0; i < m.maxWorkers; i++ {
			worker := NewWorker(i, m.workerPool, m.logger)
			worker.Start(m.ctx, &m.wg, m.deliver)
		}

		m.wg.Add(1)
		go m.dispatch()

		m.logger.Info("mail worker pool started",
			"max_workers", m.maxWorkers,
			"queue_size", cap(m.jobQueue))
	})
}

func (m *Mailer) dispatch() {
	defer m.wg.Done()

	for {
		select {
		case job := <-m.jobQueue:
			select {
			case jobChannel := <-m.workerPool:
				select {
				case jobChannel <- job:

				case <-m.ctx.Done():
					m.logger.Info("mail dispatcher shutting down")
					return
				}
			case <-m.ctx.Done():
				m.logger.Info("mail dispatcher shutting down")
				return
			}
		case <-m.ctx.Done():
			m.logger.Info("mail dispatcher shutting down")
			return
		}
	}
}

func (m *Mailer) Shutdown() {
	m.logger.Info("shutting down mailer")
	m.cancel()
	m.wg.Wait()
	m.logger.Info("mailer shutdown complete")
}

// Enqueue queues the email for async delivery. A full queue drops the mail;
// workflow state never depends on notification delivery.
func (m *Mailer) Enqueue(email Email) {
	select {
	case m.jobQueue <- email:
		m.logger.Debug("mail job queued",
			"to", email.To,
			"kind", email.Kind,
			"queue_length", len(m.jobQueue))
	default:
		m.logger.Warn("mail queue full, dropping message",
			"to", email.To,
			"kind", email.Kind,
			"queue_capacity", cap(m.jobQueue))
	}
}

func (m *Mailer) deliver(email Email) {
	if m.apiURL == "" {
		m.logger.Info("mail API not configured, skipping delivery",
			"to", email.To,
			"subject", email.Subject)
		return
	}

	payload := map[string]interface{}{
		"from":    m.fromAddress,
		"to":      email.To,
		"to_name": email.ToName,
		"subject": email.Subject,
		"text":    email.Body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal mail payload", "error", err, "to", email.To)
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", m.apiURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		m.logger.Error("failed to create mail request", "error", err, "to", email.To)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))
	}

	client := &http.Client{Timeout: m.sendTimeout}
	resp, err := client.Do(req)
	if err != nil {
		m.logger.Error("mail delivery failed", "error", err, "to", email.To, "kind", email.Kind)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted {
		m.logger.Warn("mail API returned non-success status",
			"status_code", resp.StatusCode,
			"to", email.To,
			"kind", email.Kind)
		return
	}

	m.logger.Info("mail delivered", "to", email.To, "kind", email.Kind)
}
