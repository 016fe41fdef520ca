// Package paymentgateway runs a local settlement simulator. Jobs are queued,
// picked up by a fixed worker pool, settled after a random delay and reported
// back to the job's callback URL, the way a hosted provider would call an
// access point.
package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const TokenHeader = "X-Sandbox-Token"

type SettlementStatus string

const (
	SettlementSuccess SettlementStatus = "SUCCESS"
	SettlementFailed  SettlementStatus = "FAILED"
)

var ErrQueueFull = stderrors.New("settlement queue full, please try again later")

type SettlementJob struct {
	Hash        string
	Amount      string
	CallbackURL string
	Token       string
}

// SettlementResult is the callback body delivered to the access point.
type SettlementResult struct {
	Hash      string           `json:"hash"`
	Reference string           `json:"reference"`
	Status    SettlementStatus `json:"status"`
	Amount    string           `json:"amount"`
	Reason    string           `json:"reason,omitempty"`
}

type Worker struct {
	ID         int
	WorkerPool chan chan SettlementJob
	JobChannel chan SettlementJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan SettlementJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan SettlementJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(SettlementJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing settlement", "worker_id", w.ID, "hash", job.Hash)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	MaxWorkers      int
	JobQueueSize    int
	SuccessRate     float64
	MaxDelay        time.Duration
	CallbackTimeout time.Duration
}

type Simulator struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	jobQueue   chan SettlementJob
	workerPool chan chan SettlementJob
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulator(cfg Config, logger *slog.Logger) *Simulator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.JobQueueSize <= 0 {
		cfg.JobQueueSize = 100
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Simulator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.CallbackTimeout},
		logger:     logger,
		jobQueue:   make(chan SettlementJob, cfg.JobQueueSize),
		workerPool: make(chan chan SettlementJob, cfg.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.start()
	return s
}

func (s *Simulator) start() {
	s.once.Do(func() {
		for i := 0; i < s.cfg.MaxWorkers; i++ {
			NewWorker(i, s.workerPool, s.logger).Start(s.ctx, &s.wg, s.process)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("settlement simulator started",
			"max_workers", s.cfg.MaxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *Simulator) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					return
				}
			case <-s.ctx.Done():
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("settlement dispatcher shutting down")
			return
		}
	}
}

// Submit queues a settlement without blocking.
func (s *Simulator) Submit(job SettlementJob) error {
	if job.Hash == "" || job.CallbackURL == "" {
		return fmt.Errorf("settlement job needs a hash and a callback url")
	}

	select {
	case s.jobQueue <- job:
		s.logger.Info("settlement queued", "hash", job.Hash, "queue_length", len(s.jobQueue))
		return nil
	default:
		s.logger.Warn("settlement queue full", "hash", job.Hash, "queue_capacity", cap(s.jobQueue))
		return ErrQueueFull
	}
}

func (s *Simulator) Shutdown() {
	s.logger.Info("shutting down settlement simulator")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("settlement simulator shutdown complete")
}

func (s *Simulator) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delay time.Duration
	if s.cfg.MaxDelay > 0 {
		delay = time.Duration(s.rnd.Int63n(int64(s.cfg.MaxDelay)))
	}
	return delay, s.rnd.Float64() < s.cfg.SuccessRate
}

func (s *Simulator) process(job SettlementJob) {
	delay, ok := s.roll()

	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
		s.logger.Info("settlement cancelled", "hash", job.Hash)
		return
	}

	result := SettlementResult{
		Hash:      job.Hash,
		Reference: "sim_" + job.Hash,
		Status:    SettlementSuccess,
		Amount:    job.Amount,
	}
	if !ok {
		result.Status = SettlementFailed
		result.Reason = "Insufficient funds"
	}

	s.logger.Info("settlement simulated", "hash", job.Hash, "status", result.Status, "delay", delay)
	if err := s.deliver(job, result); err != nil {
		s.logger.Error("settlement callback failed", "error", err, "hash", job.Hash, "callback_url", job.CallbackURL)
	}
}

func (s *Simulator) deliver(job SettlementJob, result SettlementResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, job.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, job.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
