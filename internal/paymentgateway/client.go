package paymentgateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"github.com/google/uuid"
)

// CallbackJob describes one payment whose outcome the simulator reports to the webhook.
type CallbackJob struct {
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	// Status forces the reported outcome; empty means draw from SuccessRate.
	Status string
	// Duplicates is how many extra identical deliveries follow the first one.
	Duplicates int
}

// CallbackResult is reported once per delivery.
type CallbackResult struct {
	TxnID      string
	Status     string
	StatusCode int
	Attempts   int
	Err        error
}

type Worker struct {
	ID         int
	WorkerPool chan chan CallbackJob
	JobChannel chan CallbackJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan CallbackJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan CallbackJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(CallbackJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "txn_id", job.TxnID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type SimulatorConfig struct {
	MerchantKey    string
	MerchantSalt   string
	WebhookURL     string
	MaxWorkers     int
	JobQueueSize   int
	MaxAttempts    int
	RequestTimeout time.Duration
	SuccessRate    float64
	// MaxDelay bounds the random pause before each callback; zero disables it.
	MaxDelay time.Duration
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff time.Duration
}

// Simulator plays the gateway side of a checkout: it signs PayU-style callbacks
// and posts them to the webhook, retrying on 5xx like the real gateway does.
type Simulator struct {
	cfg        SimulatorConfig
	httpClient *http.Client
	logger     *slog.Logger
	onResult   func(CallbackResult)

	jobQueue   chan CallbackJob
	workerPool chan chan CallbackJob
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pending    sync.WaitGroup
	once       sync.Once

	randMu sync.Mutex
	rand   *rand.Rand
}

var ErrQueueFull = errors.New("paymentgateway: simulator queue full")

func NewSimulator(cfg SimulatorConfig, logger *slog.Logger, onResult func(CallbackResult)) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.JobQueueSize <= 0 {
		cfg.JobQueueSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if onResult == nil {
		onResult = func(CallbackResult) {}
	}

	s := &Simulator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		onResult:   onResult,
		jobQueue:   make(chan CallbackJob, cfg.JobQueueSize),
		workerPool: make(chan chan CallbackJob, cfg.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	s.startWorkerPool()

	return s
}

func (s *Simulator) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.cfg.MaxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.processJob)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("gateway simulator started",
			"max_workers", s.cfg.MaxWorkers,
			"queue_size", cap(s.jobQueue),
			"webhook_url", s.cfg.WebhookURL)
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
			s.logger.Debug("dispatcher shutting down")
			return
		}
	}
}

// Enqueue schedules job without blocking.
func (s *Simulator) Enqueue(job CallbackJob) error {
	if job.TxnID == "" || job.Amount == "" {
		return fmt.Errorf("paymentgateway: txn id and amount are required")
	}

	s.pending.Add(1)
	select {
	case s.jobQueue <- job:
		s.logger.Debug("callback job queued", "txn_id", job.TxnID, "queue_length", len(s.jobQueue))
		return nil
	default:
		s.pending.Done()
		s.logger.Warn("simulator queue full, rejecting job",
			"txn_id", job.TxnID,
			"queue_capacity", cap(s.jobQueue))
		return ErrQueueFull
	}
}

// Wait blocks until every enqueued job has been delivered or ctx is done.
func (s *Simulator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) Shutdown() {
	s.logger.Info("shutting down gateway simulator")
	s.cancel()
	s.wg.Wait()
}

func (s *Simulator) processJob(job CallbackJob) {
	defer s.pending.Done()

	if s.cfg.MaxDelay > 0 {
		delay := time.Duration(s.randInt63n(int64(s.cfg.MaxDelay)))
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}

	status := job.Status
	if status == "" {
		status = types.StatusFailure
		if s.randFloat() < s.cfg.SuccessRate {
			status = types.StatusSuccess
		}
	}

	params := s.buildCallback(job, status)
	for i := 0; i <= job.Duplicates; i++ {
		result := s.deliver(params)
		s.onResult(result)
	}
}

func (s *Simulator) buildCallback(job CallbackJob, status string) types.Params {
	params := types.Params{
		types.FieldKey:         s.cfg.MerchantKey,
		types.FieldTxnID:       job.TxnID,
		types.FieldAmount:      job.Amount,
		types.FieldProductInfo: job.ProductInfo,
		types.FieldFirstName:   job.FirstName,
		types.FieldEmail:       job.Email,
		types.FieldStatus:      status,
		types.FieldMihPayID:    uuid.NewString(),
		types.FieldMode:        "CC",
		types.FieldBankCode:    "CC",
		types.FieldCardNum:     "512345XXXXXX2346",
		types.FieldNameOnCard:  job.FirstName,
		types.FieldBankRefNum:  fmt.Sprintf("%d", time.Now().UnixNano()),
	}
	if status == types.StatusFailure {
		params[types.FieldError] = "E308"
		params[types.FieldErrorMessage] = "Transaction declined by issuer"
	} else {
		params[types.FieldError] = "E000"
		params[types.FieldErrorMessage] = "No Error"
	}
	return SignResponse(params, s.cfg.MerchantSalt)
}

// deliver posts one callback, retrying transport errors and 5xx responses with exponential backoff.
func (s *Simulator) deliver(params types.Params) CallbackResult {
	result := CallbackResult{
		TxnID:  params.Get(types.FieldTxnID),
		Status: params.Get(types.FieldStatus),
	}

	backoff := s.cfg.RetryBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		code, err := s.post(params)
		result.StatusCode = code
		result.Err = err

		if err == nil && code < http.StatusInternalServerError {
			break
		}

		s.logger.Warn("webhook callback attempt failed",
			"txn_id", result.TxnID,
			"attempt", attempt,
			"status_code", code,
			"error", err)

		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-s.ctx.Done():
			result.Err = s.ctx.Err()
			return result
		}
	}

	if result.Err == nil && result.StatusCode >= http.StatusInternalServerError {
		result.Err = fmt.Errorf("webhook returned status %d", result.StatusCode)
	}

	s.logger.Info("webhook callback delivered",
		"txn_id", result.TxnID,
		"status", result.Status,
		"status_code", result.StatusCode,
		"attempts", result.Attempts)

	return result
}

func (s *Simulator) post(params types.Params) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, Encode(params))
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", mediaTypeForm)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (s *Simulator) randFloat() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64()
}

func (s *Simulator) randInt63n(n int64) int64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Int63n(n)
}
