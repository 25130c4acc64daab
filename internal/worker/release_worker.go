package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/database"
	"hostbook/internal/metrics"
	"hostbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Releaser frees an authorization hold.
type Releaser interface {
	Release(ctx context.Context, authorizationID string) error
}

// ReleaseStore is the payment_release_queue persistence.
type ReleaseStore interface {
	CreateReleaseTask(ctx context.Context, task *models.ReleaseTask) error
	GetReleaseTask(ctx context.Context, id int64) (*models.ReleaseTask, error)
	GetPendingReleaseTasks(ctx context.Context, limit int) ([]models.ReleaseTask, error)
	UpdateReleaseTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// ReleaseWorker retries authorization releases that failed inline. Tasks are persisted first,
// then handed over through Redis or an in-memory channel; the table is polled for due retries.
type ReleaseWorker struct {
	store         ReleaseStore
	payments      Releaser
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan int64
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewReleaseWorker builds a worker with sane defaults.
func NewReleaseWorker(
	store ReleaseStore,
	payments Releaser,
	redisClient *redis.Client,
	retry RetryPolicy,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *ReleaseWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &ReleaseWorker{
		store:         store,
		payments:      payments,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan int64, 128),
		redisQueueKey: "hostbook:release:queue",
		deadLetterKey: "hostbook:release:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueRelease persists the task and schedules it via redis or the in-memory queue.
func (w *ReleaseWorker) EnqueueRelease(ctx context.Context, bookingID, authorizationID string) error {
	if authorizationID == "" {
		return errors.New("authorization id is required")
	}

	task := models.ReleaseTask{
		BookingID:       bookingID,
		AuthorizationID: authorizationID,
		Status:          models.ReleaseTaskPending,
	}
	if err := w.store.CreateReleaseTask(ctx, &task); err != nil {
		return fmt.Errorf("persist release task: %w", err)
	}

	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.redisQueueKey, task.ID).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task.ID:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *ReleaseWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Release worker started")
	defer w.logger.Info().Msg("Release worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if id, ok := w.tryLocalQueue(); ok {
			w.processByID(ctx, id)
			continue
		}

		if id, ok := w.tryRedis(ctx); ok {
			w.processByID(ctx, id)
			continue
		}

		n, err := w.ProcessDue(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending release tasks failed")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// ProcessDue handles one batch of due tasks and returns how many were attempted.
func (w *ReleaseWorker) ProcessDue(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingReleaseTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *ReleaseWorker) tryLocalQueue() (int64, bool) {
	select {
	case id := <-w.queue:
		return id, true
	default:
		return 0, false
	}
}

func (w *ReleaseWorker) tryRedis(ctx context.Context) (int64, bool) {
	if w.redis == nil {
		return 0, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("Redis BRPOP error")
		}
		return 0, false
	}
	if len(res) != 2 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal([]byte(res[1]), &id); err != nil {
		w.logger.Error().Err(err).Str("raw", res[1]).Msg("Decode redis release task")
		return 0, false
	}
	return id, true
}

// processByID reloads the row so a task seen through both a queue and polling runs once.
func (w *ReleaseWorker) processByID(ctx context.Context, id int64) {
	task, err := w.store.GetReleaseTask(ctx, id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			w.logger.Error().Err(err).Int64("task_id", id).Msg("Load release task failed")
		}
		return
	}
	if task.Status != models.ReleaseTaskPending && task.Status != models.ReleaseTaskRetry {
		return
	}
	if task.NextRetryAt != nil && task.NextRetryAt.After(time.Now()) {
		return
	}
	w.processTask(ctx, task)
}

func (w *ReleaseWorker) processTask(ctx context.Context, task *models.ReleaseTask) {
	log := w.logger.With().Int64("task_id", task.ID).Str("booking_id", task.BookingID).Logger()

	if err := w.payments.Release(ctx, task.AuthorizationID); err != nil {
		log.Warn().Err(err).Int("retry_count", task.RetryCount).Msg("Queued release failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncReleaseRetry("completed")
	if err := w.store.UpdateReleaseTaskStatus(ctx, task.ID, models.ReleaseTaskCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("Mark release task completed")
		return
	}
	log.Info().Str("authorization_id", task.AuthorizationID).Msg("Authorization released")
}

func (w *ReleaseWorker) retryOrFail(ctx context.Context, task *models.ReleaseTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		metrics.IncReleaseRetry("failed")
		if err := w.store.UpdateReleaseTaskStatus(ctx, task.ID, models.ReleaseTaskFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark release task failed")
		}
		w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("authorization_id", task.AuthorizationID).
			Msg("Release retries exhausted, moved to dead letter")
		w.pushDeadLetter(ctx, task)
		return
	}

	metrics.IncReleaseRetry("retry")
	nextTime := time.Now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateReleaseTaskStatus(ctx, task.ID, models.ReleaseTaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark release task retry")
	}
}

func (w *ReleaseWorker) pushDeadLetter(ctx context.Context, task *models.ReleaseTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Deadletter push failed")
	}
}
