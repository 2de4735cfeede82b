package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

// TaskEnqueuer is the part of *asynq.Client used to schedule work.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns service events into background tasks.
type Enqueuer struct {
	queue          TaskEnqueuer
	reconcileDelay time.Duration
}

var _ services.LifecycleEvents = (*Enqueuer)(nil)

func NewEnqueuer(queue TaskEnqueuer, reconcileDelay time.Duration) *Enqueuer {
	return &Enqueuer{queue: queue, reconcileDelay: reconcileDelay}
}

// RequestReviewed schedules the applicant notification.
func (e *Enqueuer) RequestReviewed(ctx context.Context, req *models.AdoptionRequest) error {
	task, err := newTask(TypeAdoptionNotify, AdoptionNotifyPayload{RequestID: req.ID.Hex()})
	if err != nil {
		return err
	}
	if _, err := e.queue.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("failed to enqueue notification for request %s: %w", req.ID.Hex(), err)
	}
	return nil
}

// minUniqueTTL is the shortest uniqueness window asynq accepts.
const minUniqueTTL = time.Second

// PetNeedsReconcile schedules a delayed reconcile of the pet. At most one
// reconcile per pet waits in the queue at a time. The uniqueness lock lapses
// when the waiting task becomes due, so a reconcile that is already running
// never swallows a newer one.
func (e *Enqueuer) PetNeedsReconcile(ctx context.Context, petID primitive.ObjectID) error {
	task, err := newTask(TypePetReconcile, PetReconcilePayload{PetID: petID.Hex()})
	if err != nil {
		return err
	}
	_, err = e.queue.EnqueueContext(ctx, task,
		asynq.Queue(QueueCritical),
		asynq.Unique(max(e.reconcileDelay, minUniqueTTL)),
		asynq.ProcessIn(e.reconcileDelay),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		zap.L().Debug("Reconcile already scheduled", zap.String("pet_id", petID.Hex()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile for pet %s: %w", petID.Hex(), err)
	}
	return nil
}

// EnqueueImageProcess schedules normalisation of an uploaded pet image.
func (e *Enqueuer) EnqueueImageProcess(ctx context.Context, petID primitive.ObjectID, key string) error {
	task, err := newTask(TypeImageProcess, ImageTaskPayload{S3Key: key, PetID: petID.Hex()})
	if err != nil {
		return err
	}
	if _, err := e.queue.EnqueueContext(ctx, task, asynq.Queue(QueueImages), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("failed to enqueue image %s: %w", key, err)
	}
	return nil
}

func (e *Enqueuer) enqueueEmail(ctx context.Context, payload EmailTaskPayload) error {
	task, err := newTask(TypeEmailDelivery, payload)
	if err != nil {
		return err
	}
	if _, err := e.queue.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("failed to enqueue email to %s: %w", payload.To, err)
	}
	return nil
}
