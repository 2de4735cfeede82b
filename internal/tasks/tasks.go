package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/config"
	"furadapt/api/internal/monitoring"
)

// Task types.
const (
	TypeEmailDelivery  = "email:deliver"
	TypeImageProcess   = "image:process"
	TypeAdoptionNotify = "adoption:notify"
	TypePetReconcile   = "pet:reconcile"
	TypeReconcileSweep = "pet:reconcile:sweep"
)

// Queues, highest priority first.
const (
	QueueCritical = "critical"
	QueueImages   = "images"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type ImageTaskPayload struct {
	S3Key string `json:"s3_key"`
	PetID string `json:"pet_id"`
}

type AdoptionNotifyPayload struct {
	RequestID string `json:"request_id"`
}

type PetReconcilePayload struct {
	PetID string `json:"pet_id"`
}

func newTask(taskType string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data), nil
}

func decodePayload(t *asynq.Task, dst interface{}) error {
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func parseObjectID(field, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid %s %q in payload: %w", field, hex, asynq.SkipRetry)
	}
	return id, nil
}

// NewRedisClientOpt builds the asynq connection options from the app config.
func NewRedisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func NewClient(opt asynq.RedisClientOpt) *asynq.Client {
	return asynq.NewClient(opt)
}

// NewServer builds the worker server and its mux. The caller starts and stops it.
func NewServer(opt asynq.RedisClientOpt, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Queues: map[string]int{
			QueueCritical: 6,
			QueueImages:   5,
			QueueDefault:  3,
			QueueLow:      1,
		},
		Logger: zap.S().Named("asynq"),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			zap.L().Error("Background task failed",
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Error(err),
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Use(recordOutcome)
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
	mux.HandleFunc(TypeAdoptionNotify, processor.HandleAdoptionNotifyTask)
	mux.HandleFunc(TypePetReconcile, processor.HandlePetReconcileTask)
	mux.HandleFunc(TypeReconcileSweep, processor.HandleReconcileSweepTask)
	return srv, mux
}

// NewScheduler registers the periodic reconcile sweep.
func NewScheduler(opt asynq.RedisClientOpt, sweepCron string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   zap.S().Named("scheduler"),
	})
	entryID, err := scheduler.Register(sweepCron, asynq.NewTask(TypeReconcileSweep, nil), asynq.Queue(QueueLow))
	if err != nil {
		return nil, fmt.Errorf("failed to register reconcile sweep %q: %w", sweepCron, err)
	}
	zap.L().Info("Registered reconcile sweep", zap.String("cron", sweepCron), zap.String("entry_id", entryID))
	return scheduler, nil
}

func recordOutcome(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		err := next.ProcessTask(ctx, t)
		monitoring.TaskResults.WithLabelValues(t.Type(), outcomeOf(err)).Inc()
		return err
	})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "skipped"
	default:
		return "error"
	}
}
