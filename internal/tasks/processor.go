package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/config"
	"furadapt/api/internal/email"
	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
	"furadapt/api/internal/storage"
)

// Reconciler repairs pets left behind by interrupted cascades.
type Reconciler interface {
	ReconcilePet(ctx context.Context, petID primitive.ObjectID) error
	ReconcileStalePets(ctx context.Context) (int, error)
}

// TaskProcessor holds the dependencies of the task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	storage     storage.IS3Storage
	pets        services.IPetService
	requests    services.IAdoptionRequestStore
	users       services.IUserService
	reconciler  Reconciler
	enqueuer    *Enqueuer
	now         func() time.Time
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	store storage.IS3Storage,
	pets services.IPetService,
	requests services.IAdoptionRequestStore,
	users services.IUserService,
	reconciler Reconciler,
	enqueuer *Enqueuer,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		storage:     store,
		pets:        pets,
		requests:    requests,
		users:       users,
		reconciler:  reconciler,
		enqueuer:    enqueuer,
		now:         time.Now,
	}
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	if payload.To == "" {
		return fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}

	raw := email.Compose(p.cfg.SmtpFromAddress, payload.To, payload.Subject, payload.Body, p.now().UTC())
	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, raw); err != nil {
		return fmt.Errorf("failed to deliver email to %s: %w", payload.To, err)
	}
	zap.L().Info("Email delivered", zap.String("to", payload.To), zap.String("subject", payload.Subject))
	return nil
}

// HandleAdoptionNotifyTask renders the status mail for a reviewed request
// and queues it for delivery.
func (p *TaskProcessor) HandleAdoptionNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload AdoptionNotifyPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	requestID, err := parseObjectID("request_id", payload.RequestID)
	if err != nil {
		return err
	}

	req, err := p.requests.FindByID(ctx, requestID)
	if err != nil {
		return skipIfNotFound(err)
	}
	if req.Status == models.AdoptionStatusPending {
		return nil
	}

	adopter, err := p.users.FindByID(ctx, req.AdopterID)
	if err != nil {
		return skipIfNotFound(err)
	}
	pet, err := p.pets.FindPetByID(ctx, req.PetID)
	if err != nil {
		return skipIfNotFound(err)
	}

	subject, body, err := email.RenderAdoptionNotice(email.AdoptionNotice{
		AppName:     p.cfg.AppName,
		AdopterName: adopter.Name,
		PetName:     pet.Name,
		Status:      string(req.Status),
		Notes:       req.AdminNotes,
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.enqueuer.enqueueEmail(ctx, EmailTaskPayload{To: adopter.Email, Subject: subject, Body: body})
}

func (p *TaskProcessor) HandlePetReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload PetReconcilePayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	petID, err := parseObjectID("pet_id", payload.PetID)
	if err != nil {
		return err
	}
	return p.reconciler.ReconcilePet(ctx, petID)
}

func (p *TaskProcessor) HandleReconcileSweepTask(ctx context.Context, _ *asynq.Task) error {
	visited, err := p.reconciler.ReconcileStalePets(ctx)
	zap.L().Info("Reconcile sweep finished", zap.Int("pets", visited), zap.Error(err))
	return err
}

// HandleImageProcessTask downsizes an uploaded image that exceeds the
// configured dimension, then attaches its key to the pet.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	petID, err := parseObjectID("pet_id", payload.PetID)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("key", payload.S3Key), zap.String("pet_id", payload.PetID))

	data, contentType, err := p.storage.GetObject(ctx, payload.S3Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("image %s was never uploaded: %w", payload.S3Key, asynq.SkipRetry)
		}
		return err
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(data)) > maxSizeBytes {
		return fmt.Errorf("image exceeds %d bytes: %w", maxSizeBytes, asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unsupported or corrupt image: %v: %w", err, asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	bounds := img.Bounds()
	if uint(bounds.Dx()) > maxDim || uint(bounds.Dy()) > maxDim {
		resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized image: %w", err)
		}
		if err := p.storage.PutObject(ctx, payload.S3Key, buf.Bytes(), "image/jpeg"); err != nil {
			return err
		}
		log.Info("Resized pet image",
			zap.String("format", format),
			zap.Int("from_width", bounds.Dx()),
			zap.Int("from_height", bounds.Dy()),
			zap.Int("to_width", resized.Bounds().Dx()),
			zap.Int("to_height", resized.Bounds().Dy()),
		)
	} else {
		log.Debug("Image within limits", zap.String("content_type", contentType))
	}

	if err := p.pets.AddImageToPet(ctx, petID, payload.S3Key); err != nil {
		return skipIfNotFound(err)
	}
	return nil
}

func skipIfNotFound(err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
