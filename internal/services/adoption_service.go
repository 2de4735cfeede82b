package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

// SiblingRejectionNote is written to competing requests when one is approved.
const SiblingRejectionNote = "Another adopter was approved for this pet"

const stalePetBatchSize = 500

// OwnerDecision is the verdict a pet owner gives on a pending request.
type OwnerDecision string

const (
	OwnerApprove OwnerDecision = "approve"
	OwnerReject  OwnerDecision = "reject"
)

// LifecycleEvents receives notifications after a cascade has been applied.
// Implementations must not block; failures are logged and otherwise ignored.
type LifecycleEvents interface {
	RequestReviewed(ctx context.Context, req *models.AdoptionRequest) error
	PetNeedsReconcile(ctx context.Context, petID primitive.ObjectID) error
}

type noopEvents struct{}

func (noopEvents) RequestReviewed(context.Context, *models.AdoptionRequest) error { return nil }
func (noopEvents) PetNeedsReconcile(context.Context, primitive.ObjectID) error    { return nil }

// IAdoptionService coordinates adoption requests with the listing they target.
type IAdoptionService interface {
	SubmitRequest(ctx context.Context, actor Actor, input models.SubmitRequestInput) (*models.AdoptionRequest, error)
	ReviewAsAdmin(ctx context.Context, actor Actor, requestID primitive.ObjectID, status models.AdoptionStatus, notes string) (*models.AdoptionRequest, error)
	ReviewAsOwner(ctx context.Context, actor Actor, requestID primitive.ObjectID, decision OwnerDecision, notes string) (*models.AdoptionRequest, error)
	CompleteAsOwner(ctx context.Context, actor Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error)
	WithdrawRequest(ctx context.Context, actor Actor, requestID primitive.ObjectID) error
	GetRequest(ctx context.Context, actor Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error)
	ListRequests(ctx context.Context, actor Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error)
	ListRequestsForMyPets(ctx context.Context, actor Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error)
	ReconcilePet(ctx context.Context, petID primitive.ObjectID) error
	ReconcileStalePets(ctx context.Context) (int, error)
	SetLifecycleEvents(events LifecycleEvents)
}

type adoptionService struct {
	pets        IPetLifecycleStore
	requests    IAdoptionRequestStore
	tx          db.Transactor
	events      LifecycleEvents
	gracePeriod time.Duration
	now         func() time.Time
}

// NewAdoptionService creates the coordinator. gracePeriod is how long a pet
// may sit in pending without an approved request before reconciliation
// re-opens it.
func NewAdoptionService(pets IPetLifecycleStore, requests IAdoptionRequestStore, tx db.Transactor, gracePeriod time.Duration) IAdoptionService {
	if tx == nil {
		tx = db.NoTransaction{}
	}
	return &adoptionService{
		pets:        pets,
		requests:    requests,
		tx:          tx,
		events:      noopEvents{},
		gracePeriod: gracePeriod,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetLifecycleEvents allows setting the event sink after initialization to break a cycle.
func (s *adoptionService) SetLifecycleEvents(events LifecycleEvents) {
	if events == nil {
		events = noopEvents{}
	}
	s.events = events
}

func (s *adoptionService) SubmitRequest(ctx context.Context, actor Actor, input models.SubmitRequestInput) (*models.AdoptionRequest, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	petID, err := primitive.ObjectIDFromHex(input.PetID)
	if err != nil {
		return nil, validationError("invalid pet id")
	}

	pet, err := s.pets.FindPetByID(ctx, petID)
	if err != nil {
		return nil, err
	}
	if pet.Status != models.PetStatusAvailable {
		return nil, invalidState("pet is not available for adoption")
	}

	existing, err := s.requests.FindActive(ctx, petID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, invalidState("you already have an active adoption request for this pet")
	}

	now := s.now()
	req := &models.AdoptionRequest{
		ID:              primitive.NewObjectID(),
		PetID:           petID,
		AdopterID:       actor.UserID,
		Status:          models.AdoptionStatusPending,
		ApplicationData: input.ApplicationData,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.requests.Insert(ctx, req); err != nil {
		return nil, err
	}

	// An approval that landed between the check and the insert has already
	// rejected its siblings and would never see this request.
	pet, err = s.pets.FindPetByID(ctx, petID)
	if err == nil && pet.Status != models.PetStatusAvailable {
		if _, delErr := s.requests.Delete(ctx, req.ID, models.AdoptionStatusPending); delErr != nil {
			zap.L().Error("failed to drop request for unavailable pet",
				zap.String("request_id", req.ID.Hex()), zap.Error(delErr))
			s.scheduleReconcile(ctx, petID)
		}
		return nil, invalidState("pet is no longer available for adoption")
	}
	if err != nil {
		zap.L().Warn("failed to recheck pet after submit", zap.String("pet_id", petID.Hex()), zap.Error(err))
	}

	zap.L().Info("adoption request submitted",
		zap.String("request_id", req.ID.Hex()),
		zap.String("pet_id", petID.Hex()),
		zap.String("adopter_id", actor.UserID.Hex()))
	return req, nil
}

// ReviewAsAdmin accepts approved, rejected or completed.
func (s *adoptionService) ReviewAsAdmin(ctx context.Context, actor Actor, requestID primitive.ObjectID, status models.AdoptionStatus, notes string) (*models.AdoptionRequest, error) {
	var act action
	switch status {
	case models.AdoptionStatusApproved:
		act = actionApprove
	case models.AdoptionStatusRejected:
		act = actionReject
	case models.AdoptionStatusCompleted:
		act = actionComplete
	default:
		return nil, validationError("status must be one of [approved rejected completed]")
	}
	return s.transition(ctx, reviewAsAdmin, actor, requestID, act, &notes)
}

func (s *adoptionService) ReviewAsOwner(ctx context.Context, actor Actor, requestID primitive.ObjectID, decision OwnerDecision, notes string) (*models.AdoptionRequest, error) {
	var act action
	switch decision {
	case OwnerApprove:
		act = actionApprove
	case OwnerReject:
		act = actionReject
	default:
		return nil, validationError("action must be one of [approve reject]")
	}
	return s.transition(ctx, reviewAsOwner, actor, requestID, act, &notes)
}

func (s *adoptionService) CompleteAsOwner(ctx context.Context, actor Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	return s.transition(ctx, reviewAsOwner, actor, requestID, actionComplete, nil)
}

// WithdrawRequest lets the applicant (or an admin) delete a request that has not been reviewed.
func (s *adoptionService) WithdrawRequest(ctx context.Context, actor Actor, requestID primitive.ObjectID) error {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.AdopterID != actor.UserID && !actor.IsAdmin() {
		return forbidden("not authorized to delete this request")
	}
	if req.Status != models.AdoptionStatusPending {
		return invalidState("cannot delete a request that is %s", req.Status)
	}

	deleted, err := s.requests.Delete(ctx, requestID, models.AdoptionStatusPending)
	if err != nil {
		return err
	}
	if !deleted {
		return conflict("adoption request changed while being deleted")
	}
	return nil
}

// GetRequest is visible to the applicant, the pet owner and admins.
func (s *adoptionService) GetRequest(ctx context.Context, actor Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.AdopterID == actor.UserID || actor.IsAdmin() {
		return req, nil
	}

	pet, err := s.pets.FindPetByID(ctx, req.PetID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if pet != nil && pet.IsOwnedBy(actor.UserID) {
		return req, nil
	}
	return nil, forbidden("not authorized to access this request")
}

// ListRequests returns every request to admins and the caller's own requests to everyone else.
func (s *adoptionService) ListRequests(ctx context.Context, actor Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error) {
	filter := models.RequestFilter{Status: status}
	if !actor.IsAdmin() {
		userID := actor.UserID
		filter.AdopterID = &userID
	}
	return s.requests.List(ctx, filter)
}

func (s *adoptionService) ListRequestsForMyPets(ctx context.Context, actor Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error) {
	pets, err := s.pets.FindPetsByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(pets) == 0 {
		return []models.AdoptionRequestView{}, nil
	}

	petIDs := make([]primitive.ObjectID, 0, len(pets))
	for _, p := range pets {
		petIDs = append(petIDs, p.ID)
	}
	return s.requests.List(ctx, models.RequestFilter{PetIDs: petIDs, Status: status})
}

// ReconcilePet repairs a pet whose cascade was interrupted. It is safe to run
// any number of times.
func (s *adoptionService) ReconcilePet(ctx context.Context, petID primitive.ObjectID) error {
	pet, err := s.pets.FindPetByID(ctx, petID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	log := zap.L().With(zap.String("pet_id", petID.Hex()))

	approved, err := s.requests.FindByPetAndStatus(ctx, petID, models.AdoptionStatusApproved)
	if err != nil {
		return err
	}
	if len(approved) > 1 {
		log.Error("pet has more than one approved request", zap.Int("count", len(approved)))
	}

	if len(approved) > 0 {
		holder := approved[0]
		n, err := s.requests.RejectPendingSiblings(ctx, petID, holder.ID, nil, SiblingRejectionNote)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("reconcile rejected stray pending requests", zap.Int64("count", n))
		}
		if pet.Status == models.PetStatusAvailable {
			adopter := holder.AdopterID
			held, err := s.pets.TransitionPet(ctx, petID,
				PetGuard{Status: models.PetStatusAvailable},
				PetTransition{Status: models.PetStatusPending, AdoptedBy: &adopter})
			if err != nil {
				return err
			}
			if held {
				log.Info("reconcile held pet for approved adopter", zap.String("adopter_id", adopter.Hex()))
			}
		}
		return nil
	}

	if pet.Status != models.PetStatusPending {
		return nil
	}

	completed, err := s.requests.FindByPetAndStatus(ctx, petID, models.AdoptionStatusCompleted)
	if err != nil {
		return err
	}
	if len(completed) > 0 {
		adopter := completed[0].AdopterID
		adoptedAt := s.now()
		_, err := s.pets.TransitionPet(ctx, petID,
			PetGuard{Status: models.PetStatusPending},
			PetTransition{Status: models.PetStatusAdopted, AdoptedBy: &adopter, AdoptedAt: &adoptedAt})
		if err == nil {
			log.Info("reconcile finalized adopted pet")
		}
		return err
	}

	// A cascade that is still in flight holds the pet briefly before its request moves.
	if s.now().Sub(pet.UpdatedAt) < s.gracePeriod {
		return nil
	}
	reopened, err := s.pets.TransitionPet(ctx, petID,
		PetGuard{Status: models.PetStatusPending, AdoptedBy: pet.AdoptedBy},
		PetTransition{Status: models.PetStatusAvailable})
	if err != nil {
		return err
	}
	if reopened {
		log.Warn("reconcile re-opened pending pet with no approved request")
	}
	return nil
}

// ReconcileStalePets runs ReconcilePet over pets that have been pending for
// longer than the grace period. It returns how many pets were visited.
func (s *adoptionService) ReconcileStalePets(ctx context.Context) (int, error) {
	pets, err := s.pets.FindStalePendingPets(ctx, s.now().Add(-s.gracePeriod), stalePetBatchSize)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, p := range pets {
		if err := s.ReconcilePet(ctx, p.ID); err != nil {
			zap.L().Warn("failed to reconcile pet", zap.String("pet_id", p.ID.Hex()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return len(pets), errors.Join(errs...)
}
