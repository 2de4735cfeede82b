package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/models"
	"furadapt/api/internal/monitoring"
)

type action string

const (
	actionApprove  action = "approve"
	actionReject   action = "reject"
	actionComplete action = "complete"
)

type reviewPath int

const (
	reviewAsAdmin reviewPath = iota
	reviewAsOwner
)

type transitionRule struct {
	to   models.AdoptionStatus
	from map[reviewPath][]models.AdoptionStatus
}

// transitionRules is the single source of truth for which review moves are legal.
var transitionRules = map[action]transitionRule{
	actionApprove: {
		to: models.AdoptionStatusApproved,
		from: map[reviewPath][]models.AdoptionStatus{
			reviewAsAdmin: {models.AdoptionStatusPending},
			reviewAsOwner: {models.AdoptionStatusPending},
		},
	},
	actionReject: {
		to: models.AdoptionStatusRejected,
		from: map[reviewPath][]models.AdoptionStatus{
			reviewAsAdmin: {models.AdoptionStatusPending, models.AdoptionStatusApproved},
			reviewAsOwner: {models.AdoptionStatusPending},
		},
	},
	actionComplete: {
		to: models.AdoptionStatusCompleted,
		from: map[reviewPath][]models.AdoptionStatus{
			reviewAsAdmin: {models.AdoptionStatusApproved},
			reviewAsOwner: {models.AdoptionStatusApproved},
		},
	},
}

func statusIn(status models.AdoptionStatus, allowed []models.AdoptionStatus) bool {
	for _, a := range allowed {
		if a == status {
			return true
		}
	}
	return false
}

func (s *adoptionService) transition(ctx context.Context, path reviewPath, actor Actor, requestID primitive.ObjectID, act action, notes *string) (*models.AdoptionRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	pet, err := s.pets.FindPetByID(ctx, req.PetID)
	if err != nil {
		return nil, err
	}

	switch path {
	case reviewAsAdmin:
		if !actor.IsAdmin() {
			return nil, forbidden("admin access required")
		}
	case reviewAsOwner:
		if !pet.IsOwnedBy(actor.UserID) {
			return nil, forbidden("not authorized, you must be the pet owner")
		}
	}

	rule := transitionRules[act]
	if !statusIn(req.Status, rule.from[path]) {
		return nil, invalidState("cannot %s a request that is %s", act, req.Status)
	}
	if act == actionApprove && pet.Status != models.PetStatusAvailable {
		return nil, invalidState("pet is no longer available for adoption")
	}

	patch := models.RequestPatch{Status: rule.to, AdminNotes: notes}
	if act != actionComplete {
		reviewer := actor.UserID
		reviewedAt := s.now()
		patch.ReviewedBy = &reviewer
		patch.ReviewedAt = &reviewedAt
	}

	var updated *models.AdoptionRequest
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		switch act {
		case actionApprove:
			updated, err = s.applyApprove(ctx, req, patch)
		case actionReject:
			updated, err = s.applyReject(ctx, req, patch)
		case actionComplete:
			updated, err = s.applyComplete(ctx, req, patch)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("adoption request transitioned",
		zap.String("request_id", req.ID.Hex()),
		zap.String("pet_id", req.PetID.Hex()),
		zap.String("from", string(req.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("by", actor.UserID.Hex()))

	monitoring.AdoptionTransitions.WithLabelValues(string(updated.Status)).Inc()

	if err := s.events.RequestReviewed(ctx, updated); err != nil {
		zap.L().Warn("failed to publish request reviewed event", zap.String("request_id", req.ID.Hex()), zap.Error(err))
	}
	s.scheduleReconcile(ctx, req.PetID)
	return updated, nil
}

// applyApprove holds the pet for the applicant, approves the request, then
// rejects every other pending request for the pet.
func (s *adoptionService) applyApprove(ctx context.Context, req *models.AdoptionRequest, patch models.RequestPatch) (*models.AdoptionRequest, error) {
	adopter := req.AdopterID
	held, err := s.pets.TransitionPet(ctx, req.PetID,
		PetGuard{Status: models.PetStatusAvailable},
		PetTransition{Status: models.PetStatusPending, AdoptedBy: &adopter})
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, conflict("pet is no longer available for adoption")
	}

	updated, err := s.requests.Transition(ctx, req.ID, []models.AdoptionStatus{models.AdoptionStatusPending}, patch)
	if err != nil || updated == nil {
		s.restorePet(ctx, req.PetID,
			PetGuard{Status: models.PetStatusPending, AdoptedBy: &adopter},
			PetTransition{Status: models.PetStatusAvailable})
		if err != nil {
			return nil, err
		}
		return nil, conflict("adoption request changed while being reviewed")
	}

	n, err := s.requests.RejectPendingSiblings(ctx, req.PetID, req.ID, patch.ReviewedBy, SiblingRejectionNote)
	if err != nil {
		// Undo in reverse order so the approval is all or nothing.
		s.restoreRequest(ctx, req, models.AdoptionStatusApproved)
		s.restorePet(ctx, req.PetID,
			PetGuard{Status: models.PetStatusPending, AdoptedBy: &adopter},
			PetTransition{Status: models.PetStatusAvailable})
		return nil, fmt.Errorf("failed to reject competing requests for pet %s: %w", req.PetID.Hex(), err)
	}
	if n > 0 {
		zap.L().Info("rejected competing requests", zap.String("pet_id", req.PetID.Hex()), zap.Int64("count", n))
	}
	return updated, nil
}

// applyReject releases the pet first when the request was holding it.
func (s *adoptionService) applyReject(ctx context.Context, req *models.AdoptionRequest, patch models.RequestPatch) (*models.AdoptionRequest, error) {
	adopter := req.AdopterID
	released := false
	if req.Status == models.AdoptionStatusApproved {
		ok, err := s.pets.TransitionPet(ctx, req.PetID,
			PetGuard{Status: models.PetStatusPending, AdoptedBy: &adopter},
			PetTransition{Status: models.PetStatusAvailable})
		if err != nil {
			return nil, err
		}
		if !ok {
			zap.L().Warn("rejected approved request whose pet was not held for the applicant",
				zap.String("request_id", req.ID.Hex()), zap.String("pet_id", req.PetID.Hex()))
		}
		released = ok
	}

	updated, err := s.requests.Transition(ctx, req.ID, []models.AdoptionStatus{req.Status}, patch)
	if err != nil || updated == nil {
		if released {
			s.restorePet(ctx, req.PetID,
				PetGuard{Status: models.PetStatusAvailable},
				PetTransition{Status: models.PetStatusPending, AdoptedBy: &adopter})
		}
		if err != nil {
			return nil, err
		}
		return nil, conflict("adoption request changed while being reviewed")
	}
	return updated, nil
}

// applyComplete finalizes the pet, then the request.
func (s *adoptionService) applyComplete(ctx context.Context, req *models.AdoptionRequest, patch models.RequestPatch) (*models.AdoptionRequest, error) {
	adopter := req.AdopterID
	adoptedAt := s.now()
	ok, err := s.pets.TransitionPet(ctx, req.PetID,
		PetGuard{Status: models.PetStatusPending, AdoptedBy: &adopter},
		PetTransition{Status: models.PetStatusAdopted, AdoptedBy: &adopter, AdoptedAt: &adoptedAt})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflict("pet is not held for this applicant")
	}

	updated, err := s.requests.Transition(ctx, req.ID, []models.AdoptionStatus{models.AdoptionStatusApproved}, patch)
	if err != nil || updated == nil {
		s.restorePet(ctx, req.PetID,
			PetGuard{Status: models.PetStatusAdopted, AdoptedBy: &adopter},
			PetTransition{Status: models.PetStatusPending, AdoptedBy: &adopter})
		if err != nil {
			return nil, err
		}
		return nil, conflict("adoption request changed while being completed")
	}
	return updated, nil
}

// restorePet undoes an earlier cascade step. A failed undo is left to reconciliation.
func (s *adoptionService) restorePet(ctx context.Context, petID primitive.ObjectID, guard PetGuard, to PetTransition) {
	ok, err := s.pets.TransitionPet(ctx, petID, guard, to)
	if err != nil || !ok {
		zap.L().Error("failed to compensate pet after lost race",
			zap.String("pet_id", petID.Hex()), zap.Bool("matched", ok), zap.Error(err))
		s.scheduleReconcile(ctx, petID)
	}
}

// restoreRequest moves req back from the status a cascade gave it to the one
// it had before. A failed undo is left to reconciliation.
func (s *adoptionService) restoreRequest(ctx context.Context, req *models.AdoptionRequest, from models.AdoptionStatus) {
	notes := req.AdminNotes
	restored, err := s.requests.Transition(ctx, req.ID, []models.AdoptionStatus{from}, models.RequestPatch{
		Status:      req.Status,
		ReviewedBy:  req.ReviewedBy,
		ReviewedAt:  req.ReviewedAt,
		AdminNotes:  &notes,
		ClearReview: req.ReviewedBy == nil,
	})
	if err != nil || restored == nil {
		zap.L().Error("failed to roll back adoption request",
			zap.String("request_id", req.ID.Hex()), zap.Bool("matched", restored != nil), zap.Error(err))
		s.scheduleReconcile(ctx, req.PetID)
	}
}

func (s *adoptionService) scheduleReconcile(ctx context.Context, petID primitive.ObjectID) {
	if err := s.events.PetNeedsReconcile(ctx, petID); err != nil {
		zap.L().Warn("failed to schedule pet reconcile", zap.String("pet_id", petID.Hex()), zap.Error(err))
	}
}
