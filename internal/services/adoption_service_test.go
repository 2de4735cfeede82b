package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

type adoptionFixture struct {
	svc      IAdoptionService
	pets     *memPetStore
	requests *memRequestStore
	events   *recordingEvents
	owner    Actor
	admin    Actor
}

func newAdoptionFixture(t *testing.T) *adoptionFixture {
	t.Helper()
	pets := newMemPetStore()
	requests := newMemRequestStore()
	events := &recordingEvents{}
	svc := NewAdoptionService(pets, requests, db.NoTransaction{}, 2*time.Minute)
	svc.SetLifecycleEvents(events)
	return &adoptionFixture{
		svc:      svc,
		pets:     pets,
		requests: requests,
		events:   events,
		owner:    Actor{UserID: primitive.NewObjectID(), Role: models.RoleUser},
		admin:    Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
}

func newApplicant() Actor {
	return Actor{UserID: primitive.NewObjectID(), Role: models.RoleUser}
}

func validApplication() models.ApplicationData {
	return models.ApplicationData{
		LivingSpace:  "house",
		HasYard:      true,
		Experience:   "Grew up with dogs",
		Reason:       "Looking for a running partner",
		WorkSchedule: "Remote, flexible",
		EmergencyContact: models.EmergencyContact{
			Name:         "Sam",
			Phone:        "555-0100",
			Relationship: "sibling",
		},
	}
}

func (f *adoptionFixture) submit(t *testing.T, applicant Actor, pet *models.Pet) *models.AdoptionRequest {
	t.Helper()
	req, err := f.svc.SubmitRequest(context.Background(), applicant, models.SubmitRequestInput{
		PetID:           pet.ID.Hex(),
		ApplicationData: validApplication(),
	})
	require.NoError(t, err)
	return req
}

func TestAdoptionService_SubmitCreatesPendingRequest(t *testing.T) {
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()

	req := f.submit(t, applicant, pet)

	assert.Equal(t, models.AdoptionStatusPending, req.Status)
	assert.Equal(t, applicant.UserID, req.AdopterID)
	assert.Equal(t, models.PetStatusAvailable, f.pets.get(pet.ID).Status)
	assert.Nil(t, f.pets.get(pet.ID).AdoptedBy)
}

func TestAdoptionService_SubmitRejections(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()

	t.Run("second active request", func(t *testing.T) {
		f.submit(t, applicant, pet)
		_, err := f.svc.SubmitRequest(ctx, applicant, models.SubmitRequestInput{PetID: pet.ID.Hex(), ApplicationData: validApplication()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState) || errors.Is(err, ErrConflict))
	})

	t.Run("unknown pet", func(t *testing.T) {
		_, err := f.svc.SubmitRequest(ctx, applicant, models.SubmitRequestInput{PetID: primitive.NewObjectID().Hex(), ApplicationData: validApplication()})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed pet id", func(t *testing.T) {
		_, err := f.svc.SubmitRequest(ctx, applicant, models.SubmitRequestInput{PetID: "nope", ApplicationData: validApplication()})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing application fields", func(t *testing.T) {
		app := validApplication()
		app.Reason = ""
		app.EmergencyContact.Phone = ""
		_, err := f.svc.SubmitRequest(ctx, newApplicant(), models.SubmitRequestInput{PetID: pet.ID.Hex(), ApplicationData: app})
		require.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "ApplicationData.Reason is required")
	})

	t.Run("pet not available", func(t *testing.T) {
		held := f.pets.add(f.owner.UserID)
		p := f.pets.get(held.ID)
		p.Status = models.PetStatusPending
		f.pets.set(p)
		_, err := f.svc.SubmitRequest(ctx, newApplicant(), models.SubmitRequestInput{PetID: held.ID.Hex(), ApplicationData: validApplication()})
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestAdoptionService_AdminApproveHoldsPet(t *testing.T) {
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()
	req := f.submit(t, applicant, pet)

	updated, err := f.svc.ReviewAsAdmin(context.Background(), f.admin, req.ID, models.AdoptionStatusApproved, "looks good")
	require.NoError(t, err)

	assert.Equal(t, models.AdoptionStatusApproved, updated.Status)
	assert.Equal(t, "looks good", updated.AdminNotes)
	require.NotNil(t, updated.ReviewedBy)
	assert.Equal(t, f.admin.UserID, *updated.ReviewedBy)
	assert.NotNil(t, updated.ReviewedAt)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusPending, got.Status)
	require.NotNil(t, got.AdoptedBy)
	assert.Equal(t, applicant.UserID, *got.AdoptedBy)

	assert.Equal(t, []models.AdoptionStatus{models.AdoptionStatusApproved}, f.events.reviewed)
	assert.Equal(t, []primitive.ObjectID{pet.ID}, f.events.reconcile)
}

func TestAdoptionService_OwnerApproveRejectsCompetitors(t *testing.T) {
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	a1, a2 := newApplicant(), newApplicant()
	r1 := f.submit(t, a1, pet)
	r2 := f.submit(t, a2, pet)

	_, err := f.svc.ReviewAsOwner(context.Background(), f.owner, r1.ID, OwnerApprove, "")
	require.NoError(t, err)

	assert.Equal(t, models.AdoptionStatusApproved, f.requests.get(r1.ID).Status)
	loser := f.requests.get(r2.ID)
	assert.Equal(t, models.AdoptionStatusRejected, loser.Status)
	assert.Equal(t, SiblingRejectionNote, loser.AdminNotes)
	assert.False(t, loser.Active)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusPending, got.Status)
	assert.Equal(t, a1.UserID, *got.AdoptedBy)
}

func TestAdoptionService_OwnerCompleteAdoptsPet(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()
	req := f.submit(t, applicant, pet)

	_, err := f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerApprove, "")
	require.NoError(t, err)

	completed, err := f.svc.CompleteAsOwner(ctx, f.owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdoptionStatusCompleted, completed.Status)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusAdopted, got.Status)
	assert.Equal(t, applicant.UserID, *got.AdoptedBy)
	assert.NotNil(t, got.AdoptedAt)

	// Terminal: nothing moves a completed request.
	_, err = f.svc.ReviewAsAdmin(ctx, f.admin, req.ID, models.AdoptionStatusRejected, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAdoptionService_CompleteRequiresApproval(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	req := f.submit(t, newApplicant(), pet)

	_, err := f.svc.CompleteAsOwner(ctx, f.owner, req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.ReviewAsAdmin(ctx, f.admin, req.ID, models.AdoptionStatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.PetStatusAvailable, f.pets.get(pet.ID).Status)
}

func TestAdoptionService_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()
	req := f.submit(t, applicant, pet)
	stranger := newApplicant()

	_, err := f.svc.ReviewAsOwner(ctx, stranger, req.ID, OwnerApprove, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// Admin role does not grant the owner path.
	_, err = f.svc.ReviewAsOwner(ctx, f.admin, req.ID, OwnerApprove, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ReviewAsAdmin(ctx, f.owner, req.ID, models.AdoptionStatusApproved, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CompleteAsOwner(ctx, applicant, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, models.AdoptionStatusPending, f.requests.get(req.ID).Status)
	assert.Equal(t, models.PetStatusAvailable, f.pets.get(pet.ID).Status)
	assert.Empty(t, f.events.reviewed)
}

func TestAdoptionService_InvalidInputs(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	req := f.submit(t, newApplicant(), pet)

	_, err := f.svc.ReviewAsAdmin(ctx, f.admin, req.ID, models.AdoptionStatusPending, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerDecision("maybe"), "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ReviewAsAdmin(ctx, f.admin, primitive.NewObjectID(), models.AdoptionStatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdoptionService_RejectPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cannot reject an approved request", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.add(f.owner.UserID)
		req := f.submit(t, newApplicant(), pet)
		_, err := f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerApprove, "")
		require.NoError(t, err)

		_, err = f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerReject, "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("admin rejecting an approved request releases the pet", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.add(f.owner.UserID)
		applicant := newApplicant()
		req := f.submit(t, applicant, pet)
		_, err := f.svc.ReviewAsAdmin(ctx, f.admin, req.ID, models.AdoptionStatusApproved, "")
		require.NoError(t, err)

		rejected, err := f.svc.ReviewAsAdmin(ctx, f.admin, req.ID, models.AdoptionStatusRejected, "fell through")
		require.NoError(t, err)
		assert.Equal(t, models.AdoptionStatusRejected, rejected.Status)

		got := f.pets.get(pet.ID)
		assert.Equal(t, models.PetStatusAvailable, got.Status)
		assert.Nil(t, got.AdoptedBy)

		// The slot is free again.
		again := f.submit(t, applicant, pet)
		assert.Equal(t, models.AdoptionStatusPending, again.Status)
	})

	t.Run("rejecting a pending request leaves the pet alone", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.add(f.owner.UserID)
		req := f.submit(t, newApplicant(), pet)

		_, err := f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerReject, "not a fit")
		require.NoError(t, err)
		assert.Equal(t, "not a fit", f.requests.get(req.ID).AdminNotes)
		assert.Equal(t, models.PetStatusAvailable, f.pets.get(pet.ID).Status)
	})
}

func TestAdoptionService_ConcurrentApprovalsAreMutuallyExclusive(t *testing.T) {
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)

	const n = 8
	reqs := make([]*models.AdoptionRequest, n)
	for i := range reqs {
		reqs[i] = f.submit(t, newApplicant(), pet)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ReviewAsOwner(context.Background(), f.owner, reqs[i].ID, OwnerApprove, "")
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner *models.AdoptionRequest
	for i, err := range errs {
		if err == nil {
			winners++
			winner = reqs[i]
			continue
		}
		assert.True(t, errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState), "unexpected error: %v", err)
	}
	require.Equal(t, 1, winners)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusPending, got.Status)
	assert.Equal(t, winner.AdopterID, *got.AdoptedBy)

	approved := 0
	for _, r := range reqs {
		switch f.requests.get(r.ID).Status {
		case models.AdoptionStatusApproved:
			approved++
		case models.AdoptionStatusPending:
			t.Errorf("request %s left pending after a competitor was approved", r.ID.Hex())
		}
	}
	assert.Equal(t, 1, approved)
}

func TestAdoptionService_LostRaceCompensatesPet(t *testing.T) {
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	req := f.submit(t, newApplicant(), pet)

	// Someone rejects the request between the pet hold and the request update.
	f.requests.beforeTransition = func(id primitive.ObjectID) {
		f.requests.setStatus(id, models.AdoptionStatusRejected)
	}

	_, err := f.svc.ReviewAsAdmin(context.Background(), f.admin, req.ID, models.AdoptionStatusApproved, "")
	assert.ErrorIs(t, err, ErrConflict)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusAvailable, got.Status)
	assert.Nil(t, got.AdoptedBy)
	assert.Empty(t, f.events.reviewed)
}

func TestAdoptionService_LostRaceOnCompleteRestoresHold(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()
	req := f.submit(t, applicant, pet)
	_, err := f.svc.ReviewAsOwner(ctx, f.owner, req.ID, OwnerApprove, "")
	require.NoError(t, err)

	f.requests.beforeTransition = func(id primitive.ObjectID) {
		f.requests.setStatus(id, models.AdoptionStatusRejected)
	}
	_, err = f.svc.CompleteAsOwner(ctx, f.owner, req.ID)
	assert.ErrorIs(t, err, ErrConflict)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusPending, got.Status)
	assert.Equal(t, applicant.UserID, *got.AdoptedBy)
	assert.Nil(t, got.AdoptedAt)
}

func TestAdoptionService_SiblingFailureRollsBackApproval(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	r1 := f.submit(t, newApplicant(), pet)
	r2 := f.submit(t, newApplicant(), pet)
	f.requests.siblingErr = errors.New("write failed")

	_, err := f.svc.ReviewAsOwner(ctx, f.owner, r1.ID, OwnerApprove, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusAvailable, got.Status)
	assert.Nil(t, got.AdoptedBy)

	first := f.requests.get(r1.ID)
	assert.Equal(t, models.AdoptionStatusPending, first.Status)
	assert.True(t, first.Active)
	assert.Nil(t, first.ReviewedBy)
	assert.Nil(t, first.ReviewedAt)
	assert.Equal(t, models.AdoptionStatusPending, f.requests.get(r2.ID).Status)
	assert.Empty(t, f.events.reviewed)

	// The owner can simply retry once the store recovers.
	f.requests.siblingErr = nil
	updated, err := f.svc.ReviewAsOwner(ctx, f.owner, r1.ID, OwnerApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.AdoptionStatusApproved, updated.Status)
	assert.Equal(t, models.AdoptionStatusRejected, f.requests.get(r2.ID).Status)
}

func TestAdoptionService_SubmitLosesToConcurrentApproval(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	first := newApplicant()
	r1 := f.submit(t, first, pet)

	// The owner approves r1 right after the late applicant saw the pet
	// as available.
	f.pets.afterFind = func() {
		f.pets.afterFind = nil
		_, err := f.svc.ReviewAsOwner(ctx, f.owner, r1.ID, OwnerApprove, "")
		require.NoError(t, err)
	}

	late := newApplicant()
	_, err := f.svc.SubmitRequest(ctx, late, models.SubmitRequestInput{PetID: pet.ID.Hex(), ApplicationData: validApplication()})
	assert.ErrorIs(t, err, ErrInvalidState)

	left, err := f.requests.FindActive(ctx, pet.ID, late.UserID)
	require.NoError(t, err)
	assert.Nil(t, left)

	got := f.pets.get(pet.ID)
	assert.Equal(t, models.PetStatusPending, got.Status)
	require.NotNil(t, got.AdoptedBy)
	assert.Equal(t, first.UserID, *got.AdoptedBy)
	assert.Equal(t, models.AdoptionStatusApproved, f.requests.get(r1.ID).Status)

	active, err := f.requests.CountActiveForPet(ctx, pet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestAdoptionService_Withdraw(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	applicant := newApplicant()
	req := f.submit(t, applicant, pet)

	err := f.svc.WithdrawRequest(ctx, newApplicant(), req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.WithdrawRequest(ctx, applicant, req.ID))
	_, err = f.svc.GetRequest(ctx, applicant, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	approved := f.submit(t, applicant, pet)
	_, err = f.svc.ReviewAsOwner(ctx, f.owner, approved.ID, OwnerApprove, "")
	require.NoError(t, err)
	err = f.svc.WithdrawRequest(ctx, applicant, approved.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAdoptionService_GetAndList(t *testing.T) {
	ctx := context.Background()
	f := newAdoptionFixture(t)
	pet := f.pets.add(f.owner.UserID)
	other := f.pets.add(primitive.NewObjectID())
	a1, a2 := newApplicant(), newApplicant()
	r1 := f.submit(t, a1, pet)
	f.submit(t, a2, pet)
	f.submit(t, a1, other)

	_, err := f.svc.GetRequest(ctx, f.owner, r1.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetRequest(ctx, f.admin, r1.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetRequest(ctx, a2, r1.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	all, err := f.svc.ListRequests(ctx, f.admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := f.svc.ListRequests(ctx, a1, "")
	require.NoError(t, err)
	assert.Len(t, own, 2)
	for _, v := range own {
		assert.Equal(t, a1.UserID, v.AdopterID)
	}

	mine, err := f.svc.ListRequestsForMyPets(ctx, f.owner, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := f.svc.ListRequestsForMyPets(ctx, newApplicant(), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdoptionService_ReconcilePet(t *testing.T) {
	ctx := context.Background()

	t.Run("re-opens a stale pending pet", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.get(f.pets.add(f.owner.UserID).ID)
		ghost := primitive.NewObjectID()
		pet.Status = models.PetStatusPending
		pet.AdoptedBy = &ghost
		pet.UpdatedAt = time.Now().Add(-time.Hour)
		f.pets.set(pet)

		require.NoError(t, f.svc.ReconcilePet(ctx, pet.ID))
		got := f.pets.get(pet.ID)
		assert.Equal(t, models.PetStatusAvailable, got.Status)
		assert.Nil(t, got.AdoptedBy)
	})

	t.Run("leaves a freshly held pet alone", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.get(f.pets.add(f.owner.UserID).ID)
		ghost := primitive.NewObjectID()
		pet.Status = models.PetStatusPending
		pet.AdoptedBy = &ghost
		pet.UpdatedAt = time.Now()
		f.pets.set(pet)

		require.NoError(t, f.svc.ReconcilePet(ctx, pet.ID))
		assert.Equal(t, models.PetStatusPending, f.pets.get(pet.ID).Status)
	})

	t.Run("holds an available pet for its approved adopter", func(t *testing.T) {
		f := newAdoptionFixture(t)
		pet := f.pets.add(f.owner.UserID)
		applicant := newApplicant()
		req := f.submit(t, applicant, pet)
		stray := f.submit(t, newApplicant(), pet)
		f.requests.setStatus(req.ID, models.AdoptionStatusApproved)

		require.NoError(t, f.svc.ReconcilePet(ctx, pet.ID))
		got := f.pets.get(pet.ID)
		assert.Equal(t, models.PetStatusPending, got.Status)
		assert.Equal(t, applicant.UserID, *got.AdoptedBy)
		assert.Equal(t, models.AdoptionStatusRejected, f.requests.get(stray.ID).Status)

		// Idempotent.
		require.NoError(t, f.svc.ReconcilePet(ctx, pet.ID))
		assert.Equal(t, models.PetStatusPending, f.pets.get(pet.ID).Status)
	})

	t.Run("unknown pet is a no-op", func(t *testing.T) {
		f := newAdoptionFixture(t)
		assert.NoError(t, f.svc.ReconcilePet(ctx, primitive.NewObjectID()))
	})
}

func TestAdoptionService_ReconcileStalePets(t *testing.T) {
	f := newAdoptionFixture(t)
	for i := 0; i < 3; i++ {
		pet := f.pets.get(f.pets.add(f.owner.UserID).ID)
		pet.Status = models.PetStatusPending
		pet.UpdatedAt = time.Now().Add(-time.Hour)
		f.pets.set(pet)
	}
	f.pets.add(f.owner.UserID)

	visited, err := f.svc.ReconcileStalePets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, visited)

	stale, err := f.pets.FindStalePendingPets(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
