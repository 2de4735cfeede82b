package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
)

// memPetStore is an in-memory IPetLifecycleStore with the same
// compare-and-swap semantics as the Mongo store.
type memPetStore struct {
	mu   sync.Mutex
	pets map[primitive.ObjectID]*models.Pet
	// afterFind runs once a read has been served, outside the lock.
	afterFind func()
}

func newMemPetStore() *memPetStore {
	return &memPetStore{pets: map[primitive.ObjectID]*models.Pet{}}
}

func (m *memPetStore) add(owner primitive.ObjectID) *models.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p := &models.Pet{
		ID:        primitive.NewObjectID(),
		Name:      "Biscuit",
		Species:   "dog",
		Status:    models.PetStatusAvailable,
		AddedBy:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.pets[p.ID] = p
	cp := *p
	return &cp
}

func (m *memPetStore) get(id primitive.ObjectID) models.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.pets[id]
}

func (m *memPetStore) set(p models.Pet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[p.ID] = &p
}

func (m *memPetStore) FindPetByID(_ context.Context, petID primitive.ObjectID) (*models.Pet, error) {
	m.mu.Lock()
	p, ok := m.pets[petID]
	var cp models.Pet
	if ok {
		cp = *p
	}
	hook := m.afterFind
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, notFound("pet not found")
	}
	return &cp, nil
}

func (m *memPetStore) FindPetsByOwner(_ context.Context, ownerID primitive.ObjectID) ([]models.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Pet{}
	for _, p := range m.pets {
		if p.AddedBy == ownerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPetStore) TransitionPet(_ context.Context, petID primitive.ObjectID, guard PetGuard, to PetTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pets[petID]
	if !ok || p.Status != guard.Status {
		return false, nil
	}
	if guard.AdoptedBy != nil && (p.AdoptedBy == nil || *p.AdoptedBy != *guard.AdoptedBy) {
		return false, nil
	}
	p.Status = to.Status
	p.AdoptedBy = to.AdoptedBy
	p.AdoptedAt = to.AdoptedAt
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memPetStore) FindStalePendingPets(_ context.Context, updatedBefore time.Time, limit int) ([]models.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Pet{}
	for _, p := range m.pets {
		if p.Status == models.PetStatusPending && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, *p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memRequestStore is an in-memory IAdoptionRequestStore enforcing the
// one-active-request-per-(pet, adopter) rule at insert time.
type memRequestStore struct {
	mu       sync.Mutex
	requests map[primitive.ObjectID]*models.AdoptionRequest

	// beforeTransition runs ahead of each Transition, outside the lock, so a
	// test can simulate a concurrent writer.
	beforeTransition func(requestID primitive.ObjectID)
	siblingErr       error
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{requests: map[primitive.ObjectID]*models.AdoptionRequest{}}
}

func (m *memRequestStore) get(id primitive.ObjectID) models.AdoptionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *memRequestStore) setStatus(id primitive.ObjectID, status models.AdoptionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id].Status = status
	m.requests[id].Active = status.IsActive()
}

func (m *memRequestStore) Insert(_ context.Context, req *models.AdoptionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	req.Active = req.Status.IsActive()
	for _, r := range m.requests {
		if r.Active && req.Active && r.PetID == req.PetID && r.AdopterID == req.AdopterID {
			return conflict("you already have an active adoption request for this pet")
		}
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memRequestStore) FindByID(_ context.Context, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, notFound("adoption request not found")
	}
	cp := *r
	return &cp, nil
}

func (m *memRequestStore) FindActive(_ context.Context, petID, adopterID primitive.ObjectID) (*models.AdoptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Active && r.PetID == petID && r.AdopterID == adopterID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRequestStore) List(_ context.Context, filter models.RequestFilter) ([]models.AdoptionRequestView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AdoptionRequestView{}
	for _, r := range m.requests {
		if filter.AdopterID != nil && r.AdopterID != *filter.AdopterID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.PetIDs != nil && !containsID(filter.PetIDs, r.PetID) {
			continue
		}
		out = append(out, models.AdoptionRequestView{AdoptionRequest: *r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *memRequestStore) FindByPetAndStatus(_ context.Context, petID primitive.ObjectID, status models.AdoptionStatus) ([]models.AdoptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AdoptionRequest{}
	for _, r := range m.requests {
		if r.PetID == petID && r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRequestStore) Transition(_ context.Context, requestID primitive.ObjectID, from []models.AdoptionStatus, patch models.RequestPatch) (*models.AdoptionRequest, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(requestID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || !statusIn(r.Status, from) {
		return nil, nil
	}
	r.Status = patch.Status
	r.Active = patch.Status.IsActive()
	r.UpdatedAt = time.Now().UTC()
	if patch.ReviewedBy != nil {
		r.ReviewedBy = patch.ReviewedBy
	}
	if patch.ReviewedAt != nil {
		r.ReviewedAt = patch.ReviewedAt
	}
	if patch.AdminNotes != nil {
		r.AdminNotes = *patch.AdminNotes
	}
	if patch.ClearReview {
		r.ReviewedBy = nil
		r.ReviewedAt = nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRequestStore) RejectPendingSiblings(_ context.Context, petID, exceptID primitive.ObjectID, reviewer *primitive.ObjectID, note string) (int64, error) {
	if m.siblingErr != nil {
		return 0, m.siblingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.requests {
		if r.PetID == petID && r.ID != exceptID && r.Status == models.AdoptionStatusPending {
			r.Status = models.AdoptionStatusRejected
			r.Active = false
			r.AdminNotes = note
			r.ReviewedBy = reviewer
			n++
		}
	}
	return n, nil
}

func (m *memRequestStore) CountActiveForPet(_ context.Context, petID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.requests {
		if r.PetID == petID && r.Active {
			n++
		}
	}
	return n, nil
}

func (m *memRequestStore) Delete(_ context.Context, requestID primitive.ObjectID, fromStatus models.AdoptionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.Status != fromStatus {
		return false, nil
	}
	delete(m.requests, requestID)
	return true, nil
}

// recordingEvents captures lifecycle events.
type recordingEvents struct {
	mu        sync.Mutex
	reviewed  []models.AdoptionStatus
	reconcile []primitive.ObjectID
	fail      bool
}

func (e *recordingEvents) RequestReviewed(_ context.Context, req *models.AdoptionRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return errors.New("queue unavailable")
	}
	e.reviewed = append(e.reviewed, req.Status)
	return nil
}

func (e *recordingEvents) PetNeedsReconcile(_ context.Context, petID primitive.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return errors.New("queue unavailable")
	}
	e.reconcile = append(e.reconcile, petID)
	return nil
}
