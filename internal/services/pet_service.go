package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

// PetGuard is the precondition of a conditional pet update.
type PetGuard struct {
	Status    models.PetStatus
	AdoptedBy *primitive.ObjectID // nil means "not checked"
}

// PetTransition is the lifecycle state a conditional pet update writes.
// AdoptedBy and AdoptedAt are always written, nil clears them.
type PetTransition struct {
	Status    models.PetStatus
	AdoptedBy *primitive.ObjectID
	AdoptedAt *time.Time
}

// IPetLifecycleStore is the part of the listing store the adoption workflow drives.
type IPetLifecycleStore interface {
	FindPetByID(ctx context.Context, petID primitive.ObjectID) (*models.Pet, error)
	FindPetsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Pet, error)
	// TransitionPet applies to only if the pet currently matches guard. It
	// reports whether the pet was updated.
	TransitionPet(ctx context.Context, petID primitive.ObjectID, guard PetGuard, to PetTransition) (bool, error)
	FindStalePendingPets(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Pet, error)
}

// IPetService defines the interface for listing-related operations.
type IPetService interface {
	IPetLifecycleStore
	CreatePet(ctx context.Context, ownerID primitive.ObjectID, input models.PetInput) (*models.Pet, error)
	SearchPets(ctx context.Context, filter models.PetFilter, page, limit int) ([]models.Pet, int64, error)
	UpdatePet(ctx context.Context, petID primitive.ObjectID, actor Actor, updates map[string]interface{}) (*models.Pet, error)
	DeletePet(ctx context.Context, petID primitive.ObjectID, actor Actor) error
	AddImageToPet(ctx context.Context, petID primitive.ObjectID, imageKey string) error
}

// ActiveRequestCounter reports how many pending or approved requests reference a pet.
type ActiveRequestCounter interface {
	CountActiveForPet(ctx context.Context, petID primitive.ObjectID) (int64, error)
}

const (
	defaultPetPageSize = 12
	maxPetPageSize     = 100
	maxPetPage         = 10000
)

// petService implements IPetService.
type petService struct {
	db             *mongo.Database
	activeRequests ActiveRequestCounter
}

// NewPetService creates a new PetService.
func NewPetService(db *mongo.Database, activeRequests ActiveRequestCounter) IPetService {
	return &petService{db: db, activeRequests: activeRequests}
}

// CreatePet inserts a new listing. Lifecycle fields are always reset,
// whatever the caller supplied.
func (s *petService) CreatePet(ctx context.Context, ownerID primitive.ObjectID, input models.PetInput) (*models.Pet, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ageUnit := input.AgeUnit
	if ageUnit == "" {
		ageUnit = "years"
	}
	pet := &models.Pet{
		ID:           primitive.NewObjectID(),
		Name:         strings.TrimSpace(input.Name),
		Species:      input.Species,
		Breed:        strings.TrimSpace(input.Breed),
		Age:          input.Age,
		AgeUnit:      ageUnit,
		Gender:       input.Gender,
		Size:         input.Size,
		Color:        strings.TrimSpace(input.Color),
		Description:  input.Description,
		Images:       []string{},
		Location:     input.Location,
		HealthStatus: input.HealthStatus,
		AdoptionFee:  input.AdoptionFee,
		SpecialNeeds: input.SpecialNeeds,
		GoodWith:     input.GoodWith,
		Status:       models.PetStatusAvailable,
		AddedBy:      ownerID,
		AdoptedBy:    nil,
		AdoptedAt:    nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.db.Collection(db.PetsCollection).InsertOne(ctx, pet); err != nil {
		return nil, fmt.Errorf("failed to insert new pet for user %s: %w", ownerID.Hex(), err)
	}
	return pet, nil
}

// FindPetByID finds a pet by its ID, whatever its status.
func (s *petService) FindPetByID(ctx context.Context, petID primitive.ObjectID) (*models.Pet, error) {
	var pet models.Pet
	err := s.db.Collection(db.PetsCollection).FindOne(ctx, bson.M{"_id": petID}).Decode(&pet)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("pet not found")
		}
		return nil, fmt.Errorf("error finding pet by ID %s: %w", petID.Hex(), err)
	}
	return &pet, nil
}

// FindPetsByOwner returns every listing created by ownerID, newest first.
func (s *petService) FindPetsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Pet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.db.Collection(db.PetsCollection).Find(ctx, bson.M{"addedBy": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding pets for owner %s: %w", ownerID.Hex(), err)
	}
	defer cursor.Close(ctx)

	pets := []models.Pet{}
	if err := cursor.All(ctx, &pets); err != nil {
		return nil, fmt.Errorf("error decoding pets for owner %s: %w", ownerID.Hex(), err)
	}
	return pets, nil
}

// petPageWindow clamps page and limit and returns the documents to skip and
// the page size. Pages past maxPetPage read the last allowed page.
func petPageWindow(page, limit int) (skip, size int64) {
	if page < 1 {
		page = 1
	}
	if page > maxPetPage {
		page = maxPetPage
	}
	if limit < 1 {
		limit = defaultPetPageSize
	}
	if limit > maxPetPageSize {
		limit = maxPetPageSize
	}
	return int64(page-1) * int64(limit), int64(limit)
}

// SearchPets browses available pets. Only status=available is ever returned.
func (s *petService) SearchPets(ctx context.Context, filter models.PetFilter, page, limit int) ([]models.Pet, int64, error) {
	skip, size := petPageWindow(page, limit)

	query := buildPetQuery(filter)
	collection := s.db.Collection(db.PetsCollection)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip).
		SetLimit(size)

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error searching pets: %w", err)
	}
	defer cursor.Close(ctx)

	pets := []models.Pet{}
	if err := cursor.All(ctx, &pets); err != nil {
		return nil, 0, fmt.Errorf("error decoding pets: %w", err)
	}

	total, err := collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting pets: %w", err)
	}
	return pets, total, nil
}

func buildPetQuery(filter models.PetFilter) bson.M {
	query := bson.M{"status": models.PetStatusAvailable}
	if filter.Species != "" {
		query["species"] = filter.Species
	}
	if filter.Size != "" {
		query["size"] = filter.Size
	}
	if filter.MinAge != nil || filter.MaxAge != nil {
		age := bson.M{}
		if filter.MinAge != nil {
			age["$gte"] = *filter.MinAge
		}
		if filter.MaxAge != nil {
			age["$lte"] = *filter.MaxAge
		}
		query["age"] = age
	}
	if filter.Location != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Location), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"location.city": pattern},
			bson.M{"location.state": pattern},
		}
	}
	if filter.Search != "" {
		query["$text"] = bson.M{"$search": filter.Search}
	}
	return query
}

// petLifecycleFields can only be written by the adoption workflow.
var petLifecycleFields = map[string]bool{
	"status":    true,
	"adoptedBy": true,
	"adoptedAt": true,
	"addedBy":   true,
	"id":        true,
	"_id":       true,
	"createdAt": true,
	"updatedAt": true,
}

var petUpdatableFields = map[string]bool{
	"name": true, "species": true, "breed": true, "age": true, "ageUnit": true,
	"gender": true, "size": true, "color": true, "description": true, "images": true,
	"location": true, "healthStatus": true, "adoptionFee": true, "specialNeeds": true,
	"goodWith": true,
}

// UpdatePet applies a descriptive patch. Keys are JSON field names.
func (s *petService) UpdatePet(ctx context.Context, petID primitive.ObjectID, actor Actor, updates map[string]interface{}) (*models.Pet, error) {
	for key := range updates {
		if petLifecycleFields[key] {
			return nil, validationError("field '%s' cannot be changed through a listing update", key)
		}
		if !petUpdatableFields[key] {
			return nil, validationError("field '%s' cannot be updated", key)
		}
	}
	if len(updates) == 0 {
		return nil, validationError("no valid fields provided for update")
	}

	// Round-trip through the typed patch so every value is type- and rule-checked.
	raw, err := json.Marshal(updates)
	if err != nil {
		return nil, validationError("invalid update payload")
	}
	var patch models.PetPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, validationError("invalid update payload: %v", err)
	}
	if err := validateInput(patch); err != nil {
		return nil, err
	}

	pet, err := s.FindPetByID(ctx, petID)
	if err != nil {
		return nil, err
	}
	if !pet.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, forbidden("not authorized to update this pet")
	}

	set := petPatchSet(&patch)
	set["updatedAt"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Pet
	err = s.db.Collection(db.PetsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": petID}, bson.M{"$set": set}, opts).
		Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("pet not found")
		}
		return nil, fmt.Errorf("failed to update pet %s: %w", petID.Hex(), err)
	}
	return &updated, nil
}

func petPatchSet(p *models.PetPatch) bson.M {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Species != nil {
		set["species"] = *p.Species
	}
	if p.Breed != nil {
		set["breed"] = strings.TrimSpace(*p.Breed)
	}
	if p.Age != nil {
		set["age"] = *p.Age
	}
	if p.AgeUnit != nil {
		set["ageUnit"] = *p.AgeUnit
	}
	if p.Gender != nil {
		set["gender"] = *p.Gender
	}
	if p.Size != nil {
		set["size"] = *p.Size
	}
	if p.Color != nil {
		set["color"] = strings.TrimSpace(*p.Color)
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Images != nil {
		set["images"] = p.Images
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.HealthStatus != nil {
		set["healthStatus"] = *p.HealthStatus
	}
	if p.AdoptionFee != nil {
		set["adoptionFee"] = *p.AdoptionFee
	}
	if p.SpecialNeeds != nil {
		set["specialNeeds"] = *p.SpecialNeeds
	}
	if p.GoodWith != nil {
		set["goodWith"] = *p.GoodWith
	}
	return set
}

// DeletePet removes a listing. It refuses while any request against the pet
// is still pending or approved.
func (s *petService) DeletePet(ctx context.Context, petID primitive.ObjectID, actor Actor) error {
	pet, err := s.FindPetByID(ctx, petID)
	if err != nil {
		return err
	}
	if !pet.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return forbidden("not authorized to delete this pet")
	}

	active, err := s.activeRequests.CountActiveForPet(ctx, petID)
	if err != nil {
		return err
	}
	if active > 0 {
		return invalidState("pet has %d active adoption request(s) and cannot be removed", active)
	}

	// Pending pets always have an approved request; re-check status atomically.
	res, err := s.db.Collection(db.PetsCollection).DeleteOne(ctx, bson.M{
		"_id":    petID,
		"status": bson.M{"$ne": models.PetStatusPending},
	})
	if err != nil {
		return fmt.Errorf("failed to delete pet %s: %w", petID.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return conflict("pet changed state while being removed")
	}
	zap.L().Info("pet removed", zap.String("pet_id", petID.Hex()), zap.String("by", actor.UserID.Hex()))
	return nil
}

// AddImageToPet appends an image key to the pet's gallery.
func (s *petService) AddImageToPet(ctx context.Context, petID primitive.ObjectID, imageKey string) error {
	update := bson.M{
		"$addToSet": bson.M{"images": imageKey},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.db.Collection(db.PetsCollection).UpdateByID(ctx, petID, update)
	if err != nil {
		return fmt.Errorf("failed to add image to pet %s: %w", petID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return notFound("pet not found")
	}
	return nil
}

// TransitionPet is the compare-and-swap primitive used by the adoption workflow.
func (s *petService) TransitionPet(ctx context.Context, petID primitive.ObjectID, guard PetGuard, to PetTransition) (bool, error) {
	filter := bson.M{"_id": petID, "status": guard.Status}
	if guard.AdoptedBy != nil {
		filter["adoptedBy"] = *guard.AdoptedBy
	}
	update := bson.M{"$set": bson.M{
		"status":    to.Status,
		"adoptedBy": to.AdoptedBy,
		"adoptedAt": to.AdoptedAt,
		"updatedAt": time.Now().UTC(),
	}}

	res, err := s.db.Collection(db.PetsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("db error transitioning pet %s: %w", petID.Hex(), err)
	}
	return res.MatchedCount == 1, nil
}

// FindStalePendingPets lists pets held in pending that have not changed since updatedBefore.
func (s *petService) FindStalePendingPets(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Pet, error) {
	filter := bson.M{
		"status":    models.PetStatusPending,
		"updatedAt": bson.M{"$lt": updatedBefore},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit))
	cursor, err := s.db.Collection(db.PetsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding stale pending pets: %w", err)
	}
	defer cursor.Close(ctx)

	pets := []models.Pet{}
	if err := cursor.All(ctx, &pets); err != nil {
		return nil, fmt.Errorf("error decoding stale pending pets: %w", err)
	}
	return pets, nil
}
