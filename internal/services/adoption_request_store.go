package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

// IAdoptionRequestStore is the adoption request ledger. It holds data only;
// every rule about who may move a request lives in the adoption service.
type IAdoptionRequestStore interface {
	Insert(ctx context.Context, req *models.AdoptionRequest) error
	FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.AdoptionRequest, error)
	// FindActive returns the pending or approved request of adopter for pet, or nil.
	FindActive(ctx context.Context, petID, adopterID primitive.ObjectID) (*models.AdoptionRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.AdoptionRequestView, error)
	FindByPetAndStatus(ctx context.Context, petID primitive.ObjectID, status models.AdoptionStatus) ([]models.AdoptionRequest, error)
	// Transition applies patch only if the request is currently in one of from.
	// It returns nil, nil when the guard did not match.
	Transition(ctx context.Context, requestID primitive.ObjectID, from []models.AdoptionStatus, patch models.RequestPatch) (*models.AdoptionRequest, error)
	RejectPendingSiblings(ctx context.Context, petID, exceptID primitive.ObjectID, reviewer *primitive.ObjectID, note string) (int64, error)
	CountActiveForPet(ctx context.Context, petID primitive.ObjectID) (int64, error)
	// Delete removes the request only if it is still in fromStatus.
	Delete(ctx context.Context, requestID primitive.ObjectID, fromStatus models.AdoptionStatus) (bool, error)
}

type adoptionRequestStore struct {
	db *mongo.Database
}

// NewAdoptionRequestStore creates the Mongo-backed ledger.
func NewAdoptionRequestStore(db *mongo.Database) IAdoptionRequestStore {
	return &adoptionRequestStore{db: db}
}

func (s *adoptionRequestStore) collection() *mongo.Collection {
	return s.db.Collection(db.AdoptionRequestsCollection)
}

func (s *adoptionRequestStore) Insert(ctx context.Context, req *models.AdoptionRequest) error {
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	req.Active = req.Status.IsActive()

	if _, err := s.collection().InsertOne(ctx, req); err != nil {
		if db.IsDuplicateKeyOn(err, db.ActiveRequestIndex) {
			return conflict("you already have an active adoption request for this pet")
		}
		return fmt.Errorf("error inserting adoption request: %w", err)
	}
	return nil
}

func (s *adoptionRequestStore) FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	var req models.AdoptionRequest
	err := s.collection().FindOne(ctx, bson.M{"_id": requestID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("adoption request not found")
		}
		return nil, fmt.Errorf("error finding adoption request %s: %w", requestID.Hex(), err)
	}
	return &req, nil
}

func (s *adoptionRequestStore) FindActive(ctx context.Context, petID, adopterID primitive.ObjectID) (*models.AdoptionRequest, error) {
	var req models.AdoptionRequest
	filter := bson.M{"pet": petID, "adopter": adopterID, "active": true}
	err := s.collection().FindOne(ctx, filter).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding active request for pet %s: %w", petID.Hex(), err)
	}
	return &req, nil
}

// List returns matching requests newest first, joined with their pet and applicant.
func (s *adoptionRequestStore) List(ctx context.Context, filter models.RequestFilter) ([]models.AdoptionRequestView, error) {
	match := bson.M{}
	if filter.AdopterID != nil {
		match["adopter"] = *filter.AdopterID
	}
	if filter.PetIDs != nil {
		match["pet"] = bson.M{"$in": filter.PetIDs}
	}
	if filter.Status != "" {
		match["status"] = filter.Status
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.PetsCollection, "localField": "pet", "foreignField": "_id", "as": "petInfo",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$petInfo", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.UsersCollection, "localField": "adopter", "foreignField": "_id", "as": "adopterInfo",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$adopterInfo", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"adopterInfo.password": 0}}},
	}

	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error listing adoption requests: %w", err)
	}
	defer cursor.Close(ctx)

	views := []models.AdoptionRequestView{}
	if err := cursor.All(ctx, &views); err != nil {
		return nil, fmt.Errorf("error decoding adoption requests: %w", err)
	}
	return views, nil
}

func (s *adoptionRequestStore) FindByPetAndStatus(ctx context.Context, petID primitive.ObjectID, status models.AdoptionStatus) ([]models.AdoptionRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection().Find(ctx, bson.M{"pet": petID, "status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding %s requests for pet %s: %w", status, petID.Hex(), err)
	}
	defer cursor.Close(ctx)

	reqs := []models.AdoptionRequest{}
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("error decoding requests for pet %s: %w", petID.Hex(), err)
	}
	return reqs, nil
}

func (s *adoptionRequestStore) Transition(ctx context.Context, requestID primitive.ObjectID, from []models.AdoptionStatus, patch models.RequestPatch) (*models.AdoptionRequest, error) {
	filter := bson.M{"_id": requestID, "status": bson.M{"$in": from}}
	set := bson.M{
		"status":    patch.Status,
		"active":    patch.Status.IsActive(),
		"updatedAt": time.Now().UTC(),
	}
	if patch.ReviewedBy != nil {
		set["reviewedBy"] = *patch.ReviewedBy
	}
	if patch.ReviewedAt != nil {
		set["reviewedAt"] = *patch.ReviewedAt
	}
	if patch.AdminNotes != nil {
		set["adminNotes"] = *patch.AdminNotes
	}

	update := bson.M{"$set": set}
	if patch.ClearReview {
		update["$unset"] = bson.M{"reviewedBy": "", "reviewedAt": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.AdoptionRequest
	err := s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error transitioning adoption request %s: %w", requestID.Hex(), err)
	}
	return &updated, nil
}

func (s *adoptionRequestStore) RejectPendingSiblings(ctx context.Context, petID, exceptID primitive.ObjectID, reviewer *primitive.ObjectID, note string) (int64, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"pet":    petID,
		"status": models.AdoptionStatusPending,
		"_id":    bson.M{"$ne": exceptID},
	}
	set := bson.M{
		"status":     models.AdoptionStatusRejected,
		"active":     false,
		"adminNotes": note,
		"reviewedAt": now,
		"updatedAt":  now,
	}
	if reviewer != nil {
		set["reviewedBy"] = *reviewer
	}

	res, err := s.collection().UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("error rejecting sibling requests for pet %s: %w", petID.Hex(), err)
	}
	return res.ModifiedCount, nil
}

func (s *adoptionRequestStore) CountActiveForPet(ctx context.Context, petID primitive.ObjectID) (int64, error) {
	n, err := s.collection().CountDocuments(ctx, bson.M{"pet": petID, "active": true})
	if err != nil {
		return 0, fmt.Errorf("error counting active requests for pet %s: %w", petID.Hex(), err)
	}
	return n, nil
}

func (s *adoptionRequestStore) Delete(ctx context.Context, requestID primitive.ObjectID, fromStatus models.AdoptionStatus) (bool, error) {
	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": requestID, "status": fromStatus})
	if err != nil {
		return false, fmt.Errorf("error deleting adoption request %s: %w", requestID.Hex(), err)
	}
	return res.DeletedCount == 1, nil
}
