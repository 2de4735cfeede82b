package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Collection names.
const (
	UsersCollection            = "users"
	PetsCollection             = "pets"
	AdoptionRequestsCollection = "adoptionrequests"
	ChatMessagesCollection     = "chatmessages"
)

// ActiveRequestIndex is the partial unique index that allows at most one
// pending or approved request per (pet, adopter).
const ActiveRequestIndex = "pet_adopter_active_unique"

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	zap.L().Info("connected to MongoDB", zap.String("database", dbName))

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	zap.L().Info("MongoDB connection closed")
	return nil
}

// EnsureIndexes creates every index the services rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		},
		PetsCollection: {
			{Keys: bson.D{{Key: "name", Value: "text"}, {Key: "breed", Value: "text"}, {Key: "description", Value: "text"}}, Options: options.Index().SetName("pet_text")},
			{Keys: bson.D{{Key: "species", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "addedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		},
		AdoptionRequestsCollection: {
			{
				Keys: bson.D{{Key: "pet", Value: 1}, {Key: "adopter", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName(ActiveRequestIndex).
					SetPartialFilterExpression(bson.M{"active": true}),
			},
			{Keys: bson.D{{Key: "pet", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "adopter", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		ChatMessagesCollection: {
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
