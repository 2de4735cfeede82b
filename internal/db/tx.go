package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs fn so that every store call made with the context it
// receives commits or aborts together.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type mongoTransactor struct {
	client *mongo.Client
}

// NewMongoTransactor returns a Transactor backed by multi-document
// transactions. The deployment must be a replica set or sharded cluster.
func NewMongoTransactor(client *mongo.Client) Transactor {
	return &mongoTransactor{client: client}
}

func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// NoTransaction runs fn directly. Callers relying on it must make each step a
// conditional write and compensate on failure.
type NoTransaction struct{}

func (NoTransaction) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
