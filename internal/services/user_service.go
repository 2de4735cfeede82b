package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"furadapt/api/internal/auth"
	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Register(ctx context.Context, input models.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// Register creates a regular user account. Roles other than user are never
// assigned here.
func (s *userService) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPasswordTooShort):
			return nil, validationError("password must be at least %d characters", auth.MinPasswordLength)
		case errors.Is(err, auth.ErrPasswordTooLong):
			return nil, validationError("password must be at most %d characters", auth.MaxPasswordLength)
		}
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		Phone:        input.Phone,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.db.Collection(db.UsersCollection).InsertOne(ctx, user); err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, conflict("a user with email %s already exists", user.Email)
		}
		return nil, fmt.Errorf("error inserting user %s: %w", user.Email, err)
	}

	zap.L().Info("user registered", zap.String("user_id", user.ID.Hex()))
	return user, nil
}

// Authenticate returns the user when the password matches. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, forbidden("invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, forbidden("invalid email or password")
	}
	return user, nil
}

// FindByID finds a user by their ID.
func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("user not found")
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.Hex(), err)
	}
	return &user, nil
}

// FindByEmail finds a user by email address (case-insensitive).
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("user not found")
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}
