package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockPetService
type MockPetService struct {
	mock.Mock
}

func (m *MockPetService) FindPetByID(ctx context.Context, petID primitive.ObjectID) (*models.Pet, error) {
	args := m.Called(ctx, petID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pet), args.Error(1)
}

func (m *MockPetService) FindPetsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Pet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Pet), args.Error(1)
}

func (m *MockPetService) TransitionPet(ctx context.Context, petID primitive.ObjectID, guard services.PetGuard, to services.PetTransition) (bool, error) {
	args := m.Called(ctx, petID, guard, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPetService) FindStalePendingPets(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Pet, error) {
	args := m.Called(ctx, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Pet), args.Error(1)
}

func (m *MockPetService) CreatePet(ctx context.Context, ownerID primitive.ObjectID, input models.PetInput) (*models.Pet, error) {
	args := m.Called(ctx, ownerID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pet), args.Error(1)
}

func (m *MockPetService) SearchPets(ctx context.Context, filter models.PetFilter, page, limit int) ([]models.Pet, int64, error) {
	args := m.Called(ctx, filter, page, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Pet), args.Get(1).(int64), args.Error(2)
}

func (m *MockPetService) UpdatePet(ctx context.Context, petID primitive.ObjectID, actor services.Actor, updates map[string]interface{}) (*models.Pet, error) {
	args := m.Called(ctx, petID, actor, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pet), args.Error(1)
}

func (m *MockPetService) DeletePet(ctx context.Context, petID primitive.ObjectID, actor services.Actor) error {
	args := m.Called(ctx, petID, actor)
	return args.Error(0)
}

func (m *MockPetService) AddImageToPet(ctx context.Context, petID primitive.ObjectID, imageKey string) error {
	args := m.Called(ctx, petID, imageKey)
	return args.Error(0)
}

// MockAdoptionService
type MockAdoptionService struct {
	mock.Mock
}

func (m *MockAdoptionService) requestResult(args mock.Arguments) (*models.AdoptionRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdoptionRequest), args.Error(1)
}

func (m *MockAdoptionService) SubmitRequest(ctx context.Context, actor services.Actor, input models.SubmitRequestInput) (*models.AdoptionRequest, error) {
	return m.requestResult(m.Called(ctx, actor, input))
}

func (m *MockAdoptionService) ReviewAsAdmin(ctx context.Context, actor services.Actor, requestID primitive.ObjectID, status models.AdoptionStatus, notes string) (*models.AdoptionRequest, error) {
	return m.requestResult(m.Called(ctx, actor, requestID, status, notes))
}

func (m *MockAdoptionService) ReviewAsOwner(ctx context.Context, actor services.Actor, requestID primitive.ObjectID, decision services.OwnerDecision, notes string) (*models.AdoptionRequest, error) {
	return m.requestResult(m.Called(ctx, actor, requestID, decision, notes))
}

func (m *MockAdoptionService) CompleteAsOwner(ctx context.Context, actor services.Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	return m.requestResult(m.Called(ctx, actor, requestID))
}

func (m *MockAdoptionService) WithdrawRequest(ctx context.Context, actor services.Actor, requestID primitive.ObjectID) error {
	args := m.Called(ctx, actor, requestID)
	return args.Error(0)
}

func (m *MockAdoptionService) GetRequest(ctx context.Context, actor services.Actor, requestID primitive.ObjectID) (*models.AdoptionRequest, error) {
	return m.requestResult(m.Called(ctx, actor, requestID))
}

func (m *MockAdoptionService) ListRequests(ctx context.Context, actor services.Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error) {
	args := m.Called(ctx, actor, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AdoptionRequestView), args.Error(1)
}

func (m *MockAdoptionService) ListRequestsForMyPets(ctx context.Context, actor services.Actor, status models.AdoptionStatus) ([]models.AdoptionRequestView, error) {
	args := m.Called(ctx, actor, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AdoptionRequestView), args.Error(1)
}

func (m *MockAdoptionService) ReconcilePet(ctx context.Context, petID primitive.ObjectID) error {
	return m.Called(ctx, petID).Error(0)
}

func (m *MockAdoptionService) ReconcileStalePets(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAdoptionService) SetLifecycleEvents(events services.LifecycleEvents) {
	m.Called(events)
}

// MockChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Send(ctx context.Context, senderID primitive.ObjectID, input models.SendMessageInput) (*models.ChatMessage, error) {
	args := m.Called(ctx, senderID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockChatService) History(ctx context.Context, me, other primitive.ObjectID, page, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, me, other, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockChatService) MarkRead(ctx context.Context, reader, other primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, reader, other)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatService) Conversations(ctx context.Context, me primitive.ObjectID) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, me)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

func (m *MockChatService) UnreadCount(ctx context.Context, me primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, me)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatService) SetMessagePublisher(p services.MessagePublisher) {
	m.Called(p)
}

// MockAnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dashboard), args.Error(1)
}

func (m *MockAnalyticsService) PetReport(ctx context.Context) (*models.PetReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PetReport), args.Error(1)
}

// MockStorage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GeneratePresignedPutURL(ctx context.Context, ownerID, petID, contentType string) (string, string, error) {
	args := m.Called(ctx, ownerID, petID, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockStorage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *MockStorage) PublicURL(key string) string {
	return m.Called(key).String(0)
}

// MockImageQueue
type MockImageQueue struct {
	mock.Mock
}

func (m *MockImageQueue) EnqueueImageProcess(ctx context.Context, petID primitive.ObjectID, key string) error {
	return m.Called(ctx, petID, key).Error(0)
}
