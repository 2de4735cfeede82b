package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdoptionStatus is the lifecycle state of an adoption request.
type AdoptionStatus string

const (
	AdoptionStatusPending   AdoptionStatus = "pending"
	AdoptionStatusApproved  AdoptionStatus = "approved"
	AdoptionStatusRejected  AdoptionStatus = "rejected"
	AdoptionStatusCompleted AdoptionStatus = "completed"
)

// IsActive reports whether the status still occupies the (pet, adopter) slot.
func (s AdoptionStatus) IsActive() bool {
	return s == AdoptionStatusPending || s == AdoptionStatusApproved
}

// IsTerminal reports whether no further transition is possible.
func (s AdoptionStatus) IsTerminal() bool {
	return s == AdoptionStatusRejected || s == AdoptionStatusCompleted
}

// EmergencyContact is required on every application.
type EmergencyContact struct {
	Name         string `bson:"name" json:"name" binding:"required,max=100"`
	Phone        string `bson:"phone" json:"phone" binding:"required,max=30"`
	Relationship string `bson:"relationship" json:"relationship" binding:"required,max=50"`
}

// ApplicationData is the structured questionnaire an applicant fills in.
type ApplicationData struct {
	LivingSpace      string           `bson:"livingSpace" json:"livingSpace" binding:"required,oneof=apartment house farm"`
	HasYard          bool             `bson:"hasYard" json:"hasYard"`
	HasOtherPets     bool             `bson:"hasOtherPets" json:"hasOtherPets"`
	OtherPetsDetails string           `bson:"otherPetsDetails,omitempty" json:"otherPetsDetails,omitempty" binding:"max=500"`
	HasChildren      bool             `bson:"hasChildren" json:"hasChildren"`
	ChildrenAges     string           `bson:"childrenAges,omitempty" json:"childrenAges,omitempty" binding:"max=100"`
	Experience       string           `bson:"experience" json:"experience" binding:"required,max=1000"`
	Reason           string           `bson:"reason" json:"reason" binding:"required,max=500"`
	WorkSchedule     string           `bson:"workSchedule" json:"workSchedule" binding:"required,max=500"`
	EmergencyContact EmergencyContact `bson:"emergencyContact" json:"emergencyContact"`
}

// AdoptionRequest is an application by a user to adopt a specific pet.
type AdoptionRequest struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PetID           primitive.ObjectID  `bson:"pet" json:"pet"`
	AdopterID       primitive.ObjectID  `bson:"adopter" json:"adopter"`
	Status          AdoptionStatus      `bson:"status" json:"status"`
	Active          bool                `bson:"active" json:"-"` // mirrors Status.IsActive(); backs the partial unique index
	ApplicationData ApplicationData     `bson:"applicationData" json:"applicationData"`
	AdminNotes      string              `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	ReviewedBy      *primitive.ObjectID `bson:"reviewedBy" json:"reviewedBy"`
	ReviewedAt      *time.Time          `bson:"reviewedAt" json:"reviewedAt"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// SubmitRequestInput is the payload of a new application.
type SubmitRequestInput struct {
	PetID           string          `json:"petId" binding:"required"`
	ApplicationData ApplicationData `json:"applicationData"`
}

// RequestFilter narrows ledger listings.
type RequestFilter struct {
	AdopterID *primitive.ObjectID
	PetIDs    []primitive.ObjectID
	Status    AdoptionStatus
}

// RequestPatch is applied by a conditional status transition.
type RequestPatch struct {
	Status     AdoptionStatus
	ReviewedBy *primitive.ObjectID
	ReviewedAt *time.Time
	AdminNotes *string
	// ClearReview unsets reviewedBy and reviewedAt. It is used to roll a
	// request back to pending.
	ClearReview bool
}

// PetSummary is the slice of a pet embedded in request views.
type PetSummary struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	Name    string             `bson:"name" json:"name"`
	Species string             `bson:"species" json:"species"`
	Breed   string             `bson:"breed" json:"breed"`
	Images  []string           `bson:"images" json:"images"`
	Status  PetStatus          `bson:"status" json:"status"`
	AddedBy primitive.ObjectID `bson:"addedBy" json:"addedBy"`
}

// AdoptionRequestView is a request joined with its pet and applicant.
type AdoptionRequestView struct {
	AdoptionRequest `bson:",inline"`
	PetInfo         *PetSummary  `bson:"petInfo,omitempty" json:"petInfo,omitempty"`
	AdopterInfo     *UserSummary `bson:"adopterInfo,omitempty" json:"adopterInfo,omitempty"`
}
