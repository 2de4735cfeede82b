package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PetStatus is the availability state of a listing.
type PetStatus string

const (
	PetStatusAvailable PetStatus = "available"
	PetStatusPending   PetStatus = "pending"
	PetStatusAdopted   PetStatus = "adopted"
)

// Location is where the pet can be picked up.
type Location struct {
	City  string `bson:"city" json:"city" binding:"required,max=100"`
	State string `bson:"state" json:"state" binding:"required,max=100"`
}

// HealthStatus holds the free-text and flag health fields of a listing.
type HealthStatus struct {
	Vaccinated     bool   `bson:"vaccinated" json:"vaccinated"`
	SpayedNeutered bool   `bson:"spayedNeutered" json:"spayedNeutered"`
	HealthIssues   string `bson:"healthIssues,omitempty" json:"healthIssues,omitempty" binding:"max=500"`
}

// GoodWith records who the pet gets along with.
type GoodWith struct {
	Children bool `bson:"children" json:"children"`
	Dogs     bool `bson:"dogs" json:"dogs"`
	Cats     bool `bson:"cats" json:"cats"`
}

// Pet is a listing offered for adoption.
type Pet struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name         string              `bson:"name" json:"name"`
	Species      string              `bson:"species" json:"species"`
	Breed        string              `bson:"breed" json:"breed"`
	Age          float64             `bson:"age" json:"age"`
	AgeUnit      string              `bson:"ageUnit" json:"ageUnit"`
	Gender       string              `bson:"gender" json:"gender"`
	Size         string              `bson:"size" json:"size"`
	Color        string              `bson:"color" json:"color"`
	Description  string              `bson:"description" json:"description"`
	Images       []string            `bson:"images" json:"images"` // S3 keys
	Location     Location            `bson:"location" json:"location"`
	HealthStatus HealthStatus        `bson:"healthStatus" json:"healthStatus"`
	AdoptionFee  float64             `bson:"adoptionFee" json:"adoptionFee"`
	SpecialNeeds string              `bson:"specialNeeds,omitempty" json:"specialNeeds,omitempty"`
	GoodWith     GoodWith            `bson:"goodWith" json:"goodWith"`
	Status       PetStatus           `bson:"status" json:"status"`
	AddedBy      primitive.ObjectID  `bson:"addedBy" json:"addedBy"`
	AdoptedBy    *primitive.ObjectID `bson:"adoptedBy" json:"adoptedBy"`
	AdoptedAt    *time.Time          `bson:"adoptedAt" json:"adoptedAt"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsOwnedBy reports whether userID created the listing.
func (p *Pet) IsOwnedBy(userID primitive.ObjectID) bool {
	return p.AddedBy == userID
}

// PetInput is the descriptive part of a listing supplied on create.
type PetInput struct {
	Name         string       `json:"name" binding:"required,max=50"`
	Species      string       `json:"species" binding:"required,oneof=dog cat bird rabbit hamster fish other"`
	Breed        string       `json:"breed" binding:"required,max=100"`
	Age          float64      `json:"age" binding:"min=0"`
	AgeUnit      string       `json:"ageUnit" binding:"omitempty,oneof=months years"`
	Gender       string       `json:"gender" binding:"required,oneof=male female"`
	Size         string       `json:"size" binding:"required,oneof=small medium large extra-large"`
	Color        string       `json:"color" binding:"required,max=50"`
	Description  string       `json:"description" binding:"required,max=1000"`
	Location     Location     `json:"location"`
	HealthStatus HealthStatus `json:"healthStatus"`
	AdoptionFee  float64      `json:"adoptionFee" binding:"min=0"`
	SpecialNeeds string       `json:"specialNeeds" binding:"max=500"`
	GoodWith     GoodWith     `json:"goodWith"`
}

// PetPatch carries the descriptive fields a general update may change.
// Lifecycle fields are deliberately absent.
type PetPatch struct {
	Name         *string       `json:"name,omitempty" binding:"omitempty,max=50"`
	Species      *string       `json:"species,omitempty" binding:"omitempty,oneof=dog cat bird rabbit hamster fish other"`
	Breed        *string       `json:"breed,omitempty" binding:"omitempty,max=100"`
	Age          *float64      `json:"age,omitempty" binding:"omitempty,min=0"`
	AgeUnit      *string       `json:"ageUnit,omitempty" binding:"omitempty,oneof=months years"`
	Gender       *string       `json:"gender,omitempty" binding:"omitempty,oneof=male female"`
	Size         *string       `json:"size,omitempty" binding:"omitempty,oneof=small medium large extra-large"`
	Color        *string       `json:"color,omitempty" binding:"omitempty,max=50"`
	Description  *string       `json:"description,omitempty" binding:"omitempty,max=1000"`
	Images       []string      `json:"images,omitempty"`
	Location     *Location     `json:"location,omitempty"`
	HealthStatus *HealthStatus `json:"healthStatus,omitempty"`
	AdoptionFee  *float64      `json:"adoptionFee,omitempty" binding:"omitempty,min=0"`
	SpecialNeeds *string       `json:"specialNeeds,omitempty" binding:"omitempty,max=500"`
	GoodWith     *GoodWith     `json:"goodWith,omitempty"`
}

// PetFilter narrows a browse query. Zero values mean "no constraint".
type PetFilter struct {
	Species  string
	Size     string
	MinAge   *float64
	MaxAge   *float64
	Location string
	Search   string
}
