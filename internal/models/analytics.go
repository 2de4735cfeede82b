package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CountBucket is a generic {key, count} aggregation row.
type CountBucket struct {
	Key            interface{} `bson:"_id" json:"key"`
	Count          int64       `bson:"count" json:"count"`
	AvgAdoptionFee *float64    `bson:"avgAdoptionFee,omitempty" json:"avgAdoptionFee,omitempty"`
}

// MonthKey identifies a calendar month in trend aggregations.
type MonthKey struct {
	Year  int `bson:"year" json:"year"`
	Month int `bson:"month" json:"month"`
}

// MonthlyCount is one point of a month-bucketed trend.
type MonthlyCount struct {
	Month MonthKey `bson:"_id" json:"month"`
	Count int64    `bson:"count" json:"count"`
}

// DashboardOverview holds the headline counters.
type DashboardOverview struct {
	TotalPets        int64   `json:"totalPets"`
	AvailablePets    int64   `json:"availablePets"`
	AdoptedPets      int64   `json:"adoptedPets"`
	PendingAdoptions int64   `json:"pendingAdoptions"`
	TotalUsers       int64   `json:"totalUsers"`
	TotalAdmins      int64   `json:"totalAdmins"`
	TotalRequests    int64   `json:"totalRequests"`
	PendingRequests  int64   `json:"pendingRequests"`
	ApprovedRequests int64   `json:"approvedRequests"`
	AdoptionRate     float64 `json:"adoptionRate"`
}

// DashboardMonthly holds counters for the current calendar month.
type DashboardMonthly struct {
	PetsAddedThisMonth       int64 `json:"petsAddedThisMonth"`
	AdoptionsThisMonth       int64 `json:"adoptionsThisMonth"`
	RequestsThisMonth        int64 `json:"requestsThisMonth"`
	UsersRegisteredThisMonth int64 `json:"usersRegisteredThisMonth"`
}

// RecentAdoption is a trimmed pet row for the activity feed.
type RecentAdoption struct {
	ID        primitive.ObjectID  `bson:"_id" json:"id"`
	Name      string              `bson:"name" json:"name"`
	Species   string              `bson:"species" json:"species"`
	AdoptedBy *primitive.ObjectID `bson:"adoptedBy" json:"adoptedBy"`
	AdoptedAt *time.Time          `bson:"adoptedAt" json:"adoptedAt"`
	Adopter   *UserSummary        `bson:"adopter,omitempty" json:"adopter,omitempty"`
}

// Dashboard is the admin overview report.
type Dashboard struct {
	Overview            DashboardOverview     `json:"overview"`
	Monthly             DashboardMonthly      `json:"monthly"`
	SpeciesDistribution []CountBucket         `json:"speciesDistribution"`
	MonthlyTrends       []MonthlyCount        `json:"monthlyTrends"`
	RecentAdoptions     []RecentAdoption      `json:"recentAdoptions"`
	RecentRequests      []AdoptionRequestView `json:"recentRequests"`
	GeneratedAt         time.Time             `json:"generatedAt"`
}

// AdoptionTimes summarises days between listing and adoption.
type AdoptionTimes struct {
	AvgDaysToAdoption float64 `bson:"avgDaysToAdoption" json:"avgDaysToAdoption"`
	MinDaysToAdoption float64 `bson:"minDaysToAdoption" json:"minDaysToAdoption"`
	MaxDaysToAdoption float64 `bson:"maxDaysToAdoption" json:"maxDaysToAdoption"`
}

// PetReport is the admin listing-distribution report.
type PetReport struct {
	AgeDistribution    []CountBucket `json:"ageDistribution"`
	SizeDistribution   []CountBucket `json:"sizeDistribution"`
	StatusDistribution []CountBucket `json:"statusDistribution"`
	AdoptionTimes      AdoptionTimes `json:"adoptionTimes"`
	GeneratedAt        time.Time     `json:"generatedAt"`
}
