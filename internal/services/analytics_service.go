package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"furadapt/api/internal/cache"
	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

const (
	dashboardCacheKey = "dashboard"
	petReportCacheKey = "pets"
	recentItemsLimit  = 5
	trendMonths       = 6
)

// IAnalyticsService produces read-only admin reports.
type IAnalyticsService interface {
	Dashboard(ctx context.Context) (*models.Dashboard, error)
	PetReport(ctx context.Context) (*models.PetReport, error)
}

type analyticsService struct {
	db    *mongo.Database
	cache *cache.JSONCache
	ttl   time.Duration
	now   func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService. Reports are cached for ttl
// when c is backed by Redis.
func NewAnalyticsService(db *mongo.Database, c *cache.JSONCache, ttl time.Duration) IAnalyticsService {
	return &analyticsService{db: db, cache: c, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// counter accumulates the first error across a run of CountDocuments calls.
type counter struct {
	ctx context.Context
	err error
}

func (c *counter) count(coll *mongo.Collection, filter bson.M) int64 {
	if c.err != nil {
		return 0
	}
	n, err := coll.CountDocuments(c.ctx, filter)
	if err != nil {
		c.err = fmt.Errorf("error counting %s: %w", coll.Name(), err)
	}
	return n
}

func (s *analyticsService) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var cached models.Dashboard
	if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err != nil {
		zap.L().Warn("dashboard cache read failed", zap.Error(err))
	} else if hit {
		return &cached, nil
	}

	now := s.now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	pets := s.db.Collection(db.PetsCollection)
	users := s.db.Collection(db.UsersCollection)
	requests := s.db.Collection(db.AdoptionRequestsCollection)

	c := &counter{ctx: ctx}
	overview := models.DashboardOverview{
		TotalPets:        c.count(pets, bson.M{}),
		AvailablePets:    c.count(pets, bson.M{"status": models.PetStatusAvailable}),
		AdoptedPets:      c.count(pets, bson.M{"status": models.PetStatusAdopted}),
		PendingAdoptions: c.count(pets, bson.M{"status": models.PetStatusPending}),
		TotalUsers:       c.count(users, bson.M{"role": models.RoleUser}),
		TotalAdmins:      c.count(users, bson.M{"role": models.RoleAdmin}),
		TotalRequests:    c.count(requests, bson.M{}),
		PendingRequests:  c.count(requests, bson.M{"status": models.AdoptionStatusPending}),
		ApprovedRequests: c.count(requests, bson.M{"status": models.AdoptionStatusApproved}),
	}
	overview.AdoptionRate = adoptionRate(overview.AdoptedPets, overview.TotalPets)

	since := bson.M{"$gte": startOfMonth}
	monthly := models.DashboardMonthly{
		PetsAddedThisMonth:       c.count(pets, bson.M{"createdAt": since}),
		AdoptionsThisMonth:       c.count(pets, bson.M{"status": models.PetStatusAdopted, "adoptedAt": since}),
		RequestsThisMonth:        c.count(requests, bson.M{"createdAt": since}),
		UsersRegisteredThisMonth: c.count(users, bson.M{"createdAt": since}),
	}
	if c.err != nil {
		return nil, c.err
	}

	dash := &models.Dashboard{
		Overview:    overview,
		Monthly:     monthly,
		GeneratedAt: now,
	}

	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$species", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}, &dash.SpeciesDistribution); err != nil {
		return nil, err
	}

	trendStart := startOfMonth.AddDate(0, -(trendMonths - 1), 0)
	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.PetStatusAdopted, "adoptedAt": bson.M{"$gte": trendStart}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"year": bson.M{"$year": "$adoptedAt"}, "month": bson.M{"$month": "$adoptedAt"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.year", Value: 1}, {Key: "_id.month", Value: 1}}}},
	}, &dash.MonthlyTrends); err != nil {
		return nil, err
	}

	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.PetStatusAdopted}}},
		{{Key: "$sort", Value: bson.D{{Key: "adoptedAt", Value: -1}}}},
		{{Key: "$limit", Value: recentItemsLimit}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.UsersCollection, "localField": "adoptedBy", "foreignField": "_id", "as": "adopter",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$adopter", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"name": 1, "species": 1, "adoptedBy": 1, "adoptedAt": 1,
			"adopter._id": 1, "adopter.name": 1,
		}}},
	}, &dash.RecentAdoptions); err != nil {
		return nil, err
	}

	if err := aggregateInto(ctx, requests, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$limit", Value: recentItemsLimit}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.PetsCollection, "localField": "pet", "foreignField": "_id", "as": "petInfo",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$petInfo", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.UsersCollection, "localField": "adopter", "foreignField": "_id", "as": "adopterInfo",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$adopterInfo", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"adopterInfo.password": 0}}},
	}, &dash.RecentRequests); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, dash, s.ttl); err != nil {
		zap.L().Warn("dashboard cache write failed", zap.Error(err))
	}
	return dash, nil
}

func (s *analyticsService) PetReport(ctx context.Context) (*models.PetReport, error) {
	var cached models.PetReport
	if hit, err := s.cache.Get(ctx, petReportCacheKey, &cached); err != nil {
		zap.L().Warn("pet report cache read failed", zap.Error(err))
	} else if hit {
		return &cached, nil
	}

	pets := s.db.Collection(db.PetsCollection)
	report := &models.PetReport{GeneratedAt: s.now()}

	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$bucket", Value: bson.M{
			"groupBy":    "$age",
			"boundaries": bson.A{0, 1, 3, 7, 12},
			"default":    "12+",
			"output": bson.M{
				"count":          bson.M{"$sum": 1},
				"avgAdoptionFee": bson.M{"$avg": "$adoptionFee"},
			},
		}}},
	}, &report.AgeDistribution); err != nil {
		return nil, err
	}

	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":            "$size",
			"count":          bson.M{"$sum": 1},
			"avgAdoptionFee": bson.M{"$avg": "$adoptionFee"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}, &report.SizeDistribution); err != nil {
		return nil, err
	}

	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}, &report.StatusDistribution); err != nil {
		return nil, err
	}

	var times []models.AdoptionTimes
	if err := aggregateInto(ctx, pets, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.PetStatusAdopted, "adoptedAt": bson.M{"$ne": nil}}}},
		{{Key: "$project", Value: bson.M{
			"daysToAdoption": bson.M{"$divide": bson.A{
				bson.M{"$subtract": bson.A{"$adoptedAt", "$createdAt"}},
				1000 * 60 * 60 * 24,
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":               nil,
			"avgDaysToAdoption": bson.M{"$avg": "$daysToAdoption"},
			"minDaysToAdoption": bson.M{"$min": "$daysToAdoption"},
			"maxDaysToAdoption": bson.M{"$max": "$daysToAdoption"},
		}}},
	}, &times); err != nil {
		return nil, err
	}
	if len(times) > 0 {
		report.AdoptionTimes = times[0]
	}

	if err := s.cache.Set(ctx, petReportCacheKey, report, s.ttl); err != nil {
		zap.L().Warn("pet report cache write failed", zap.Error(err))
	}
	return report, nil
}

func aggregateInto(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("error aggregating %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("error decoding %s aggregation: %w", coll.Name(), err)
	}
	return nil
}

// adoptionRate is the adopted share of all pets, as a percentage with one decimal.
func adoptionRate(adopted, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(adopted)/float64(total)*1000) / 10
}
