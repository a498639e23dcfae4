package mongodb

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/pawpal/api/internal/domain"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/repositories"
)

const (
	bookingsCollection      = "bookings"
	bookingGuardsCollection = "bookingGuards"
	resourcesCollection     = "resources"
	solutionsCollection     = "solutions"
)

// BookingRepository persists bookings in Mongo. Every write also bumps one guard document per
// pet and solution, so two transactions that checked the same pet's schedule from the same
// snapshot collide with a WriteConflict instead of both committing.
type BookingRepository struct {
	coll   *mongo.Collection
	guards *mongo.Collection
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Mongo-backed booking repository.
func NewBookingRepository(provider *pmongo.Provider) *BookingRepository {
	return &BookingRepository{
		coll:   provider.Collection(bookingsCollection),
		guards: provider.Collection(bookingGuardsCollection),
	}
}

func (r *BookingRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pets.petId", Value: 1}, {Key: "solutionId", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("pet_solution_status")},
		{Keys: bson.D{{Key: "user.id", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("user_created")},
	})
	return pmongo.WrapError("bookings.ensure_indexes", err)
}

// Insert creates the booking.
func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	if strings.TrimSpace(booking.ID) == "" {
		return errors.New("booking repository: booking id is required")
	}
	if err := r.touchGuards(ctx, booking); err != nil {
		return err
	}
	_, err := r.coll.InsertOne(ctx, encodeBooking(booking))
	return pmongo.WrapError("bookings.insert", err)
}

// Update replaces the booking.
func (r *BookingRepository) Update(ctx context.Context, booking domain.Booking) error {
	if err := r.touchGuards(ctx, booking); err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": booking.ID}, encodeBooking(booking))
	if err != nil {
		return pmongo.WrapError("bookings.update", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.WrapError("bookings.update", pmongo.ErrNoMatch)
	}
	return nil
}

func (r *BookingRepository) touchGuards(ctx context.Context, booking domain.Booking) error {
	now := time.Now().UTC()
	for _, key := range guardKeys(booking) {
		_, err := r.guards.UpdateOne(ctx,
			bson.M{"_id": key},
			bson.M{"$inc": bson.M{"v": 1}, "$set": bson.M{"bookingId": booking.ID, "updatedAt": now}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return pmongo.WrapError("bookings.guard", err)
		}
	}
	return nil
}

// guardKeys returns one sorted key per distinct pet so concurrent writers bump guards in the same order.
func guardKeys(booking domain.Booking) []string {
	solutionID := strings.TrimSpace(booking.SolutionID)
	keys := make([]string, 0, len(booking.Pets))
	for _, pet := range booking.Pets {
		petID := strings.TrimSpace(pet.PetID)
		if petID == "" {
			continue
		}
		keys = append(keys, petID+"_"+solutionID)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// FindByID loads a booking.
func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	var doc bookingDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(bookingID)}).Decode(&doc); err != nil {
		return domain.Booking{}, pmongo.WrapError("bookings.get", err)
	}
	return decodeBooking(doc), nil
}

// List returns bookings newest first.
func (r *BookingRepository) List(ctx context.Context, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	query := bson.M{}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query["user.id"] = userID
	}
	if solutionID := strings.TrimSpace(filter.SolutionID); solutionID != "" {
		query["solutionId"] = solutionID
	}
	statusFilter(query, filter.Status)
	return findPage(ctx, r.coll, "bookings.list", query, filter.Pagination, decodeBooking)
}

// ListActiveForPet returns pending or confirmed bookings holding the pet within the solution.
func (r *BookingRepository) ListActiveForPet(ctx context.Context, petID, solutionID string) ([]domain.Booking, error) {
	query := bson.M{
		"pets.petId": strings.TrimSpace(petID),
		"status":     bson.M{"$in": bson.A{string(domain.BookingStatusPending), string(domain.BookingStatusConfirmed)}},
	}
	if solutionID = strings.TrimSpace(solutionID); solutionID != "" {
		query["solutionId"] = solutionID
	}
	cursor, err := r.coll.Find(ctx, query)
	if err != nil {
		return nil, pmongo.WrapError("bookings.list_active", err)
	}
	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, pmongo.WrapError("bookings.list_active", err)
	}
	bookings := make([]domain.Booking, 0, len(docs))
	for _, doc := range docs {
		bookings = append(bookings, decodeBooking(doc))
	}
	return bookings, nil
}

// ResourceRepository reads bookable resources.
type ResourceRepository struct {
	coll *mongo.Collection
}

var _ repositories.ResourceRepository = (*ResourceRepository)(nil)

// NewResourceRepository constructs a Mongo-backed resource repository.
func NewResourceRepository(provider *pmongo.Provider) *ResourceRepository {
	return &ResourceRepository{coll: provider.Collection(resourcesCollection)}
}

// FindByID loads a resource.
func (r *ResourceRepository) FindByID(ctx context.Context, resourceID string) (domain.Resource, error) {
	var doc resourceDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(resourceID)}).Decode(&doc); err != nil {
		return domain.Resource{}, pmongo.WrapError("resources.get", err)
	}
	days := make([]time.Weekday, 0, len(doc.AvailableDays))
	for _, day := range doc.AvailableDays {
		if day >= 0 && day <= 6 {
			days = append(days, time.Weekday(day))
		}
	}
	return domain.Resource{
		ID:            doc.ID,
		SolutionID:    doc.SolutionID,
		Name:          doc.Name,
		Capacity:      doc.Capacity,
		Location:      doc.Location,
		AvailableDays: days,
		StartTime:     doc.StartTime,
		EndTime:       doc.EndTime,
		Tier:          domain.ResourceTier(doc.Tier),
		Upcharge:      doc.Upcharge,
	}, nil
}

// SolutionRepository reads bookable solutions.
type SolutionRepository struct {
	coll *mongo.Collection
}

var _ repositories.SolutionRepository = (*SolutionRepository)(nil)

// NewSolutionRepository constructs a Mongo-backed solution repository.
func NewSolutionRepository(provider *pmongo.Provider) *SolutionRepository {
	return &SolutionRepository{coll: provider.Collection(solutionsCollection)}
}

// FindByID loads a solution.
func (r *SolutionRepository) FindByID(ctx context.Context, solutionID string) (domain.Solution, error) {
	var doc solutionDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(solutionID)}).Decode(&doc); err != nil {
		return domain.Solution{}, pmongo.WrapError("solutions.get", err)
	}
	return domain.Solution{
		ID:          doc.ID,
		Name:        doc.Name,
		Type:        doc.Type,
		PricingType: domain.PricingType(doc.PricingType),
		Price:       doc.Price,
		Duration:    doc.Duration,
	}, nil
}

type bookingDocument struct {
	ID           string               `bson:"_id"`
	User         bookingUserDocument  `bson:"user"`
	SolutionID   string               `bson:"solutionId"`
	SolutionName string               `bson:"solutionName"`
	DateStarts   time.Time            `bson:"dateStarts"`
	DateEnd      time.Time            `bson:"dateEnd"`
	Pets         []bookingPetDocument `bson:"pets"`
	TotalAmount  int64                `bson:"totalAmount"`
	HireShipper  bool                 `bson:"hireShipper"`
	Status       string               `bson:"status"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func (d bookingDocument) cursorKey() (time.Time, string) { return d.CreatedAt, d.ID }

type bookingUserDocument struct {
	ID      string `bson:"id"`
	Name    string `bson:"name"`
	Email   string `bson:"email"`
	Phone   string `bson:"phone"`
	Address string `bson:"address"`
}

type bookingPetDocument struct {
	PetID        string `bson:"petId"`
	PetName      string `bson:"petName"`
	ResourceID   string `bson:"resourceId"`
	ResourceName string `bson:"resourceName"`
	SubTotal     int64  `bson:"subTotal"`
}

type resourceDocument struct {
	ID            string `bson:"_id"`
	SolutionID    string `bson:"solutionId"`
	Name          string `bson:"name"`
	Capacity      int    `bson:"capacity"`
	Location      string `bson:"location"`
	AvailableDays []int  `bson:"availableDays"`
	StartTime     string `bson:"startTime"`
	EndTime       string `bson:"endTime"`
	Tier          string `bson:"tier"`
	Upcharge      int64  `bson:"upcharge"`
}

type solutionDocument struct {
	ID          string `bson:"_id"`
	Name        string `bson:"name"`
	Type        string `bson:"type"`
	PricingType string `bson:"pricingType"`
	Price       int64  `bson:"price"`
	Duration    int    `bson:"duration"`
}

func encodeBooking(b domain.Booking) bookingDocument {
	pets := make([]bookingPetDocument, 0, len(b.Pets))
	for _, pet := range b.Pets {
		pets = append(pets, bookingPetDocument(pet))
	}
	return bookingDocument{
		ID:           b.ID,
		User:         bookingUserDocument(b.User),
		SolutionID:   b.SolutionID,
		SolutionName: b.SolutionName,
		DateStarts:   b.DateStarts.UTC(),
		DateEnd:      b.DateEnd.UTC(),
		Pets:         pets,
		TotalAmount:  b.TotalAmount,
		HireShipper:  b.HireShipper,
		Status:       string(b.Status),
		CreatedAt:    b.CreatedAt.UTC(),
		UpdatedAt:    b.UpdatedAt.UTC(),
	}
}

func decodeBooking(doc bookingDocument) domain.Booking {
	pets := make([]domain.BookingPet, 0, len(doc.Pets))
	for _, pet := range doc.Pets {
		pets = append(pets, domain.BookingPet(pet))
	}
	return domain.Booking{
		ID:           doc.ID,
		User:         domain.BookingUser(doc.User),
		SolutionID:   doc.SolutionID,
		SolutionName: doc.SolutionName,
		DateStarts:   doc.DateStarts.UTC(),
		DateEnd:      doc.DateEnd.UTC(),
		Pets:         pets,
		TotalAmount:  doc.TotalAmount,
		HireShipper:  doc.HireShipper,
		Status:       domain.BookingStatus(doc.Status),
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}
