package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawpal/api/internal/domain"
	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/repositories"
)

const bookingsCollection = "bookings"

var activeBookingStatuses = []string{
	string(domain.BookingStatusPending),
	string(domain.BookingStatusConfirmed),
}

// BookingRepository persists bookings in Firestore. Each document carries a flat petIds array so
// overlap checks can use array-contains.
type BookingRepository struct {
	base *pfirestore.BaseRepository[bookingDocument]
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository: firestore provider is required")
	}
	return &BookingRepository{base: pfirestore.NewBaseRepository[bookingDocument](provider, bookingsCollection)}, nil
}

// Insert creates the booking document.
func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	id := strings.TrimSpace(booking.ID)
	if id == "" {
		return errors.New("booking repository: booking id is required")
	}
	return r.base.Create(ctx, id, encodeBooking(booking))
}

// Update overwrites the booking snapshot.
func (r *BookingRepository) Update(ctx context.Context, booking domain.Booking) error {
	id := strings.TrimSpace(booking.ID)
	if id == "" {
		return errors.New("booking repository: booking id is required")
	}
	return r.base.Set(ctx, id, encodeBooking(booking))
}

// FindByID loads a booking.
func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return domain.Booking{}, err
	}
	return decodeBooking(doc.ID, doc.Data), nil
}

// List returns bookings newest first.
func (r *BookingRepository) List(ctx context.Context, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	limit, fetch := pageWindow(filter.Pagination.PageSize)
	var cursorErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("user.id", "==", userID)
		}
		if solutionID := strings.TrimSpace(filter.SolutionID); solutionID != "" {
			q = q.Where("solutionId", "==", solutionID)
		}
		switch statuses := truncateIn(filter.Status); len(statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", statuses[0])
		default:
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		q, cursorErr = applyCreatedCursor(q, strings.TrimSpace(filter.Pagination.PageToken))
		return q.Limit(fetch)
	})
	if cursorErr != nil {
		return domain.CursorPage[domain.Booking]{}, cursorErr
	}
	if err != nil {
		return domain.CursorPage[domain.Booking]{}, err
	}

	page := domain.CursorPage[domain.Booking]{Items: make([]domain.Booking, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := docs[limit-1]
			token, err := encodeCreatedCursor(last.Data.CreatedAt, last.ID)
			if err != nil {
				return domain.CursorPage[domain.Booking]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeBooking(doc.ID, doc.Data))
	}
	return page, nil
}

// ListActiveForPet returns pending or confirmed bookings holding the pet within the solution.
// Inside a transaction the query joins the transaction's read set.
func (r *BookingRepository) ListActiveForPet(ctx context.Context, petID, solutionID string) ([]domain.Booking, error) {
	petID = strings.TrimSpace(petID)
	if petID == "" {
		return nil, errors.New("booking repository: pet id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("petIds", "array-contains", petID).Where("status", "in", activeBookingStatuses)
		if solutionID = strings.TrimSpace(solutionID); solutionID != "" {
			q = q.Where("solutionId", "==", solutionID)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	bookings := make([]domain.Booking, 0, len(docs))
	for _, doc := range docs {
		bookings = append(bookings, decodeBooking(doc.ID, doc.Data))
	}
	return bookings, nil
}

type bookingDocument struct {
	User         bookingUserDocument  `firestore:"user"`
	SolutionID   string               `firestore:"solutionId"`
	SolutionName string               `firestore:"solutionName"`
	DateStarts   time.Time            `firestore:"dateStarts"`
	DateEnd      time.Time            `firestore:"dateEnd"`
	Pets         []bookingPetDocument `firestore:"pets"`
	PetIDs       []string             `firestore:"petIds"`
	TotalAmount  int64                `firestore:"totalAmount"`
	HireShipper  bool                 `firestore:"hireShipper"`
	Status       string               `firestore:"status"`
	CreatedAt    time.Time            `firestore:"createdAt"`
	UpdatedAt    time.Time            `firestore:"updatedAt"`
}

type bookingUserDocument struct {
	ID      string `firestore:"id"`
	Name    string `firestore:"name"`
	Email   string `firestore:"email"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
}

type bookingPetDocument struct {
	PetID        string `firestore:"petId"`
	PetName      string `firestore:"petName"`
	ResourceID   string `firestore:"resourceId"`
	ResourceName string `firestore:"resourceName"`
	SubTotal     int64  `firestore:"subTotal"`
}

func encodeBooking(b domain.Booking) bookingDocument {
	pets := make([]bookingPetDocument, 0, len(b.Pets))
	for _, pet := range b.Pets {
		pets = append(pets, bookingPetDocument(pet))
	}
	return bookingDocument{
		User:         bookingUserDocument(b.User),
		SolutionID:   b.SolutionID,
		SolutionName: b.SolutionName,
		DateStarts:   b.DateStarts.UTC(),
		DateEnd:      b.DateEnd.UTC(),
		Pets:         pets,
		PetIDs:       b.PetIDs(),
		TotalAmount:  b.TotalAmount,
		HireShipper:  b.HireShipper,
		Status:       string(b.Status),
		CreatedAt:    b.CreatedAt.UTC(),
		UpdatedAt:    b.UpdatedAt.UTC(),
	}
}

func decodeBooking(id string, doc bookingDocument) domain.Booking {
	pets := make([]domain.BookingPet, 0, len(doc.Pets))
	for _, pet := range doc.Pets {
		pets = append(pets, domain.BookingPet(pet))
	}
	return domain.Booking{
		ID:           id,
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
