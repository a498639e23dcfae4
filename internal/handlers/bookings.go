package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
	"github.com/pawpal/api/internal/services"
)

// BookingHandlers exposes booking endpoints for customers and staff.
type BookingHandlers struct {
	bookings services.BookingService
}

// NewBookingHandlers constructs a new BookingHandlers instance.
func NewBookingHandlers(bookings services.BookingService) *BookingHandlers {
	return &BookingHandlers{bookings: bookings}
}

// Routes registers the /bookings endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireIdentity())
	r.Post("/", h.createBooking)
	r.Get("/", h.listBookings)
	r.Get("/{bookingID}", h.getBooking)
	r.Patch("/{bookingID}", h.updateBooking)
}

type bookingPetRequest struct {
	PetID      string `json:"petId"`
	ResourceID string `json:"resourceId"`
}

type createBookingRequest struct {
	SolutionID  string              `json:"solutionId"`
	DateStarts  time.Time           `json:"dateStarts"`
	Pets        []bookingPetRequest `json:"pets"`
	HireShipper bool                `json:"hireShipper"`
}

type updateBookingRequest struct {
	DateStarts  *time.Time          `json:"dateStarts"`
	Pets        []bookingPetRequest `json:"pets"`
	HireShipper *bool               `json:"hireShipper"`
	Status      *string             `json:"status"`
}

type bookingUserPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type bookingPetPayload struct {
	PetID        string `json:"petId"`
	PetName      string `json:"petName"`
	ResourceID   string `json:"resourceId"`
	ResourceName string `json:"resourceName"`
	SubTotal     int64  `json:"subTotal"`
}

type bookingPayload struct {
	ID           string              `json:"id"`
	User         bookingUserPayload  `json:"user"`
	SolutionID   string              `json:"solutionId"`
	SolutionName string              `json:"solutionName"`
	DateStarts   string              `json:"dateStarts"`
	DateEnd      string              `json:"dateEnd"`
	Pets         []bookingPetPayload `json:"pets"`
	TotalAmount  int64               `json:"totalAmount"`
	HireShipper  bool                `json:"hireShipper"`
	Status       string              `json:"status"`
	CreatedAt    string              `json:"createdAt"`
	UpdatedAt    string              `json:"updatedAt"`
}

type bookingListResponse struct {
	Items         []bookingPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func (h *BookingHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	booking, err := h.bookings.CreateBooking(ctx, services.CreateBookingCommand{
		SolutionID:  strings.TrimSpace(req.SolutionID),
		UserID:      identity.UserID,
		DateStarts:  req.DateStarts,
		Pets:        petInputs(req.Pets),
		HireShipper: req.HireShipper,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bookings/"+booking.ID)
	writeJSONResponse(w, http.StatusCreated, buildBookingPayload(booking))
}

func (h *BookingHandlers) listBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.BookingListFilter{
		UserID:     identity.UserID,
		SolutionID: strings.TrimSpace(query.Get("solutionId")),
		Status:     parseFilterValues(query["status"]),
		Pagination: page,
	}
	if identity.IsStaff() {
		filter.UserID = strings.TrimSpace(query.Get("userId"))
	}

	result, err := h.bookings.ListBookings(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]bookingPayload, 0, len(result.Items))
	for _, booking := range result.Items {
		items = append(items, buildBookingPayload(booking))
	}
	writeJSONResponse(w, http.StatusOK, bookingListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *BookingHandlers) getBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	booking, err := h.bookings.GetBooking(ctx, strings.TrimSpace(chi.URLParam(r, "bookingID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !identity.IsStaff() && booking.User.ID != identity.UserID {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "booking not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookingPayload(booking))
}

func (h *BookingHandlers) updateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req updateBookingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.UpdateBookingCommand{
		BookingID:   strings.TrimSpace(chi.URLParam(r, "bookingID")),
		ActorID:     identity.UserID,
		ActorRole:   identity.Role,
		DateStarts:  req.DateStarts,
		HireShipper: req.HireShipper,
	}
	if req.Pets != nil {
		cmd.Pets = petInputs(req.Pets)
	}
	if req.Status != nil {
		status := domain.BookingStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}

	booking, err := h.bookings.UpdateBooking(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookingPayload(booking))
}

func petInputs(pets []bookingPetRequest) []services.BookingPetInput {
	inputs := make([]services.BookingPetInput, 0, len(pets))
	for _, pet := range pets {
		inputs = append(inputs, services.BookingPetInput{
			PetID:      strings.TrimSpace(pet.PetID),
			ResourceID: strings.TrimSpace(pet.ResourceID),
		})
	}
	return inputs
}

func buildBookingPayload(booking services.Booking) bookingPayload {
	pets := make([]bookingPetPayload, 0, len(booking.Pets))
	for _, pet := range booking.Pets {
		pets = append(pets, bookingPetPayload(pet))
	}
	return bookingPayload{
		ID:           booking.ID,
		User:         bookingUserPayload(booking.User),
		SolutionID:   booking.SolutionID,
		SolutionName: booking.SolutionName,
		DateStarts:   formatTime(booking.DateStarts),
		DateEnd:      formatTime(booking.DateEnd),
		Pets:         pets,
		TotalAmount:  booking.TotalAmount,
		HireShipper:  booking.HireShipper,
		Status:       string(booking.Status),
		CreatedAt:    formatTime(booking.CreatedAt),
		UpdatedAt:    formatTime(booking.UpdatedAt),
	}
}
