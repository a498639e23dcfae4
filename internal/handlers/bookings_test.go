package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/services"
)

func newBookingRouter(svc services.BookingService) chi.Router {
	router := chi.NewRouter()
	router.Route("/bookings", NewBookingHandlers(svc).Routes)
	return router
}

func TestBookingHandlersCreateBooking(t *testing.T) {
	start := time.Date(2025, 7, 1, 2, 0, 0, 0, time.UTC)
	var captured services.CreateBookingCommand
	svc := &stubBookingService{
		createFn: func(_ context.Context, cmd services.CreateBookingCommand) (services.Booking, error) {
			captured = cmd
			return services.Booking{
				ID:          "bk-1",
				User:        domain.BookingUser{ID: cmd.UserID, Name: "An"},
				SolutionID:  cmd.SolutionID,
				DateStarts:  cmd.DateStarts,
				DateEnd:     cmd.DateStarts.Add(time.Hour),
				Pets:        []domain.BookingPet{{PetID: "pet-1", PetName: "Milo", ResourceID: "r-1", ResourceName: "Room A", SubTotal: 150000}},
				TotalAmount: 150000,
				Status:      domain.BookingStatusPending,
			}, nil
		},
	}

	body := `{"solutionId":"sol-1","dateStarts":"2025-07-01T09:00:00+07:00","pets":[{"petId":"pet-1","resourceId":"r-1"}],"hireShipper":true}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(req, "u-1", auth.RoleUser))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "u-1" || captured.SolutionID != "sol-1" || !captured.HireShipper {
		t.Fatalf("unexpected command %+v", captured)
	}
	if !captured.DateStarts.Equal(start) {
		t.Fatalf("expected start %s, got %s", start, captured.DateStarts)
	}
	if len(captured.Pets) != 1 || captured.Pets[0].PetID != "pet-1" || captured.Pets[0].ResourceID != "r-1" {
		t.Fatalf("unexpected pets %+v", captured.Pets)
	}
	var payload bookingPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.TotalAmount != 150000 || payload.Pets[0].PetName != "Milo" || payload.DateEnd != "2025-07-01T03:00:00Z" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestBookingHandlersRequireCaller(t *testing.T) {
	rr := httptest.NewRecorder()
	newBookingRouter(&stubBookingService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestBookingHandlersMapsSlotErrors(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: resource r-1 closed", services.ErrOutOfHours): "outside_working_hours",
		fmt.Errorf("%w: pet-1", services.ErrOverlap):                  "booking_overlap",
	}
	for svcErr, code := range cases {
		svc := &stubBookingService{
			createFn: func(context.Context, services.CreateBookingCommand) (services.Booking, error) {
				return services.Booking{}, svcErr
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{"solutionId":"sol-1"}`))
		rr := httptest.NewRecorder()
		newBookingRouter(svc).ServeHTTP(rr, withCaller(req, "u-1", auth.RoleUser))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%v: expected 422, got %d", svcErr, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), code) {
			t.Fatalf("%v: expected code %s in %s", svcErr, code, rr.Body.String())
		}
	}
}

func TestBookingHandlersUpdateBookingPassesOnlyProvidedFields(t *testing.T) {
	var captured services.UpdateBookingCommand
	svc := &stubBookingService{
		updateFn: func(_ context.Context, cmd services.UpdateBookingCommand) (services.Booking, error) {
			captured = cmd
			return services.Booking{ID: cmd.BookingID, Status: domain.BookingStatusCancelled}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPatch, "/bookings/bk-1", strings.NewReader(`{"status":"CANCELLED"}`))
	rr := httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(req, "u-1", auth.RoleUser))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BookingID != "bk-1" || captured.ActorID != "u-1" || captured.ActorRole != auth.RoleUser {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Status == nil || *captured.Status != domain.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %v", captured.Status)
	}
	if captured.DateStarts != nil || captured.Pets != nil || captured.HireShipper != nil {
		t.Fatalf("expected untouched fields to stay nil: %+v", captured)
	}
}

func TestBookingHandlersUpdateBookingForbidden(t *testing.T) {
	svc := &stubBookingService{
		updateFn: func(context.Context, services.UpdateBookingCommand) (services.Booking, error) {
			return services.Booking{}, fmt.Errorf("%w: booking belongs to another customer", services.ErrForbidden)
		},
	}
	req := httptest.NewRequest(http.MethodPatch, "/bookings/bk-1", strings.NewReader(`{"hireShipper":false}`))
	rr := httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(req, "u-2", auth.RoleUser))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestBookingHandlersGetAndList(t *testing.T) {
	var listed services.BookingListFilter
	svc := &stubBookingService{
		getFn: func(_ context.Context, bookingID string) (services.Booking, error) {
			return services.Booking{ID: bookingID, User: domain.BookingUser{ID: "owner"}}, nil
		},
		listFn: func(_ context.Context, filter services.BookingListFilter) (domain.CursorPage[services.Booking], error) {
			listed = filter
			return domain.CursorPage[services.Booking]{Items: []services.Booking{{ID: "bk-1"}}}, nil
		},
	}

	rr := httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil), "other", auth.RoleUser))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign booking, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil), "staff-1", auth.RoleStaff))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	newBookingRouter(svc).ServeHTTP(rr, withCaller(httptest.NewRequest(http.MethodGet, "/bookings?solutionId=sol-1&status=pending", nil), "u-1", auth.RoleUser))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if listed.UserID != "u-1" || listed.SolutionID != "sol-1" || len(listed.Status) != 1 || listed.Pagination.PageSize != defaultListPageSize {
		t.Fatalf("unexpected filter %+v", listed)
	}
}
