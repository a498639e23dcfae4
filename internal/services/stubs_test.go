package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

type stubRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.err.Error() }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(what string) error {
	return &stubRepoError{err: fmt.Errorf("%s not found", what), notFound: true}
}

func conflictErr(what string) error {
	return &stubRepoError{err: fmt.Errorf("%s conflict", what), conflict: true}
}

func unavailableErr(what string) error {
	return &stubRepoError{err: fmt.Errorf("%s unavailable", what), unavailable: true}
}

// memStore keeps every aggregate in memory. Its unit of work snapshots state and restores it when
// the callback fails so tests can observe rollback.
type memStore struct {
	mu         sync.Mutex
	orders     map[string]domain.Order
	products   map[string]domain.Product
	promotions map[string]domain.Promotion
	usage      map[string]domain.PromotionUsage
	bookings   map[string]domain.Booking
	resources  map[string]domain.Resource
	solutions  map[string]domain.Solution

	failOrderInsert error
	txCount         int
}

func newMemStore() *memStore {
	return &memStore{
		orders:     map[string]domain.Order{},
		products:   map[string]domain.Product{},
		promotions: map[string]domain.Promotion{},
		usage:      map[string]domain.PromotionUsage{},
		bookings:   map[string]domain.Booking{},
		resources:  map[string]domain.Resource{},
		solutions:  map[string]domain.Solution{},
	}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	m.txCount++
	snapshot := struct {
		orders     map[string]domain.Order
		products   map[string]domain.Product
		promotions map[string]domain.Promotion
		usage      map[string]domain.PromotionUsage
		bookings   map[string]domain.Booking
	}{maps.Clone(m.orders), maps.Clone(m.products), maps.Clone(m.promotions), maps.Clone(m.usage), maps.Clone(m.bookings)}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.orders = snapshot.orders
		m.products = snapshot.products
		m.promotions = snapshot.promotions
		m.usage = snapshot.usage
		m.bookings = snapshot.bookings
		m.mu.Unlock()
		return err
	}
	return nil
}

func usageKey(promotionID, userID string) string { return promotionID + "_" + userID }

type memOrders struct{ s *memStore }

func (r memOrders) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOrderInsert != nil {
		return r.s.failOrderInsert
	}
	if _, ok := r.s.orders[order.ID]; ok {
		return conflictErr("order")
	}
	r.s.orders[order.ID] = order
	return nil
}

func (r memOrders) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; !ok {
		return notFoundErr("order")
	}
	r.s.orders[order.ID] = order
	return nil
}

func (r memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, notFoundErr("order")
	}
	return order, nil
}

func (r memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []domain.Order
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		items = append(items, order)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

type memProducts struct{ s *memStore }

func (r memProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, notFoundErr("product")
	}
	return product, nil
}

func (r memProducts) AdjustStock(_ context.Context, id string, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return notFoundErr("product")
	}
	product.Stock += delta
	r.s.products[id] = product
	return nil
}

type memPromotions struct{ s *memStore }

func (r memPromotions) Insert(_ context.Context, promotion domain.Promotion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.promotions {
		if existing.Code == promotion.Code {
			return conflictErr("promotion")
		}
	}
	r.s.promotions[promotion.ID] = promotion
	return nil
}

func (r memPromotions) Update(_ context.Context, promotion domain.Promotion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.promotions[promotion.ID]; !ok {
		return notFoundErr("promotion")
	}
	r.s.promotions[promotion.ID] = promotion
	return nil
}

func (r memPromotions) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.promotions[id]; !ok {
		return notFoundErr("promotion")
	}
	delete(r.s.promotions, id)
	return nil
}

func (r memPromotions) FindByID(_ context.Context, id string) (domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	promotion, ok := r.s.promotions[id]
	if !ok {
		return domain.Promotion{}, notFoundErr("promotion")
	}
	return promotion, nil
}

func (r memPromotions) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, promotion := range r.s.promotions {
		if promotion.Code == code {
			return promotion, nil
		}
	}
	return domain.Promotion{}, notFoundErr("promotion")
}

func (r memPromotions) List(_ context.Context, _ repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]domain.Promotion, 0, len(r.s.promotions))
	for _, promotion := range r.s.promotions {
		items = append(items, promotion)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return domain.CursorPage[domain.Promotion]{Items: items}, nil
}

func (r memPromotions) AdjustUsageCount(_ context.Context, id string, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	promotion, ok := r.s.promotions[id]
	if !ok {
		return notFoundErr("promotion")
	}
	promotion.UsageCount += delta
	r.s.promotions[id] = promotion
	return nil
}

type memUsage struct{ s *memStore }

func (r memUsage) Find(_ context.Context, promotionID, userID string) (domain.PromotionUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	usage, ok := r.s.usage[usageKey(promotionID, userID)]
	if !ok {
		return domain.PromotionUsage{}, notFoundErr("usage")
	}
	return usage, nil
}

func (r memUsage) Insert(_ context.Context, usage domain.PromotionUsage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := usageKey(usage.PromotionID, usage.UserID)
	if _, ok := r.s.usage[key]; ok {
		return conflictErr("usage")
	}
	r.s.usage[key] = usage
	return nil
}

func (r memUsage) Delete(_ context.Context, promotionID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := usageKey(promotionID, userID)
	if _, ok := r.s.usage[key]; !ok {
		return notFoundErr("usage")
	}
	delete(r.s.usage, key)
	return nil
}

type memBookings struct{ s *memStore }

func (r memBookings) Insert(_ context.Context, booking domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bookings[booking.ID] = booking
	return nil
}

func (r memBookings) Update(_ context.Context, booking domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[booking.ID]; !ok {
		return notFoundErr("booking")
	}
	r.s.bookings[booking.ID] = booking
	return nil
}

func (r memBookings) FindByID(_ context.Context, id string) (domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	booking, ok := r.s.bookings[id]
	if !ok {
		return domain.Booking{}, notFoundErr("booking")
	}
	return booking, nil
}

func (r memBookings) List(_ context.Context, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []domain.Booking
	for _, booking := range r.s.bookings {
		if filter.UserID != "" && booking.User.ID != filter.UserID {
			continue
		}
		items = append(items, booking)
	}
	return domain.CursorPage[domain.Booking]{Items: items}, nil
}

func (r memBookings) ListActiveForPet(_ context.Context, petID, solutionID string) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Booking
	for _, booking := range r.s.bookings {
		if booking.SolutionID != solutionID {
			continue
		}
		if booking.Status != domain.BookingStatusPending && booking.Status != domain.BookingStatusConfirmed {
			continue
		}
		for _, pet := range booking.Pets {
			if pet.PetID == petID {
				out = append(out, booking)
				break
			}
		}
	}
	return out, nil
}

type memResources struct{ s *memStore }

func (r memResources) FindByID(_ context.Context, id string) (domain.Resource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	resource, ok := r.s.resources[id]
	if !ok {
		return domain.Resource{}, notFoundErr("resource")
	}
	return resource, nil
}

type memSolutions struct{ s *memStore }

func (r memSolutions) FindByID(_ context.Context, id string) (domain.Solution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	solution, ok := r.s.solutions[id]
	if !ok {
		return domain.Solution{}, notFoundErr("solution")
	}
	return solution, nil
}

type stubDirectory struct {
	users   map[string]domain.User
	pets    map[string]domain.Pet
	userErr error
	petErr  error
	calls   int
}

func (d *stubDirectory) GetUser(_ context.Context, userID string) (domain.User, error) {
	d.calls++
	if d.userErr != nil {
		return domain.User{}, d.userErr
	}
	user, ok := d.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return user, nil
}

func (d *stubDirectory) GetPet(_ context.Context, userID, petID string) (domain.Pet, error) {
	d.calls++
	if d.petErr != nil {
		return domain.Pet{}, d.petErr
	}
	pet, ok := d.pets[petID]
	if !ok {
		return domain.Pet{}, fmt.Errorf("%w: pet %s", ErrNotFound, petID)
	}
	return pet, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []NotificationMessage
	err  error
}

func (n *recordingNotifier) SendTemplate(_ context.Context, msg NotificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) messages() []NotificationMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationMessage(nil), n.sent...)
}

// drain waits for queued notifications so assertions see them.
func drain(d *NotificationDispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = d.Shutdown(ctx)
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var errBoom = errors.New("boom")
