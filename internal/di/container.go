package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/config"
	"github.com/pawpal/api/internal/platform/observability"
	"github.com/pawpal/api/internal/repositories"
	"github.com/pawpal/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Bookings   services.BookingService
	Promotions services.PromotionService
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Notifications *services.NotificationDispatcher
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger    *zap.Logger
	directory services.Directory
	notifier  services.Notifier
	clock     func() time.Time
	build     services.BuildInfo
}

// WithLogger sets the fallback logger used by service event hooks.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDirectory sets the user and pet directory client.
func WithDirectory(directory services.Directory) Option {
	return func(o *containerOptions) {
		o.directory = directory
	}
}

// WithNotifier sets the transport behind the notification dispatcher.
func WithNotifier(notifier services.Notifier) Option {
	return func(o *containerOptions) {
		o.notifier = notifier
	}
}

// WithClock overrides the wall clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo sets the metadata reported by the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes a Firestore or Mongo
// registry, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.directory == nil {
		return nil, errors.New("directory client is required")
	}

	dispatcher := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Notifier:    options.notifier,
		Timeout:     cfg.Notifications.Timeout,
		Concurrency: cfg.Notifications.Concurrency,
		Logger:      observability.EventLogger(options.logger.Named("notifications")),
	})

	svc, err := buildServices(reg, cfg, options, dispatcher)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		Notifications: dispatcher,
	}, nil
}

// Close drains in-flight notifications and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Notifications != nil {
		if err := c.Notifications.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(reg repositories.Registry, cfg config.Config, opts containerOptions, dispatcher *services.NotificationDispatcher) (Services, error) {
	var svc Services

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Products:       reg.Products(),
		Promotions:     reg.Promotions(),
		PromotionUsage: reg.PromotionUsage(),
		Directory:      opts.directory,
		UnitOfWork:     reg,
		Notifications:  dispatcher,
		Clock:          opts.clock,
		Logger:         observability.EventLogger(opts.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	slots, err := services.NewSlotValidator(services.SlotValidatorDeps{
		Resources:       reg.Resources(),
		Bookings:        reg.Bookings(),
		Location:        cfg.Booking.Location,
		HoursBoundTypes: cfg.Booking.HoursBoundTypes,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build slot validator: %w", err)
	}
	bookingSvc, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings:      reg.Bookings(),
		Solutions:     reg.Solutions(),
		Slots:         slots,
		Directory:     opts.directory,
		UnitOfWork:    reg,
		Notifications: dispatcher,
		Location:      cfg.Booking.Location,
		Clock:         opts.clock,
		Logger:        observability.EventLogger(opts.logger.Named("bookings")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build booking service: %w", err)
	}
	svc.Bookings = bookingSvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions:     reg.Promotions(),
		PromotionUsage: reg.PromotionUsage(),
		Directory:      opts.directory,
		UnitOfWork:     reg,
		Clock:          opts.clock,
		Logger:         observability.EventLogger(opts.logger.Named("promotions")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Notifications:    dispatcher,
			Clock:            opts.clock,
			Build:            opts.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
