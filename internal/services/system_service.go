package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

// SystemHealthReport is the readiness view served by /readyz.
type SystemHealthReport = domain.SystemHealthReport

// SystemService reports process and dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// NotificationBacklog exposes the notification dispatcher's concurrency usage.
type NotificationBacklog interface {
	Backlog() (inFlight, capacity int)
}

// SystemServiceDeps bundles collaborators for NewSystemService.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Notifications    NotificationBacklog
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	deps SystemServiceDeps
}

// NewSystemService returns a SystemService that stamps dependency probes with build metadata and
// uptime. A saturated notification dispatcher degrades the report.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Build.StartedAt.IsZero() {
		deps.Build.StartedAt = deps.Clock()
	}
	return &systemService{deps: deps}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.deps.HealthRepository.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	now := s.deps.Clock().UTC()
	build := s.deps.Build

	if report.Checks == nil {
		report.Checks = make(map[string]domain.SystemHealthCheck)
	}
	if s.deps.Notifications != nil {
		report.Checks["notifications"] = backlogCheck(s.deps.Notifications, now)
	}
	report.GeneratedAt = now
	report.Version = build.Version
	report.CommitSHA = build.CommitSHA
	report.Environment = build.Environment
	report.Uptime = now.Sub(build.StartedAt)
	report.Status = worstStatus(report.Checks)
	return report, nil
}

func backlogCheck(backlog NotificationBacklog, now time.Time) domain.SystemHealthCheck {
	inFlight, capacity := backlog.Backlog()
	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    fmt.Sprintf("%d/%d sends in flight", inFlight, capacity),
		CheckedAt: now,
	}
	if capacity > 0 && inFlight >= capacity {
		check.Status = domain.HealthStatusDegraded
		check.Error = "notification dispatcher saturated"
	}
	return check
}

// worstStatus folds check statuses: any error wins, then degraded, then ok. Unknown statuses
// count as degraded.
func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK:
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
