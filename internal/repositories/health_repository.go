package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/pawpal/api/internal/domain"
)

const (
	defaultProbeTimeout = 1500 * time.Millisecond
	maxParallelProbes   = 8
)

// DependencyCheck is one readiness probe. A failing Critical check marks the report as error;
// other failures only degrade it. A probe that overruns its Timeout is always an error.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Critical bool
	Check    func(context.Context) error
}

// DependencyHealthOption customises NewDependencyHealthRepository.
type DependencyHealthOption func(*prober)

// WithDependencyTimeout sets the timeout for checks that do not declare one.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(p *prober) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithDependencyClock overrides the clock stamped on results.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *prober) {
		if clock != nil {
			p.now = clock
		}
	}
}

type prober struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewDependencyHealthRepository returns a HealthRepository that runs every check in parallel on
// each Collect. Check names must be unique.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: no dependency checks")
	}
	seen := make(map[string]bool, len(checks))
	for i, check := range checks {
		name := strings.TrimSpace(check.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("health repository: check %d has no name", i)
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: check %s has no probe", name)
		case seen[name]:
			return nil, fmt.Errorf("health repository: duplicate check %s", name)
		}
		seen[name] = true
	}
	p := &prober{checks: append([]DependencyCheck(nil), checks...), timeout: defaultProbeTimeout, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *prober) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]domain.SystemHealthCheck, len(p.checks))
		g       errgroup.Group
	)
	g.SetLimit(maxParallelProbes)
	for _, check := range p.checks {
		g.Go(func() error {
			result := p.run(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := domain.SystemHealthReport{Status: domain.HealthStatusOK, Checks: results, GeneratedAt: p.now()}
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			report.Status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if report.Status == domain.HealthStatusOK {
				report.Status = domain.HealthStatusDegraded
			}
		}
	}
	return report, nil
}

func (p *prober) run(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := p.now()
	err := check.Check(probeCtx)
	if err == nil {
		err = probeCtx.Err()
	}
	finished := p.now()
	result := domain.SystemHealthCheck{Latency: finished.Sub(started), CheckedAt: finished}

	switch {
	case err == nil:
		result.Status, result.Detail = domain.HealthStatusOK, "ok"
	case errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail = domain.HealthStatusError, "timeout"
	case errors.Is(err, context.Canceled):
		result.Status, result.Detail = domain.HealthStatusError, "cancelled"
	case check.Critical:
		result.Status, result.Detail = domain.HealthStatusError, "unavailable"
	default:
		result.Status, result.Detail = domain.HealthStatusDegraded, "unavailable"
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
