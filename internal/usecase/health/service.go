package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the engine is up but the place index is missing.
	Degraded Status = "degraded"
	// Unhealthy indicates the engine is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckMissing indicates the place index does not exist.
	CheckMissing CheckResult = "missing"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Version string
	Checks  map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	engine    Pinger
	indexes   IndexChecker
	indexName string
	version   string
}

// New creates a Service. indexes can be nil.
func New(engine Pinger, indexes IndexChecker, indexName, version string) *Service {
	return &Service{engine: engine, indexes: indexes, indexName: indexName, version: version}
}

// Check runs health checks against the index engine.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	report := Report{Status: Healthy, Version: s.version, Checks: checks}

	if err := s.engine.Ping(ctx); err != nil {
		checks["engine"] = CheckError
		report.Status = Unhealthy
		return report
	}
	checks["engine"] = CheckOK

	if s.indexes == nil {
		return report
	}
	exists, err := s.indexes.IndexExists(ctx, s.indexName)
	switch {
	case err != nil:
		checks["index"] = CheckError
		report.Status = Unhealthy
	case !exists:
		checks["index"] = CheckMissing
		report.Status = Degraded
	default:
		checks["index"] = CheckOK
	}
	return report
}
