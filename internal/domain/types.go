package domain

import (
	"fmt"
	"sort"
	"time"
)

// Pagination is the cursor-based paging input for newest-first listings.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with the opaque token of the next page, empty on the last page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// WorseHealth returns the more severe of two health statuses. Unknown values rank as ok.
func WorseHealth(current, next string) string {
	if healthRank(next) > healthRank(current) {
		return next
	}
	return current
}

func healthRank(status string) int {
	switch status {
	case HealthStatusError:
		return 2
	case HealthStatusDegraded:
		return 1
	}
	return 0
}

// SystemHealthCheck describes the outcome of one dependency probe. A failing critical dependency
// (Firestore) reports error; optional ones (Redis, Secret Manager) report degraded.
type SystemHealthCheck struct {
	Status    string
	Critical  bool
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for the readiness probe.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Failures lists "name: error" for every non-ok check that carries an error, sorted by name.
func (r SystemHealthReport) Failures() []string {
	names := make([]string, 0, len(r.Checks))
	for name, check := range r.Checks {
		if check.Status != HealthStatusOK && check.Error != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s: %s", name, r.Checks[name].Error))
	}
	return out
}
