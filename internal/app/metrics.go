package app

import "github.com/hylla/reqtrack/internal/domain"

// ComputeWeeklyMetrics derives summary counts for one filtered window.
//
// ActiveBlockers counts reports minus resolutions inside the window only and
// floors at zero. It is not the live blocker set; see ReconstructActiveBlockers.
func ComputeWeeklyMetrics(entries []domain.ActivityEntry) domain.WeeklyMetrics {
	var (
		metrics  domain.WeeklyMetrics
		touched  = map[string]struct{}{}
		reported int
		resolved int
	)
	for _, entry := range entries {
		metrics.TotalEntries++
		touched[entry.RequestID] = struct{}{}
		switch entry.Type {
		case domain.ActivityBlockerReported:
			reported++
		case domain.ActivityBlockerResolved:
			resolved++
		case domain.ActivityStatusChange:
			if entry.MetadataString(domain.MetaNewStatus) == domain.StatusDone {
				metrics.CompletedRequests++
			}
		case domain.ActivityProgressUpdate:
			metrics.ProgressUpdates++
		}
	}
	metrics.RequestsTouched = len(touched)
	metrics.ActiveBlockers = max(0, reported-resolved)
	return metrics
}
