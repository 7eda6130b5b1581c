package app

import (
	"encoding/json"
	"net/http"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// vpnHealthHandler serves the C9 snapshot. Status code is 200 when Healthy,
// 503 otherwise (Degraded or Disabled).
func (a *Application) vpnHealthHandler(w http.ResponseWriter, r *http.Request) {
	if a.checker == nil {
		w.Header().Set(ContentTypeHeader, ContentTypeJSON)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(domain.HealthReport{Status: domain.HealthDisabled})
		return
	}

	report := a.checker.Probe(r.Context())

	status := http.StatusServiceUnavailable
	if report.Status == domain.HealthHealthy {
		status = http.StatusOK
	}

	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
