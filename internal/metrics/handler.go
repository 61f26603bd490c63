package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP          httpSummary       `json:"http"`
	Authorization authorizationInfo `json:"authorization"`
	RateLimit     rateLimitInfo     `json:"rateLimit"`
	Audit         auditInfo         `json:"audit"`
	Auth          authInfo          `json:"auth"`
	Notifications notificationInfo  `json:"notifications"`
	DB            dbInfo            `json:"db"`
	Server        serverInfo        `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authorizationInfo struct {
	Denials            float64            `json:"denials"`
	DenialsByPredicate map[string]float64 `json:"denialsByPredicate"`
	RoleRecomputes     float64            `json:"roleRecomputes"`
	RoleChanges        float64            `json:"roleChanges"`
	RecomputeErrors    float64            `json:"recomputeErrors"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type auditInfo struct {
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Records      float64 `json:"records"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type notificationInfo struct {
	Published     float64 `json:"published"`
	PublishErrors float64 `json:"publishErrors"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
	EmptyAcquires float64 `json:"emptyAcquires"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["teamhub_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["teamhub_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["teamhub_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["teamhub_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["teamhub_http_request_duration_seconds"], 0.99),
		},
		Authorization: authorizationInfo{
			Denials:            sumCounter(fam["teamhub_permission_denials_total"]),
			DenialsByPredicate: sumCounterByLabel(fam["teamhub_permission_denials_total"], "predicate"),
			RoleRecomputes:     sumCounter(fam["teamhub_role_recomputes_total"]),
			RoleChanges:        counterWithLabel(fam["teamhub_role_recomputes_total"], "result", "changed"),
			RecomputeErrors:    counterWithLabel(fam["teamhub_role_recomputes_total"], "result", "error"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["teamhub_ratelimit_rejections_total"]),
		},
		Audit: auditInfo{
			TotalFlushes: sumCounter(fam["teamhub_audit_flushes_total"]),
			FlushErrors:  counterWithLabel(fam["teamhub_audit_flushes_total"], "status", "error"),
			Records:      counterValue(fam["teamhub_audit_records_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["teamhub_auth_failures_total"]),
			Successes: sumCounter(fam["teamhub_auth_successes_total"]),
		},
		Notifications: notificationInfo{
			Published:     counterWithLabel(fam["teamhub_notifications_published_total"], "status", "success"),
			PublishErrors: counterWithLabel(fam["teamhub_notifications_published_total"], "status", "error"),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["teamhub_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["teamhub_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["teamhub_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["teamhub_db_pool_max_conns"]),
			EmptyAcquires: counterValue(fam["teamhub_db_pool_empty_acquires_total"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["teamhub_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["teamhub_server_start_time_seconds"]),
		},
	}, nil
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func sumCounterByLabel(f *dto.MetricFamily, labelName string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Aggregate all histogram metrics in the family.
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	if len(buckets) > 0 {
		for i := len(buckets) - 1; i >= 0; i-- {
			if !math.IsInf(buckets[i].upperBound, 1) {
				return buckets[i].upperBound
			}
		}
	}
	return 0
}
