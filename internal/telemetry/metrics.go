package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var defaultRegistry = newRegistry()

type registry struct {
	mu                  sync.Mutex
	toolCalls           map[string]map[string]int64
	toolDurationBuckets map[string][]int64
	backendErrors       map[string]map[string]int64
	backendStatus       map[string]map[int]int64
	doctorRuns          map[string]int64
	auditFindings       map[string]int64
	routingResolutions  map[string]int64
}

func newRegistry() *registry {
	return &registry{
		toolCalls:           make(map[string]map[string]int64),
		toolDurationBuckets: make(map[string][]int64),
		backendErrors:       make(map[string]map[string]int64),
		backendStatus:       make(map[string]map[int]int64),
		doctorRuns:          make(map[string]int64),
		auditFindings:       make(map[string]int64),
		routingResolutions:  make(map[string]int64),
	}
}

// IncToolCall counts one MCP tool call; status is "ok" or "error".
func IncToolCall(toolName, status string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolCalls[toolName]; !ok {
		defaultRegistry.toolCalls[toolName] = make(map[string]int64)
	}
	defaultRegistry.toolCalls[toolName][status]++
}

func ObserveToolDuration(toolName string, d time.Duration) {
	buckets := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	sec := d.Seconds()

	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolDurationBuckets[toolName]; !ok {
		defaultRegistry.toolDurationBuckets[toolName] = make([]int64, len(buckets)+1)
	}
	idx := len(buckets)
	for i, b := range buckets {
		if sec <= b {
			idx = i
			break
		}
	}
	defaultRegistry.toolDurationBuckets[toolName][idx]++
}

// IncBackendError counts a failed backend call. class is one of the
// core.Code* values.
func IncBackendError(backend, class string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.backendErrors[backend]; !ok {
		defaultRegistry.backendErrors[backend] = make(map[string]int64)
	}
	defaultRegistry.backendErrors[backend][class]++
}

// IncBackendStatus counts a non-2xx response by status code.
func IncBackendStatus(backend string, statusCode int) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.backendStatus[backend]; !ok {
		defaultRegistry.backendStatus[backend] = make(map[int]int64)
	}
	defaultRegistry.backendStatus[backend][statusCode]++
}

// IncDoctorRun counts CLI doctor runs by outcome (ok, failed, not_found, timeout).
func IncDoctorRun(outcome string) {
	defaultRegistry.mu.Lock()
	defaultRegistry.doctorRuns[outcome]++
	defaultRegistry.mu.Unlock()
}

func IncAuditFinding(severity string) {
	defaultRegistry.mu.Lock()
	defaultRegistry.auditFindings[severity]++
	defaultRegistry.mu.Unlock()
}

// IncRoutingResolution counts where routing rules came from (backend,
// local_config, unavailable).
func IncRoutingResolution(source string) {
	defaultRegistry.mu.Lock()
	defaultRegistry.routingResolutions[source]++
	defaultRegistry.mu.Unlock()
}

func RenderPrometheus() string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	var sb strings.Builder

	sb.WriteString("# TYPE clawd_tool_calls_total counter\n")
	for _, tool := range sortedKeys(defaultRegistry.toolCalls) {
		for _, status := range sortedKeys(defaultRegistry.toolCalls[tool]) {
			sb.WriteString(fmt.Sprintf("clawd_tool_calls_total{tool=\"%s\",status=\"%s\"} %d\n", tool, status, defaultRegistry.toolCalls[tool][status]))
		}
	}

	sb.WriteString("# TYPE clawd_tool_duration_seconds_bucket counter\n")
	bucketLabels := []string{"0.1", "0.5", "1", "2", "5", "10", "30", "60", "+Inf"}
	for _, tool := range sortedKeys(defaultRegistry.toolDurationBuckets) {
		for i, v := range defaultRegistry.toolDurationBuckets[tool] {
			sb.WriteString(fmt.Sprintf("clawd_tool_duration_seconds_bucket{tool=\"%s\",le=\"%s\"} %d\n", tool, bucketLabels[i], v))
		}
	}

	sb.WriteString("# TYPE clawd_backend_errors_total counter\n")
	for _, backend := range sortedKeys(defaultRegistry.backendErrors) {
		for _, class := range sortedKeys(defaultRegistry.backendErrors[backend]) {
			sb.WriteString(fmt.Sprintf("clawd_backend_errors_total{backend=\"%s\",class=\"%s\"} %d\n", backend, class, defaultRegistry.backendErrors[backend][class]))
		}
	}

	sb.WriteString("# TYPE clawd_backend_http_status_total counter\n")
	for _, backend := range sortedKeys(defaultRegistry.backendStatus) {
		statusCodes := make([]int, 0, len(defaultRegistry.backendStatus[backend]))
		for sc := range defaultRegistry.backendStatus[backend] {
			statusCodes = append(statusCodes, sc)
		}
		sort.Ints(statusCodes)
		for _, sc := range statusCodes {
			sb.WriteString(fmt.Sprintf("clawd_backend_http_status_total{backend=\"%s\",status_code=\"%d\"} %d\n", backend, sc, defaultRegistry.backendStatus[backend][sc]))
		}
	}

	sb.WriteString("# TYPE clawd_doctor_runs_total counter\n")
	for _, outcome := range sortedKeys(defaultRegistry.doctorRuns) {
		sb.WriteString(fmt.Sprintf("clawd_doctor_runs_total{outcome=\"%s\"} %d\n", outcome, defaultRegistry.doctorRuns[outcome]))
	}

	sb.WriteString("# TYPE clawd_audit_findings_total counter\n")
	for _, severity := range sortedKeys(defaultRegistry.auditFindings) {
		sb.WriteString(fmt.Sprintf("clawd_audit_findings_total{severity=\"%s\"} %d\n", severity, defaultRegistry.auditFindings[severity]))
	}

	sb.WriteString("# TYPE clawd_routing_resolutions_total counter\n")
	for _, source := range sortedKeys(defaultRegistry.routingResolutions) {
		sb.WriteString(fmt.Sprintf("clawd_routing_resolutions_total{source=\"%s\"} %d\n", source, defaultRegistry.routingResolutions[source]))
	}

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
