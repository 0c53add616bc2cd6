package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and the dispatch
// pipeline. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	dispatchesTotal    = make(map[dispatchKey]int64)
	completionsTotal   = make(map[string]int64)
	listenerReconnects = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type dispatchKey struct {
	ServiceType string
	Success     string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordDispatch counts job submissions by service type and outcome.
func RecordDispatch(serviceType string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	dispatchesTotal[dispatchKey{ServiceType: serviceType, Success: s}]++
}

// RecordCompletion counts finished pipeline runs by terminal error code.
func RecordCompletion(errorCode string) {
	mu.Lock()
	defer mu.Unlock()
	completionsTotal[errorCode]++
}

// RecordListenerReconnect counts event stream reconnect attempts per
// worker endpoint.
func RecordListenerReconnect(endpoint string) {
	mu.Lock()
	defer mu.Unlock()
	listenerReconnects[endpoint]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP easel_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE easel_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "easel_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP easel_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE easel_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP easel_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE easel_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "easel_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "easel_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP easel_dispatches_total Total job dispatch attempts\n")
	b.WriteString("# TYPE easel_dispatches_total counter\n")

	var dispKeys []dispatchKey
	for k := range dispatchesTotal {
		dispKeys = append(dispKeys, k)
	}
	sort.Slice(dispKeys, func(i, j int) bool {
		if dispKeys[i].ServiceType != dispKeys[j].ServiceType {
			return dispKeys[i].ServiceType < dispKeys[j].ServiceType
		}
		return dispKeys[i].Success < dispKeys[j].Success
	})

	for _, k := range dispKeys {
		fmt.Fprintf(&b, "easel_dispatches_total{service_type=\"%s\",success=\"%s\"} %d\n",
			k.ServiceType, k.Success, dispatchesTotal[k])
	}

	b.WriteString("# HELP easel_completions_total Completed pipeline runs by error code\n")
	b.WriteString("# TYPE easel_completions_total counter\n")

	var codes []string
	for k := range completionsTotal {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	for _, k := range codes {
		fmt.Fprintf(&b, "easel_completions_total{error_code=\"%s\"} %d\n", k, completionsTotal[k])
	}

	b.WriteString("# HELP easel_listener_reconnects_total Event stream reconnect attempts per worker\n")
	b.WriteString("# TYPE easel_listener_reconnects_total counter\n")

	var endpoints []string
	for k := range listenerReconnects {
		endpoints = append(endpoints, k)
	}
	sort.Strings(endpoints)
	for _, k := range endpoints {
		fmt.Fprintf(&b, "easel_listener_reconnects_total{endpoint=\"%s\"} %d\n", k, listenerReconnects[k])
	}

	return b.String()
}
