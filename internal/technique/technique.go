package technique

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"apibench/internal/probe"
)

// Name identifies one optimization technique under comparison. The set is
// closed: adding a technique means adding a constant and a registry entry.
type Name string

const (
	Caching           Name = "caching"
	ConnectionPool    Name = "connection-pool"
	AvoidNPlusOne     Name = "avoid-n-plus-1"
	Pagination        Name = "pagination"
	JSONSerialization Name = "json-serialization"
	Compression       Name = "compression"
	AsyncLogging      Name = "async-logging"
)

// Technique binds a name to its endpoint and the per-variant request shape.
type Technique struct {
	Name     Name
	Endpoint string

	// toggleParam carries the boolean-like variant switch, e.g. cache=true.
	toggleParam string

	// fixedParams are sent for every variant.
	fixedParams url.Values

	// optimizedParams are added only on the optimized side (pagination pages).
	optimizedParams url.Values

	// optimizedHeaders are request headers sent only on the optimized side.
	optimizedHeaders map[string]string

	// capture lists the diagnostic response headers copied into measurements.
	capture []string
}

// Request builds the probe request for one variant of this technique.
func (t Technique) Request(v probe.Variant) probe.Request {
	params := url.Values{}
	for k, vs := range t.fixedParams {
		params[k] = append([]string(nil), vs...)
	}

	toggle := "false"
	if v == probe.VariantOptimized {
		toggle = "true"
		for k, vs := range t.optimizedParams {
			params[k] = append([]string(nil), vs...)
		}
	}
	params.Set(t.toggleParam, toggle)

	var headers map[string]string
	if v == probe.VariantOptimized && len(t.optimizedHeaders) > 0 {
		headers = t.optimizedHeaders
	}

	return probe.Request{
		Endpoint: t.Endpoint,
		Params:   params,
		Headers:  headers,
		Capture:  t.capture,
	}
}

var registry = []Technique{
	{
		Name:        Caching,
		Endpoint:    "/techniques/caching",
		toggleParam: "cache",
		capture:     []string{"x-execution-time", "x-cache-hit", "content-length"},
	},
	{
		Name:        ConnectionPool,
		Endpoint:    "/techniques/connection-pool",
		toggleParam: "pooled",
		capture:     []string{"x-execution-time", "x-pool-used", "content-length"},
	},
	{
		Name:        AvoidNPlusOne,
		Endpoint:    "/techniques/avoid-n-plus-1",
		toggleParam: "optimized",
		capture:     []string{"x-execution-time", "x-query-count", "content-length"},
	},
	{
		Name:            Pagination,
		Endpoint:        "/techniques/pagination",
		toggleParam:     "paginated",
		optimizedParams: url.Values{"page": {"1"}, "page_size": {"50"}},
		capture:         []string{"x-execution-time", "x-items-count", "content-length"},
	},
	{
		Name:        JSONSerialization,
		Endpoint:    "/techniques/json-serialization",
		toggleParam: "optimized",
		capture:     []string{"x-execution-time", "x-serializer", "content-length"},
	},
	{
		Name:             Compression,
		Endpoint:         "/techniques/compression",
		toggleParam:      "compressed",
		optimizedHeaders: map[string]string{"Accept-Encoding": "br,gzip"},
		capture: []string{
			"x-execution-time", "x-original-size", "x-compressed-size",
			"x-compression-ratio", "content-length",
		},
	},
	{
		Name:        AsyncLogging,
		Endpoint:    "/techniques/async-logging",
		toggleParam: "async_logging",
		fixedParams: url.Values{"message_count": {"50"}, "log_level": {"info"}},
		capture:     []string{"x-execution-time", "content-length"},
	},
}

// All returns every registered technique in a stable order.
func All() []Technique {
	out := make([]Technique, len(registry))
	copy(out, registry)
	return out
}

// Lookup resolves a technique by name. Unknown names are a configuration
// error listing the valid choices.
func Lookup(name string) (Technique, error) {
	for _, t := range registry {
		if string(t.Name) == name {
			return t, nil
		}
	}
	return Technique{}, fmt.Errorf("unknown technique %q (valid: %s)", name, strings.Join(Names(), ", "))
}

// Names returns the sorted list of registered technique names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, t := range registry {
		names = append(names, string(t.Name))
	}
	sort.Strings(names)
	return names
}
