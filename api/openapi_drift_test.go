package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// openAPIDoc is the minimal structure we need from the document.
type openAPIDoc struct {
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

type openAPIOperation struct {
	OperationID string `yaml:"operationId"`
}

func loadOpenAPI(t *testing.T) openAPIDoc {
	t.Helper()
	var doc openAPIDoc
	require.NoError(t, yaml.Unmarshal(openapiSpec, &doc), "failed to parse openapi.yaml")
	return doc
}

// documentedRoutes returns {METHOD PATH} pairs from openapi.yaml.
func documentedRoutes(doc openAPIDoc) map[string]bool {
	routes := make(map[string]bool)
	for path, methods := range doc.Paths {
		for method := range methods {
			method = strings.ToUpper(method)
			if strings.HasPrefix(strings.ToLower(method), "x-") || method == "PARAMETERS" {
				continue
			}
			routes[method+" "+path] = true
		}
	}
	return routes
}

// registeredRoutes walks the chi router. Router() only registers routes and
// never invokes handlers, so a zero-value API is fine.
func registeredRoutes(t *testing.T) map[string]bool {
	t.Helper()
	a := &API{}
	routes := make(map[string]bool)
	err := chi.Walk(a.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
		if route == "/openapi.yaml" ||
			strings.HasPrefix(route, "/docs") ||
			strings.HasPrefix(route, "/redoc") {
			return nil
		}
		routes[method+" "+route] = true
		return nil
	})
	require.NoError(t, err, "chi.Walk failed")
	return routes
}

// TestOpenAPIDrift fails if any routes are undocumented or if openapi.yaml
// contains stale paths.
func TestOpenAPIDrift(t *testing.T) {
	documented := documentedRoutes(loadOpenAPI(t))
	registered := registeredRoutes(t)

	var undocumented, stale []string
	for route := range registered {
		if !documented[route] {
			undocumented = append(undocumented, route)
		}
	}
	for route := range documented {
		if !registered[route] {
			stale = append(stale, route)
		}
	}
	sort.Strings(undocumented)
	sort.Strings(stale)

	if len(undocumented) > 0 {
		t.Errorf("routes registered in Router() but missing from openapi.yaml:\n%s",
			formatRouteList(undocumented))
	}
	if len(stale) > 0 {
		t.Errorf("routes in openapi.yaml but not registered in Router():\n%s",
			formatRouteList(stale))
	}
}

func TestOpenAPIOperationIDsUnique(t *testing.T) {
	doc := loadOpenAPI(t)
	seen := make(map[string]string)
	for path, methods := range doc.Paths {
		for method, node := range methods {
			var op openAPIOperation
			require.NoError(t, node.Decode(&op))
			where := strings.ToUpper(method) + " " + path
			if !assert.NotEmpty(t, op.OperationID, "missing operationId on %s", where) {
				continue
			}
			if prev, dup := seen[op.OperationID]; dup {
				t.Errorf("operationId %q used by %s and %s", op.OperationID, prev, where)
			}
			seen[op.OperationID] = where
		}
	}
}

func TestOpenAPIServed(t *testing.T) {
	a := &API{}
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, openapiSpec, rec.Body.Bytes())
}

func formatRouteList(routes []string) string {
	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return b.String()
}
