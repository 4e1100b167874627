package dockerstack

import (
	"fmt"
	"strconv"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Container Labels
// =============================================================================

// Labels applied to every resource the adapter creates. The tenant label is
// the key rollback and listing filter on.
const (
	LabelTenant    = "io.dotmac.tenant"
	LabelRequest   = "io.dotmac.request"
	LabelPlan      = "io.dotmac.plan"
	LabelManagedBy = "io.dotmac.managed-by"

	ManagedByValue = "dotmac-provisioner"
)

// Monitoring labels read by the metrics scrape discovery.
const (
	LabelScrape      = "io.dotmac.metrics.scrape"
	LabelMetricsPort = "io.dotmac.metrics.port"
	LabelMetricsPath = "io.dotmac.metrics.path"
)

// IdentityLabels returns the ownership labels stamped on every created
// resource.
func IdentityLabels(ispID, requestID string, plan domain.PlanType) map[string]string {
	return map[string]string{
		LabelTenant:    ispID,
		LabelRequest:   requestID,
		LabelPlan:      string(plan),
		LabelManagedBy: ManagedByValue,
	}
}

// MonitoringLabels returns the scrape-discovery labels for a tenant
// container.
func MonitoringLabels(port int) map[string]string {
	return map[string]string{
		LabelScrape:      "true",
		LabelMetricsPort: strconv.Itoa(port),
		LabelMetricsPath: "/metrics",
	}
}

// =============================================================================
// Edge Routing Labels
// =============================================================================

// RouteParams configures the reverse proxy labels for a tenant container.
type RouteParams struct {
	ISPID        string
	Hostname     string
	Port         int
	EnableTLS    bool
	CertResolver string // used only when EnableTLS is set
}

// RouteLabels generates the Traefik labels that route HTTP(S) traffic for
// the tenant hostname to the container:
//   - Enables Traefik for the container
//   - Creates a router with a Host rule on the web entrypoint
//   - Configures the service loadbalancer port
//   - When TLS is enabled, adds a websecure router with a cert resolver
//
// The router and service name is dotmac-{tenant-slug}, unique per tenant.
func RouteLabels(params RouteParams) map[string]string {
	name := "dotmac-" + domain.Slugify(params.ISPID)

	labels := map[string]string{
		"traefik.enable": "true",

		// HTTP router
		fmt.Sprintf("traefik.http.routers.%s.rule", name):        fmt.Sprintf("Host(`%s`)", params.Hostname),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", name): "web",

		// Service (loadbalancer port)
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", name): fmt.Sprintf("%d", params.Port),
	}

	if params.EnableTLS {
		resolver := params.CertResolver
		if resolver == "" {
			resolver = "letsencrypt"
		}
		secureName := name + "-secure"
		labels[fmt.Sprintf("traefik.http.routers.%s.rule", secureName)] = fmt.Sprintf("Host(`%s`)", params.Hostname)
		labels[fmt.Sprintf("traefik.http.routers.%s.entrypoints", secureName)] = "websecure"
		labels[fmt.Sprintf("traefik.http.routers.%s.tls", secureName)] = "true"
		labels[fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", secureName)] = resolver
	}

	return labels
}
