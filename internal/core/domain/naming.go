package domain

import "strings"

// =============================================================================
// Resource Naming
// =============================================================================

// Slugify converts a name to a URL-safe slug.
//
// The transformation rules are:
//   - Lowercase letters (a-z) are kept as-is
//   - Digits (0-9) are kept as-is
//   - Hyphens (-) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces and underscores are converted to hyphens
//   - All other characters are removed
//
// This is a pure function with no side effects.
//
// Example:
//
//	Slugify("Acme Telecom")  // returns "acme-telecom"
//	Slugify("fiber_west_2")  // returns "fiber-west-2"
func Slugify(name string) string {
	slug := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			slug += string(r)
		} else if r >= 'A' && r <= 'Z' {
			slug += string(r + 32) // convert to lowercase
		} else if r == ' ' || r == '_' {
			slug += "-"
		}
		// All other characters are dropped
	}
	return slug
}

// NamespaceName returns the Kubernetes namespace for a tenant.
// Namespaces must be DNS-1123 labels, so underscores become hyphens.
func NamespaceName(ispID string) string {
	return "dotmac-" + Slugify(ispID)
}

// NetworkName returns the Docker network name for a tenant.
func NetworkName(ispID string) string {
	return "dotmac_" + dockerKey(ispID)
}

// ContainerName returns the primary application container name for a tenant.
func ContainerName(ispID string) string {
	return "dotmac_" + dockerKey(ispID) + "_app"
}

// VolumeName returns the named data volume for a tenant.
func VolumeName(ispID string) string {
	return "dotmac_" + dockerKey(ispID) + "_data"
}

// DatabaseName returns the tenant database name.
func DatabaseName(ispID string) string {
	return "dotmac_" + dockerKey(ispID)
}

// SecretName returns the Kubernetes secret holding tenant credentials.
func SecretName(ispID string) string {
	return "dotmac-" + Slugify(ispID) + "-secrets"
}

// ConfigMapName returns the Kubernetes config map holding tenant settings.
func ConfigMapName(ispID string) string {
	return "dotmac-" + Slugify(ispID) + "-config"
}

// ServiceName returns the Kubernetes service name for the tenant app.
func ServiceName(ispID string) string {
	return "dotmac-" + Slugify(ispID) + "-app"
}

// dockerKey lowercases and keeps [a-z0-9_] with hyphens folded to
// underscores. Docker object names allow underscores where DNS labels do not.
func dockerKey(ispID string) string {
	return strings.ReplaceAll(Slugify(ispID), "-", "_")
}

// TenantHostname derives the external hostname for a tenant stack.
// An explicit domain wins; otherwise the subdomain (or the tenant ID) is
// attached to the platform base domain.
func TenantHostname(ispID string, network NetworkConfig, baseDomain string) string {
	if network.Domain != "" {
		return network.Domain
	}
	sub := network.Subdomain
	if sub == "" {
		sub = Slugify(ispID)
	}
	return sub + "." + baseDomain
}
