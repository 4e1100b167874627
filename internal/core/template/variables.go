package template

import (
	"fmt"
	"strconv"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Variable Preparation
// =============================================================================

// DefaultContainerPort is the port the tenant application listens on when
// the network config does not map one explicitly.
const DefaultContainerPort = 8000

// VariableInput carries everything variable preparation needs beyond the
// tenant config itself.
type VariableInput struct {
	ISPID      string
	Config     domain.ISPConfig
	Resources  domain.ResourceRequirements
	BaseDomain string
	Image      string
}

// PrepareVariables builds the substitution map for a render. The common
// tenant identity and naming variables are shared; resource quantities are
// formatted per platform - Kubernetes wants quantity strings (millicores,
// Mi, Gi), the single-host platforms take plain numbers.
//
// Secret values are deliberately absent: they travel through secret objects
// created by the adapter, never through a template that may be logged.
func PrepareVariables(infra domain.InfrastructureType, in VariableInput) map[string]string {
	vars := map[string]string{
		"isp_id":       in.ISPID,
		"tenant_name":  in.Config.TenantName,
		"display_name": in.Config.DisplayName,
		"plan_type":    string(in.Config.PlanType),

		"namespace":       domain.NamespaceName(in.ISPID),
		"deployment_name": domain.ServiceName(in.ISPID),
		"service_name":    domain.ServiceName(in.ISPID),
		"secret_name":     domain.SecretName(in.ISPID),
		"configmap_name":  domain.ConfigMapName(in.ISPID),
		"container_name":  domain.ContainerName(in.ISPID),
		"network_name":    domain.NetworkName(in.ISPID),
		"volume_name":     domain.VolumeName(in.ISPID),
		"database_name":   domain.DatabaseName(in.ISPID),

		"app_image":      in.Image,
		"domain":         domain.TenantHostname(in.ISPID, in.Config.NetworkConfig, in.BaseDomain),
		"container_port": strconv.Itoa(containerPort(in.Config)),

		"max_connections":         strconv.Itoa(in.Resources.MaxConnections),
		"max_concurrent_requests": strconv.Itoa(in.Resources.MaxConcurrentRequests),
	}

	switch infra {
	case domain.InfraKubernetes:
		limitMi := in.Resources.MemoryBytes() / (1024 * 1024)
		vars["cpu_limit"] = fmt.Sprintf("%dm", in.Resources.CPUMillicores())
		vars["cpu_request"] = fmt.Sprintf("%dm", in.Resources.CPUMillicores()/2)
		vars["memory_limit"] = fmt.Sprintf("%dMi", limitMi)
		vars["memory_request"] = fmt.Sprintf("%dMi", limitMi/2)
		vars["storage_size"] = fmt.Sprintf("%dGi", in.Resources.StorageGB)
	default:
		vars["cpu_limit"] = strconv.FormatFloat(in.Resources.CPUCores, 'f', -1, 64)
		vars["memory_mb"] = strconv.FormatInt(in.Resources.MemoryBytes()/(1024*1024), 10)
		vars["storage_gb"] = strconv.Itoa(in.Resources.StorageGB)
	}

	return vars
}

func containerPort(cfg domain.ISPConfig) int {
	for _, p := range cfg.NetworkConfig.PortMappings {
		if p.ContainerPort > 0 {
			return p.ContainerPort
		}
	}
	return DefaultContainerPort
}
