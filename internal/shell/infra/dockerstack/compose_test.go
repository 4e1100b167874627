package dockerstack

import (
	"context"
	"testing"

	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/template"
)

func renderedComposeTree(t *testing.T) map[string]any {
	t.Helper()
	mgr := template.NewManager()
	vars := template.PrepareVariables(domain.InfraDocker, template.VariableInput{
		ISPID: "acme-isp",
		Config: domain.ISPConfig{
			TenantName: "acme-isp",
			PlanType:   domain.PlanPremium,
		},
		Resources:  domain.ResourceRequirements{CPUCores: 2, MemoryGB: 4, StorageGB: 50, MaxConnections: 100, MaxConcurrentRequests: 50},
		BaseDomain: "tenants.example.com",
		Image:      "dotmac/isp-framework:1.4",
	})
	rendered, err := mgr.Render("acme-isp", template.DefaultTemplateName, domain.InfraDocker, vars)
	require.NoError(t, err)
	return rendered
}

func TestLoadProject_RenderedBuiltinTemplate(t *testing.T) {
	project, err := LoadProject(context.Background(), "acme-isp", renderedComposeTree(t))
	require.NoError(t, err)

	svc, err := AppService(project)
	require.NoError(t, err)

	assert.Equal(t, "dotmac/isp-framework:1.4", svc.Image)
	assert.Equal(t, "dotmac_acme_isp_app", svc.ContainerName)
	assert.Equal(t, "unless-stopped", svc.Restart)
	assert.Contains(t, svc.Networks, "dotmac_acme_isp")

	require.NotNil(t, svc.Deploy)
	require.NotNil(t, svc.Deploy.Resources.Limits)
	assert.InDelta(t, 2.0, float64(svc.Deploy.Resources.Limits.NanoCPUs), 0.01)
	assert.Equal(t, int64(4096)*1024*1024, int64(svc.Deploy.Resources.Limits.MemoryBytes))
}

func TestLoadProject_InvalidSpec(t *testing.T) {
	_, err := LoadProject(context.Background(), "acme-isp", map[string]any{
		"services": "not-a-mapping",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidComposeSpec)
}

func TestAppService_PrefersAppByName(t *testing.T) {
	rendered := renderedComposeTree(t)
	project, err := LoadProject(context.Background(), "acme-isp", rendered)
	require.NoError(t, err)

	svc, err := AppService(project)
	require.NoError(t, err)
	assert.Equal(t, "app", svc.Name)
}

func TestAppService_EmptyProject(t *testing.T) {
	_, err := AppService(&composetypes.Project{})
	assert.ErrorIs(t, err, ErrNoAppService)
}

func TestContainerSpecFromService_EnvPrecedence(t *testing.T) {
	templateValue := "from-template"
	svc := composetypes.ServiceConfig{
		Name:  "app",
		Image: "dotmac/isp-framework:1.4",
		Environment: composetypes.MappingWithEquals{
			"APP_MODE": &templateValue,
			"KEEP_ME":  &templateValue,
		},
	}

	spec := containerSpecFromService(svc, map[string]string{"APP_MODE": "staged"})

	assert.Equal(t, "staged", spec.Env["APP_MODE"])
	assert.Equal(t, "from-template", spec.Env["KEEP_ME"])
}

func TestContainerSpecFromService_Ports(t *testing.T) {
	svc := composetypes.ServiceConfig{
		Name:  "app",
		Image: "dotmac/isp-framework:1.4",
		Ports: []composetypes.ServicePortConfig{
			{Target: 8000, Protocol: "tcp"},
			{Target: 8443, Published: "9443", Protocol: "tcp"},
		},
	}

	spec := containerSpecFromService(svc, nil)

	require.Len(t, spec.Ports, 2)
	assert.Equal(t, 8000, spec.Ports[0].ContainerPort)
	assert.Zero(t, spec.Ports[0].HostPort)
	assert.Equal(t, 9443, spec.Ports[1].HostPort)
}

func TestRenderYAML_Roundtrip(t *testing.T) {
	out, err := RenderYAML(map[string]any{
		"services": map[string]any{
			"app": map[string]any{"image": "dotmac/isp-framework:1.4"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "image: dotmac/isp-framework:1.4")
}
