package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/intstr"
)

func TestDeploymentFromManifestDecodesRenderedTemplate(t *testing.T) {
	spec := testProvisionSpec(t, false)
	rendered := renderTestTemplate(t, spec.Request, spec.Resources)

	deployment, err := deploymentFromManifest(rendered)
	require.NoError(t, err)

	assert.Equal(t, "dotmac-acme-isp-app", deployment.Name)
	assert.Equal(t, "dotmac-acme-isp", deployment.Namespace)
	require.NotNil(t, deployment.Spec.Replicas)
	assert.Equal(t, int32(1), *deployment.Spec.Replicas)

	c := deployment.Spec.Template.Spec.Containers[0]
	assert.Equal(t, int32(8000), c.Ports[0].ContainerPort)

	// Substitution leaves every leaf a string; only known numeric fields are
	// coerced. Env values keep their string form.
	var maxConns string
	for _, env := range c.Env {
		if env.Name == "DOTMAC_MAX_CONNECTIONS" {
			maxConns = env.Value
		}
	}
	assert.Equal(t, "75", maxConns)

	probe := c.ReadinessProbe
	require.NotNil(t, probe)
	require.NotNil(t, probe.HTTPGet)
	assert.Equal(t, intstr.FromInt32(8000), probe.HTTPGet.Port)
	assert.Equal(t, int32(5), probe.InitialDelaySeconds)
	assert.Equal(t, int32(10), probe.PeriodSeconds)
}

func TestDeploymentFromManifestRejectsWrongKind(t *testing.T) {
	_, err := deploymentFromManifest(map[string]any{"kind": "StatefulSet"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a Deployment")
}

func TestDeploymentFromManifestRequiresName(t *testing.T) {
	_, err := deploymentFromManifest(map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]any{"namespace": "dotmac-x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata.name")
}
