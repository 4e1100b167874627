package template

import "github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"

// =============================================================================
// Built-in Templates
// =============================================================================

// builtinTemplates returns the default deployment specs shipped with the
// provisioner: a Kubernetes Deployment manifest and a compose-style service
// definition shared by the docker and docker_compose platforms.
func builtinTemplates() []*Template {
	k8s := &Template{
		Name:           DefaultTemplateName,
		Infrastructure: domain.InfraKubernetes,
		RequiredVariables: []string{
			"isp_id", "namespace", "deployment_name", "service_name",
			"app_image", "container_port", "database_name",
			"cpu_limit", "cpu_request", "memory_limit", "memory_request",
			"max_connections",
		},
		Spec: map[string]any{
			"apiVersion": "apps/v1",
			"kind":       "Deployment",
			"metadata": map[string]any{
				"name":      "{{deployment_name}}",
				"namespace": "{{namespace}}",
				"labels": map[string]any{
					"app.kubernetes.io/name":       "isp-framework",
					"app.kubernetes.io/instance":   "{{deployment_name}}",
					"app.kubernetes.io/managed-by": "dotmac-provisioner",
					"dotmac.io/tenant":             "{{isp_id}}",
				},
			},
			"spec": map[string]any{
				"replicas": 1,
				"selector": map[string]any{
					"matchLabels": map[string]any{
						"app.kubernetes.io/instance": "{{deployment_name}}",
					},
				},
				"template": map[string]any{
					"metadata": map[string]any{
						"labels": map[string]any{
							"app.kubernetes.io/instance": "{{deployment_name}}",
							"dotmac.io/tenant":           "{{isp_id}}",
						},
					},
					"spec": map[string]any{
						"containers": []any{
							map[string]any{
								"name":  "app",
								"image": "{{app_image}}",
								"ports": []any{
									map[string]any{"containerPort": "{{container_port}}", "name": "http"},
								},
								"env": []any{
									map[string]any{"name": "DOTMAC_TENANT", "value": "{{isp_id}}"},
									map[string]any{"name": "DOTMAC_DATABASE", "value": "{{database_name}}"},
									map[string]any{"name": "DOTMAC_MAX_CONNECTIONS", "value": "{{max_connections}}"},
								},
								"resources": map[string]any{
									"requests": map[string]any{
										"cpu":    "{{cpu_request}}",
										"memory": "{{memory_request}}",
									},
									"limits": map[string]any{
										"cpu":    "{{cpu_limit}}",
										"memory": "{{memory_limit}}",
									},
								},
								"readinessProbe": map[string]any{
									"httpGet": map[string]any{
										"path": "/health/live",
										"port": "{{container_port}}",
									},
									"initialDelaySeconds": 5,
									"periodSeconds":       10,
								},
							},
						},
					},
				},
			},
		},
	}

	compose := map[string]any{
		"services": map[string]any{
			"app": map[string]any{
				"image":          "{{app_image}}",
				"container_name": "{{container_name}}",
				"restart":        "unless-stopped",
				"environment": []any{
					"DOTMAC_TENANT={{isp_id}}",
					"DOTMAC_DATABASE={{database_name}}",
					"DOTMAC_MAX_CONNECTIONS={{max_connections}}",
					"DOTMAC_DOMAIN={{domain}}",
				},
				"ports":    []any{"{{container_port}}"},
				"networks": []any{"{{network_name}}"},
				"volumes":  []any{"{{volume_name}}:/var/lib/dotmac"},
				"labels": map[string]any{
					"io.dotmac.tenant":     "{{isp_id}}",
					"io.dotmac.managed-by": "dotmac-provisioner",
				},
				"deploy": map[string]any{
					"resources": map[string]any{
						"limits": map[string]any{
							"cpus":   "{{cpu_limit}}",
							"memory": "{{memory_mb}}M",
						},
					},
				},
			},
		},
		"networks": map[string]any{
			"{{network_name}}": map[string]any{"external": true},
		},
		"volumes": map[string]any{
			"{{volume_name}}": map[string]any{"external": true},
		},
	}

	composeRequired := []string{
		"isp_id", "container_name", "network_name", "volume_name",
		"app_image", "container_port", "database_name", "domain",
		"cpu_limit", "memory_mb", "max_connections",
	}

	docker := &Template{
		Name:              DefaultTemplateName,
		Infrastructure:    domain.InfraDocker,
		RequiredVariables: composeRequired,
		Spec:              compose,
	}

	dockerCompose := &Template{
		Name:              DefaultTemplateName,
		Infrastructure:    domain.InfraDockerCompose,
		RequiredVariables: composeRequired,
		Spec:              compose,
	}

	return []*Template{k8s, docker, dockerCompose}
}
