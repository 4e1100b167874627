package domain

// =============================================================================
// Deployment Artifacts
// =============================================================================

// CreatedResource records one infrastructure object created during a run.
// Records are appended in creation order; rollback walks them in reverse.
type CreatedResource struct {
	Kind       string `json:"kind"` // namespace, network, volume, deployment, service, ingress, container, secret, configmap
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// DeploymentArtifacts collects the identifiers produced while provisioning
// one tenant stack. A single goroutine owns an instance for the duration of
// a run, so no locking is needed.
type DeploymentArtifacts struct {
	ISPID string `json:"isp_id"`

	// Kubernetes identifiers
	Namespace      string `json:"namespace,omitempty"`
	DeploymentName string `json:"deployment_name,omitempty"`
	ServiceName    string `json:"service_name,omitempty"`
	IngressName    string `json:"ingress_name,omitempty"`
	SecretName     string `json:"secret_name,omitempty"`
	ConfigMapName  string `json:"config_map_name,omitempty"`

	// Docker identifiers
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	NetworkID     string `json:"network_id,omitempty"`
	NetworkName   string `json:"network_name,omitempty"`
	VolumeName    string `json:"volume_name,omitempty"`

	// Endpoints
	InternalURL string `json:"internal_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`

	// SSLCertSecret names the TLS material when SSL was provisioned.
	SSLCertSecret string `json:"ssl_cert_secret,omitempty"`

	// CreatedResources lists every object created, in creation order.
	CreatedResources []CreatedResource `json:"created_resources"`
}

// NewDeploymentArtifacts creates an empty artifact set for a tenant.
func NewDeploymentArtifacts(ispID string) *DeploymentArtifacts {
	return &DeploymentArtifacts{ISPID: ispID}
}

// Record appends a created resource to the rollback ledger.
func (a *DeploymentArtifacts) Record(kind, name string) {
	a.CreatedResources = append(a.CreatedResources, CreatedResource{Kind: kind, Name: name})
}

// RecordNamespaced appends a namespaced Kubernetes resource to the ledger.
func (a *DeploymentArtifacts) RecordNamespaced(kind, name, namespace, apiVersion string) {
	a.CreatedResources = append(a.CreatedResources, CreatedResource{
		Kind:       kind,
		Name:       name,
		Namespace:  namespace,
		APIVersion: apiVersion,
	})
}

// ResourcesForRollback returns the created resources in reverse creation
// order: workloads before networking before storage before the isolation
// boundary. The receiver's slice is not modified.
func (a *DeploymentArtifacts) ResourcesForRollback() []CreatedResource {
	reversed := make([]CreatedResource, len(a.CreatedResources))
	for i, r := range a.CreatedResources {
		reversed[len(a.CreatedResources)-1-i] = r
	}
	return reversed
}
