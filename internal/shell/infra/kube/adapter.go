// Package kube implements the infrastructure adapter for Kubernetes tenant
// deployments. Each tenant gets a namespace holding its claim, secret,
// config map, deployment, service and ingress.
package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/template"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
)

// =============================================================================
// Adapter
// =============================================================================

var (
	ErrNotDeployed = errors.New("tenant deployment not created")
	ErrNotExposed  = errors.New("tenant ingress not created")
)

// readyPollInterval is how often the deploy wait loop checks the rollout.
const readyPollInterval = 2 * time.Second

// Options configures the Kubernetes adapter.
type Options struct {
	// BaseDomain is the platform domain tenant hostnames are derived under.
	BaseDomain string

	// IngressClass selects the ingress controller for tenant routes.
	IngressClass string

	// ClusterIssuer names the cert-manager issuer for tenant certificates.
	ClusterIssuer string

	// StorageClass selects the storage class for tenant volumes. Empty
	// uses the cluster default.
	StorageClass string
}

// Adapter implements infra.Adapter against a Kubernetes cluster.
type Adapter struct {
	clientset kubernetes.Interface
	opts      Options
	logger    *slog.Logger
}

// New creates a Kubernetes adapter around an existing clientset.
func New(clientset kubernetes.Interface, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseDomain == "" {
		opts.BaseDomain = "tenants.localhost"
	}
	if opts.IngressClass == "" {
		opts.IngressClass = "traefik"
	}
	if opts.ClusterIssuer == "" {
		opts.ClusterIssuer = "letsencrypt"
	}
	return &Adapter{
		clientset: clientset,
		opts:      opts,
		logger:    logger.With("component", "kube"),
	}
}

// NewForConfig creates a Kubernetes adapter from a kubeconfig path. An empty
// path tries in-cluster config first, then the default kubeconfig location.
func NewForConfig(kubeconfigPath string, opts Options, logger *slog.Logger) (*Adapter, error) {
	cfg, err := restConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return New(clientset, opts, logger), nil
}

func restConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	return clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
}

// Platform returns the infrastructure type this adapter serves.
func (a *Adapter) Platform() domain.InfrastructureType {
	return domain.InfraKubernetes
}

// Ready reports whether the API server is reachable.
func (a *Adapter) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := a.clientset.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("kubernetes api unreachable: %w", err)
	}
	return nil
}

// Close is a no-op; the clientset holds no long-lived connection that needs
// explicit shutdown.
func (a *Adapter) Close() error {
	return nil
}

// =============================================================================
// Phase: Provision Infrastructure
// =============================================================================

// ProvisionInfrastructure creates the tenant namespace, storage claim, and
// the secret and config map carrying the container environment.
func (a *Adapter) ProvisionInfrastructure(ctx context.Context, spec infra.ProvisionSpec) (*domain.DeploymentArtifacts, error) {
	ispID := spec.Request.ISPID
	artifacts := domain.NewDeploymentArtifacts(ispID)
	labels := identityLabels(ispID, spec.Request.RequestID, spec.Request.Config.PlanType)

	a.logger.Info("provisioning kubernetes infrastructure",
		"isp_id", ispID,
		"request_id", spec.Request.RequestID,
	)

	ns := domain.NamespaceName(ispID)
	if _, err := a.clientset.CoreV1().Namespaces().Create(ctx, namespaceFor(ispID, labels), metav1.CreateOptions{}); err != nil {
		return artifacts, fmt.Errorf("create namespace %s: %w", ns, err)
	}
	artifacts.Namespace = ns
	artifacts.RecordNamespaced("namespace", ns, "", "v1")

	pvcName := "dotmac-" + domain.Slugify(ispID) + "-data"
	pvc := pvcFor(pvcName, ns, spec.Resources.StorageGB, a.opts.StorageClass, labels)
	if _, err := a.clientset.CoreV1().PersistentVolumeClaims(ns).Create(ctx, pvc, metav1.CreateOptions{}); err != nil {
		return artifacts, fmt.Errorf("create pvc %s: %w", pvcName, err)
	}
	artifacts.RecordNamespaced("persistentvolumeclaim", pvcName, ns, "v1")

	secretName := domain.SecretName(ispID)
	secret := secretFor(secretName, ns, spec.Secrets, labels)
	if _, err := a.clientset.CoreV1().Secrets(ns).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return artifacts, fmt.Errorf("create secret %s: %w", secretName, err)
	}
	artifacts.SecretName = secretName
	artifacts.RecordNamespaced("secret", secretName, ns, "v1")

	configMapName := domain.ConfigMapName(ispID)
	cm := configMapFor(configMapName, ns, spec.Environment, labels)
	if _, err := a.clientset.CoreV1().ConfigMaps(ns).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		return artifacts, fmt.Errorf("create configmap %s: %w", configMapName, err)
	}
	artifacts.ConfigMapName = configMapName
	artifacts.RecordNamespaced("configmap", configMapName, ns, "v1")

	a.logger.Info("kubernetes infrastructure provisioned",
		"isp_id", ispID,
		"namespace", ns,
	)
	return artifacts, nil
}

// =============================================================================
// Phase: Deploy Container
// =============================================================================

// DeployContainer decodes the rendered manifest, binds it to the provisioned
// secret, config map and storage claim, creates the Deployment and waits up
// to wait for the rollout to produce a ready replica.
func (a *Adapter) DeployContainer(ctx context.Context, rendered map[string]any, artifacts *domain.DeploymentArtifacts, wait time.Duration) error {
	deployment, err := deploymentFromManifest(rendered)
	if err != nil {
		return err
	}
	if deployment.Namespace == "" {
		deployment.Namespace = artifacts.Namespace
	}

	// Bind the workload to the provisioned environment and storage. The
	// template never carries secret references; they are attached here.
	for i := range deployment.Spec.Template.Spec.Containers {
		c := &deployment.Spec.Template.Spec.Containers[i]
		if artifacts.SecretName != "" {
			c.EnvFrom = append(c.EnvFrom, corev1.EnvFromSource{
				SecretRef: &corev1.SecretEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: artifacts.SecretName},
				},
			})
		}
		if artifacts.ConfigMapName != "" {
			c.EnvFrom = append(c.EnvFrom, corev1.EnvFromSource{
				ConfigMapRef: &corev1.ConfigMapEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: artifacts.ConfigMapName},
				},
			})
		}
	}
	if pvcName := pvcNameFromLedger(artifacts); pvcName != "" && len(deployment.Spec.Template.Spec.Containers) > 0 {
		deployment.Spec.Template.Spec.Volumes = append(deployment.Spec.Template.Spec.Volumes, corev1.Volume{
			Name: "data",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvcName},
			},
		})
		c := &deployment.Spec.Template.Spec.Containers[0]
		c.VolumeMounts = append(c.VolumeMounts, corev1.VolumeMount{
			Name:      "data",
			MountPath: "/var/lib/dotmac",
		})
	}

	created, err := a.clientset.AppsV1().Deployments(deployment.Namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("create deployment %s: %w", deployment.Name, err)
	}
	artifacts.DeploymentName = created.Name
	artifacts.RecordNamespaced("deployment", created.Name, created.Namespace, "apps/v1")

	if err := a.waitRolloutReady(ctx, created.Namespace, created.Name, wait); err != nil {
		return err
	}

	a.logger.Info("deployment rolled out",
		"isp_id", artifacts.ISPID,
		"deployment", created.Name,
		"namespace", created.Namespace,
	)
	return nil
}

// waitRolloutReady polls the deployment until at least one replica is ready,
// the wait budget is spent, or the context ends.
func (a *Adapter) waitRolloutReady(ctx context.Context, namespace, name string, wait time.Duration) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(wait)

	for {
		deployment, err := a.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("get deployment %s: %w", name, err)
		}

		desired := int32(1)
		if deployment.Spec.Replicas != nil {
			desired = *deployment.Spec.Replicas
		}
		if deployment.Status.ReadyReplicas >= desired {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for deployment %s rollout (%d/%d ready)",
				name, deployment.Status.ReadyReplicas, desired)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pvcNameFromLedger finds the storage claim recorded during provisioning.
func pvcNameFromLedger(artifacts *domain.DeploymentArtifacts) string {
	for _, r := range artifacts.CreatedResources {
		if r.Kind == "persistentvolumeclaim" {
			return r.Name
		}
	}
	return ""
}

// =============================================================================
// Phase: Configure Networking
// =============================================================================

// ConfigureNetworking creates the ClusterIP service and the ingress exposing
// the tenant hostname, and records both URLs.
func (a *Adapter) ConfigureNetworking(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.DeploymentName == "" {
		return fmt.Errorf("%w: %s", ErrNotDeployed, artifacts.ISPID)
	}

	ispID := artifacts.ISPID
	ns := artifacts.Namespace
	labels := identityLabels(ispID, "", cfg.PlanType)

	port := template.DefaultContainerPort
	for _, p := range cfg.NetworkConfig.PortMappings {
		if p.ContainerPort > 0 {
			port = p.ContainerPort
			break
		}
	}

	svcName := domain.ServiceName(ispID)
	svc := serviceFor(svcName, ns, artifacts.DeploymentName, port, labels)
	if _, err := a.clientset.CoreV1().Services(ns).Create(ctx, svc, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("create service %s: %w", svcName, err)
	}
	artifacts.ServiceName = svcName
	artifacts.RecordNamespaced("service", svcName, ns, "v1")
	artifacts.InternalURL = fmt.Sprintf("http://%s.%s.svc.cluster.local", svcName, ns)

	hostname := domain.TenantHostname(ispID, cfg.NetworkConfig, a.opts.BaseDomain)
	ingName := "dotmac-" + domain.Slugify(ispID)
	ing := ingressFor(ingName, ns, hostname, svcName, a.opts.IngressClass, labels)
	if _, err := a.clientset.NetworkingV1().Ingresses(ns).Create(ctx, ing, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("create ingress %s: %w", ingName, err)
	}
	artifacts.IngressName = ingName
	artifacts.RecordNamespaced("ingress", ingName, ns, "networking.k8s.io/v1")

	scheme := "http"
	if cfg.NetworkConfig.SSLEnabled {
		scheme = "https"
	}
	artifacts.ExternalURL = scheme + "://" + hostname

	a.logger.Info("networking configured",
		"isp_id", ispID,
		"service", svcName,
		"ingress", ingName,
		"hostname", hostname,
	)
	return nil
}

// =============================================================================
// Phase: Configure SSL
// =============================================================================

// ConfigureSSL adds the TLS block and cert-manager annotation to the tenant
// ingress. The certificate secret itself is materialized by cert-manager.
func (a *Adapter) ConfigureSSL(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.IngressName == "" {
		return fmt.Errorf("%w: %s", ErrNotExposed, artifacts.ISPID)
	}

	ns := artifacts.Namespace
	ing, err := a.clientset.NetworkingV1().Ingresses(ns).Get(ctx, artifacts.IngressName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get ingress %s: %w", artifacts.IngressName, err)
	}

	hostname := domain.TenantHostname(artifacts.ISPID, cfg.NetworkConfig, a.opts.BaseDomain)
	certSecret := tlsSecretName(artifacts.ISPID)

	if ing.Annotations == nil {
		ing.Annotations = map[string]string{}
	}
	ing.Annotations["cert-manager.io/cluster-issuer"] = a.opts.ClusterIssuer
	ing.Spec.TLS = []networkingv1.IngressTLS{{
		Hosts:      []string{hostname},
		SecretName: certSecret,
	}}

	if _, err := a.clientset.NetworkingV1().Ingresses(ns).Update(ctx, ing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update ingress %s tls: %w", artifacts.IngressName, err)
	}

	artifacts.SSLCertSecret = certSecret
	a.logger.Info("ssl configured",
		"isp_id", artifacts.ISPID,
		"cert_secret", certSecret,
		"cluster_issuer", a.opts.ClusterIssuer,
	)
	return nil
}

// =============================================================================
// Phase: Configure Monitoring
// =============================================================================

// ConfigureMonitoring stamps the scrape annotations onto the pod template so
// the cluster's Prometheus discovers the tenant workload.
func (a *Adapter) ConfigureMonitoring(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.DeploymentName == "" {
		return fmt.Errorf("%w: %s", ErrNotDeployed, artifacts.ISPID)
	}

	ns := artifacts.Namespace
	deployment, err := a.clientset.AppsV1().Deployments(ns).Get(ctx, artifacts.DeploymentName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get deployment %s: %w", artifacts.DeploymentName, err)
	}

	port := template.DefaultContainerPort
	if cs := deployment.Spec.Template.Spec.Containers; len(cs) > 0 && len(cs[0].Ports) > 0 {
		port = int(cs[0].Ports[0].ContainerPort)
	}

	if deployment.Spec.Template.Annotations == nil {
		deployment.Spec.Template.Annotations = map[string]string{}
	}
	deployment.Spec.Template.Annotations[AnnotationScrape] = "true"
	deployment.Spec.Template.Annotations[AnnotationMetricsPort] = strconv.Itoa(port)
	deployment.Spec.Template.Annotations[AnnotationMetricsPath] = "/metrics"

	if _, err := a.clientset.AppsV1().Deployments(ns).Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update deployment %s annotations: %w", artifacts.DeploymentName, err)
	}

	a.logger.Info("monitoring configured", "isp_id", artifacts.ISPID, "deployment", artifacts.DeploymentName)
	return nil
}

// =============================================================================
// Rollback
// =============================================================================

// RollbackDeployment deletes the recorded objects in reverse creation order,
// finishing with the namespace. Missing objects are tolerated; other
// failures are collected and reported together.
func (a *Adapter) RollbackDeployment(ctx context.Context, artifacts *domain.DeploymentArtifacts) error {
	var failed []string
	for _, r := range artifacts.ResourcesForRollback() {
		err := a.deleteResource(ctx, r)
		if apierrors.IsNotFound(err) {
			err = nil
		}
		if err != nil {
			a.logger.Error("rollback step failed",
				"isp_id", artifacts.ISPID,
				"kind", r.Kind,
				"name", r.Name,
				"error", err,
			)
			failed = append(failed, r.Kind+"/"+r.Name)
			continue
		}
		a.logger.Info("rolled back resource", "isp_id", artifacts.ISPID, "kind", r.Kind, "name", r.Name)
	}

	if len(failed) > 0 {
		return fmt.Errorf("rollback left %d resources behind: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func (a *Adapter) deleteResource(ctx context.Context, r domain.CreatedResource) error {
	opts := metav1.DeleteOptions{}
	switch r.Kind {
	case "ingress":
		return a.clientset.NetworkingV1().Ingresses(r.Namespace).Delete(ctx, r.Name, opts)
	case "service":
		return a.clientset.CoreV1().Services(r.Namespace).Delete(ctx, r.Name, opts)
	case "deployment":
		return a.clientset.AppsV1().Deployments(r.Namespace).Delete(ctx, r.Name, opts)
	case "configmap":
		return a.clientset.CoreV1().ConfigMaps(r.Namespace).Delete(ctx, r.Name, opts)
	case "secret":
		return a.clientset.CoreV1().Secrets(r.Namespace).Delete(ctx, r.Name, opts)
	case "persistentvolumeclaim":
		return a.clientset.CoreV1().PersistentVolumeClaims(r.Namespace).Delete(ctx, r.Name, opts)
	case "namespace":
		return a.clientset.CoreV1().Namespaces().Delete(ctx, r.Name, opts)
	default:
		a.logger.Warn("unknown resource kind in rollback", "kind", r.Kind, "name", r.Name)
		return nil
	}
}
