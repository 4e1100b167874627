package kube

import (
	"encoding/json"
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Labels
// =============================================================================

// Ownership labels stamped on every created object.
const (
	LabelTenant    = "dotmac.io/tenant"
	LabelRequest   = "dotmac.io/request"
	LabelPlan      = "dotmac.io/plan"
	LabelManagedBy = "app.kubernetes.io/managed-by"

	ManagedByValue = "dotmac-provisioner"
)

// Scrape annotations applied to the pod template when monitoring is
// configured.
const (
	AnnotationScrape      = "prometheus.io/scrape"
	AnnotationMetricsPort = "prometheus.io/port"
	AnnotationMetricsPath = "prometheus.io/path"
)

// identityLabels returns the ownership labels for all tenant objects.
func identityLabels(ispID, requestID string, plan domain.PlanType) map[string]string {
	return map[string]string{
		LabelTenant:    domain.Slugify(ispID),
		LabelRequest:   requestID,
		LabelPlan:      string(plan),
		LabelManagedBy: ManagedByValue,
	}
}

// tlsSecretName names the certificate secret cert-manager materializes for a
// tenant hostname.
func tlsSecretName(ispID string) string {
	return "dotmac-" + domain.Slugify(ispID) + "-tls"
}

// =============================================================================
// Object Construction
// =============================================================================

func namespaceFor(ispID string, labels map[string]string) *corev1.Namespace {
	return &corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   domain.NamespaceName(ispID),
			Labels: labels,
		},
	}
}

func pvcFor(name, namespace string, storageGB int, storageClass string, labels map[string]string) *corev1.PersistentVolumeClaim {
	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(fmt.Sprintf("%dGi", storageGB)),
				},
			},
		},
	}
	if storageClass != "" {
		pvc.Spec.StorageClassName = &storageClass
	}
	return pvc
}

func secretFor(name, namespace string, data map[string]string, labels map[string]string) *corev1.Secret {
	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: data,
	}
}

func configMapFor(name, namespace string, data map[string]string, labels map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Data: data,
	}
}

func serviceFor(name, namespace, deploymentName string, targetPort int, labels map[string]string) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Type: corev1.ServiceTypeClusterIP,
			Selector: map[string]string{
				"app.kubernetes.io/instance": deploymentName,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       80,
					TargetPort: intstr.FromInt32(int32(targetPort)),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

func ingressFor(name, namespace, host, serviceName, ingressClass string, labels map[string]string) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: &pathType,
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: serviceName,
											Port: networkingv1.ServiceBackendPort{Number: 80},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	if ingressClass != "" {
		ing.Spec.IngressClassName = &ingressClass
	}
	return ing
}

// =============================================================================
// Rendered Manifest Decoding
// =============================================================================

// numericManifestFields are the integer fields of a Deployment manifest.
// Template substitution produces string leaves everywhere, and the typed
// API rejects quoted integers, so these are coerced before the unmarshal.
var numericManifestFields = map[string]bool{
	"replicas":            true,
	"containerPort":       true,
	"port":                true,
	"initialDelaySeconds": true,
	"periodSeconds":       true,
	"timeoutSeconds":      true,
	"failureThreshold":    true,
	"successThreshold":    true,
}

// deploymentFromManifest decodes a rendered template tree into a typed
// Deployment.
func deploymentFromManifest(rendered map[string]any) (*appsv1.Deployment, error) {
	if kind, _ := rendered["kind"].(string); kind != "Deployment" {
		return nil, fmt.Errorf("manifest kind %q is not a Deployment", rendered["kind"])
	}

	coerced := coerceNumericFields(rendered, "")

	raw, err := json.Marshal(coerced)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	var deployment appsv1.Deployment
	if err := json.Unmarshal(raw, &deployment); err != nil {
		return nil, fmt.Errorf("decode deployment manifest: %w", err)
	}
	if deployment.Name == "" {
		return nil, fmt.Errorf("deployment manifest has no metadata.name")
	}
	return &deployment, nil
}

// coerceNumericFields walks the tree and converts integer strings under the
// known numeric keys. Everything else, notably env values, stays a string.
func coerceNumericFields(node any, key string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = coerceNumericFields(child, k)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = coerceNumericFields(child, key)
		}
		return out
	case string:
		if numericManifestFields[key] {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return v
	default:
		return v
	}
}
