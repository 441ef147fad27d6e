// Package kubernetes provisions sandboxes as long-running Pods.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"sandplane/internal/gateway"
	"sandplane/internal/store"
)

const (
	managedByLabel      = "app.kubernetes.io/managed-by"
	managedByValue      = "sandplane"
	sandboxAnnotation   = "sandplane.io/sandbox"
	sandboxContainerKey = "sandbox"
)

// Config holds configuration for the Kubernetes gateway.
type Config struct {
	// Namespace where sandbox pods are created
	Namespace string
	// Image run by every sandbox pod
	Image string
	// Command overrides the image entrypoint (optional)
	Command []string
	// ServiceAccount for sandbox pods (optional)
	ServiceAccount string
	CPULimit       string
	MemoryLimit    string
}

// Gateway implements gateway.Gateway using Kubernetes Pods.
type Gateway struct {
	clientset kubernetes.Interface
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE")
}

// New creates a Kubernetes gateway.
// In-cluster configuration is tried first, then ~/.kube/config.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		logger.Info("in-cluster config not available, using kubeconfig", "path", kubeconfig, "reason", err)
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return NewWithClientset(clientset, cfg, logger), nil
}

// NewWithClientset creates a gateway around an existing clientset.
func NewWithClientset(clientset kubernetes.Interface, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.Image == "" {
		cfg.Image = "alpine:3.20"
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"sleep", "infinity"}
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "500m"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "256Mi"
	}
	return &Gateway{
		clientset: clientset,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// podName derives a DNS-1123 compatible pod name. The suffix keeps a
// re-created sandbox from colliding with a pod that is still terminating.
func (g *Gateway) podName(name string) string {
	suffix := strconv.FormatInt(g.now().UnixNano(), 36)
	return fmt.Sprintf("sandbox-%s-%s", strings.ToLower(name), suffix)
}

// Create implements gateway.Gateway.
func (g *Gateway) Create(ctx context.Context, name string) (gateway.Handle, store.SandboxStatus, error) {
	if err := gateway.ValidateName(name); err != nil {
		return "", "", err
	}

	cpu, err := resource.ParseQuantity(g.config.CPULimit)
	if err != nil {
		return "", "", gateway.ProvisioningError(name, fmt.Errorf("cpu limit: %w", err))
	}
	mem, err := resource.ParseQuantity(g.config.MemoryLimit)
	if err != nil {
		return "", "", gateway.ProvisioningError(name, fmt.Errorf("memory limit: %w", err))
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      g.podName(name),
			Namespace: g.config.Namespace,
			Labels: map[string]string{
				managedByLabel: managedByValue,
			},
			Annotations: map[string]string{
				sandboxAnnotation: name,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyAlways,
			Containers: []corev1.Container{
				{
					Name:    sandboxContainerKey,
					Image:   g.config.Image,
					Command: g.config.Command,
					Env: []corev1.EnvVar{
						{Name: "SANDBOX_NAME", Value: name},
					},
					Resources: corev1.ResourceRequirements{
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    cpu,
							corev1.ResourceMemory: mem,
						},
					},
				},
			},
		},
	}
	if g.config.ServiceAccount != "" {
		pod.Spec.ServiceAccountName = g.config.ServiceAccount
	}

	created, err := g.clientset.CoreV1().Pods(g.config.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", "", gateway.ProvisioningError(name, err)
	}

	g.logger.Info("created sandbox pod", "sandbox", name, "namespace", created.Namespace, "pod", created.Name)
	return gateway.Handle(created.Namespace + "/" + created.Name), store.SandboxStatusActive, nil
}

// Destroy implements gateway.Gateway. A pod that is already gone counts as destroyed.
func (g *Gateway) Destroy(ctx context.Context, handle gateway.Handle) (store.SandboxStatus, error) {
	namespace, podName, ok := strings.Cut(string(handle), "/")
	if !ok || namespace == "" || podName == "" {
		return "", gateway.DeprovisionError(handle, fmt.Errorf("malformed pod handle"))
	}

	propagation := metav1.DeletePropagationForeground
	err := g.clientset.CoreV1().Pods(namespace).Delete(ctx, podName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return "", gateway.DeprovisionError(handle, err)
	}

	g.logger.Info("deleted sandbox pod", "namespace", namespace, "pod", podName)
	return store.SandboxStatusTerminated, nil
}
