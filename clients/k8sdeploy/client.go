package k8sdeploy

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"agentbackend/clients"
)

// Client runs one paper-trader Deployment per agent on a Kubernetes cluster.
// The workload handle is "namespace/name".
type Client struct {
	clientset kubernetes.Interface
	namespace string
	image     string
}

// NewClient creates a Kubernetes-backed deployment client.
// Tries in-cluster config first, then falls back to kubeconfig.
func NewClient(namespace, image, kubeconfigPath string) (*Client, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		config, err = buildConfigFromKubeconfig(kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return &Client{clientset: clientset, namespace: namespace, image: image}, nil
}

// NewClientWithClientset wires an existing clientset, used by tests with a fake
func NewClientWithClientset(clientset kubernetes.Interface, namespace, image string) *Client {
	return &Client{clientset: clientset, namespace: namespace, image: image}
}

func buildConfigFromKubeconfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		kubeconfigPath = os.Getenv("KUBECONFIG")
	}
	if kubeconfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
	}

	return config, nil
}

func (c *Client) Deploy(ctx context.Context, spec clients.WorkloadSpec) (string, error) {
	name := workloadName(spec.AgentID)
	replicas := spec.Replicas
	if replicas == 0 {
		replicas = 1
	}

	labels := map[string]string{
		"app":      "paper-trader",
		"agent-id": name,
	}

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "paper-trader",
							Image: c.image,
							Env: []corev1.EnvVar{
								{Name: "AGENT_ID", Value: spec.AgentID},
								{Name: "USER_ID", Value: spec.OwnerID},
								{Name: "CODE_LOCATION", Value: spec.CodeLocation},
								{Name: "BROKERAGE_ACCOUNT_ID", Value: spec.BrokerageAccountID},
								{Name: "MODE", Value: "PAPER"},
							},
						},
					},
				},
			},
		},
	}

	created, err := c.clientset.AppsV1().Deployments(c.namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		if k8serrors.IsAlreadyExists(err) {
			// A previous attempt for this agent left its workload behind - reuse it
			log.Printf("⚠️ Workload %s/%s already exists, reusing", c.namespace, name)
			return c.namespace + "/" + name, nil
		}
		return "", fmt.Errorf("failed to create workload: %w", err)
	}

	log.Printf("📋 Created workload %s/%s for agent %s", c.namespace, created.Name, spec.AgentID)
	return c.namespace + "/" + created.Name, nil
}

func (c *Client) Status(ctx context.Context, handle string) (clients.WorkloadStatus, error) {
	namespace, name, err := splitHandle(handle)
	if err != nil {
		return clients.WorkloadStatus{}, err
	}

	deployment, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return clients.WorkloadStatus{Failed: true, FailureReason: "workload not found"}, nil
		}
		return clients.WorkloadStatus{}, fmt.Errorf("failed to get workload status: %w", err)
	}

	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentReplicaFailure && condition.Status == corev1.ConditionTrue {
			return clients.WorkloadStatus{Failed: true, FailureReason: condition.Message}, nil
		}
	}

	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}

	return clients.WorkloadStatus{Ready: deployment.Status.ReadyReplicas >= desired}, nil
}

func (c *Client) Delete(ctx context.Context, handle string) error {
	namespace, name, err := splitHandle(handle)
	if err != nil {
		return err
	}

	err = c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !k8serrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete workload: %w", err)
	}

	log.Printf("📋 Deleted workload %s", handle)
	return nil
}

// workloadName derives a DNS-safe deployment name from the agent id
func workloadName(agentID string) string {
	return "agent-" + strings.ReplaceAll(strings.ToLower(agentID), "_", "-")
}

func splitHandle(handle string) (string, string, error) {
	parts := strings.SplitN(handle, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid workload handle: %q", handle)
	}
	return parts[0], parts[1], nil
}
