package k8sdeploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"agentbackend/clients"
)

func TestK8sDeployClient(t *testing.T) {
	spec := clients.WorkloadSpec{
		AgentID:            "ag_01ABC",
		OwnerID:            "u_01DEF",
		CodeLocation:       "/data/agent-code/agents/u_01DEF/ag_01ABC/strategy.py",
		BrokerageAccountID: "acct-123",
	}

	t.Run("DeployCreatesWorkload", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		handle, err := client.Deploy(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, "paper-traders/agent-ag-01abc", handle)

		deployment, err := clientset.AppsV1().
			Deployments("paper-traders").
			Get(context.Background(), "agent-ag-01abc", metav1.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "paper-trader:latest", deployment.Spec.Template.Spec.Containers[0].Image)

		envByName := map[string]string{}
		for _, env := range deployment.Spec.Template.Spec.Containers[0].Env {
			envByName[env.Name] = env.Value
		}
		assert.Equal(t, spec.AgentID, envByName["AGENT_ID"])
		assert.Equal(t, spec.BrokerageAccountID, envByName["BROKERAGE_ACCOUNT_ID"])
	})

	t.Run("DeployReusesExistingWorkload", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		first, err := client.Deploy(context.Background(), spec)
		require.NoError(t, err)

		second, err := client.Deploy(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("StatusReportsReadiness", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		handle, err := client.Deploy(context.Background(), spec)
		require.NoError(t, err)

		status, err := client.Status(context.Background(), handle)
		require.NoError(t, err)
		assert.False(t, status.Ready)

		deployment, err := clientset.AppsV1().
			Deployments("paper-traders").
			Get(context.Background(), "agent-ag-01abc", metav1.GetOptions{})
		require.NoError(t, err)
		deployment.Status = appsv1.DeploymentStatus{ReadyReplicas: 1}
		_, err = clientset.AppsV1().Deployments("paper-traders").Update(context.Background(), deployment, metav1.UpdateOptions{})
		require.NoError(t, err)

		status, err = client.Status(context.Background(), handle)
		require.NoError(t, err)
		assert.True(t, status.Ready)
	})

	t.Run("StatusForMissingWorkload", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		status, err := client.Status(context.Background(), "paper-traders/agent-gone")
		require.NoError(t, err)
		assert.True(t, status.Failed)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		handle, err := client.Deploy(context.Background(), spec)
		require.NoError(t, err)

		require.NoError(t, client.Delete(context.Background(), handle))
		require.NoError(t, client.Delete(context.Background(), handle))
	})

	t.Run("InvalidHandle", func(t *testing.T) {
		clientset := fake.NewSimpleClientset()
		client := NewClientWithClientset(clientset, "paper-traders", "paper-trader:latest")

		_, err := client.Status(context.Background(), "not-a-handle")
		require.Error(t, err)
	})
}
