package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	t.Run("Happy path runs end to end", func(t *testing.T) {
		path := []AgentStatus{
			AgentStatusSubmitted,
			AgentStatusValidated,
			AgentStatusBacktestRunning,
			AgentStatusBacktestSucceeded,
			AgentStatusAccountProvisioning,
			AgentStatusAccountReady,
			AgentStatusFunding,
			AgentStatusFunded,
			AgentStatusDeploymentRunning,
			AgentStatusTrading,
			AgentStatusStopped,
			AgentStatusDeleted,
		}
		for i := 0; i < len(path)-1; i++ {
			assert.True(t, CanTransition(path[i], path[i+1]),
				"expected %s -> %s to be legal", path[i], path[i+1])
		}
	})

	t.Run("Failure and recovery edges", func(t *testing.T) {
		assert.True(t, CanTransition(AgentStatusBacktestRunning, AgentStatusBacktestFailed))
		assert.True(t, CanTransition(AgentStatusBacktestFailed, AgentStatusValidated))
		assert.True(t, CanTransition(AgentStatusBacktestRunning, AgentStatusValidated))
		assert.True(t, CanTransition(AgentStatusFunding, AgentStatusAccountReady))
		assert.True(t, CanTransition(AgentStatusDeploymentRunning, AgentStatusDeploymentFailed))
		assert.True(t, CanTransition(AgentStatusDeploymentFailed, AgentStatusFunded))
		assert.True(t, CanTransition(AgentStatusDeploymentRunning, AgentStatusFunded))
	})

	t.Run("Illegal shortcuts rejected", func(t *testing.T) {
		assert.False(t, CanTransition(AgentStatusSubmitted, AgentStatusBacktestRunning))
		assert.False(t, CanTransition(AgentStatusValidated, AgentStatusBacktestSucceeded))
		assert.False(t, CanTransition(AgentStatusBacktestFailed, AgentStatusBacktestSucceeded))
		assert.False(t, CanTransition(AgentStatusAccountReady, AgentStatusFunded))
		assert.False(t, CanTransition(AgentStatusFunded, AgentStatusTrading))
		assert.False(t, CanTransition(AgentStatusStopped, AgentStatusTrading))
		assert.False(t, CanTransition(AgentStatusTrading, AgentStatusDeleted))
	})

	t.Run("Deleted is terminal", func(t *testing.T) {
		all := []AgentStatus{
			AgentStatusSubmitted, AgentStatusValidated, AgentStatusBacktestRunning,
			AgentStatusBacktestSucceeded, AgentStatusBacktestFailed,
			AgentStatusAccountProvisioning, AgentStatusAccountReady,
			AgentStatusFunding, AgentStatusFunded, AgentStatusDeploymentRunning,
			AgentStatusTrading, AgentStatusDeploymentFailed, AgentStatusStopped,
			AgentStatusDeleted,
		}
		for _, to := range all {
			assert.False(t, CanTransition(AgentStatusDeleted, to))
		}
	})

	t.Run("Self transitions rejected", func(t *testing.T) {
		assert.False(t, CanTransition(AgentStatusTrading, AgentStatusTrading))
		assert.False(t, CanTransition(AgentStatusFunding, AgentStatusFunding))
	})
}

func TestIsDeletable(t *testing.T) {
	t.Run("Live workload blocks deletion", func(t *testing.T) {
		assert.False(t, AgentStatusDeploymentRunning.IsDeletable())
		assert.False(t, AgentStatusTrading.IsDeletable())
		assert.False(t, AgentStatusDeleted.IsDeletable())
	})

	t.Run("At-rest statuses deletable", func(t *testing.T) {
		for _, s := range []AgentStatus{
			AgentStatusSubmitted, AgentStatusValidated, AgentStatusBacktestRunning,
			AgentStatusBacktestSucceeded, AgentStatusBacktestFailed,
			AgentStatusAccountProvisioning, AgentStatusAccountReady,
			AgentStatusFunding, AgentStatusFunded, AgentStatusDeploymentFailed,
			AgentStatusStopped,
		} {
			assert.True(t, s.IsDeletable(), "expected %s to be deletable", s)
		}
	})
}
