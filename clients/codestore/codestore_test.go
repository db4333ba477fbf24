package codestore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeStoreClient(t *testing.T) {
	client := NewClient(afero.NewMemMapFs(), "/data/agent-code")

	t.Run("PutAndGet", func(t *testing.T) {
		payload := []byte("class MyStrategy(bt.Strategy):\n    def next(self):\n        pass\n")

		location, err := client.Put(context.Background(), "agents/u_1/ag_1/strategy.py", payload)
		require.NoError(t, err)
		assert.Equal(t, "/data/agent-code/agents/u_1/ag_1/strategy.py", location)

		got, err := client.Get(context.Background(), location)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("PutOverwritesExisting", func(t *testing.T) {
		_, err := client.Put(context.Background(), "agents/u_1/ag_2/strategy.py", []byte("v1"))
		require.NoError(t, err)

		location, err := client.Put(context.Background(), "agents/u_1/ag_2/strategy.py", []byte("v2"))
		require.NoError(t, err)

		got, err := client.Get(context.Background(), location)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("GetMissingLocation", func(t *testing.T) {
		_, err := client.Get(context.Background(), "/data/agent-code/agents/nope/strategy.py")
		require.Error(t, err)
	})
}
