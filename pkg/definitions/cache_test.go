package definitions

import (
	"sync"
	"testing"

	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/engine/enginetest"
	"github.com/dukex/flowscope/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheReturnsDefinitionMetadata(t *testing.T) {
	fake := enginetest.NewFake()
	fake.AddDefinition(engine.Definition{
		WorkflowID:    "wf-1",
		BPMNProcessID: "order",
		Name:          "Order Process",
		Version:       3,
	})

	cache := NewCache(fake, log.WithModule("definitions-test"))

	name, err := cache.WorkflowName(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "Order Process", *name)

	version, err := cache.WorkflowVersion(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, int32(3), *version)
}

func TestCacheUnknownWorkflowIsNilNotError(t *testing.T) {
	fake := enginetest.NewFake()
	cache := NewCache(fake, log.WithModule("definitions-test"))

	name, err := cache.WorkflowName(t.Context(), "never-deployed")
	require.NoError(t, err)
	assert.Nil(t, name)

	version, err := cache.WorkflowVersion(t.Context(), "never-deployed")
	require.NoError(t, err)
	assert.Nil(t, version)

	// The negative result is memoized too.
	assert.Equal(t, 1, fake.DefinitionCalls["never-deployed"])
}

func TestCacheSingleFlightPopulation(t *testing.T) {
	fake := enginetest.NewFake()
	fake.AddDefinition(engine.Definition{WorkflowID: "wf-1", Name: "Order", Version: 1})

	cache := NewCache(fake, log.WithModule("definitions-test"))

	const lookups = 50

	var wg sync.WaitGroup

	start := make(chan struct{})

	for range lookups {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			name, err := cache.WorkflowName(t.Context(), "wf-1")
			assert.NoError(t, err)

			if assert.NotNil(t, name) {
				assert.Equal(t, "Order", *name)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, fake.DefinitionCalls["wf-1"])

	// Sequential lookups after population stay served from memory.
	for range 5 {
		_, err := cache.WorkflowVersion(t.Context(), "wf-1")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.DefinitionCalls["wf-1"])
}
