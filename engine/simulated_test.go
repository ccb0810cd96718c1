package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_BuildPipelineNamesElementsByKindAndPosition(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	handles, err := s.IterateElements(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, "fakesrc0", handles[0].Name())
	assert.Equal(t, "fakesink1", handles[1].Name())
}

func TestSimulated_BuildPipelineRejectsEmptyDescription(t *testing.T) {
	s := NewSimulated()
	_, err := s.BuildPipeline(context.Background(), "   ")
	assert.Error(t, err)
}

func TestSimulated_BuildPipelineRejectsEmptySegment(t *testing.T) {
	s := NewSimulated()
	_, err := s.BuildPipeline(context.Background(), "fakesrc ! ! fakesink")
	assert.Error(t, err)
}

func TestSimulated_SetStateThenQueryStateRoundTrips(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	result, err := s.SetState(context.Background(), h, StatePlaying)
	require.NoError(t, err)
	assert.Equal(t, SetStateSync, result)

	current, pending, queryResult, err := s.QueryState(context.Background(), h, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, current)
	assert.Equal(t, StatePlaying, pending)
	assert.Equal(t, QueryOK, queryResult)
}

func TestSimulated_SetStateRejectsUnknownState(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	_, err = s.SetState(context.Background(), h, State("bogus"))
	assert.Error(t, err)
}

func TestSimulated_SetStateOnDestroyedPipelineFails(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)
	require.NoError(t, s.Destroy(h))

	_, err = s.SetState(context.Background(), h, StatePlaying)
	assert.Error(t, err)
}

func TestSimulated_ListPropertiesKnownAndUnknownKind(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink ! unknownthing")
	require.NoError(t, err)
	handles, err := s.IterateElements(context.Background(), h)
	require.NoError(t, err)

	srcSchemas, err := s.ListProperties(context.Background(), handles[0])
	require.NoError(t, err)
	names := schemaNames(srcSchemas)
	assert.ElementsMatch(t, []string{"num-buffers", "is-live"}, names)

	unknownSchemas, err := s.ListProperties(context.Background(), handles[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, schemaNames(unknownSchemas))
}

func schemaNames(schemas []PropertySchema) []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

func TestSimulated_SetPropertyThenGetPropertyRoundTrips(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)
	handles, err := s.IterateElements(context.Background(), h)
	require.NoError(t, err)

	require.NoError(t, s.SetProperty(context.Background(), handles[0], "num-buffers", "99"))
	v, err := s.GetProperty(context.Background(), handles[0], "num-buffers")
	require.NoError(t, err)
	assert.Equal(t, "99", v)
}

func TestSimulated_GetPropertyDefaultsToZero(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)
	handles, err := s.IterateElements(context.Background(), h)
	require.NoError(t, err)

	v, err := s.GetProperty(context.Background(), handles[0], "num-buffers")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestSimulated_SendEventEOSThenBusPopObservesIt(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	require.NoError(t, s.SendEvent(context.Background(), h, "eos", nil))

	msg, err := s.BusPop(context.Background(), h, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, BusEOS, msg.Type)
}

func TestSimulated_SendEventUnknownKindFails(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)
	err = s.SendEvent(context.Background(), h, "not-a-kind", nil)
	assert.Error(t, err)
}

func TestSimulated_BusPopTimesOutWithNoMessage(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	msg, err := s.BusPop(context.Background(), h, 20*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSimulated_BusPopHonorsTypeMask(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)
	require.NoError(t, s.SendEvent(context.Background(), h, "flush-start", nil))

	msg, err := s.BusPop(context.Background(), h, 20*time.Millisecond, []BusMessageType{BusEOS})
	require.NoError(t, err)
	assert.Nil(t, msg, "a tag message must not match an eos-only filter")

	msg, err = s.BusPop(context.Background(), h, 20*time.Millisecond, []BusMessageType{BusTag})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, BusTag, msg.Type)
}

func TestSimulated_IterateElementsReportsResyncWhileForced(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	s.ForceResync(h, 2)
	for i := 0; i < 2; i++ {
		_, err := s.IterateElements(context.Background(), h)
		assert.ErrorIs(t, err, ErrResync)
	}
	handles, err := s.IterateElements(context.Background(), h)
	require.NoError(t, err)
	assert.Len(t, handles, 2)
}

func TestSimulated_GraphRendersDOTWithElementChain(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	dot, err := s.Graph(context.Background(), h)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph pipeline")
	assert.Contains(t, dot, "fakesrc0")
	assert.Contains(t, dot, "fakesink1")
	assert.Contains(t, dot, `"fakesrc0" -> "fakesink1"`)
}

func TestSimulated_DestroyIsIdempotent(t *testing.T) {
	s := NewSimulated()
	h, err := s.BuildPipeline(context.Background(), "fakesrc ! fakesink")
	require.NoError(t, err)

	require.NoError(t, s.Destroy(h))
	require.NoError(t, s.Destroy(h))
}

func TestValidBusMessageType(t *testing.T) {
	assert.True(t, ValidBusMessageType("eos"))
	assert.True(t, ValidBusMessageType("qos"))
	assert.False(t, ValidBusMessageType("not-a-type"))
}

func TestState_IsRunning(t *testing.T) {
	assert.True(t, StatePlaying.IsRunning())
	assert.True(t, StatePaused.IsRunning())
	assert.False(t, StateNull.IsRunning())
	assert.False(t, StateReady.IsRunning())
}
