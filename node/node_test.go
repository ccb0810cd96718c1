package node

import (
	"context"
	"sync"
	"testing"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := AcquireSession(WithEngine(engine.NewSimulated()))
	t.Cleanup(ReleaseSession)
	return s
}

func TestAcquireSession_SingletonBalancesRefcount(t *testing.T) {
	a := newTestSession(t)
	b := AcquireSession()
	t.Cleanup(ReleaseSession)
	assert.Same(t, a, b, "AcquireSession must return the same instance on every call")
}

func TestAcquireSession_ReinitializesAfterLastRelease(t *testing.T) {
	first := AcquireSession(WithEngine(engine.NewSimulated()))
	ReleaseSession()

	second := AcquireSession(WithEngine(engine.NewSimulated()))
	t.Cleanup(ReleaseSession)
	assert.NotSame(t, first, second, "releasing the last reference must drop the singleton")
}

func TestPipelines_CreateThenRead(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	pipelines := s.Pipelines()

	n, err := pipelines.Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	require.Equal(t, "p0", n.Name())

	child, ok := pipelines.Child("p0")
	require.True(t, ok)
	assert.Equal(t, n, child)
}

func TestPipelines_CreateRejectsEmptyName(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Pipelines().Create(context.Background(), "", "fakesrc ! fakesink")
	assert.ErrorIs(t, err, nodeerrors.BadValue)
}

func TestPipelines_CreateRejectsEmptyDescription(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Pipelines().Create(context.Background(), "p0", "")
	assert.ErrorIs(t, err, nodeerrors.BadCommand)
}

func TestPipelines_CreateDuplicateNameFails(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	pipelines := s.Pipelines()

	_, err := pipelines.Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)

	_, err = pipelines.Create(ctx, "p0", "fakesrc ! fakesink")
	assert.ErrorIs(t, err, nodeerrors.ExistingResource)
}

// TestPipelines_ConcurrentCreateExactlyOneWins exercises the childIndex
// insert race: of N concurrent creates under the same name, exactly one
// must succeed and the rest must see the name already taken.
func TestPipelines_ConcurrentCreateExactlyOneWins(t *testing.T) {
	s := newTestSession(t)
	pipelines := s.Pipelines()

	const n = 16
	var wg sync.WaitGroup
	var successes, conflicts int32
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pipelines.Create(context.Background(), "race", "fakesrc ! fakesink")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if err == nodeerrors.ExistingResource {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes, "exactly one concurrent create must win")
	assert.EqualValues(t, n-1, conflicts)
}

func TestPipelines_DeleteRefusesWhilePlayHoldNonzero(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	pipelines := s.Pipelines()

	n, err := pipelines.Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	state, ok := pipeline.Child("state")
	require.True(t, ok)
	require.NoError(t, state.Update(ctx, string(engine.StatePlaying)))

	err = pipelines.Delete(ctx, "p0")
	assert.ErrorIs(t, err, nodeerrors.BadValue, "a pipeline with nonzero play-hold must refuse delete")

	require.NoError(t, state.Update(ctx, string(engine.StateNull)))
	assert.NoError(t, pipelines.Delete(ctx, "p0"))
}

func TestPipelines_DeleteUnknownReturnsNoResource(t *testing.T) {
	s := newTestSession(t)
	err := s.Pipelines().Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, nodeerrors.NoResource)
}

func TestState_PlayHoldTracksRunningTransitions(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	stateNode, ok := pipeline.Child("state")
	require.True(t, ok)

	require.NoError(t, stateNode.Update(ctx, string(engine.StatePlaying)))
	assert.EqualValues(t, 1, pipeline.playHoldCount())

	require.NoError(t, stateNode.Update(ctx, string(engine.StatePaused)))
	assert.EqualValues(t, 1, pipeline.playHoldCount(), "paused->playing-family transitions must not double count")

	require.NoError(t, stateNode.Update(ctx, string(engine.StateNull)))
	assert.EqualValues(t, 0, pipeline.playHoldCount())
}

func TestState_InterposedReadyDoesNotStrandPlayHold(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)
	stateNode, _ := pipeline.Child("state")

	require.NoError(t, stateNode.Update(ctx, string(engine.StatePlaying)))
	require.NoError(t, stateNode.Update(ctx, string(engine.StateReady)))
	assert.EqualValues(t, 0, pipeline.playHoldCount(), "leaving the running family must release the hold")

	require.NoError(t, stateNode.Update(ctx, string(engine.StateNull)))
	assert.EqualValues(t, 0, pipeline.playHoldCount())
	assert.NoError(t, s.Pipelines().Delete(ctx, "p0"), "a pipeline routed playing->ready->null must stay deletable")
}

func TestState_RepeatedTransitionToSameValueIsNoUpdate(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	stateNode, _ := n.(*Pipeline).Child("state")

	require.NoError(t, stateNode.Update(ctx, string(engine.StatePlaying)))
	err = stateNode.Update(ctx, string(engine.StatePlaying))
	assert.ErrorIs(t, err, nodeerrors.NoUpdate)
	assert.EqualValues(t, 1, n.(*Pipeline).playHoldCount(), "a no-op transition must not double count the play hold")

	require.NoError(t, stateNode.Update(ctx, string(engine.StateNull)))
}

func TestState_UpdateRejectsUnknownValue(t *testing.T) {
	s := newTestSession(t)
	n, err := s.Pipelines().Create(context.Background(), "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	stateNode, _ := n.(*Pipeline).Child("state")

	err = stateNode.Update(context.Background(), "not-a-state")
	assert.ErrorIs(t, err, nodeerrors.BadValue)
}

func TestElements_DiscoveredFromEngineNaming(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	elements, ok := pipeline.Child("elements")
	require.True(t, ok)
	children := elements.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "fakesrc0", children[0].Name())
	assert.Equal(t, "fakesink1", children[1].Name())
}

func TestElements_ReadAbsorbsResyncUpToCap(t *testing.T) {
	eng := engine.NewSimulated()
	s := AcquireSession(WithEngine(eng))
	t.Cleanup(ReleaseSession)
	ctx := context.Background()

	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)
	elements, ok := pipeline.Child("elements")
	require.True(t, ok)

	eng.ForceResync(pipeline.handle, engine.ResyncCap)
	out, err := elements.Read(ctx)
	require.NoError(t, err, "resignals under the cap must be absorbed")
	assert.Contains(t, out, "fakesrc0")

	eng.ForceResync(pipeline.handle, engine.ResyncCap+1)
	_, err = elements.Read(ctx)
	assert.Error(t, err, "continued mutation past the cap is a fatal iteration error")
}

func TestElements_CreateAndDeleteAreNotSupported(t *testing.T) {
	s := newTestSession(t)
	n, _ := s.Pipelines().Create(context.Background(), "p0", "fakesrc ! fakesink")
	elements, _ := n.(*Pipeline).Child("elements")

	_, err := elements.Create(context.Background(), "x", "")
	assert.ErrorIs(t, err, nodeerrors.BadCommand)
	assert.ErrorIs(t, elements.Delete(context.Background(), "fakesrc0"), nodeerrors.BadCommand)
}

func TestProperty_SetThenGetRoundTrips(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	elements, _ := pipeline.Child("elements")
	src, ok := elements.Child("fakesrc0")
	require.True(t, ok)
	properties, ok := src.Child("properties")
	require.True(t, ok)
	numBuffers, ok := properties.Child("num-buffers")
	require.True(t, ok)

	require.NoError(t, numBuffers.Update(ctx, "42"))
	out, err := numBuffers.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, `"value":"42"`)
	assert.Contains(t, out, `"name":"num-buffers"`)
}

func TestProperty_ReadOnlyRejectsUpdate(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "unknownkind ! fakesink")
	require.NoError(t, err)
	elements, _ := n.(*Pipeline).Child("elements")
	el, ok := elements.Child("unknownkind0")
	require.True(t, ok)
	properties, _ := el.Child("properties")
	nameProp, ok := properties.Child("name")
	require.True(t, ok)

	err = nameProp.Update(ctx, "whatever")
	assert.ErrorIs(t, err, nodeerrors.BadValue)
}

func TestBus_ReadWithNoMessagePendingRendersNullMessage(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	timeoutLeaf, ok := pipeline.Child("bus")
	require.True(t, ok)
	bus := timeoutLeaf.(*Bus)
	timeoutChild, ok := bus.Child("timeout")
	require.True(t, ok)
	require.NoError(t, timeoutChild.Update(ctx, "5"))

	out, err := bus.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, `"message":null`)
}

func TestBus_ReadObservesStateChangeMessage(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	pipeline := n.(*Pipeline)

	stateNode, _ := pipeline.Child("state")
	require.NoError(t, stateNode.Update(ctx, string(engine.StatePlaying)))

	busNode, _ := pipeline.Child("bus")
	out, err := busNode.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, `"type":"state-changed"`)
}

func TestBus_FilterRejectsUnknownType(t *testing.T) {
	s := newTestSession(t)
	n, _ := s.Pipelines().Create(context.Background(), "p0", "fakesrc ! fakesink")
	busNode, _ := n.(*Pipeline).Child("bus")
	bus := busNode.(*Bus)
	filter, ok := bus.Child("filter")
	require.True(t, ok)

	err := filter.Update(context.Background(), "not-a-real-type")
	assert.ErrorIs(t, err, nodeerrors.BadValue)

	require.NoError(t, filter.Update(context.Background(), "eos"))
	out, err := filter.Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, `"types":["eos"]`)
}

func TestResolve_IgnoresRepeatedAndTrailingSlashes(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Pipelines().Create(context.Background(), "p0", "fakesrc ! fakesink")
	require.NoError(t, err)

	resolved, err := Resolve("/pipelines//p0/", s)
	require.NoError(t, err)
	defer resolved.Release()
	assert.Equal(t, "p0", resolved.Name())
}

func TestResolve_MissingSegmentReturnsNoResource(t *testing.T) {
	s := newTestSession(t)
	_, err := Resolve("pipelines/does-not-exist", s)
	assert.ErrorIs(t, err, nodeerrors.NoResource)
}

func TestResolve_NilRootReturnsNullArgument(t *testing.T) {
	_, err := Resolve("pipelines", nil)
	assert.ErrorIs(t, err, nodeerrors.NullArgument)
}

func TestResolve_IncrementsRefcount(t *testing.T) {
	s := newTestSession(t)
	n, err := s.Pipelines().Create(context.Background(), "p0", "fakesrc ! fakesink")
	require.NoError(t, err)
	before := n.RefCount()

	resolved, err := Resolve("pipelines/p0", s)
	require.NoError(t, err)
	assert.Equal(t, before+1, resolved.RefCount())
	resolved.Release()
}

// TestRefcount_SurvivesConcurrentParentDelete confirms a Node resolved
// before a concurrent delete stays valid: Pipelines.Delete only tears the
// Engine handle down once every outstanding reference (including the
// caller's resolved one) has been released.
func TestRefcount_SurvivesConcurrentParentDelete(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	n, err := s.Pipelines().Create(ctx, "p0", "fakesrc ! fakesink")
	require.NoError(t, err)

	held, err := Resolve("pipelines/p0", s)
	require.NoError(t, err)

	require.NoError(t, s.Pipelines().Delete(ctx, "p0"))

	// The caller's own reference is still live; reading through it must not
	// panic or touch a torn-down handle.
	out, err := held.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, `"name":"p0"`)
	_ = n
	held.Release()
}

func TestChildIndex_InsertDuplicateFails(t *testing.T) {
	idx := newChildIndex()
	a := &Base{name: "x"}
	a.refcount.Store(1)
	require.NoError(t, idx.insert(a))

	b := &Base{name: "x"}
	b.refcount.Store(1)
	err := idx.insert(b)
	assert.ErrorIs(t, err, nodeerrors.ExistingResource)
}

func TestChildIndex_RemoveUnknownFails(t *testing.T) {
	idx := newChildIndex()
	_, err := idx.remove("nope")
	assert.ErrorIs(t, err, nodeerrors.NoResource)
}

func TestBase_UnsupportedVerbsReturnBadCommand(t *testing.T) {
	b := &Base{}
	ctx := context.Background()
	_, err := b.Create(ctx, "x", "d")
	assert.ErrorIs(t, err, nodeerrors.BadCommand)
	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, nodeerrors.BadCommand)
	assert.ErrorIs(t, b.Update(ctx, "v"), nodeerrors.BadCommand)
	assert.ErrorIs(t, b.Delete(ctx, "x"), nodeerrors.BadCommand)
}
