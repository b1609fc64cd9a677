package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedRig_RequiresOpen(t *testing.T) {
	r := NewSimulatedRig(8, 8)
	assert.False(t, r.Trigger())
	require.NoError(t, r.Open())
	assert.True(t, r.Trigger())
}

func TestSimulatedRig_RefusesUntilCollected(t *testing.T) {
	r := NewSimulatedRig(8, 8)
	require.NoError(t, r.Open())

	require.True(t, r.Trigger())
	assert.False(t, r.Trigger(), "second trigger before collect")

	_, err := r.Collect(Green)
	require.NoError(t, err)
	assert.True(t, r.Trigger())
	assert.Equal(t, 2, r.Shots())
}

func TestSimulatedRig_CollectWithoutTrigger(t *testing.T) {
	r := NewSimulatedRig(8, 8)
	require.NoError(t, r.Open())
	_, err := r.Collect(Blue)
	assert.Error(t, err)
}

func TestSimulatedRig_Frames(t *testing.T) {
	r := NewSimulatedRig(40, 20)
	require.NoError(t, r.Open())
	require.True(t, r.Trigger())

	pair, err := r.Collect(Blue)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 40}, pair.Left.Shape)
	assert.Len(t, pair.Left.Pixels, 800)
	assert.Len(t, pair.Right.Pixels, 800)
	assert.NotEqual(t, pair.Left.Pixels, pair.Right.Pixels)
	assert.Equal(t, 200, pair.Left.ISO)
	assert.Equal(t, 5.6, pair.Left.Aperture)
}

func TestSimulatedRig_DefaultSize(t *testing.T) {
	r := NewSimulatedRig(0, 0)
	assert.Equal(t, 64, r.Width)
	assert.Equal(t, 48, r.Height)
}

func TestCoordinator_WithSimulatedRig(t *testing.T) {
	r := NewSimulatedRig(16, 16)
	sender := &fakeSender{}
	c := NewCoordinator(r, sender, nil)
	require.NoError(t, c.Start())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Dispatch(context.Background()))
	}
	assert.Len(t, sender.batches, 3)
	assert.Equal(t, 6, r.Shots())
}
