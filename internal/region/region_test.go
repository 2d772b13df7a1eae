package region

import (
	"sync"
	"testing"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/stretchr/testify/assert"
)

func TestResizeSequenceSettlesOnLatest(t *testing.T) {
	tr := NewTracker(Geometry{Size: Size{Width: 64, Height: 64}}, Point{})
	f := tr.Follower()

	tr.OnResize(100, 100)
	tr.OnResize(50, 80)
	tr.OnResize(200, 150)

	r := f.Current()
	assert.Equal(t, 200, r.Width)
	assert.Equal(t, 150, r.Height)

	// Frames arriving with no further updates keep the same size
	for i := 0; i < 5; i++ {
		assert.Equal(t, r, f.Current())
	}
}

func TestResizeInterleavedWithFrames(t *testing.T) {
	tr := NewTracker(Geometry{}, Point{})
	f := tr.Follower()

	sizes := []Size{{100, 100}, {50, 80}, {200, 150}}
	for i, s := range sizes {
		tr.OnResize(s.Width, s.Height)
		// a varying number of frames between updates
		for j := 0; j <= i; j++ {
			f.Current()
		}
	}
	r := f.Current()
	assert.Equal(t, frame.Region{Width: 200, Height: 150}, r)
}

func TestMoveAllowsNegativeAndMapsToMonitor(t *testing.T) {
	tr := NewTracker(Geometry{Size: Size{Width: 10, Height: 10}}, Point{X: 1920, Y: 0})
	f := tr.Follower()

	assert.True(t, tr.OnMove(1900, -30))
	r := f.Current()
	assert.Equal(t, frame.Region{X: -20, Y: -30, Width: 10, Height: 10}, r)
	assert.Equal(t, Point{X: 1900, Y: -30}, tr.Geometry().Position)
	assert.Equal(t, r, tr.Region())
}

func TestFollowerStartsFromInitialGeometry(t *testing.T) {
	tr := NewTracker(Geometry{Position: Point{X: 5, Y: 6}, Size: Size{Width: 7, Height: 8}}, Point{})
	assert.Equal(t, frame.Region{X: 5, Y: 6, Width: 7, Height: 8}, tr.Follower().Current())
}

func TestUnchangedUpdatesAreNotPublished(t *testing.T) {
	tr := NewTracker(Geometry{Size: Size{Width: 4, Height: 4}}, Point{})
	assert.False(t, tr.OnResize(4, 4))
	assert.False(t, tr.OnMove(0, 0))
	assert.False(t, tr.OnFocus(false))

	sent, _ := tr.sizes.Stats()
	assert.Zero(t, sent)
}

func TestNegativeSizeClampsToZero(t *testing.T) {
	tr := NewTracker(Geometry{Size: Size{Width: -1, Height: 3}}, Point{})
	assert.Equal(t, Size{Width: 0, Height: 3}, tr.Geometry().Size)

	tr.OnResize(-5, -5)
	assert.Equal(t, Size{}, tr.Geometry().Size)
	assert.True(t, tr.Follower().Current().Empty())
}

func TestFocusFlag(t *testing.T) {
	tr := NewTracker(Geometry{}, Point{})
	assert.True(t, tr.OnFocus(true))
	assert.True(t, tr.Focused())
	assert.True(t, tr.OnFocus(false))
	assert.False(t, tr.Focused())
}

func TestConcurrentUpdatesNeverBlock(t *testing.T) {
	tr := NewTracker(Geometry{}, Point{})
	f := tr.Follower()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			f.Current()
		}
	}()
	for i := 1; i <= 5000; i++ {
		tr.OnResize(i, i)
		tr.OnMove(-i, i)
	}
	wg.Wait()

	r := f.Current()
	assert.Equal(t, frame.Region{X: -5000, Y: 5000, Width: 5000, Height: 5000}, r)
}
