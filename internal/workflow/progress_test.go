package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-requests/internal/models"
)

func threeStops() []models.Location {
	// deliberately out of order; Order drives the sequence
	return []models.Location{
		{ID: "c", Order: 2, Address: "Depot", Latitude: 10.80, Longitude: 106.70},
		{ID: "a", Order: 0, Address: "Office", Latitude: 10.77, Longitude: 106.69},
		{ID: "b", Order: 1, Address: "Client", Latitude: 10.78, Longitude: 106.72},
	}
}

func checkpoints(n int) []models.CheckPoint {
	out := make([]models.CheckPoint, n)
	for i := range out {
		out[i] = models.CheckPoint{CheckPointID: string(rune('p' + i)), Latitude: 10.77, Longitude: 106.69}
	}
	return out
}

func TestTrackProgress(t *testing.T) {
	tests := []struct {
		name        string
		checkpoints int
		wantCurrent int
		wantStates  []StopState
		wantFrac    float64
	}{
		{"not started", 0, 0, []StopState{StopCurrent, StopUpcoming, StopUpcoming}, 0},
		{"one visited", 1, 1, []StopState{StopCompleted, StopCurrent, StopUpcoming}, 1.0 / 3},
		{"two visited", 2, 2, []StopState{StopCompleted, StopCompleted, StopCurrent}, 2.0 / 3},
		{"all visited", 3, 3, []StopState{StopCompleted, StopCompleted, StopCompleted}, 1},
		{"extra checkpoints clamp", 5, 3, []StopState{StopCompleted, StopCompleted, StopCompleted}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := TrackProgress(threeStops(), checkpoints(tt.checkpoints))
			assert.Equal(t, 3, p.Total)
			assert.Equal(t, tt.wantCurrent, p.CurrentIndex)
			assert.InDelta(t, tt.wantFrac, p.Fraction, 1e-9)
			require.Len(t, p.Stops, 3)
			for i, s := range p.Stops {
				assert.Equal(t, tt.wantStates[i], s.State, "stop %d", i)
				assert.Equal(t, i, s.Index)
			}
			assert.Equal(t, tt.wantCurrent == 3, p.Complete())
		})
	}
}

func TestTrackProgress_OrderAndKinds(t *testing.T) {
	p := TrackProgress(threeStops(), nil)

	ids := []string{p.Stops[0].Location.ID, p.Stops[1].Location.ID, p.Stops[2].Location.ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, models.CheckIn, p.Stops[0].Kind)
	assert.Equal(t, models.CheckIn, p.Stops[1].Kind)
	assert.Equal(t, models.CheckOut, p.Stops[2].Kind)

	next, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, "a", next.Location.ID)
}

func TestTrackProgress_Idempotent(t *testing.T) {
	locs := threeStops()
	cps := checkpoints(2)
	first := TrackProgress(locs, cps)
	second := TrackProgress(locs, cps)
	assert.Equal(t, first, second)
	assert.Equal(t, "c", locs[0].ID, "input must not be reordered")
}

func TestTrackProgress_Deviation(t *testing.T) {
	p := TrackProgress(threeStops(), checkpoints(2))
	require.NotNil(t, p.Stops[0].CheckPoint)
	assert.InDelta(t, 0, p.Stops[0].DeviationMeters, 1)
	require.NotNil(t, p.Stops[1].CheckPoint)
	assert.Greater(t, p.Stops[1].DeviationMeters, 1000.0)
	assert.Nil(t, p.Stops[2].CheckPoint)
}

func TestTrackProgress_NoLocations(t *testing.T) {
	p := TrackProgress(nil, checkpoints(2))
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.CurrentIndex)
	assert.Zero(t, p.Fraction)
	assert.False(t, p.Complete())
	_, ok := p.Next()
	assert.False(t, ok)
}

func TestKindAt(t *testing.T) {
	assert.Equal(t, models.CheckOut, KindAt(0, 1))
	assert.Equal(t, models.CheckIn, KindAt(0, 2))
	assert.Equal(t, models.CheckOut, KindAt(1, 2))
}
