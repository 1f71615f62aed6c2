package workflow

import (
	"sort"

	"github.com/ukydev/fleet-requests/internal/models"
)

// StopState is the display state of one waypoint.
type StopState int

const (
	StopCompleted StopState = iota
	StopCurrent
	StopUpcoming
)

func (s StopState) String() string {
	switch s {
	case StopCompleted:
		return "completed"
	case StopCurrent:
		return "current"
	default:
		return "upcoming"
	}
}

// Stop is one waypoint with its derived trip state.
type Stop struct {
	Index    int                   `json:"index"`
	Location models.Location       `json:"location"`
	State    StopState             `json:"state"`
	Kind     models.CheckPointType `json:"kind"`
	// CheckPoint is the checkpoint correlated to this stop by position.
	CheckPoint *models.CheckPoint `json:"checkPoint,omitempty"`
	// DeviationMeters is the distance between CheckPoint and the waypoint.
	DeviationMeters float64 `json:"deviationMeters,omitempty"`
}

// Progress is the derived trip state of an in-progress request.
type Progress struct {
	Stops        []Stop  `json:"stops"`
	CurrentIndex int     `json:"currentIndex"`
	Total        int     `json:"total"`
	Fraction     float64 `json:"fraction"`
}

// Complete reports whether every waypoint has a checkpoint.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.CurrentIndex >= p.Total
}

// Next returns the first unvisited stop.
func (p Progress) Next() (Stop, bool) {
	if p.CurrentIndex >= len(p.Stops) {
		return Stop{}, false
	}
	return p.Stops[p.CurrentIndex], true
}

// KindAt returns the checkpoint kind expected at position index of total
// stops: the last stop is the check-out, every other stop a check-in.
func KindAt(index, total int) models.CheckPointType {
	if index == total-1 {
		return models.CheckOut
	}
	return models.CheckIn
}

// TrackProgress correlates the Nth checkpoint with the Nth waypoint (by
// Order) and derives each stop's state. Extra checkpoints beyond the last
// waypoint are ignored and the trip counts as fully visited.
func TrackProgress(locations []models.Location, checkpoints []models.CheckPoint) Progress {
	ordered := make([]models.Location, len(locations))
	copy(ordered, locations)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	total := len(ordered)
	current := len(checkpoints)
	if current > total {
		current = total
	}

	stops := make([]Stop, total)
	for i, loc := range ordered {
		stop := Stop{Index: i, Location: loc, Kind: KindAt(i, total)}
		switch {
		case i < current:
			stop.State = StopCompleted
			cp := checkpoints[i]
			stop.CheckPoint = &cp
			stop.DeviationMeters = DistanceMeters(cp.Coordinates(), loc.Coordinates())
		case i == current:
			stop.State = StopCurrent
		default:
			stop.State = StopUpcoming
		}
		stops[i] = stop
	}

	var fraction float64
	if total > 0 {
		fraction = float64(current) / float64(total)
	}
	return Progress{Stops: stops, CurrentIndex: current, Total: total, Fraction: fraction}
}
