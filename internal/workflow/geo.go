package workflow

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/ukydev/fleet-requests/internal/models"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters is the great-circle distance between two positions.
func DistanceMeters(a, b models.Coordinates) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusMeters * c
}

// RouteLine builds the planned path through the waypoints in visiting order.
func RouteLine(locations []models.Location) (*geom.LineString, error) {
	progress := TrackProgress(locations, nil)
	coords := make([]geom.Coord, 0, len(progress.Stops))
	for _, s := range progress.Stops {
		coords = append(coords, geom.Coord{s.Location.Longitude, s.Location.Latitude})
	}
	line, err := geom.NewLineString(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, fmt.Errorf("route line: %w", err)
	}
	return line, nil
}

// RouteGeoJSON renders the trip as a FeatureCollection: one LineString for
// the plan (when there are at least two waypoints), one Point per waypoint
// carrying its stop state, and one Point per correlated checkpoint.
func RouteGeoJSON(locations []models.Location, checkpoints []models.CheckPoint) ([]byte, error) {
	progress := TrackProgress(locations, checkpoints)
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}

	if len(progress.Stops) >= 2 {
		line, err := RouteLine(locations)
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   line,
			Properties: map[string]interface{}{"kind": "route"},
		})
	}

	for _, s := range progress.Stops {
		pt, err := geom.NewPoint(geom.XY).SetCoords(geom.Coord{s.Location.Longitude, s.Location.Latitude})
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", s.Index, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.Location.ID,
			Geometry: pt,
			Properties: map[string]interface{}{
				"kind":  "waypoint",
				"order": s.Index,
				"title": s.Location.Title(),
				"state": s.State.String(),
			},
		})
		if s.CheckPoint == nil {
			continue
		}
		cp, err := geom.NewPoint(geom.XY).SetCoords(geom.Coord{s.CheckPoint.Longitude, s.CheckPoint.Latitude})
		if err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", s.Index, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.CheckPoint.CheckPointID,
			Geometry: cp,
			Properties: map[string]interface{}{
				"kind":            "checkpoint",
				"order":           s.Index,
				"type":            s.CheckPoint.Type.String(),
				"deviationMeters": math.Round(s.DeviationMeters),
			},
		})
	}

	return json.Marshal(fc)
}
