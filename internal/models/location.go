package models

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// Location is one ordered waypoint of a multi-stop trip. Order is zero-based
// and defines the visiting sequence.
type Location struct {
	ID        string  `bson:"_id,omitempty" json:"id"`
	RequestID string  `bson:"request_id" json:"requestId"`
	Order     int     `bson:"order" json:"order"`
	Address   string  `bson:"address" json:"address"`
	Name      string  `bson:"name,omitempty" json:"name,omitempty"`
	Note      string  `bson:"note,omitempty" json:"note,omitempty"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// Coordinates returns the waypoint position.
func (l Location) Coordinates() Coordinates {
	return Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Title is the name when present, otherwise the address.
func (l Location) Title() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Address
}
