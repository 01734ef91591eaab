package models

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geo"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SRID of every stored coordinate (WGS84).
const SRID = 4326

// Point is a WGS84 coordinate persisted in a geography(Point,4326) column.
// The zero value is NULL.
type Point struct {
	Lat   float64
	Lng   float64
	Valid bool
}

func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng, Valid: true}
}

// ValidCoordinates reports whether lat/lng lie inside the WGS84 range.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// DistanceKm is the great-circle distance between two points.
func (p Point) DistanceKm(o Point) float64 {
	return geo.Distance(p.orb(), o.orb()) / 1000
}

// EWKT renders the point the way PostGIS accepts it as geography input.
func (p Point) EWKT() string {
	return fmt.Sprintf("SRID=%d;%s", SRID, wkt.MarshalString(p.orb()))
}

func (Point) GormDataType() string {
	return "geography"
}

// GormDBDataType uses a PostGIS geography column on postgres and plain text
// elsewhere so the same models migrate on sqlite.
func (Point) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "geography(Point,4326)"
	}
	return "text"
}

func (p Point) Value() (driver.Value, error) {
	if !p.Valid {
		return nil, nil
	}
	return p.EWKT(), nil
}

// Scan accepts EWKT/WKT text, hex encoded EWKB (PostGIS text output) and raw EWKB.
func (p *Point) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = Point{}
		return nil
	case string:
		return p.scanText(v)
	case []byte:
		if isHex(v) {
			return p.scanText(string(v))
		}
		if strings.HasPrefix(strings.ToUpper(string(v)), "SRID=") || strings.HasPrefix(strings.ToUpper(string(v)), "POINT") {
			return p.scanText(string(v))
		}
		return p.scanEWKB(v)
	default:
		return fmt.Errorf("models: cannot scan %T into Point", src)
	}
}

func (p *Point) scanText(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*p = Point{}
		return nil
	}

	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "SRID=") {
		if i := strings.Index(s, ";"); i >= 0 {
			s = s[i+1:]
			upper = strings.ToUpper(s)
		}
	}

	if strings.HasPrefix(upper, "POINT") {
		pt, err := wkt.UnmarshalPoint(s)
		if err != nil {
			return fmt.Errorf("models: parse point wkt: %w", err)
		}
		*p = NewPoint(pt.Y(), pt.X())
		return nil
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("models: decode point hex: %w", err)
	}
	return p.scanEWKB(raw)
}

func (p *Point) scanEWKB(raw []byte) error {
	g, _, err := ewkb.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("models: parse point ewkb: %w", err)
	}
	pt, ok := g.(orb.Point)
	if !ok {
		return fmt.Errorf("models: expected point geometry, got %s", g.GeoJSONType())
	}
	*p = NewPoint(pt.Y(), pt.X())
	return nil
}

func isHex(b []byte) bool {
	if len(b) == 0 || len(b)%2 != 0 {
		return false
	}
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

type pointJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(pointJSON{Lat: p.Lat, Lng: p.Lng})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Point{}
		return nil
	}
	var v pointJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if !ValidCoordinates(v.Lat, v.Lng) {
		return fmt.Errorf("models: coordinates out of range: %v,%v", v.Lat, v.Lng)
	}
	*p = NewPoint(v.Lat, v.Lng)
	return nil
}
