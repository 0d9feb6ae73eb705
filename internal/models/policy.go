package models

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeoJSONPolygon represents a GeoJSON Polygon for plot boundaries
type GeoJSONPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// BoundingBox is the lon/lat envelope of a plot, used for the vegetation query.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Center returns the midpoint of the box, used as the weather query coordinate.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Bounds computes the bounding box of the plot polygon.
func (g *GeoJSONPolygon) Bounds() (BoundingBox, error) {
	if g == nil || g.Type == "" {
		return BoundingBox{}, fmt.Errorf("plot polygon is empty")
	}

	geoJSONBytes, err := json.Marshal(g)
	if err != nil {
		return BoundingBox{}, fmt.Errorf("failed to marshal plot GeoJSON: %w", err)
	}

	var geometry geom.T
	if err := geojson.Unmarshal(geoJSONBytes, &geometry); err != nil {
		return BoundingBox{}, fmt.Errorf("failed to unmarshal plot GeoJSON: %w", err)
	}

	polygon, ok := geometry.(*geom.Polygon)
	if !ok {
		return BoundingBox{}, fmt.Errorf("plot geometry is not a Polygon")
	}

	bounds := polygon.Bounds()
	return BoundingBox{
		MinLon: bounds.Min(0),
		MinLat: bounds.Min(1),
		MaxLon: bounds.Max(0),
		MaxLat: bounds.Max(1),
	}, nil
}

// InsuredPolicy is the read-only view of an active policy served by the
// policy data service. The ledger, not this service, is authoritative on
// whether a policy has already been paid.
type InsuredPolicy struct {
	ID             string          `json:"id"`
	LedgerPolicyID uint64          `json:"ledger_policy_id"`
	FarmerID       string          `json:"farmer_id"`
	SumInsured     *big.Int        `json:"-"`
	SumInsuredRaw  string          `json:"sum_insured"`
	Active         bool            `json:"active"`
	Plot           *GeoJSONPolygon `json:"plot"`
}

// ParseSumInsured resolves SumInsuredRaw into SumInsured.
func (p *InsuredPolicy) ParseSumInsured() error {
	value, ok := new(big.Int).SetString(p.SumInsuredRaw, 10)
	if !ok {
		return fmt.Errorf("invalid sum_insured %q for policy %s", p.SumInsuredRaw, p.ID)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("negative sum_insured for policy %s", p.ID)
	}
	p.SumInsured = value
	return nil
}
