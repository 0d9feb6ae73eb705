package models

import "time"

// WeatherObservation is one current-conditions reading for a coordinate.
type WeatherObservation struct {
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	HumidityPct     float64 `json:"humidity_pct"`
	WindKPH         float64 `json:"wind_kph"`
}

// ObservationSample holds the raw readings one requester returned for a
// single policy. Nil fields mean the requester failed to answer for that
// data point.
type ObservationSample struct {
	Requester string              `json:"requester"`
	Weather   *WeatherObservation `json:"weather,omitempty"`
	Greenness *float64            `json:"greenness,omitempty"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// ConsensusObservation is the reduced, trusted view of a policy's
// environment after aggregation across requesters.
type ConsensusObservation struct {
	Weather   WeatherObservation `json:"weather"`
	Greenness float64            `json:"greenness"`
	Samples   int                `json:"samples"`
}
