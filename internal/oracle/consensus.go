package oracle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"settlement-service/internal/models"
)

// ConsensusDivergenceError means independent requesters disagreed where exact
// agreement (or a quorum) was required. The affected unit fails closed: the
// whole run for policy-list divergence, a single policy for observations.
type ConsensusDivergenceError struct {
	DataPoint string
	Detail    string
}

func (e *ConsensusDivergenceError) Error() string {
	return fmt.Sprintf("consensus divergence on %s: %s", e.DataPoint, e.Detail)
}

// Consensus fetches data points from every configured requester and reduces
// them with the strategy the caller picks per fetch.
type Consensus struct {
	requesters []Requester
	quorum     int
	lookback   time.Duration
}

func NewConsensus(requesters []Requester, quorum int, lookback time.Duration) *Consensus {
	return &Consensus{requesters: requesters, quorum: quorum, lookback: lookback}
}

// ActivePolicies fetches the policy list from every requester under the
// required-identical strategy: the raw bytes must match across ALL
// requesters, a single divergent or failed fetch aborts the whole run as
// untrusted input.
func (c *Consensus) ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, error) {
	if len(c.requesters) == 0 {
		return nil, fmt.Errorf("no requesters configured")
	}

	var reference []byte
	var policies []models.InsuredPolicy
	for i, requester := range c.requesters {
		parsed, raw, err := requester.ActivePolicies(ctx)
		if err != nil {
			return nil, fmt.Errorf("requester %s failed to serve active policies: %w", requester.Name(), err)
		}
		if i == 0 {
			reference = raw
			policies = parsed
			continue
		}
		if !bytes.Equal(reference, raw) {
			return nil, &ConsensusDivergenceError{
				DataPoint: "active-policy-list",
				Detail:    fmt.Sprintf("requester %s returned a different policy list than %s", requester.Name(), c.requesters[0].Name()),
			}
		}
	}
	return policies, nil
}

// Observe gathers weather and vegetation samples for one policy from every
// requester in parallel and reduces them per-field by median. Each field
// needs at least the configured quorum of responses; a short field aborts
// this policy's assessment only.
func (c *Consensus) Observe(ctx context.Context, policy *models.InsuredPolicy) (*models.ConsensusObservation, error) {
	box, err := policy.Plot.Bounds()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plot bounds for policy %s: %w", policy.ID, err)
	}
	lat, lon := box.Center()

	samples := make([]models.ObservationSample, len(c.requesters))
	var wg sync.WaitGroup
	for i, requester := range c.requesters {
		wg.Add(1)
		go func(i int, requester Requester) {
			defer wg.Done()
			sample := models.ObservationSample{Requester: requester.Name(), FetchedAt: time.Now()}

			weather, err := requester.Weather(ctx, lat, lon)
			if err != nil {
				slog.Warn("Requester failed weather fetch",
					"requester", requester.Name(),
					"policy_id", policy.ID,
					"error", err)
			} else {
				sample.Weather = weather
			}

			greenness, err := requester.Vegetation(ctx, box, c.lookback)
			if err != nil {
				slog.Warn("Requester failed vegetation fetch",
					"requester", requester.Name(),
					"policy_id", policy.ID,
					"error", err)
			} else {
				sample.Greenness = &greenness
			}

			samples[i] = sample
		}(i, requester)
	}
	wg.Wait()

	return ReduceMedian(samples, c.quorum)
}

// ReduceMedian applies the per-field median strategy to a set of samples.
func ReduceMedian(samples []models.ObservationSample, quorum int) (*models.ConsensusObservation, error) {
	var temperature, precipitation, humidity, wind, greenness []float64
	responded := 0
	for _, sample := range samples {
		contributed := false
		if sample.Weather != nil {
			temperature = append(temperature, sample.Weather.TemperatureC)
			precipitation = append(precipitation, sample.Weather.PrecipitationMM)
			humidity = append(humidity, sample.Weather.HumidityPct)
			wind = append(wind, sample.Weather.WindKPH)
			contributed = true
		}
		if sample.Greenness != nil {
			greenness = append(greenness, *sample.Greenness)
			contributed = true
		}
		if contributed {
			responded++
		}
	}

	fields := map[string][]float64{
		"temperature":   temperature,
		"precipitation": precipitation,
		"humidity":      humidity,
		"wind":          wind,
		"greenness":     greenness,
	}
	for name, values := range fields {
		if len(values) < quorum {
			return nil, &ConsensusDivergenceError{
				DataPoint: name,
				Detail:    fmt.Sprintf("quorum not met: %d of %d required responses", len(values), quorum),
			}
		}
	}

	return &models.ConsensusObservation{
		Weather: models.WeatherObservation{
			TemperatureC:    median(temperature),
			PrecipitationMM: median(precipitation),
			HumidityPct:     median(humidity),
			WindKPH:         median(wind),
		},
		Greenness: median(greenness),
		Samples:   responded,
	}, nil
}

// median returns the middle value, or the mean of the two middle values for
// an even count.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
