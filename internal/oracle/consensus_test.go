package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"settlement-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fakeRequester struct {
	name        string
	policyBytes []byte
	policies    []models.InsuredPolicy
	policyErr   error
	weather     *models.WeatherObservation
	weatherErr  error
	greenness   float64
	greenErr    error
}

func (f *fakeRequester) Name() string { return f.name }

func (f *fakeRequester) ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, []byte, error) {
	if f.policyErr != nil {
		return nil, nil, f.policyErr
	}
	return f.policies, f.policyBytes, nil
}

func (f *fakeRequester) Weather(ctx context.Context, lat, lon float64) (*models.WeatherObservation, error) {
	if f.weatherErr != nil {
		return nil, f.weatherErr
	}
	return f.weather, nil
}

func (f *fakeRequester) Vegetation(ctx context.Context, box models.BoundingBox, lookback time.Duration) (float64, error) {
	if f.greenErr != nil {
		return 0, f.greenErr
	}
	return f.greenness, nil
}

func testPolicyList() ([]models.InsuredPolicy, []byte) {
	policies := []models.InsuredPolicy{{
		ID:             "policy-1",
		LedgerPolicyID: 1,
		SumInsuredRaw:  "100000",
		Active:         true,
	}}
	return policies, []byte(`[{"id":"policy-1"}]`)
}

func fullSample(requester string, temp, green float64) models.ObservationSample {
	g := green
	return models.ObservationSample{
		Requester: requester,
		Weather: &models.WeatherObservation{
			TemperatureC:    temp,
			PrecipitationMM: 10,
			HumidityPct:     60,
			WindKPH:         12,
		},
		Greenness: &g,
		FetchedAt: time.Now(),
	}
}

// ============================================================================
// TEST SUITE 1: REQUIRED-IDENTICAL POLICY LIST
// ============================================================================

func TestActivePolicies_AllRequestersAgree(t *testing.T) {
	policies, raw := testPolicyList()
	consensus := NewConsensus([]Requester{
		&fakeRequester{name: "node-a", policies: policies, policyBytes: raw},
		&fakeRequester{name: "node-b", policies: policies, policyBytes: raw},
		&fakeRequester{name: "node-c", policies: policies, policyBytes: raw},
	}, 2, 14*24*time.Hour)

	got, err := consensus.ActivePolicies(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "policy-1", got[0].ID)
}

func TestActivePolicies_SingleDivergentByteAbortsTheRun(t *testing.T) {
	policies, raw := testPolicyList()
	consensus := NewConsensus([]Requester{
		&fakeRequester{name: "node-a", policies: policies, policyBytes: raw},
		&fakeRequester{name: "node-b", policies: policies, policyBytes: []byte(`[{"id":"policy-2"}]`)},
	}, 2, 14*24*time.Hour)

	_, err := consensus.ActivePolicies(context.Background())
	require.Error(t, err)

	var divergence *ConsensusDivergenceError
	require.True(t, errors.As(err, &divergence))
	assert.Equal(t, "active-policy-list", divergence.DataPoint)
}

func TestActivePolicies_AnyFailedFetchFailsClosed(t *testing.T) {
	policies, raw := testPolicyList()
	consensus := NewConsensus([]Requester{
		&fakeRequester{name: "node-a", policies: policies, policyBytes: raw},
		&fakeRequester{name: "node-b", policyErr: fmt.Errorf("connection refused")},
	}, 2, 14*24*time.Hour)

	_, err := consensus.ActivePolicies(context.Background())
	assert.Error(t, err)
}

func TestActivePolicies_NoRequestersConfigured(t *testing.T) {
	consensus := NewConsensus(nil, 2, 14*24*time.Hour)
	_, err := consensus.ActivePolicies(context.Background())
	assert.Error(t, err)
}

// ============================================================================
// TEST SUITE 2: MEDIAN REDUCTION
// ============================================================================

func TestReduceMedian_OddCountTakesMiddleValue(t *testing.T) {
	samples := []models.ObservationSample{
		fullSample("node-a", 20, 0.50),
		fullSample("node-b", 22, 0.55),
		fullSample("node-c", 40, 0.90),
	}

	obs, err := ReduceMedian(samples, 2)
	require.NoError(t, err)
	assert.Equal(t, 22.0, obs.Weather.TemperatureC, "an outlier must not move the median")
	assert.Equal(t, 0.55, obs.Greenness)
	assert.Equal(t, 3, obs.Samples)
}

func TestReduceMedian_EvenCountAveragesMiddlePair(t *testing.T) {
	samples := []models.ObservationSample{
		fullSample("node-a", 20, 0.4),
		fullSample("node-b", 30, 0.6),
	}

	obs, err := ReduceMedian(samples, 2)
	require.NoError(t, err)
	assert.Equal(t, 25.0, obs.Weather.TemperatureC)
	assert.InDelta(t, 0.5, obs.Greenness, 1e-9)
}

func TestReduceMedian_QuorumUnmetOnOneFieldAbortsThePolicy(t *testing.T) {
	// Two requesters answered weather but only one answered vegetation.
	partial := fullSample("node-b", 21, 0)
	partial.Greenness = nil

	samples := []models.ObservationSample{
		fullSample("node-a", 20, 0.5),
		partial,
	}

	_, err := ReduceMedian(samples, 2)
	require.Error(t, err)

	var divergence *ConsensusDivergenceError
	require.True(t, errors.As(err, &divergence))
	assert.Equal(t, "greenness", divergence.DataPoint)
}

func TestReduceMedian_PartialSamplesStillCountTowardAnsweredFields(t *testing.T) {
	weatherOnly := fullSample("node-b", 24, 0)
	weatherOnly.Greenness = nil

	samples := []models.ObservationSample{
		fullSample("node-a", 20, 0.5),
		fullSample("node-c", 22, 0.7),
		weatherOnly,
	}

	obs, err := ReduceMedian(samples, 2)
	require.NoError(t, err)
	assert.Equal(t, 22.0, obs.Weather.TemperatureC)
	assert.InDelta(t, 0.6, obs.Greenness, 1e-9)
}

// ============================================================================
// TEST SUITE 3: PER-POLICY OBSERVATION
// ============================================================================

func testPlot() *models.GeoJSONPolygon {
	return &models.GeoJSONPolygon{
		Type: "Polygon",
		Coordinates: [][][]float64{{
			{105.0, 10.0},
			{105.2, 10.0},
			{105.2, 10.2},
			{105.0, 10.2},
			{105.0, 10.0},
		}},
	}
}

func TestObserve_ReducesAcrossRequesters(t *testing.T) {
	consensus := NewConsensus([]Requester{
		&fakeRequester{name: "node-a", weather: &models.WeatherObservation{TemperatureC: 30}, greenness: 0.4},
		&fakeRequester{name: "node-b", weather: &models.WeatherObservation{TemperatureC: 32}, greenness: 0.5},
		&fakeRequester{name: "node-c", weather: &models.WeatherObservation{TemperatureC: 31}, greenness: 0.6},
	}, 2, 14*24*time.Hour)

	policy := &models.InsuredPolicy{ID: "policy-1", Plot: testPlot()}
	obs, err := consensus.Observe(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, 31.0, obs.Weather.TemperatureC)
	assert.Equal(t, 0.5, obs.Greenness)
}

func TestObserve_ToleratesFailuresDownToQuorum(t *testing.T) {
	consensus := NewConsensus([]Requester{
		&fakeRequester{name: "node-a", weather: &models.WeatherObservation{TemperatureC: 30}, greenness: 0.4},
		&fakeRequester{name: "node-b", weather: &models.WeatherObservation{TemperatureC: 32}, greenness: 0.5},
		&fakeRequester{name: "node-c", weatherErr: fmt.Errorf("timeout"), greenErr: fmt.Errorf("timeout")},
	}, 2, 14*24*time.Hour)

	policy := &models.InsuredPolicy{ID: "policy-1", Plot: testPlot()}
	obs, err := consensus.Observe(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, 31.0, obs.Weather.TemperatureC)
	assert.Equal(t, 2, obs.Samples)
}

func TestObserve_MissingPlotFailsBeforeAnyFetch(t *testing.T) {
	consensus := NewConsensus([]Requester{&fakeRequester{name: "node-a"}}, 1, 14*24*time.Hour)
	policy := &models.InsuredPolicy{ID: "policy-1"}
	_, err := consensus.Observe(context.Background(), policy)
	assert.Error(t, err)
}
