package assessment

import (
	"math/big"
	"testing"

	"settlement-service/internal/models"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func nominalWeather() models.WeatherObservation {
	return models.WeatherObservation{
		TemperatureC:    25,
		PrecipitationMM: 10,
		HumidityPct:     60,
		WindKPH:         15,
	}
}

// ============================================================================
// TEST SUITE 1: WEATHER DAMAGE SCORE
// ============================================================================

func TestWeatherDamageScore_NominalConditionsScoreZero(t *testing.T) {
	assert.Equal(t, 0, WeatherDamageScore(nominalWeather()))
}

func TestWeatherDamageScore_TemperatureBands(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		expected    int
	}{
		{"extreme heat", 50, 40},
		{"extreme cold", 3, 40},
		{"severe heat", 42, 25},
		{"severe cold", 8, 25},
		{"moderate heat", 37, 10},
		{"moderate cold", 12, 10},
		{"comfortable", 25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := nominalWeather()
			obs.TemperatureC = tt.temperature
			assert.Equal(t, tt.expected, WeatherDamageScore(obs))
		})
	}
}

func TestWeatherDamageScore_OnlyWorstBandPerStressor(t *testing.T) {
	// 3C matches every cold band; only the most severe one may count.
	obs := nominalWeather()
	obs.TemperatureC = 3
	assert.Equal(t, 40, WeatherDamageScore(obs))
}

func TestWeatherDamageScore_PrecipitationHumidityWindBands(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.WeatherObservation)
		expected int
	}{
		{"heavy rain", func(o *models.WeatherObservation) { o.PrecipitationMM = 120 }, 30},
		{"moderate rain", func(o *models.WeatherObservation) { o.PrecipitationMM = 60 }, 15},
		{"saturated air", func(o *models.WeatherObservation) { o.HumidityPct = 96 }, 15},
		{"very humid", func(o *models.WeatherObservation) { o.HumidityPct = 92 }, 8},
		{"storm wind", func(o *models.WeatherObservation) { o.WindKPH = 90 }, 20},
		{"strong wind", func(o *models.WeatherObservation) { o.WindKPH = 70 }, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := nominalWeather()
			tt.mutate(&obs)
			assert.Equal(t, tt.expected, WeatherDamageScore(obs))
		})
	}
}

func TestWeatherDamageScore_StressorsAccumulate(t *testing.T) {
	obs := models.WeatherObservation{
		TemperatureC:    42,  // 25
		PrecipitationMM: 60,  // 15
		HumidityPct:     92,  // 8
		WindKPH:         70,  // 10
	}
	assert.Equal(t, 58, WeatherDamageScore(obs))
}

func TestWeatherDamageScore_CappedAt100(t *testing.T) {
	obs := models.WeatherObservation{
		TemperatureC:    50,  // 40
		PrecipitationMM: 150, // 30
		HumidityPct:     99,  // 15
		WindKPH:         100, // 20
	}
	assert.Equal(t, 100, WeatherDamageScore(obs))
}

// ============================================================================
// TEST SUITE 2: VEGETATION DAMAGE SCORE
// ============================================================================

func TestVegetationDamageScore_SteppedMapping(t *testing.T) {
	tests := []struct {
		greenness float64
		expected  int
	}{
		{0.9, 0},
		{0.7, 0},
		{0.65, 10},
		{0.6, 10},
		{0.5, 25},
		{0.45, 40},
		{0.4, 40},
		{0.3, 60},
		{0.2, 80},
		{0.19, 100},
		{0.0, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, VegetationDamageScore(tt.greenness),
			"greenness %v", tt.greenness)
	}
}

func TestVegetationDamageScore_MonotonicallyNonIncreasing(t *testing.T) {
	previous := 101
	for g := 0.0; g <= 1.0; g += 0.01 {
		score := VegetationDamageScore(g)
		assert.LessOrEqual(t, score, previous, "score must not rise with greenness %v", g)
		previous = score
	}
}

// ============================================================================
// TEST SUITE 3: COMBINED INDEX AND PAYOUT
// ============================================================================

func TestCombinedIndex_DefaultWeighting(t *testing.T) {
	tests := []struct {
		weather    int
		vegetation int
		expected   int
	}{
		{0, 0, 0},
		{40, 10, 28},  // floor((2400+400)/100)
		{70, 50, 62},  // floor((4200+2000)/100)
		{33, 33, 33},
		{1, 0, 0},     // floor(60/100)
		{1, 1, 1},
		{100, 100, 100},
	}

	for _, tt := range tests {
		got := CombinedIndex(tt.weather, tt.vegetation, DefaultWeatherWeightBps, DefaultVegetationWeightBps)
		assert.Equal(t, tt.expected, got, "weather=%d vegetation=%d", tt.weather, tt.vegetation)
	}
}

func TestCombinedIndex_NeverExceedsComponentMax(t *testing.T) {
	for w := 0; w <= 100; w += 10 {
		for v := 0; v <= 100; v += 10 {
			got := CombinedIndex(w, v, DefaultWeatherWeightBps, DefaultVegetationWeightBps)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		}
	}
}

func TestPayoutAmount_IntegerFloor(t *testing.T) {
	tests := []struct {
		sumInsured string
		index      int
		expected   string
	}{
		{"1000", 62, "620"},
		{"999", 33, "329"}, // floor(32967/100)
		{"1000000000000000000000", 100, "1000000000000000000000"},
		{"1000", 0, "0"},
		{"1", 50, "0"},
	}

	for _, tt := range tests {
		sum, ok := new(big.Int).SetString(tt.sumInsured, 10)
		assert.True(t, ok)
		assert.Equal(t, tt.expected, PayoutAmount(sum, tt.index).String(),
			"sum=%s index=%d", tt.sumInsured, tt.index)
	}
}
