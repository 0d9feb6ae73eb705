package assessment

import (
	"math/big"

	"settlement-service/internal/models"
)

// The damage scorer is pure and deterministic. The combined index is carried
// in integer basis points so the off-chain value is bit-exact with the
// ledger-side validator that re-derives it; floats never enter the weighting.

const (
	maxDamage = 100
	// Default weighting: 60% weather, 40% vegetation, in basis points.
	DefaultWeatherWeightBps    = 6000
	DefaultVegetationWeightBps = 4000
)

// WeatherDamageScore maps a weather observation to a 0-100 damage score.
// Bands are evaluated from most to least severe per stressor, so only the
// single worst matching band of each stressor contributes.
func WeatherDamageScore(obs models.WeatherObservation) int {
	score := 0

	switch {
	case obs.TemperatureC < 5 || obs.TemperatureC > 45:
		score += 40
	case obs.TemperatureC < 10 || obs.TemperatureC > 40:
		score += 25
	case obs.TemperatureC < 15 || obs.TemperatureC > 35:
		score += 10
	}

	switch {
	case obs.PrecipitationMM > 100:
		score += 30
	case obs.PrecipitationMM > 50:
		score += 15
	}

	switch {
	case obs.HumidityPct > 95:
		score += 15
	case obs.HumidityPct > 90:
		score += 8
	}

	switch {
	case obs.WindKPH > 80:
		score += 20
	case obs.WindKPH > 60:
		score += 10
	}

	if score > maxDamage {
		return maxDamage
	}
	return score
}

// VegetationDamageScore is the stepped inverse mapping of the greenness
// index: healthy vegetation (g >= 0.7) scores zero, bare or dead vegetation
// scores 100.
func VegetationDamageScore(greenness float64) int {
	switch {
	case greenness >= 0.7:
		return 0
	case greenness >= 0.6:
		return 10
	case greenness >= 0.5:
		return 25
	case greenness >= 0.4:
		return 40
	case greenness >= 0.3:
		return 60
	case greenness >= 0.2:
		return 80
	default:
		return 100
	}
}

// CombinedIndex computes floor((weatherBps*weather + vegetationBps*vegetation) / 10000),
// capped at 100. With the default weights this is floor((60w + 40s)/100).
func CombinedIndex(weather, vegetation, weatherBps, vegetationBps int) int {
	index := (weatherBps*weather + vegetationBps*vegetation) / 10000
	if index > maxDamage {
		return maxDamage
	}
	return index
}

// PayoutAmount computes floor(sumInsured * combinedIndex / 100) without ever
// leaving integer arithmetic.
func PayoutAmount(sumInsured *big.Int, combinedIndex int) *big.Int {
	payout := new(big.Int).Mul(sumInsured, big.NewInt(int64(combinedIndex)))
	return payout.Div(payout, big.NewInt(100))
}
