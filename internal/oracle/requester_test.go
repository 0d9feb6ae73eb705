package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"settlement-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST SUITE: HTTP REQUESTER
// ============================================================================

func TestActivePolicies_ParsesAndKeepsRawBytes(t *testing.T) {
	const body = `[{"id":"policy-1","ledger_policy_id":7,"sum_insured":"100000","active":true}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/policies/active", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Write([]byte(body))
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "secret", "veg-secret", 5*time.Minute)
	policies, raw, err := requester.ActivePolicies(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte(body), raw, "raw bytes must be kept verbatim for the identity check")
	require.Len(t, policies, 1)
	assert.Equal(t, uint64(7), policies[0].LedgerPolicyID)
	require.NotNil(t, policies[0].SumInsured)
	assert.Equal(t, "100000", policies[0].SumInsured.String())
}

func TestActivePolicies_InvalidSumInsuredFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"policy-1","sum_insured":"not-a-number"}]`))
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "secret", "veg-secret", 5*time.Minute)
	_, _, err := requester.ActivePolicies(context.Background())
	assert.Error(t, err)
}

func TestWeather_ParsesObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/weather/current", r.URL.Path)
		w.Write([]byte(`{"temperature_c":31.5,"precipitation_mm":12,"humidity_pct":80,"wind_kph":25}`))
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "secret", "veg-secret", 5*time.Minute)
	obs, err := requester.Weather(context.Background(), 10.1, 105.2)
	require.NoError(t, err)
	assert.Equal(t, 31.5, obs.TemperatureC)
	assert.Equal(t, 25.0, obs.WindKPH)
}

func TestVegetation_SendsSignedBearerToken(t *testing.T) {
	const secret = "veg-secret"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(authorization, "Bearer "))

		token, err := jwt.Parse(strings.TrimPrefix(authorization, "Bearer "), func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithAudience("vegetation-data"), jwt.WithIssuer("settlement-service"))
		require.NoError(t, err)
		assert.True(t, token.Valid)

		w.Write([]byte(`{"mean_greenness":0.62,"scene_count":4}`))
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "secret", secret, 5*time.Minute)
	box := models.BoundingBox{MinLon: 105.0, MinLat: 10.0, MaxLon: 105.2, MaxLat: 10.2}
	greenness, err := requester.Vegetation(context.Background(), box, 14*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0.62, greenness)
}

func TestVegetation_NoScenesInWindowIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mean_greenness":0,"scene_count":0}`))
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "secret", "veg-secret", 5*time.Minute)
	_, err := requester.Vegetation(context.Background(), models.BoundingBox{}, 14*24*time.Hour)
	assert.Error(t, err)
}

func TestRequester_Non200StatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "wrong-key", "veg-secret", 5*time.Minute)
	_, _, err := requester.ActivePolicies(context.Background())
	assert.Error(t, err)
	_, err = requester.Weather(context.Background(), 0, 0)
	assert.Error(t, err)
}
