package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"settlement-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Requester is one independent participant of the consensus network. Every
// data point the pipeline trusts is fetched from several requesters and
// reduced by an aggregation strategy; no single requester is ever trusted
// alone.
type Requester interface {
	Name() string
	// ActivePolicies returns the parsed policy list and the exact raw bytes
	// it was served, so the required-identical strategy can compare them.
	ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, []byte, error)
	Weather(ctx context.Context, lat, lon float64) (*models.WeatherObservation, error)
	Vegetation(ctx context.Context, box models.BoundingBox, lookback time.Duration) (float64, error)
}

// HTTPRequester talks to one consensus-network node over HTTP.
type HTTPRequester struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	vegetationSecret string
	vegetationTTL    time.Duration
}

func NewHTTPRequester(baseURL, apiKey, vegetationSecret string, vegetationTTL time.Duration) *HTTPRequester {
	return &HTTPRequester{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		baseURL:          baseURL,
		apiKey:           apiKey,
		vegetationSecret: vegetationSecret,
		vegetationTTL:    vegetationTTL,
	}
}

func (r *HTTPRequester) Name() string { return r.baseURL }

func (r *HTTPRequester) get(ctx context.Context, url string, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", r.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling requester %s: %v", r.baseURL, err)
		return nil, fmt.Errorf("failed to call requester: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read requester response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Requester %s returned non-200 status: %d, body: %s", r.baseURL, resp.StatusCode, string(body))
		return nil, fmt.Errorf("requester error: status %d", resp.StatusCode)
	}
	return body, nil
}

func (r *HTTPRequester) ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, []byte, error) {
	body, err := r.get(ctx, r.baseURL+"/v1/policies/active", "")
	if err != nil {
		return nil, nil, err
	}

	var policies []models.InsuredPolicy
	if err := json.Unmarshal(body, &policies); err != nil {
		return nil, nil, fmt.Errorf("failed to parse active policies: %w", err)
	}
	for i := range policies {
		if err := policies[i].ParseSumInsured(); err != nil {
			return nil, nil, err
		}
	}
	return policies, body, nil
}

func (r *HTTPRequester) Weather(ctx context.Context, lat, lon float64) (*models.WeatherObservation, error) {
	url := fmt.Sprintf("%s/v1/weather/current?lat=%f&lon=%f", r.baseURL, lat, lon)
	body, err := r.get(ctx, url, "")
	if err != nil {
		return nil, err
	}

	var observation models.WeatherObservation
	if err := json.Unmarshal(body, &observation); err != nil {
		return nil, fmt.Errorf("failed to parse weather observation: %w", err)
	}
	return &observation, nil
}

// vegetationToken mints the short-lived bearer token the satellite data
// endpoint requires.
func (r *HTTPRequester) vegetationToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": "settlement-service",
		"aud": "vegetation-data",
		"iat": now.Unix(),
		"exp": now.Add(r.vegetationTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.vegetationSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign vegetation token: %w", err)
	}
	return signed, nil
}

type vegetationResponse struct {
	MeanGreenness float64 `json:"mean_greenness"`
	SceneCount    int     `json:"scene_count"`
}

// Vegetation returns the recent mean greenness index over the plot's
// bounding box.
func (r *HTTPRequester) Vegetation(ctx context.Context, box models.BoundingBox, lookback time.Duration) (float64, error) {
	token, err := r.vegetationToken()
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/v1/vegetation/greenness?min_lon=%f&min_lat=%f&max_lon=%f&max_lat=%f&lookback_days=%d",
		r.baseURL, box.MinLon, box.MinLat, box.MaxLon, box.MaxLat, int(lookback.Hours()/24))
	body, err := r.get(ctx, url, token)
	if err != nil {
		return 0, err
	}

	var result vegetationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse vegetation response: %w", err)
	}
	if result.SceneCount == 0 {
		return 0, fmt.Errorf("no satellite scenes in lookback window")
	}
	return result.MeanGreenness, nil
}
