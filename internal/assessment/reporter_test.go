package assessment

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"settlement-service/internal/chain"
	"settlement-service/internal/config"
	"settlement-service/internal/contracts"
	"settlement-service/internal/models"
	"settlement-service/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST SUITE: SETTLEMENT REPORTER
// ============================================================================

type fakeObservations struct {
	policies     []models.InsuredPolicy
	listErr      error
	observations map[string]*models.ConsensusObservation
	observeErrs  map[string]error
}

func (f *fakeObservations) ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, error) {
	return f.policies, f.listErr
}

func (f *fakeObservations) Observe(ctx context.Context, policy *models.InsuredPolicy) (*models.ConsensusObservation, error) {
	if err := f.observeErrs[policy.ID]; err != nil {
		return nil, err
	}
	return f.observations[policy.ID], nil
}

type fakeAttestor struct {
	delay time.Duration
	calls int
}

func (f *fakeAttestor) Attest(ctx context.Context, payloadHash [32]byte) ([]byte, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return make([]byte, 65), nil
}

type fakeSubmitter struct {
	errs        map[uint64]error
	submissions []*contracts.ReportSubmission
}

func (f *fakeSubmitter) SubmitReport(ctx context.Context, sub *contracts.ReportSubmission, identity chain.SigningIdentity) (string, error) {
	if err := f.errs[sub.LedgerPolicyID]; err != nil {
		return "", err
	}
	f.submissions = append(f.submissions, sub)
	return "0xsettled", nil
}

type memoryReports struct {
	rows []*models.DamageReport
}

func (s *memoryReports) Create(ctx context.Context, report *models.DamageReport) error {
	s.rows = append(s.rows, report)
	return nil
}

type memoryRuns struct {
	created []*models.AssessmentRun
	updated []*models.AssessmentRun
}

func (s *memoryRuns) Create(ctx context.Context, run *models.AssessmentRun) error {
	s.created = append(s.created, run)
	return nil
}

func (s *memoryRuns) Update(ctx context.Context, run *models.AssessmentRun) error {
	s.updated = append(s.updated, run)
	return nil
}

// inlinePool runs jobs synchronously; batch sizing is not under test here.
type inlinePool struct{}

func (inlinePool) SubmitJob(ctx context.Context, job worker.Job) error { return job(ctx) }

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		RunInterval:         time.Hour,
		DamageThreshold:     30,
		WeatherWeightBps:    6000,
		VegetationWeightBps: 4000,
		FetchWorkers:        1,
		FreshnessWindow:     time.Minute,
	}
}

func testPolicy(id string, ledgerID uint64) models.InsuredPolicy {
	return models.InsuredPolicy{
		ID:             id,
		LedgerPolicyID: ledgerID,
		SumInsured:     big.NewInt(100000),
		Active:         true,
	}
}

// coldSnapObservation scores weather damage 40 (temperature below 5). The
// greenness value picks the vegetation band and with it the combined index.
func coldSnapObservation(greenness float64) *models.ConsensusObservation {
	return &models.ConsensusObservation{
		Weather: models.WeatherObservation{
			TemperatureC:    3,
			PrecipitationMM: 0,
			HumidityPct:     50,
			WindKPH:         10,
		},
		Greenness: greenness,
		Samples:   3,
	}
}

func newTestReporter(cfg config.PipelineConfig, obs *fakeObservations, attestor *fakeAttestor, submitter *fakeSubmitter, reports *memoryReports, runs *memoryRuns) *Reporter {
	identity := chain.SigningIdentity{Address: "0x00000000000000000000000000000000000000aa", Kind: chain.IdentityPlatform}
	return NewReporter(cfg, obs, attestor, submitter, nil, nil, reports, runs, nil, inlinePool{}, identity)
}

func TestRun_BelowThresholdNeverSubmits(t *testing.T) {
	obs := &fakeObservations{
		policies: []models.InsuredPolicy{testPolicy("policy-1", 1)},
		observations: map[string]*models.ConsensusObservation{
			// weather 40, vegetation 10: combined (6000*40+4000*10)/10000 = 28
			"policy-1": coldSnapObservation(0.65),
		},
	}
	attestor := &fakeAttestor{}
	submitter := &fakeSubmitter{}
	reports := &memoryReports{}
	runs := &memoryRuns{}

	run, err := newTestReporter(testPipelineConfig(), obs, attestor, submitter, reports, runs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Assessed)
	assert.Equal(t, 0, run.Submitted)
	assert.Empty(t, submitter.submissions, "a combined index under the threshold must never reach the ledger")
	assert.Equal(t, 0, attestor.calls, "nothing to attest when no report is submitted")

	require.Len(t, reports.rows, 1)
	assert.Equal(t, models.OutcomeBelowThreshold, reports.rows[0].Outcome)
	assert.Equal(t, 28, reports.rows[0].CombinedIndex)
	assert.Equal(t, "0", reports.rows[0].PayoutAmount)
}

func TestRun_ContractRejectionIsNonFatal(t *testing.T) {
	obs := &fakeObservations{
		policies: []models.InsuredPolicy{testPolicy("policy-1", 1), testPolicy("policy-2", 2)},
		observations: map[string]*models.ConsensusObservation{
			// weather 40, vegetation 100: combined 64, above the threshold
			"policy-1": coldSnapObservation(0.1),
			"policy-2": coldSnapObservation(0.1),
		},
	}
	submitter := &fakeSubmitter{
		errs: map[uint64]error{
			1: &chain.ContractRevertError{TxHash: "0xdead", Reason: "report already settled"},
		},
	}
	reports := &memoryReports{}
	runs := &memoryRuns{}

	run, err := newTestReporter(testPipelineConfig(), obs, &fakeAttestor{}, submitter, reports, runs).Run(context.Background())
	require.NoError(t, err, "a contract rejection must not fail the batch")

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Assessed)
	assert.Equal(t, 1, run.Rejected)
	assert.Equal(t, 1, run.Submitted)
	require.Len(t, submitter.submissions, 1)
	assert.Equal(t, uint64(2), submitter.submissions[0].LedgerPolicyID, "the batch must continue past the rejected policy")

	require.Len(t, reports.rows, 2)
	rejected := reports.rows[0]
	assert.Equal(t, models.OutcomeRejected, rejected.Outcome)
	require.NotNil(t, rejected.TxHash)
	assert.Equal(t, "0xdead", *rejected.TxHash)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "report already settled", *rejected.RejectReason)
	assert.Equal(t, models.OutcomeSubmitted, reports.rows[1].Outcome)
}

func TestRun_ObservationFailureMarksPolicyErroredAndContinues(t *testing.T) {
	obs := &fakeObservations{
		policies: []models.InsuredPolicy{testPolicy("policy-1", 1), testPolicy("policy-2", 2)},
		observations: map[string]*models.ConsensusObservation{
			"policy-2": coldSnapObservation(0.1),
		},
		observeErrs: map[string]error{
			"policy-1": fmt.Errorf("quorum not met"),
		},
	}
	submitter := &fakeSubmitter{}
	reports := &memoryReports{}
	runs := &memoryRuns{}

	run, err := newTestReporter(testPipelineConfig(), obs, &fakeAttestor{}, submitter, reports, runs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Errored)
	assert.Equal(t, 1, run.Submitted)
	require.Len(t, reports.rows, 2)
	assert.Equal(t, models.OutcomeErrored, reports.rows[0].Outcome)
	assert.Equal(t, models.OutcomeSubmitted, reports.rows[1].Outcome)
}

func TestRun_PolicyListDistrustAbortsRun(t *testing.T) {
	obs := &fakeObservations{listErr: fmt.Errorf("requester disagreement")}
	runs := &memoryRuns{}

	_, err := newTestReporter(testPipelineConfig(), obs, &fakeAttestor{}, &fakeSubmitter{}, &memoryReports{}, runs).Run(context.Background())
	require.Error(t, err)

	require.NotEmpty(t, runs.updated)
	assert.Equal(t, models.RunStatusAborted, runs.updated[len(runs.updated)-1].Status)
}

func TestRun_StaleAttestationIsRestampedOnce(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.FreshnessWindow = time.Millisecond

	obs := &fakeObservations{
		policies: []models.InsuredPolicy{testPolicy("policy-1", 1)},
		observations: map[string]*models.ConsensusObservation{
			"policy-1": coldSnapObservation(0.1),
		},
	}
	// Each attestation takes longer than the whole freshness window.
	attestor := &fakeAttestor{delay: 20 * time.Millisecond}
	submitter := &fakeSubmitter{}
	reports := &memoryReports{}

	run, err := newTestReporter(cfg, obs, attestor, submitter, reports, &memoryRuns{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, attestor.calls, "a stale attestation gets exactly one re-stamp")
	assert.Equal(t, 1, run.Submitted, "the re-stamped report is still dispatched")
	require.Len(t, submitter.submissions, 1)
	require.Len(t, reports.rows, 1)
	assert.Equal(t, models.OutcomeSubmitted, reports.rows[0].Outcome)
}
