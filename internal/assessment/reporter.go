package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"settlement-service/internal/chain"
	"settlement-service/internal/config"
	"settlement-service/internal/contracts"
	"settlement-service/internal/event"
	"settlement-service/internal/models"
	"settlement-service/internal/oracle"
	"settlement-service/internal/worker"

	"github.com/google/uuid"
)

const runLockKey = "settlement:assessment:run_lock"

// Collaborator contracts the reporter depends on. Satisfied by the concrete
// consensus, attestation, gateway, repository, redis and pool types wired in
// main.
type (
	ObservationSource interface {
		ActivePolicies(ctx context.Context) ([]models.InsuredPolicy, error)
		Observe(ctx context.Context, policy *models.InsuredPolicy) (*models.ConsensusObservation, error)
	}

	Attestor interface {
		Attest(ctx context.Context, payloadHash [32]byte) ([]byte, error)
	}

	SettlementSubmitter interface {
		SubmitReport(ctx context.Context, sub *contracts.ReportSubmission, identity chain.SigningIdentity) (string, error)
	}

	PayoutNotifier interface {
		NotifyPayout(ctx context.Context, notification *oracle.PayoutNotification) error
	}

	EventPublisher interface {
		PublishPayoutSettled(ctx context.Context, evt event.PayoutSettledEvent) error
		PublishRunCompleted(ctx context.Context, evt event.RunCompletedEvent) error
	}

	ReportStore interface {
		Create(ctx context.Context, report *models.DamageReport) error
	}

	RunStore interface {
		Create(ctx context.Context, run *models.AssessmentRun) error
		Update(ctx context.Context, run *models.AssessmentRun) error
	}

	RunLease interface {
		AcquireLock(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
		ReleaseLock(ctx context.Context, key, holder string) error
	}

	JobPool interface {
		SubmitJob(ctx context.Context, job worker.Job) error
	}
)

// Reporter drives one full assessment cycle: consensus policy list, parallel
// observation fetches, scoring, attestation and on-ledger settlement. Runs
// never overlap; a trigger while a run is in flight is refused.
type Reporter struct {
	cfg       config.PipelineConfig
	consensus ObservationSource
	attestor  Attestor
	gateway   SettlementSubmitter
	policySvc PayoutNotifier
	publisher EventPublisher
	reports   ReportStore
	runs      RunStore
	cache     RunLease
	pool      JobPool
	identity  chain.SigningIdentity

	runMu sync.Mutex
}

func NewReporter(
	cfg config.PipelineConfig,
	consensus ObservationSource,
	attestor Attestor,
	gateway SettlementSubmitter,
	policySvc PayoutNotifier,
	publisher EventPublisher,
	reports ReportStore,
	runs RunStore,
	cache RunLease,
	pool JobPool,
	identity chain.SigningIdentity,
) *Reporter {
	return &Reporter{
		cfg:       cfg,
		consensus: consensus,
		attestor:  attestor,
		gateway:   gateway,
		policySvc: policySvc,
		publisher: publisher,
		reports:   reports,
		runs:      runs,
		cache:     cache,
		pool:      pool,
		identity:  identity,
	}
}

// RunJob adapts the cycle for the scheduler.
func (r *Reporter) RunJob() worker.Job {
	return func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	}
}

type fetchResult struct {
	policy      models.InsuredPolicy
	observation *models.ConsensusObservation
	err         error
}

// Run executes one assessment cycle and returns its summary. It refuses to
// start while another run is in flight, in this process or in another
// instance holding the Redis lease.
func (r *Reporter) Run(ctx context.Context) (*models.AssessmentRun, error) {
	if !r.runMu.TryLock() {
		return nil, fmt.Errorf("assessment run already in progress")
	}
	defer r.runMu.Unlock()

	run := &models.AssessmentRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}

	if r.cache != nil {
		acquired, err := r.cache.AcquireLock(ctx, runLockKey, run.ID.String(), r.cfg.RunInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to check run lease: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("assessment run already in progress on another instance")
		}
		defer func() {
			if err := r.cache.ReleaseLock(context.WithoutCancel(ctx), runLockKey, run.ID.String()); err != nil {
				slog.Error("Failed to release run lease", "run_id", run.ID, "error", err)
			}
		}()
	}

	if err := r.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	slog.Info("Assessment run started", "run_id", run.ID)

	policies, err := r.consensus.ActivePolicies(ctx)
	if err != nil {
		return r.abort(ctx, run, fmt.Sprintf("active policy list not trusted: %v", err))
	}
	slog.Info("Active policy list agreed by all requesters", "run_id", run.ID, "policies", len(policies))

	results := r.fetchObservations(ctx, policies)

	for i := range results {
		if ctx.Err() != nil {
			return r.abort(ctx, run, "shutdown requested mid-run")
		}
		r.assessPolicy(ctx, run, &results[i])
	}

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &now
	if err := r.runs.Update(ctx, run); err != nil {
		slog.Error("Failed to persist run summary", "run_id", run.ID, "error", err)
	}
	r.publishRunCompleted(ctx, run)

	slog.Info("Assessment run completed",
		"run_id", run.ID,
		"assessed", run.Assessed,
		"submitted", run.Submitted,
		"rejected", run.Rejected,
		"errored", run.Errored)
	return run, nil
}

// fetchObservations gathers observations for every policy through the
// bounded worker pool and waits for the full batch.
func (r *Reporter) fetchObservations(ctx context.Context, policies []models.InsuredPolicy) []fetchResult {
	results := make([]fetchResult, len(policies))
	var wg sync.WaitGroup
	for i := range policies {
		results[i].policy = policies[i]

		wg.Add(1)
		res := &results[i]
		err := r.pool.SubmitJob(ctx, func(jobCtx context.Context) error {
			defer wg.Done()
			res.observation, res.err = r.consensus.Observe(jobCtx, &res.policy)
			return nil
		})
		if err != nil {
			res.err = err
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

// assessPolicy scores one policy and, above the damage threshold, attests and
// settles the report on-ledger. Contract rejections are expected no-ops.
func (r *Reporter) assessPolicy(ctx context.Context, run *models.AssessmentRun, res *fetchResult) {
	run.Assessed++

	report := &models.DamageReport{
		RunID:          run.ID,
		PolicyID:       res.policy.ID,
		LedgerPolicyID: res.policy.LedgerPolicyID,
		PayoutAmount:   "0",
		AssessedAt:     time.Now(),
	}

	if res.err != nil {
		slog.Warn("Policy assessment skipped", "policy_id", res.policy.ID, "error", res.err)
		run.Errored++
		reason := res.err.Error()
		report.Outcome = models.OutcomeErrored
		report.RejectReason = &reason
		r.persistReport(ctx, report)
		return
	}

	report.WeatherDamage = WeatherDamageScore(res.observation.Weather)
	report.VegetationDamage = VegetationDamageScore(res.observation.Greenness)
	report.CombinedIndex = CombinedIndex(report.WeatherDamage, report.VegetationDamage,
		r.cfg.WeatherWeightBps, r.cfg.VegetationWeightBps)

	if report.CombinedIndex < r.cfg.DamageThreshold {
		report.Outcome = models.OutcomeBelowThreshold
		r.persistReport(ctx, report)
		return
	}

	payout := PayoutAmount(res.policy.SumInsured, report.CombinedIndex)
	report.PayoutAmount = payout.String()

	sub, err := r.attestFresh(ctx, report, payout)
	if err != nil {
		slog.Error("Attestation failed", "policy_id", res.policy.ID, "error", err)
		run.Errored++
		reason := err.Error()
		report.Outcome = models.OutcomeErrored
		report.RejectReason = &reason
		r.persistReport(ctx, report)
		return
	}

	// A shutdown stops the run before the next policy, never mid-settlement.
	txHash, err := r.gateway.SubmitReport(context.WithoutCancel(ctx), sub, r.identity)
	switch {
	case err == nil:
		report.Outcome = models.OutcomeSubmitted
		report.TxHash = &txHash
		run.Submitted++
		r.notifyPayout(ctx, report)
	case chain.IsContractRevert(err):
		var revert *chain.ContractRevertError
		errors.As(err, &revert)
		slog.Info("Settlement rejected by contract",
			"policy_id", res.policy.ID,
			"tx_hash", revert.TxHash,
			"reason", revert.Reason)
		report.Outcome = models.OutcomeRejected
		report.TxHash = &revert.TxHash
		report.RejectReason = &revert.Reason
		run.Rejected++
	case chain.IsConfirmationTimeout(err):
		var timeout *chain.ConfirmationTimeoutError
		errors.As(err, &timeout)
		slog.Warn("Settlement fate unknown, left for polling",
			"policy_id", res.policy.ID,
			"tx_hash", timeout.TxHash)
		reason := err.Error()
		report.Outcome = models.OutcomeErrored
		report.TxHash = &timeout.TxHash
		report.RejectReason = &reason
		run.Errored++
	default:
		slog.Error("Settlement submission failed", "policy_id", res.policy.ID, "error", err)
		reason := err.Error()
		report.Outcome = models.OutcomeErrored
		report.RejectReason = &reason
		run.Errored++
	}

	r.persistReport(ctx, report)
}

// attestFresh stamps the report immediately before attestation so the payload
// is well inside the contract's freshness window when it lands. If obtaining
// the attestation already consumed the window, the report is re-stamped and
// re-attested once; a payload still stale after that is dispatched anyway and
// the contract's own freshness check has the last word.
func (r *Reporter) attestFresh(ctx context.Context, report *models.DamageReport, payout *big.Int) (*contracts.ReportSubmission, error) {
	for attempt := 0; ; attempt++ {
		report.AssessedAt = time.Now()
		sub := contracts.SubmissionFromReport(report, payout, nil)

		signature, err := r.attestor.Attest(ctx, contracts.PayloadHash(sub))
		if err != nil {
			return nil, err
		}
		sub.Attestation = signature

		elapsed := time.Since(report.AssessedAt)
		if elapsed <= r.cfg.FreshnessWindow || attempt == 1 {
			return sub, nil
		}
		slog.Warn("Attestation outlived the freshness window, re-stamping",
			"policy_id", report.PolicyID,
			"elapsed", elapsed)
	}
}

// notifyPayout tells downstream services a settlement confirmed. Both paths
// are best-effort; the on-ledger settlement is the source of truth.
func (r *Reporter) notifyPayout(ctx context.Context, report *models.DamageReport) {
	if r.publisher != nil {
		err := r.publisher.PublishPayoutSettled(ctx, event.PayoutSettledEvent{
			PolicyID:       report.PolicyID,
			LedgerPolicyID: report.LedgerPolicyID,
			CombinedIndex:  report.CombinedIndex,
			PayoutAmount:   report.PayoutAmount,
			TxHash:         *report.TxHash,
			AssessedAt:     report.AssessedAt.Unix(),
		})
		if err != nil {
			slog.Error("Failed to publish payout event", "policy_id", report.PolicyID, "error", err)
		}
	}

	if r.policySvc != nil {
		err := r.policySvc.NotifyPayout(ctx, &oracle.PayoutNotification{
			PolicyID:      report.PolicyID,
			CombinedIndex: report.CombinedIndex,
			PayoutAmount:  report.PayoutAmount,
			TxHash:        *report.TxHash,
			AssessedAt:    report.AssessedAt.Unix(),
		})
		if err != nil {
			slog.Error("Failed to notify policy service", "policy_id", report.PolicyID, "error", err)
		}
	}
}

func (r *Reporter) persistReport(ctx context.Context, report *models.DamageReport) {
	if err := r.reports.Create(ctx, report); err != nil {
		slog.Error("Failed to persist damage report",
			"policy_id", report.PolicyID,
			"outcome", report.Outcome,
			"error", err)
	}
}

func (r *Reporter) abort(ctx context.Context, run *models.AssessmentRun, cause string) (*models.AssessmentRun, error) {
	slog.Error("Assessment run aborted", "run_id", run.ID, "cause", cause)

	now := time.Now()
	run.Status = models.RunStatusAborted
	run.AbortCause = &cause
	run.FinishedAt = &now
	if err := r.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("Failed to persist aborted run", "run_id", run.ID, "error", err)
	}
	r.publishRunCompleted(ctx, run)
	return run, fmt.Errorf("assessment run aborted: %s", cause)
}

func (r *Reporter) publishRunCompleted(ctx context.Context, run *models.AssessmentRun) {
	if r.publisher == nil {
		return
	}
	finished := time.Now().Unix()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Unix()
	}
	err := r.publisher.PublishRunCompleted(context.WithoutCancel(ctx), event.RunCompletedEvent{
		RunID:      run.ID.String(),
		Status:     string(run.Status),
		Assessed:   run.Assessed,
		Submitted:  run.Submitted,
		Rejected:   run.Rejected,
		Errored:    run.Errored,
		FinishedAt: finished,
	})
	if err != nil {
		slog.Error("Failed to publish run summary", "run_id", run.ID, "error", err)
	}
}
