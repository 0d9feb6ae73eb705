package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"settlement-service/internal/chain"
	"settlement-service/internal/models"
)

// SettlementGateway submits authenticated damage reports to the settlement
// contract. The contract independently re-validates caller identity, report
// freshness, the damage threshold, payout arithmetic and per-farmer claim
// limits; any of those rejections surfaces as a ContractRevertError that the
// pipeline treats as an expected no-op for the policy.
type SettlementGateway struct {
	engine         *chain.Engine
	settlementAddr string
	gasLimit       uint64
}

func NewSettlementGateway(engine *chain.Engine, settlementAddr string, gasLimit uint64) *SettlementGateway {
	return &SettlementGateway{
		engine:         engine,
		settlementAddr: settlementAddr,
		gasLimit:       gasLimit,
	}
}

// ReportSubmission is a damage report bound to its network attestation.
// The 65-byte attestation signature proves the report came out of the
// consensus process, not a single participant.
type ReportSubmission struct {
	LedgerPolicyID   uint64
	WeatherDamage    int
	VegetationDamage int
	CombinedIndex    int
	PayoutAmount     *big.Int
	AssessedAt       int64
	Attestation      []byte
}

// BuildReportCalldata encodes the submitReport call. The attestation
// signature travels split into its r/s/v components.
func BuildReportCalldata(sub *ReportSubmission) ([]byte, error) {
	if len(sub.Attestation) != 65 {
		return nil, fmt.Errorf("attestation signature must be 65 bytes, got %d", len(sub.Attestation))
	}
	var r, s [32]byte
	copy(r[:], sub.Attestation[:32])
	copy(s[:], sub.Attestation[32:64])
	v := sub.Attestation[64]

	return NewCall("submitReport(uint256,uint8,uint8,uint8,uint256,uint64,bytes32,bytes32,uint8)").
		Uint64(sub.LedgerPolicyID).
		Uint64(uint64(sub.WeatherDamage)).
		Uint64(uint64(sub.VegetationDamage)).
		Uint64(uint64(sub.CombinedIndex)).
		Uint256(sub.PayoutAmount).
		Uint64(uint64(sub.AssessedAt)).
		Bytes32(r).
		Bytes32(s).
		Uint64(uint64(v)).
		Build()
}

// PayloadHash is the digest the consensus network attests to. It must be
// derived from exactly the fields the settlement contract re-hashes.
func PayloadHash(sub *ReportSubmission) [32]byte {
	packed, _ := NewCall("reportPayload(uint256,uint8,uint8,uint8,uint256,uint64)").
		Uint64(sub.LedgerPolicyID).
		Uint64(uint64(sub.WeatherDamage)).
		Uint64(uint64(sub.VegetationDamage)).
		Uint64(uint64(sub.CombinedIndex)).
		Uint256(sub.PayoutAmount).
		Uint64(uint64(sub.AssessedAt)).
		Build()

	var digest [32]byte
	copy(digest[:], chain.Keccak256(packed))
	return digest
}

// SubmitReport dispatches the report through the orchestration layer using
// the pipeline's own verifiable identity. The transaction's sender is what
// the settlement contract authenticates.
func (g *SettlementGateway) SubmitReport(ctx context.Context, sub *ReportSubmission, identity chain.SigningIdentity) (string, error) {
	calldata, err := BuildReportCalldata(sub)
	if err != nil {
		return "", err
	}

	receipt, err := g.engine.Execute(ctx, identity, chain.Call{
		To:       g.settlementAddr,
		Data:     calldata,
		GasLimit: g.gasLimit,
	})
	if err != nil {
		return "", err
	}

	slog.Info("Damage report settled",
		"ledger_policy_id", sub.LedgerPolicyID,
		"combined_index", sub.CombinedIndex,
		"payout", sub.PayoutAmount.String(),
		"tx_hash", receipt.TxHash)
	return receipt.TxHash, nil
}

// SubmissionFromReport binds a stored report and its attestation for dispatch.
func SubmissionFromReport(report *models.DamageReport, payout *big.Int, attestation []byte) *ReportSubmission {
	return &ReportSubmission{
		LedgerPolicyID:   report.LedgerPolicyID,
		WeatherDamage:    report.WeatherDamage,
		VegetationDamage: report.VegetationDamage,
		CombinedIndex:    report.CombinedIndex,
		PayoutAmount:     payout,
		AssessedAt:       report.AssessedAt.Unix(),
		Attestation:      attestation,
	}
}
