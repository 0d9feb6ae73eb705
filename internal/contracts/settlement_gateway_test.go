package contracts

import (
	"context"
	"testing"

	"settlement-service/internal/chain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettlement = "0x00000000000000000000000000000000000000f3"

func TestSubmitReport_ReturnsTransactionHash(t *testing.T) {
	backend := newFakeBackend()
	gateway := NewSettlementGateway(newTestEngine(backend), testSettlement, testGasLimit)

	txHash, err := gateway.SubmitReport(context.Background(), testSubmission(), testIdentity)
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, testSettlement, backend.submitted[0].To)
	assert.Equal(t,
		selectorFor("submitReport(uint256,uint8,uint8,uint8,uint256,uint64,bytes32,bytes32,uint8)"),
		selectorOf(backend.submitted[0].Data))
}

func TestSubmitReport_LedgerRejectionIsTypedContractRevert(t *testing.T) {
	backend := newFakeBackend()
	backend.waitErr[selectorFor("submitReport(uint256,uint8,uint8,uint8,uint256,uint64,bytes32,bytes32,uint8)")] =
		&chain.ContractRevertError{TxHash: "0xtx0000", Reason: "report already settled"}

	gateway := NewSettlementGateway(newTestEngine(backend), testSettlement, testGasLimit)
	_, err := gateway.SubmitReport(context.Background(), testSubmission(), testIdentity)
	require.Error(t, err)
	assert.True(t, chain.IsContractRevert(err))
	assert.False(t, chain.IsConfirmationTimeout(err))
}

func TestSubmitReport_BadAttestationNeverReachesTheLedger(t *testing.T) {
	backend := newFakeBackend()
	gateway := NewSettlementGateway(newTestEngine(backend), testSettlement, testGasLimit)

	sub := testSubmission()
	sub.Attestation = nil
	_, err := gateway.SubmitReport(context.Background(), sub, testIdentity)
	require.Error(t, err)
	assert.Empty(t, backend.submitted)
}
