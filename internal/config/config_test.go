package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *SettlementServiceConfig {
	cfg := New()
	cfg.ChainCfg.PoolFactoryAddress = "0x00000000000000000000000000000000000000f1"
	cfg.ChainCfg.SettlementAddress = "0x00000000000000000000000000000000000000f3"
	cfg.ChainCfg.CapitalTokenAddress = "0x00000000000000000000000000000000000000f2"
	cfg.OracleCfg.RequesterURLs = []string{"http://node-a:8080", "http://node-b:8080"}
	return cfg
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingContractAddressIsFatal(t *testing.T) {
	cfg := validConfig()
	cfg.ChainCfg.SettlementAddress = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresRequesters(t *testing.T) {
	cfg := validConfig()
	cfg.OracleCfg.RequesterURLs = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_QuorumMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.OracleCfg.Quorum = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_ConfirmationsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.ChainCfg.Confirmations = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_WeightsMustSumToWhole(t *testing.T) {
	cfg := validConfig()
	cfg.PipelineCfg.WeatherWeightBps = 7000
	assert.Error(t, cfg.Validate())
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, b,"))
	assert.Nil(t, splitNonEmpty(""))
}
