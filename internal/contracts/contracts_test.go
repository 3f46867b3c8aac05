package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplianceRecord_Expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := ComplianceRecord{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(time.Hour)), "expiry instant is already expired")
	assert.True(t, rec.Expired(now.Add(2*time.Hour)))
}

func TestComplianceStatus_Valid(t *testing.T) {
	assert.True(t, StatusUnknown.Valid())
	assert.False(t, ComplianceStatus("MAYBE").Valid())
}

func TestConsensusSignal_ExpectedReturn(t *testing.T) {
	buy := ConsensusSignal{Direction: DirectionBuy, Entry: 100, Target: 110}
	sell := ConsensusSignal{Direction: DirectionSell, Entry: 100, Target: 90}

	assert.InDelta(t, 0.10, buy.ExpectedReturn(), 1e-9)
	assert.InDelta(t, 0.10, sell.ExpectedReturn(), 1e-9)
	assert.Zero(t, ConsensusSignal{}.ExpectedReturn())
}

func TestDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Valid())
	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(to.AddDate(0, 0, 1)))
	assert.False(t, DateRange{From: to, To: from}.Valid())
}

func TestUniverse(t *testing.T) {
	u := &Universe{Instruments: []Instrument{
		{Symbol: "AAPL", Tradable: true},
		{Symbol: "HALT", Tradable: true, Halted: true},
	}}

	assert.Equal(t, []string{"AAPL", "HALT"}, u.Symbols())
	assert.Equal(t, 2, u.Count())

	inst, ok := u.Lookup("HALT")
	require.True(t, ok)
	assert.False(t, inst.Eligible())

	_, ok = u.Lookup("MSFT")
	assert.False(t, ok)
}

func TestStages(t *testing.T) {
	assert.Len(t, AllStages(), 5)
	assert.True(t, IsValidStage("CONSENSUS"))
	assert.False(t, IsValidStage("S4_RANKER"))
	assert.Equal(t, "signal publishing", StagePublish.Description())
}

func TestMarketQuote_JSONOmitsMissingFundamentals(t *testing.T) {
	data, err := json.Marshal(MarketQuote{Symbol: "AAPL", Provenance: ProvenanceLive})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "fundamentals")
	assert.Contains(t, string(data), `"provenance":"live"`)
}
