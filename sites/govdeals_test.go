package sites

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"truckwatch/config"
)

func newTestGovDeals(t *testing.T) *GovDeals {
	t.Helper()
	return NewGovDeals(config.GovDealsConfig{Pages: 1}, zap.NewNop().Sugar())
}

func TestGovDealsNormalize(t *testing.T) {
	g := newTestGovDeals(t)

	items := []map[string]any{
		{
			"assetId":               json.Number("4567890"),
			"assetShortDescription": "2012 Freightliner M2 106",
			"assetLongDescription":  "Cummins ISB, runs and drives",
			"categoryName":          "Medium Duty Trucks",
			"locationCity":          "Fort Worth",
			"locationState":         "TX",
			"product_pricecents":    json.Number("452500"),
			"secondsRemaining":      900,
		},
		{
			"assetId":               json.Number("111"),
			"assetShortDescription": "Pallet of office chairs",
			"categoryName":          "Furniture",
		},
		{
			"assetId":               json.Number("222"),
			"assetShortDescription": "2015 Ford F-150 XLT",
			"categoryName":          "Light Duty Trucks - Bucket Truck",
		},
	}

	rows := g.normalize(items)
	require.Len(t, rows, 3)

	truck := rows[0]
	assert.Equal(t, "GovDeals", truck.Site)
	assert.Equal(t, "4567890", truck.AssetID)
	assert.Equal(t, "https://www.govdeals.com/asset/4567890", truck.URL)
	assert.Equal(t, "Fort Worth", truck.City)
	assert.Equal(t, "TX", truck.State)
	require.NotNil(t, truck.BidCents)
	assert.Equal(t, int64(452500), *truck.BidCents, "integer cents pass through unscaled")
	require.NotNil(t, truck.Secs)
	assert.Equal(t, int64(900), *truck.Secs)
	assert.True(t, truck.Target, "a Cummins mention alone targets on GovDeals")
	assert.False(t, truck.Blocked)

	chairs := rows[1]
	assert.False(t, chairs.Target)
	assert.True(t, chairs.Blocked)
	assert.Equal(t, "Unknown", chairs.City)
	assert.Nil(t, chairs.BidCents)
	assert.Nil(t, chairs.Secs)

	lightDuty := rows[2]
	assert.False(t, lightDuty.Target, "the light-duty blocklist beats the category match")
	assert.True(t, lightDuty.Blocked)
}

func TestGovDealsNormalizeFallbackIDs(t *testing.T) {
	g := newTestGovDeals(t)

	rows := g.normalize([]map[string]any{
		{"id": json.Number("987"), "assetShortDescription": "Dump truck diesel"},
		{"assetShortDescription": "No id at all"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "987", rows[0].AssetID)
	assert.Equal(t, "https://www.govdeals.com/asset/987", rows[0].URL)
	assert.Equal(t, "idx-2", rows[1].AssetID)
	assert.Equal(t, "", rows[1].URL)
}

func TestGovDealsBuildHeaders(t *testing.T) {
	bare := newTestGovDeals(t)
	h := bare.buildHeaders()
	assert.NotContains(t, h, "x-api-key")
	assert.NotContains(t, h, "ocp-apim-subscription-key")
	assert.NotEmpty(t, h["x-api-correlation-id"])

	keyed := NewGovDeals(config.GovDealsConfig{
		Pages:           1,
		APIKey:          "key123",
		SubscriptionKey: "sub456",
	}, zap.NewNop().Sugar())
	h = keyed.buildHeaders()
	assert.Equal(t, "key123", h["x-api-key"])
	assert.Equal(t, "sub456", h["ocp-apim-subscription-key"])
}

func TestGovDealsCategoryMatches(t *testing.T) {
	assert.True(t, categoryMatches("Aerial Lifts / Bucket Trucks"))
	assert.True(t, categoryMatches("Roll-Off Containers"))
	assert.False(t, categoryMatches("Office Furniture"))
	assert.False(t, categoryMatches(""))
}
