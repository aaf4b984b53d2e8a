package sites

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"truckwatch/config"
)

func newTestReneBates(t *testing.T) *ReneBates {
	t.Helper()
	cfg := config.ReneBatesConfig{
		Pages:    2,
		IndexURL: "https://renebates.com/a_main.php",
	}
	statePath := filepath.Join(t.TempDir(), "rb_state.json")
	return NewReneBates(cfg, statePath, zap.NewNop().Sugar())
}

func TestReneBatesParseIndex(t *testing.T) {
	r := newTestReneBates(t)

	events := r.parseIndex(`
<html><body>
<a href="a_main_2.php?id=4411">City Of Van Alstyne, Texas</a>
<a href="a_main_2.php?id=4412">Grayson County, Texas</a>
<a href="contact.php">Contact Us</a>
<a href="a_main_2.php?id=4413"></a>
</body></html>`)

	require.Len(t, events, 2, "non-event and untitled links are skipped")
	assert.Equal(t, "https://renebates.com/a_main_2.php?id=4411", events[0].URL)
	assert.Equal(t, "City Of Van Alstyne, Texas", events[0].Title)
}

func TestReneBatesCityState(t *testing.T) {
	city, state := rbCityState("City Of Van Alstyne, Texas")
	assert.Equal(t, "Van Alstyne", city)
	assert.Equal(t, "TX", state)

	city, state = rbCityState("City of Denton, TX")
	assert.Equal(t, "Denton", city)
	assert.Equal(t, "TX", state)

	city, state = rbCityState("Grayson County Surplus")
	assert.Equal(t, "Unknown", city)
	assert.Equal(t, "", state)
}

func TestReneBatesCloseSecs(t *testing.T) {
	now := time.Date(2025, 9, 23, 17, 0, 0, 0, time.UTC)
	html := `<p>Closes: Tuesday, September 23, 2025 Beginning at 1:00 PM CDT</p>`

	secs := rbCloseSecs(html, now)
	require.NotNil(t, secs)
	assert.Equal(t, int64(3600), *secs, "1:00 PM CDT is 18:00 UTC")

	assert.Nil(t, rbCloseSecs("<p>Closing soon</p>", now))
}

func TestReneBatesExtractLots(t *testing.T) {
	r := newTestReneBates(t)
	ev := rbEvent{URL: "https://renebates.com/a_main_2.php?id=4411", Title: "City Of Van Alstyne, Texas"}
	evSecs := int64(7200)

	html := `
<table>
<tr><td><a href="a_lot_4411.php?id=4411&lot=12">2001 International 4700 DT466 Bucket Truck</a></td>
    <td>Current Bid: $2,600.00</td></tr>
<tr><td><a href="a_lot_4411.php?id=4411&lot=13">Lot of folding chairs</a></td>
    <td>Current Bid: $25.00</td></tr>
<tr><td><a href="terms.php">Terms</a></td></tr>
</table>`

	rows := r.extractLots(html, ev, "Van Alstyne", "TX", &evSecs)
	require.Len(t, rows, 2)

	truck := rows[0]
	assert.Equal(t, "ReneBates", truck.Site)
	assert.Equal(t, "12", truck.AssetID)
	assert.Equal(t, "https://renebates.com/a_lot_4411.php?id=4411&lot=12", truck.URL)
	assert.Equal(t, "Van Alstyne", truck.City)
	assert.Equal(t, "TX", truck.State)
	require.NotNil(t, truck.BidCents)
	assert.Equal(t, int64(260000), *truck.BidCents)
	require.NotNil(t, truck.Secs)
	assert.Equal(t, int64(7200), *truck.Secs, "lots inherit the event close")
	assert.True(t, truck.Target)

	chairs := rows[1]
	assert.Equal(t, "13", chairs.AssetID)
	assert.False(t, chairs.Target)
	assert.True(t, chairs.Blocked)
}

func TestReneBatesRoundRobinPersistsOffset(t *testing.T) {
	r := newTestReneBates(t)
	events := []rbEvent{
		{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}, {URL: "e"},
	}

	first := r.roundRobin(events)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].URL)
	assert.Equal(t, "b", first[1].URL)

	second := r.roundRobin(events)
	assert.Equal(t, "c", second[0].URL)
	assert.Equal(t, "d", second[1].URL)

	third := r.roundRobin(events)
	assert.Equal(t, "e", third[0].URL)
	assert.Equal(t, "a", third[1].URL, "wraps around the event list")
}

func TestReneBatesPickCategoryURL(t *testing.T) {
	r := newTestReneBates(t)
	base := "https://renebates.com/a_main_2.php?id=4411"

	html := `
<a href="cat_all.php?id=4411">All Items</a>
<a href="cat_7.php?id=4411">Trucks &amp; Trailers</a>`
	assert.Equal(t, "https://renebates.com/cat_7.php?id=4411", r.pickCategoryURL(html, base))

	htmlNoTrucks := `<a href="cat_all.php?id=4411">All Items</a>
<a href="cat_9.php?id=4411">Jewelry</a>`
	assert.Equal(t, "https://renebates.com/cat_all.php?id=4411", r.pickCategoryURL(htmlNoTrucks, base))

	assert.Equal(t, "", r.pickCategoryURL("<p>nothing</p>", base))
}
