package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"truckwatch/config"
	"truckwatch/models"
	"truckwatch/target"
	"truckwatch/timeleft"
)

const govDealsSearchURL = "https://maestro.lqdt1.com/search/list"

var govDealsUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
}

// govDealsCategoryKeywords widen targeting with the site's own category
// names, which often say "Bucket Truck" when the title is just a VIN.
var govDealsCategoryKeywords = []string{
	"dump", "bucket", "aerial", "boom", "crane", "knuckle",
	"derrick", "box", "straight truck", "van body",
	"ambulance", "rescue", "fire", "wrecker", "tow",
	"utility", "service", "refuse", "garbage",
	"roll off", "roll-off", "vacuum", "sewer",
	"tanker", "mixer",
}

// GovDeals adapts the GovDeals asset search API.
type GovDeals struct {
	cfg    config.GovDealsConfig
	client *http.Client
	log    *zap.SugaredLogger
	rng    *rand.Rand
}

// NewGovDeals builds the adapter.
func NewGovDeals(cfg config.GovDealsConfig, log *zap.SugaredLogger) *GovDeals {
	return &GovDeals{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Source.
func (g *GovDeals) Name() string { return "GovDeals" }

// Fetch pulls up to the configured number of search pages and normalizes
// whatever came back. A bad page ends pagination but keeps the rows already
// collected.
func (g *GovDeals) Fetch(ctx context.Context) ([]models.Listing, error) {
	headers := g.buildHeaders()
	var items []map[string]any
	seen := make(map[string]struct{})
	totalRaw := 0

	for page := 1; page <= g.cfg.Pages; page++ {
		pageItems, err := g.fetchPage(ctx, headers, page)
		if err != nil {
			g.log.Debugw("govdeals page fetch failed", "page", page, "error", err)
			break
		}
		totalRaw += len(pageItems)
		for _, it := range pageItems {
			id := stringField(it, "assetId")
			if id == "" {
				id = stringField(it, "id")
			}
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, it)
		}
		if page < g.cfg.Pages {
			if err := g.pageSleep(ctx); err != nil {
				return g.normalize(items), err
			}
		}
	}

	rows := g.normalize(items)
	g.log.Debugw("govdeals fetch done", "raw", totalRaw, "unique", len(items), "rows", len(rows))
	return rows, nil
}

func (g *GovDeals) fetchPage(ctx context.Context, headers map[string]string, page int) ([]map[string]any, error) {
	payload, err := json.Marshal(g.buildPayload(page))
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, govDealsSearchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body struct {
		AssetSearchResults []map[string]any `json:"assetSearchResults"`
	}
	dec := json.NewDecoder(resp.Body)
	// Keep integer prices as integers; product_pricecents relies on it.
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return body.AssetSearchResults, nil
}

func (g *GovDeals) buildHeaders() map[string]string {
	h := map[string]string{
		"accept":               "application/json, text/plain, */*",
		"content-type":         "application/json",
		"origin":               "https://www.govdeals.com",
		"referer":              "https://www.govdeals.com/en/trucks",
		"user-agent":           govDealsUserAgents[g.rng.Intn(len(govDealsUserAgents))],
		"x-api-correlation-id": uuid.NewString(),
		"x-ecom-session-id":    uuid.NewString(),
		"x-user-id":            "-1",
		"x-user-timezone":      "America/Chicago",
	}
	if g.cfg.APIKey != "" {
		h["x-api-key"] = g.cfg.APIKey
	}
	if g.cfg.SubscriptionKey != "" {
		h["ocp-apim-subscription-key"] = g.cfg.SubscriptionKey
	}
	return h
}

func (g *GovDeals) buildPayload(page int) map[string]any {
	return map[string]any{
		"businessId":    "GD",
		"searchText":    "*",
		"isQAL":         false,
		"page":          page,
		"displayRows":   24,
		"sortField":     "auctionclose",
		"sortOrder":     "asc",
		"sessionId":     uuid.NewString(),
		"requestType":   "search",
		"responseStyle": "productsOnly",
		"facetsFilter": []string{
			`{!tag=product_category_external_id}product_category_external_id:"t6"`,
			`{!tag=product_category_external_id}product_category_external_id:"94C"`,
		},
	}
}

// normalize maps raw search results to canonical listings. GovDeals
// targeting is deliberately loose: a specialty hit in the free text OR the
// category name OR an explicit Cummins/6.7 mention passes; the light-duty
// blocklist still applies on top.
func (g *GovDeals) normalize(items []map[string]any) []models.Listing {
	now := time.Now()
	out := make([]models.Listing, 0, len(items))
	for idx, item := range items {
		title := stringField(item, "assetShortDescription")
		desc := stringField(item, "assetLongDescription")
		cat := stringField(item, "categoryName")
		city := stringField(item, "locationCity")
		if city == "" {
			city = "Unknown"
		}
		state := stringField(item, "locationState")

		bid := FirstCents(item, "product_pricecents", "currentBidCents", "currentBid")

		var secs *int64
		if s, ok := timeleft.Seconds(item, now); ok {
			secs = &s
		}

		text := strings.ToLower(title + " " + desc + " " + cat)
		specialtyText := target.IsSpecialtyBody(text)
		specialtyCat := categoryMatches(cat)
		cumminsOr67 := target.HasCummins(text) || target.IsEngine67(text)
		isTarget := specialtyText || specialtyCat || cumminsOr67
		blockedLD := target.IsBlockedModel(text)

		assetID := stringField(item, "assetId")
		if assetID == "" {
			assetID = stringField(item, "id")
		}
		if assetID == "" {
			assetID = fmt.Sprintf("idx-%d", idx+1)
		}
		url := ""
		if id := stringField(item, "assetId"); id != "" {
			url = "https://www.govdeals.com/asset/" + id
		} else if id := stringField(item, "id"); id != "" {
			url = "https://www.govdeals.com/asset/" + id
		}

		out = append(out, models.Listing{
			Site:     g.Name(),
			AssetID:  assetID,
			Title:    titleOrUntitled(title),
			City:     city,
			State:    state,
			BidCents: bid,
			Secs:     secs,
			URL:      url,
			Tags:     target.Tags(text),
			Target:   isTarget && !blockedLD,
			Blocked:  blockedLD || !isTarget,
			Engine67: target.IsEngine67(text),
		})
	}
	return out
}

func categoryMatches(category string) bool {
	c := strings.ToLower(category)
	for _, kw := range govDealsCategoryKeywords {
		if strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

func (g *GovDeals) pageSleep(ctx context.Context) error {
	delay := time.Duration((g.cfg.PageDelaySecs + g.rng.Float64()*2.5 - 1.0) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
