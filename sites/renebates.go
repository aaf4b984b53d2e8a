package sites

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"truckwatch/config"
	"truckwatch/models"
	"truckwatch/money"
	"truckwatch/target"
	"truckwatch/timeleft"
)

var (
	rbEventLinkRe = regexp.MustCompile(`(?i)a_main_2\.php\?id=\d+`)
	rbLotHrefRe   = regexp.MustCompile(`(?i)a_lot_\d+\.php\?id=\d+&lot=\d+`)
	rbLotIDRe     = regexp.MustCompile(`[?&]lot=(\d+)`)
	rbCurrencyRe  = regexp.MustCompile(`\$(\d[\d,]*(?:\.\d{2})?)`)
	rbCityStateRe = regexp.MustCompile(`(?i)City\s+of\s+([^,]+),\s*([A-Za-z]{2,})`)
	// "Closes: Tuesday, September 23, 2025 Beginning at 1:00 PM CDT"
	rbClosesRe = regexp.MustCompile(`(?i)Closes:\s*(?:[A-Za-z]+,\s*)?([A-Za-z]+\s+\d{1,2},\s+\d{4})\s*Beginning at\s*([0-9]{1,2}:[0-9]{2}\s*[AP]M)\s*([A-Z]{2,4})`)
)

// rbCategoryKeywords pick the event category most likely to contain trucks.
var rbCategoryKeywords = []string{
	"truck", "tractor", "fire", "utility", "heavy duty", "diesel",
	"crane", "bucket", "dump", "box",
}

var rbStateAbbr = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE",
	"NEVADA": "NV", "NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ",
	"NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC",
	"NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR",
	"PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA",
	"WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
	"DISTRICT OF COLUMBIA": "DC", "WASHINGTON DC": "DC",
}

// ReneBates crawls the ReneBates event index: N events per cycle (advancing
// a persisted round-robin offset), one truck-ish category per event. The
// site only publishes event-level close times, so every lot in an event
// shares the event's seconds-to-close.
type ReneBates struct {
	cfg       config.ReneBatesConfig
	collector *colly.Collector
	statePath string
	log       *zap.SugaredLogger
	rng       *rand.Rand
}

// NewReneBates builds the adapter and its collector.
func NewReneBates(cfg config.ReneBatesConfig, statePath string, log *zap.SugaredLogger) *ReneBates {
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	c.SetRequestTimeout(20 * time.Second)
	return &ReneBates{
		cfg:       cfg,
		collector: c,
		statePath: statePath,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Source.
func (r *ReneBates) Name() string { return "ReneBates" }

type rbEvent struct {
	URL   string
	Title string
}

// Fetch walks the index, a round-robin slice of events, and one category
// listing per event. A per-cycle time budget keeps this site from starving
// the faster ones.
func (r *ReneBates) Fetch(ctx context.Context) ([]models.Listing, error) {
	start := time.Now()

	indexHTML, err := r.fetchHTML(r.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("renebates index: %w", err)
	}
	events := r.parseIndex(indexHTML)
	if len(events) == 0 {
		return nil, nil
	}

	slice := r.roundRobin(events)
	var rows []models.Listing
	now := time.Now()

	for _, ev := range slice {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		if r.cfg.BudgetSecs > 0 && time.Since(start).Seconds() > r.cfg.BudgetSecs {
			r.log.Debugw("renebates budget exceeded", "events_done", len(rows))
			break
		}
		r.eventSleep(ctx)

		evHTML, err := r.fetchHTML(ev.URL)
		if err != nil {
			r.log.Debugw("renebates event fetch failed", "url", ev.URL, "error", err)
			continue
		}

		city, state := rbCityState(ev.Title)
		evSecs := rbCloseSecs(evHTML, now)

		catURL := r.pickCategoryURL(evHTML, ev.URL)
		if catURL == "" {
			// No categories published yet; keep the event itself visible.
			rows = append(rows, models.Listing{
				Site:    r.Name(),
				AssetID: fmt.Sprintf("event-%x", fnvHash(ev.URL)),
				Title:   titleOrUntitled(ev.Title),
				City:    city,
				State:   state,
				Secs:    evSecs,
				URL:     ev.URL,
				Tags:    []string{"event"},
			})
			continue
		}

		listHTML, err := r.fetchHTML(catURL)
		if err != nil {
			r.log.Debugw("renebates category fetch failed", "url", catURL, "error", err)
			continue
		}
		rows = append(rows, r.extractLots(listHTML, ev, city, state, evSecs)...)
	}

	return DedupeByAssetID(rows), nil
}

// fetchHTML runs one blocking colly visit and hands back the body.
func (r *ReneBates) fetchHTML(u string) (string, error) {
	c := r.collector.Clone()
	var body string
	var ferr error
	c.OnResponse(func(resp *colly.Response) { body = string(resp.Body) })
	c.OnError(func(_ *colly.Response, err error) { ferr = err })
	if err := c.Visit(u); err != nil {
		return "", err
	}
	c.Wait()
	if ferr != nil {
		return "", ferr
	}
	if body == "" {
		return "", fmt.Errorf("empty response from %s", u)
	}
	return body, nil
}

func (r *ReneBates) parseIndex(html string) []rbEvent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var events []rbEvent
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !rbEventLinkRe.MatchString(href) {
			return
		}
		title := strings.TrimSpace(a.Text())
		if title == "" {
			return
		}
		events = append(events, rbEvent{URL: r.absURL(href), Title: title})
	})
	return events
}

// roundRobin slices the event list starting at the persisted offset, then
// advances and saves the offset for the next cycle.
func (r *ReneBates) roundRobin(events []rbEvent) []rbEvent {
	pages := r.cfg.Pages
	if pages < 1 {
		pages = 1
	}
	if pages > len(events) {
		pages = len(events)
	}
	offset := r.loadOffset() % len(events)

	out := make([]rbEvent, 0, pages)
	for i := 0; i < pages; i++ {
		out = append(out, events[(offset+i)%len(events)])
	}
	r.saveOffset((offset + pages) % len(events))
	return out
}

// pickCategoryURL prefers a category link whose label suggests trucks,
// falling back to the event's "All Items" link.
func (r *ReneBates) pickCategoryURL(html, base string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	fallback := ""
	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if text == "" {
			return true
		}
		if fallback == "" && strings.Contains(text, "all items") {
			fallback = r.absFrom(base, a.AttrOr("href", ""))
		}
		for _, kw := range rbCategoryKeywords {
			if strings.Contains(text, kw) {
				found = r.absFrom(base, a.AttrOr("href", ""))
				return false
			}
		}
		return true
	})
	if found != "" {
		return found
	}
	return fallback
}

// extractLots harvests the true lot links and classifies their titles with
// the strict targeting rule.
func (r *ReneBates) extractLots(html string, ev rbEvent, city, state string, evSecs *int64) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []models.Listing
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !rbLotHrefRe.MatchString(href) {
			return
		}
		title := strings.TrimSpace(a.Text())
		lotURL := r.absFrom(ev.URL, href)

		assetID := ""
		if m := rbLotIDRe.FindStringSubmatch(href); m != nil {
			assetID = m[1]
		} else {
			assetID = fmt.Sprintf("lot-%x", fnvHash(lotURL))
		}

		// Nearest table row or block usually carries the current bid.
		var bid *int64
		container := a.Closest("tr, div, li, p")
		if container.Length() > 0 {
			if m := rbCurrencyRe.FindStringSubmatch(container.Text()); m != nil {
				if cents, ok := money.ParseCents(m[1]); ok {
					bid = &cents
				}
			}
		}

		res := target.Classify(title)
		out = append(out, models.Listing{
			Site:     r.Name(),
			AssetID:  assetID,
			Title:    titleOrUntitled(title),
			City:     city,
			State:    state,
			BidCents: bid,
			Secs:     evSecs,
			URL:      lotURL,
			Tags:     res.Tags,
			Target:   res.Target,
			Blocked:  !res.Target,
			Engine67: target.IsEngine67(title),
		})
	})
	return out
}

// rbCityState pulls ('Van Alstyne','TX') from 'City Of Van Alstyne, Texas'.
func rbCityState(text string) (string, string) {
	m := rbCityStateRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "Unknown", ""
	}
	city := strings.TrimSpace(m[1])
	rawState := strings.TrimSpace(m[2])
	if len(rawState) == 2 {
		return city, strings.ToUpper(rawState)
	}
	if abbr, ok := rbStateAbbr[strings.ToUpper(rawState)]; ok {
		return city, abbr
	}
	return city, ""
}

// rbCloseSecs parses the event-level close banner into seconds remaining.
func rbCloseSecs(html string, now time.Time) *int64 {
	m := rbClosesRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	secs, ok := timeleft.FromLocalClose(m[1], m[2], m[3], now)
	if !ok {
		return nil
	}
	return &secs
}

func (r *ReneBates) eventSleep(ctx context.Context) {
	delay := time.Duration((r.cfg.PageDelaySecs + r.rng.Float64()*1.7 - 0.5) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (r *ReneBates) absURL(href string) string {
	return r.absFrom(r.cfg.IndexURL, href)
}

func (r *ReneBates) absFrom(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

type rbState struct {
	Offset int `json:"offset"`
}

func (r *ReneBates) loadOffset() int {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		return 0
	}
	var st rbState
	if err := json.Unmarshal(data, &st); err != nil {
		return 0
	}
	if st.Offset < 0 {
		return 0
	}
	return st.Offset
}

func (r *ReneBates) saveOffset(offset int) {
	data, err := json.Marshal(rbState{Offset: offset})
	if err != nil {
		return
	}
	if err := os.WriteFile(r.statePath, data, 0o644); err != nil {
		r.log.Debugw("renebates state save failed", "error", err)
	}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
