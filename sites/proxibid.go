package sites

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"truckwatch/config"
	"truckwatch/models"
	"truckwatch/money"
	"truckwatch/target"
	"truckwatch/timeleft"
)

// Proxibid serves its gallery as paginated HTML fragments; no browser is
// needed, just the XMLHttpRequest-style endpoints.
const (
	proxibidLotItemsURL = "https://www.proxibid.com/core/category/lotItems/category/%s/html?sortBy=endingsoonest&auctionType=timed&inventoryType=all&auctionHouseId=0&auctionId=0&featured=false&metaDataFilters=&galleryView=true&pageNumber=%d"
	proxibidMetadataURL = "https://www.proxibid.com/core/category/lotItems/category/%s/auctionHouseId/0/auctionId/0/metadata/html?auctionType=timed"
	proxibidLotURL      = "https://www.proxibid.com/asp/LotDetail.asp?lid=%s"
)

var (
	proxibidLidRe   = regexp.MustCompile(`lid=(\d+)`)
	proxibidMoneyRe = regexp.MustCompile(`\$\s?[0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})?`)
)

// Proxibid adapts the Proxibid timed-auction category gallery.
type Proxibid struct {
	cfg    config.ProxibidConfig
	client *http.Client
	log    *zap.SugaredLogger
	rng    *rand.Rand
}

// NewProxibid builds the adapter.
func NewProxibid(cfg config.ProxibidConfig, log *zap.SugaredLogger) *Proxibid {
	return &Proxibid{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Source.
func (p *Proxibid) Name() string { return "Proxibid" }

// Fetch pulls the paginated lot-items fragments plus the metadata variant
// (which sometimes returns extra lots) and parses them into listings.
func (p *Proxibid) Fetch(ctx context.Context) ([]models.Listing, error) {
	var rows []models.Listing
	seen := make(map[string]struct{})

	appendNew := func(batch []models.Listing) {
		for _, r := range batch {
			if _, ok := seen[r.AssetID]; ok {
				continue
			}
			seen[r.AssetID] = struct{}{}
			rows = append(rows, r)
		}
	}

	pages := p.cfg.Pages
	if pages < 1 {
		pages = 1
	}
	for page := 0; page < pages; page++ {
		if html, err := p.fetchHTML(ctx, fmt.Sprintf(proxibidLotItemsURL, p.cfg.CategoryID, page)); err == nil {
			appendNew(p.parseFragment(html))
		} else {
			p.log.Debugw("proxibid page fetch failed", "page", page, "error", err)
		}

		if html, err := p.fetchHTML(ctx, fmt.Sprintf(proxibidMetadataURL, p.cfg.CategoryID)); err == nil {
			appendNew(p.parseFragment(html))
		} else {
			p.log.Debugw("proxibid metadata fetch failed", "error", err)
		}

		if page < pages-1 {
			delay := time.Duration((p.cfg.PageDelaySecs + p.rng.Float64()*1.5 - 0.5) * float64(time.Second))
			if delay < 0 {
				delay = 0
			}
			select {
			case <-ctx.Done():
				return rows, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	p.log.Debugw("proxibid fetch done", "rows", len(rows), "pages", pages)
	return rows, nil
}

func (p *Proxibid) fetchHTML(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("user-agent", "Mozilla/5.0")
	req.Header.Set("referer", "https://www.proxibid.com/")
	req.Header.Set("x-requested-with", "XMLHttpRequest")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseFragment walks a lot-items HTML fragment: every LotDetail anchor is
// one lot, and its enclosing card carries title, price and countdown.
func (p *Proxibid) parseFragment(html string) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []models.Listing
	seen := make(map[string]struct{})

	doc.Find(`a[href*="LotDetail.asp?lid="]`).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		m := proxibidLidRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		lid := m[1]
		if _, ok := seen[lid]; ok {
			return
		}
		seen[lid] = struct{}{}

		url := href
		if !strings.HasPrefix(url, "http") {
			url = fmt.Sprintf(proxibidLotURL, lid)
		}

		container := a.Closest(".gallery-card, .lotContainer, .lotInfo")
		if container.Length() == 0 {
			container = a.Parent()
		}

		title := strings.TrimSpace(container.Find(".lotTitle, .lot-title").First().Text())
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}

		bid := p.extractPrice(container)
		secs := p.extractCountdown(container)

		res := target.Classify(title)

		out = append(out, models.Listing{
			Site:     p.Name(),
			AssetID:  lid,
			Title:    titleOrUntitled(title),
			City:     "Unknown",
			State:    "",
			BidCents: bid,
			Secs:     secs,
			URL:      url,
			Tags:     res.Tags,
			Target:   res.Target,
			Blocked:  res.Blocked || !res.Target,
			Engine67: target.IsEngine67(title),
		})
	})

	return out
}

func (p *Proxibid) extractPrice(container *goquery.Selection) *int64 {
	priceText := strings.TrimSpace(container.Find(".currentPrice .price_dollar_val").First().Text())
	if priceText == "" {
		priceText = strings.TrimSpace(container.Find(".currentPrice").First().Text())
	}
	if priceText == "" {
		priceText = proxibidMoneyRe.FindString(container.Text())
	}
	if priceText == "" {
		return nil
	}
	cents, ok := money.ParseCents(priceText)
	if !ok {
		return nil
	}
	return &cents
}

// extractCountdown reads the cascading hour/minute cells of the gallery
// timer. Seconds granularity is not rendered there.
func (p *Proxibid) extractCountdown(container *goquery.Selection) *int64 {
	cells := container.Find(".countdownTimer .auctionTimeEntity")
	if cells.Length() == 0 {
		return nil
	}
	hours := strings.TrimSpace(cells.Eq(0).Text())
	minutes := ""
	if cells.Length() > 1 {
		minutes = strings.TrimSpace(cells.Eq(1).Text())
	}
	secs, ok := timeleft.FromHoursMinutes(hours, minutes)
	if !ok {
		return nil
	}
	return &secs
}
