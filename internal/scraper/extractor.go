package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Vicktor007/WisePrice/internal/models"
)

// Candidate locations tried in priority order; the first parseable value wins.
var currentPriceSelectors = []string{
	".priceToPay span.a-price-whole",
	".a.size.base.a-color-price",
	".a-button-selected .a-color-base",
}

var originalPriceSelectors = []string{
	"#priceblock_ourprice",
	".a-price.a-text-price span.a-offscreen",
	"#listPrice",
	"#priceblock_dealprice",
	".a-size-base.a-color-price",
}

var descriptionSelectors = []string{
	".a-unordered-list .a-list-item",
	".a-expander-content p",
}

// priceRegex finds the first price-like number in a string: integers with
// thousands separators ("1,079") and decimals ("119.00").
var priceRegex = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)

// Extract parses fetched markup into a product snapshot, or classifies the
// page as a soft 404. The soft-404 checks run in fixed priority order and the
// first match short-circuits all further extraction.
func Extract(pageURL string, page []byte) (*models.Snapshot, error) {
	const op = "scraper.Extract"

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	title := doc.Find("#productTitle")

	if title.Length() == 0 {
		return nil, &GoneError{Reason: models.ReasonSoft404NoTitle}
	}
	if strings.Contains(strings.ToLower(doc.Find("h4, h1").Text()), "looking for something") {
		return nil, &GoneError{Reason: models.ReasonSoft404Header}
	}
	if strings.Contains(strings.ToLower(doc.Find(".a-spacing-top-base").Text()), "not a functioning page") {
		return nil, &GoneError{Reason: models.ReasonSoft404Message}
	}

	currentPrice := firstPrice(doc, currentPriceSelectors)
	originalPrice := firstPrice(doc, originalPriceSelectors)

	// One missing side defaults to the other. Neither side parseable means
	// the snapshot is rejected as a transient failure, never stored with a
	// non-numeric price.
	if currentPrice == 0 && originalPrice == 0 {
		return nil, ErrNoPrice
	}
	if currentPrice == 0 {
		currentPrice = originalPrice
	}
	if originalPrice == 0 {
		originalPrice = currentPrice
	}

	outOfStock := strings.EqualFold(
		strings.TrimSpace(doc.Find("#availability span").Text()),
		"currently unavailable",
	)

	dynamicImage := doc.Find("#imgBlkFront").AttrOr("data-a-dynamic-image", "")
	if dynamicImage == "" {
		dynamicImage = doc.Find("#landingImage").AttrOr("data-a-dynamic-image", "")
	}

	currency := extractCurrency(doc)
	if currency == "" {
		currency = "$"
	}

	discountText := strings.NewReplacer("-", "", "%", "").Replace(
		strings.TrimSpace(doc.Find(".savingsPercentage").First().Text()),
	)
	discountRate, _ := strconv.Atoi(discountText)

	return &models.Snapshot{
		URL:           pageURL,
		Title:         strings.TrimSpace(title.Text()),
		Currency:      currency,
		Image:         firstImageURL(dynamicImage),
		Description:   extractDescription(doc),
		CurrentPrice:  currentPrice,
		OriginalPrice: originalPrice,
		DiscountRate:  discountRate,
		Category:      "category",
		ReviewsCount:  100,
		Stars:         4.5,
		IsOutOfStock:  outOfStock,
	}, nil
}

// firstPrice tries each selector in order and returns the first price that
// parses to a positive number.
func firstPrice(doc *goquery.Document, selectors []string) float64 {
	for _, selector := range selectors {
		if price := parsePrice(doc.Find(selector).First().Text()); price > 0 {
			return price
		}
	}
	return 0
}

// parsePrice pulls the first price-like number out of a string and converts
// it. Handles noisy values like "List Price: $1,079.00". Returns 0 when
// nothing parses.
func parsePrice(priceStr string) float64 {
	found := priceRegex.FindString(priceStr)
	if found == "" {
		return 0
	}

	price, err := strconv.ParseFloat(strings.ReplaceAll(found, ",", ""), 64)
	if err != nil {
		return 0
	}

	return price
}

func extractCurrency(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find(".a-price-symbol").First().Text())
	if text == "" {
		return ""
	}

	// Only the glyph itself; some layouts repeat it with whitespace.
	return string([]rune(text)[0])
}

// firstImageURL returns the first key of the dynamic-image attribute, which
// is a JSON object mapping image URLs to dimensions. Key order in the
// document is meaningful, so the raw token stream is used instead of a map.
func firstImageURL(dynamicImage string) string {
	if dynamicImage == "" {
		return ""
	}

	dec := json.NewDecoder(strings.NewReader(dynamicImage))

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}

	tok, err := dec.Token()
	if err != nil {
		return ""
	}

	key, ok := tok.(string)
	if !ok {
		return ""
	}

	return key
}

func extractDescription(doc *goquery.Document) string {
	var parts []string

	for _, selector := range descriptionSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	}

	return strings.Join(parts, "\n")
}
