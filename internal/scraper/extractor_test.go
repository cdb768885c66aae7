package scraper

import (
	"errors"
	"testing"

	"github.com/Vicktor007/WisePrice/internal/models"
)

const productURL = "https://www.amazon.com/dp/B0TEST"

const fullProductPage = `<html><body>
<span id="productTitle"> Anker USB C Charger </span>
<span class="a-price-symbol">$</span>
<div class="priceToPay"><span class="a-price-whole">48</span></div>
<div class="a-price a-text-price"><span class="a-offscreen">$55.00</span></div>
<span class="savingsPercentage">-13%</span>
<div id="availability"><span> In Stock </span></div>
<img id="landingImage" data-a-dynamic-image='{"https://m.media-amazon.com/images/I/main.jpg":[500,500],"https://m.media-amazon.com/images/I/alt.jpg":[300,300]}'/>
<ul class="a-unordered-list"><li><span class="a-list-item">Fast charging.</span></li></ul>
</body></html>`

func TestExtractFullProduct(t *testing.T) {
	snap, err := Extract(productURL, []byte(fullProductPage))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if snap.Title != "Anker USB C Charger" {
		t.Errorf("Title = %q", snap.Title)
	}
	if snap.CurrentPrice != 48 {
		t.Errorf("CurrentPrice = %v; want 48", snap.CurrentPrice)
	}
	if snap.OriginalPrice != 55 {
		t.Errorf("OriginalPrice = %v; want 55", snap.OriginalPrice)
	}
	if snap.Currency != "$" {
		t.Errorf("Currency = %q; want $", snap.Currency)
	}
	if snap.DiscountRate != 13 {
		t.Errorf("DiscountRate = %v; want 13", snap.DiscountRate)
	}
	if snap.Image != "https://m.media-amazon.com/images/I/main.jpg" {
		t.Errorf("Image = %q", snap.Image)
	}
	if snap.IsOutOfStock {
		t.Error("IsOutOfStock = true; want false")
	}
	if snap.Description != "Fast charging." {
		t.Errorf("Description = %q", snap.Description)
	}
}

func TestExtractSoft404Priority(t *testing.T) {
	testCases := []struct {
		name   string
		page   string
		reason models.DeletionReason
	}{
		{
			// Missing title wins before any other check runs.
			name:   "no title",
			page:   `<html><body><h1>Looking for something?</h1></body></html>`,
			reason: models.ReasonSoft404NoTitle,
		},
		{
			// Title present, so the header heuristic fires instead.
			name:   "header match",
			page:   `<html><body><span id="productTitle">X</span><h4>Looking for something?</h4></body></html>`,
			reason: models.ReasonSoft404Header,
		},
		{
			name:   "message match",
			page:   `<html><body><span id="productTitle">X</span><div class="a-spacing-top-base">We're sorry, this is not a functioning page.</div></body></html>`,
			reason: models.ReasonSoft404Message,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(productURL, []byte(tc.page))

			reason, ok := AsGone(err)
			if !ok {
				t.Fatalf("expected GoneError, got %v", err)
			}
			if reason != tc.reason {
				t.Errorf("reason = %s; want %s", reason, tc.reason)
			}
		})
	}
}

func TestExtractPriceFallback(t *testing.T) {
	// Only the original-price location is populated; the current price must
	// substitute it.
	page := `<html><body>
<span id="productTitle">Widget</span>
<div class="a-price a-text-price"><span class="a-offscreen">$19.99</span></div>
</body></html>`

	snap, err := Extract(productURL, []byte(page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if snap.CurrentPrice != 19.99 {
		t.Errorf("CurrentPrice = %v; want 19.99", snap.CurrentPrice)
	}
	if snap.OriginalPrice != 19.99 {
		t.Errorf("OriginalPrice = %v; want 19.99", snap.OriginalPrice)
	}
}

func TestExtractNoPriceRejected(t *testing.T) {
	page := `<html><body><span id="productTitle">Widget</span></body></html>`

	_, err := Extract(productURL, []byte(page))
	if !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err = %v; want ErrNoPrice", err)
	}
}

func TestExtractCurrencyDefault(t *testing.T) {
	page := `<html><body>
<span id="productTitle">Widget</span>
<div class="priceToPay"><span class="a-price-whole">10</span></div>
</body></html>`

	snap, err := Extract(productURL, []byte(page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if snap.Currency != "$" {
		t.Errorf("Currency = %q; want default $", snap.Currency)
	}
}

func TestExtractOutOfStock(t *testing.T) {
	page := `<html><body>
<span id="productTitle">Widget</span>
<div class="priceToPay"><span class="a-price-whole">10</span></div>
<div id="availability"><span> Currently unavailable </span></div>
</body></html>`

	snap, err := Extract(productURL, []byte(page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if !snap.IsOutOfStock {
		t.Error("IsOutOfStock = false; want true")
	}
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected float64
	}{
		{"plain", "48", 48},
		{"symbol and decimals", "$55.00", 55},
		{"thousands separator", "$1,079.00", 1079},
		{"noisy prefix", "List Price: $219.41", 219.41},
		{"empty", "", 0},
		{"no number", "See price in cart", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parsePrice(tc.input); got != tc.expected {
				t.Errorf("parsePrice(%q) = %v; want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestFirstImageURLPrefersAttributeOrder(t *testing.T) {
	got := firstImageURL(`{"https://m.media-amazon.com/images/I/zzz.jpg":[1,1],"https://m.media-amazon.com/images/I/aaa.jpg":[2,2]}`)
	if got != "https://m.media-amazon.com/images/I/zzz.jpg" {
		t.Errorf("firstImageURL = %q; want first key in document order", got)
	}

	if got := firstImageURL(""); got != "" {
		t.Errorf("firstImageURL(empty) = %q; want empty", got)
	}
}
