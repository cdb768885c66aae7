package notifier

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Vicktor007/WisePrice/internal/lib/jwt"
	"github.com/Vicktor007/WisePrice/internal/models"
)

func snapshot(price float64, discount int, outOfStock bool) *models.Snapshot {
	return &models.Snapshot{
		URL:           "https://www.amazon.com/dp/B0TEST",
		Title:         "Widget",
		Currency:      "$",
		CurrentPrice:  price,
		OriginalPrice: price,
		DiscountRate:  discount,
		IsOutOfStock:  outOfStock,
	}
}

func stored(prices []float64, outOfStock bool) models.Product {
	p := models.Product{
		URL:          "https://www.amazon.com/dp/B0TEST",
		Title:        "Widget",
		Currency:     "$",
		IsOutOfStock: outOfStock,
	}
	for _, price := range prices {
		p.PriceHistory = append(p.PriceHistory, models.PricePoint{Price: price})
	}
	return p
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		prev     models.Product
		scraped  *models.Snapshot
		expected Type
		notify   bool
	}{
		{
			name:     "lowest price ever",
			prev:     stored([]float64{55, 52}, false),
			scraped:  snapshot(48, 0, false),
			expected: TypeLowestPrice,
			notify:   true,
		},
		{
			name:     "back in stock",
			prev:     stored([]float64{55, 52}, true),
			scraped:  snapshot(55, 0, false),
			expected: TypeChangeOfStock,
			notify:   true,
		},
		{
			name:     "threshold met",
			prev:     stored([]float64{55}, false),
			scraped:  snapshot(55, 45, false),
			expected: TypeThresholdMet,
			notify:   true,
		},
		{
			// Lowest price wins over the discount threshold.
			name:     "priority order",
			prev:     stored([]float64{55, 52}, true),
			scraped:  snapshot(48, 45, false),
			expected: TypeLowestPrice,
			notify:   true,
		},
		{
			name:    "nothing notable",
			prev:    stored([]float64{55, 52}, false),
			scraped: snapshot(53, 10, false),
			notify:  false,
		},
		{
			name:    "still out of stock",
			prev:    stored([]float64{55}, true),
			scraped: snapshot(55, 0, true),
			notify:  false,
		},
		{
			name:    "empty history never triggers lowest",
			prev:    stored(nil, false),
			scraped: snapshot(1, 0, false),
			notify:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Classify(tc.prev, tc.scraped)

			if ok != tc.notify {
				t.Fatalf("notify = %v; want %v", ok, tc.notify)
			}
			if ok && got != tc.expected {
				t.Errorf("type = %s; want %s", got, tc.expected)
			}
		})
	}
}

type fakeQueue struct {
	published []models.EmailMessage
	err       error
}

func (q *fakeQueue) PublishJSON(_ context.Context, msg any) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, msg.(models.EmailMessage))
	return nil
}

func newTestNotifier(q *fakeQueue) *Notifier {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, q, jwt.New("test-secret"), "http://localhost:8080")
}

func TestNotifySkipsWithoutSubscribers(t *testing.T) {
	queue := &fakeQueue{}

	p := stored([]float64{55}, false)

	if err := newTestNotifier(queue).Notify(context.Background(), p, TypeLowestPrice); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(queue.published) != 0 {
		t.Errorf("published %d messages; want 0 without subscribers", len(queue.published))
	}
}

func TestNotifySingleSendToAllSubscribers(t *testing.T) {
	queue := &fakeQueue{}

	p := stored([]float64{55}, false)
	p.Users = []models.Subscriber{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
	}

	if err := newTestNotifier(queue).Notify(context.Background(), p, TypeLowestPrice); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(queue.published) != 1 {
		t.Fatalf("published %d messages; want a single send", len(queue.published))
	}

	msg := queue.published[0]
	if len(msg.To) != 2 || msg.To[0] != "a@example.com" || msg.To[1] != "b@example.com" {
		t.Errorf("recipients = %v", msg.To)
	}
	if !strings.Contains(msg.Body, p.URL) {
		t.Error("body does not link to the product")
	}
}

func TestSendWelcomeIncludesUnsubscribeLink(t *testing.T) {
	queue := &fakeQueue{}

	p := stored([]float64{55}, false)

	if err := newTestNotifier(queue).SendWelcome(context.Background(), p, "a@example.com"); err != nil {
		t.Fatalf("SendWelcome: %v", err)
	}

	if len(queue.published) != 1 {
		t.Fatalf("published %d messages; want 1", len(queue.published))
	}

	msg := queue.published[0]
	if len(msg.To) != 1 || msg.To[0] != "a@example.com" {
		t.Errorf("recipients = %v", msg.To)
	}
	if !strings.Contains(msg.Body, "/unsubscribe?token=") {
		t.Error("welcome body has no unsubscribe link")
	}
}
