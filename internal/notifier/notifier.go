package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"

	"github.com/Vicktor007/WisePrice/internal/lib/history"
	"github.com/Vicktor007/WisePrice/internal/lib/jwt"
	"github.com/Vicktor007/WisePrice/internal/models"
)

// Type is a notification category produced by comparing the stored product
// against a fresh scrape.
type Type string

const (
	TypeWelcome       Type = "WELCOME"
	TypeChangeOfStock Type = "CHANGE_OF_STOCK"
	TypeLowestPrice   Type = "LOWEST_PRICE"
	TypeThresholdMet  Type = "THRESHOLD_MET"
)

// DiscountThreshold is the discount rate, in percent, at which a listing is
// considered a deal worth flagging.
const DiscountThreshold = 40

// Classify compares the previous stored snapshot against the fresh one and
// returns the notification category, or false when nothing notable changed.
// Checks run in fixed priority order and the first match wins.
func Classify(prev models.Product, scraped *models.Snapshot) (Type, bool) {
	if len(prev.PriceHistory) > 0 && scraped.CurrentPrice < history.Lowest(prev.PriceHistory) {
		return TypeLowestPrice, true
	}
	if !scraped.IsOutOfStock && prev.IsOutOfStock {
		return TypeChangeOfStock, true
	}
	if scraped.DiscountRate >= DiscountThreshold {
		return TypeThresholdMet, true
	}

	return "", false
}

type QueuePublisher interface {
	PublishJSON(ctx context.Context, msg any) error
}

// Notifier renders notification emails and hands them to the notifications
// queue; actual SMTP delivery happens in the mailer consumer.
type Notifier struct {
	log    *slog.Logger
	queue  QueuePublisher
	tokens *jwt.Parser
	// baseURL is the public address unsubscribe links point back to.
	baseURL string
}

func New(log *slog.Logger, queue QueuePublisher, tokens *jwt.Parser, baseURL string) *Notifier {
	return &Notifier{
		log:     log,
		queue:   queue,
		tokens:  tokens,
		baseURL: baseURL,
	}
}

// Notify dispatches one email for a classified change to every subscriber of
// the product in a single send. No-op when the product has no subscribers.
func (n *Notifier) Notify(ctx context.Context, product models.Product, notifType Type) error {
	const op = "notifier.Notify"

	if len(product.Users) == 0 {
		return nil
	}

	subject, body, err := renderEmail(notifType, product, "")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	emails := make([]string, 0, len(product.Users))
	for _, user := range product.Users {
		emails = append(emails, user.Email)
	}

	if err := n.queue.PublishJSON(ctx, models.EmailMessage{
		To:      emails,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n.log.Info("notification queued",
		slog.String("url", product.URL),
		slog.String("type", string(notifType)),
		slog.Int("recipients", len(emails)),
	)

	return nil
}

// SendWelcome greets a single new subscriber. The welcome email carries that
// subscriber's personal unsubscribe link.
func (n *Notifier) SendWelcome(ctx context.Context, product models.Product, email string) error {
	const op = "notifier.SendWelcome"

	token, err := n.tokens.UnsubscribeToken(product.URL, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	unsubscribeURL := fmt.Sprintf("%s/unsubscribe?token=%s", n.baseURL, token)

	subject, body, err := renderEmail(TypeWelcome, product, unsubscribeURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := n.queue.PublishJSON(ctx, models.EmailMessage{
		To:      []string{email},
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n.log.Info("welcome email queued", slog.String("url", product.URL))

	return nil
}

// NotifyBestEffort logs and swallows dispatch failures so one product's
// notification can never abort a reconciliation run.
func (n *Notifier) NotifyBestEffort(ctx context.Context, product models.Product, notifType Type) {
	if err := n.Notify(ctx, product, notifType); err != nil {
		n.log.Error("failed to dispatch notification",
			sl.Err(err),
			slog.String("url", product.URL),
			slog.String("type", string(notifType)),
		)
	}
}

type emailData struct {
	Title          string
	URL            string
	Currency       string
	CurrentPrice   float64
	LowestPrice    float64
	DiscountRate   int
	UnsubscribeURL string
}

var emailTemplates = map[Type]*template.Template{
	TypeWelcome: template.Must(template.New("welcome").Parse(
		`<div>
<h2>Welcome to WisePrice 🚀</h2>
<p>You are now tracking <a href="{{.URL}}">{{.Title}}</a>.</p>
<p>We will email you when it comes back in stock, hits its lowest price ever, or goes on a steep discount.</p>
{{if .UnsubscribeURL}}<p><a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>{{end}}
</div>`)),
	TypeChangeOfStock: template.Must(template.New("stock").Parse(
		`<div>
<h2>{{.Title}} is back in stock!</h2>
<p>Grab it before it sells out again: <a href="{{.URL}}">buy now</a>.</p>
</div>`)),
	TypeLowestPrice: template.Must(template.New("lowest").Parse(
		`<div>
<h2>Lowest price ever for {{.Title}}</h2>
<p>It is now at {{.Currency}}{{.CurrentPrice}}, the lowest we have ever seen.</p>
<p><a href="{{.URL}}">Check it out</a>.</p>
</div>`)),
	TypeThresholdMet: template.Must(template.New("threshold").Parse(
		`<div>
<h2>Deal alert for {{.Title}}</h2>
<p>It is selling at a {{.DiscountRate}}% discount: {{.Currency}}{{.CurrentPrice}}.</p>
<p><a href="{{.URL}}">Check it out</a>.</p>
</div>`)),
}

var emailSubjects = map[Type]string{
	TypeWelcome:       "Welcome to price tracking for %s",
	TypeChangeOfStock: "%s is now back in stock!",
	TypeLowestPrice:   "Lowest price alert for %s",
	TypeThresholdMet:  "Discount alert for %s",
}

func renderEmail(notifType Type, product models.Product, unsubscribeURL string) (subject, body string, err error) {
	tmpl, ok := emailTemplates[notifType]
	if !ok {
		return "", "", fmt.Errorf("unknown notification type: %s", notifType)
	}

	title := product.Title
	if len(title) > 60 {
		title = title[:60] + "..."
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, emailData{
		Title:          title,
		URL:            product.URL,
		Currency:       product.Currency,
		CurrentPrice:   product.CurrentPrice,
		LowestPrice:    product.LowestPrice,
		DiscountRate:   product.DiscountRate,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", "", err
	}

	return fmt.Sprintf(emailSubjects[notifType], title), buf.String(), nil
}
