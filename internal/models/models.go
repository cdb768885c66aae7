package models

import "time"

// DeletionReason explains why a tracked product was removed from the database.
type DeletionReason string

const (
	ReasonNotFound       DeletionReason = "NOT_FOUND"
	ReasonSoft404NoTitle DeletionReason = "SOFT_404_NO_TITLE"
	ReasonSoft404Header  DeletionReason = "SOFT_404_HEADER_MATCH"
	ReasonSoft404Message DeletionReason = "SOFT_404_MESSAGE_MATCH"
	ReasonUnknownError   DeletionReason = "UNKNOWN_ERROR"
)

type PricePoint struct {
	Price float64   `json:"price"`
	Date  time.Time `json:"date"`
}

type Subscriber struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is one tracked listing. The URL is the unique key; the price
// history is append-only and lowest/highest/average are always recomputed
// from the full history, never mutated independently.
type Product struct {
	ID            int64        `json:"id"`
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	Currency      string       `json:"currency"`
	Image         string       `json:"image"`
	Description   string       `json:"description"`
	CurrentPrice  float64      `json:"currentPrice"`
	OriginalPrice float64      `json:"originalPrice"`
	DiscountRate  int          `json:"discountRate"`
	Category      string       `json:"category"`
	ReviewsCount  int          `json:"reviewsCount"`
	Stars         float64      `json:"stars"`
	IsOutOfStock  bool         `json:"isOutOfStock"`
	LowestPrice   float64      `json:"lowestPrice"`
	HighestPrice  float64      `json:"highestPrice"`
	AveragePrice  float64      `json:"averagePrice"`
	FailureCount  int          `json:"-"`
	PriceHistory  []PricePoint `json:"priceHistory"`
	Users         []Subscriber `json:"users"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Snapshot is the result of one successful scrape: the scalar product fields
// without history or subscribers.
type Snapshot struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Currency      string  `json:"currency"`
	Image         string  `json:"image"`
	Description   string  `json:"description"`
	CurrentPrice  float64 `json:"currentPrice"`
	OriginalPrice float64 `json:"originalPrice"`
	DiscountRate  int     `json:"discountRate"`
	Category      string  `json:"category"`
	ReviewsCount  int     `json:"reviewsCount"`
	Stars         float64 `json:"stars"`
	IsOutOfStock  bool    `json:"isOutOfStock"`
}

type DeletedProduct struct {
	URL    string         `json:"url"`
	Reason DeletionReason `json:"reason"`
}

// Report is the outcome of a full reconciliation run. Items already processed
// when a run is cut short stay updated or deleted; the report covers exactly
// what was done.
type Report struct {
	UpdatedProducts []Product        `json:"updatedProducts"`
	DeletedProducts []DeletedProduct `json:"deletedProducts"`
}

// EmailMessage is the payload carried on the notifications queue between the
// notifier and the mailer.
type EmailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}
