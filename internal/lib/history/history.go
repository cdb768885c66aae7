package history

import "github.com/Vicktor007/WisePrice/internal/models"

// Lowest returns the smallest observed price, or 0 for an empty history.
func Lowest(items []models.PricePoint) float64 {
	if len(items) == 0 {
		return 0
	}

	lowest := items[0].Price
	for _, item := range items[1:] {
		if item.Price < lowest {
			lowest = item.Price
		}
	}

	return lowest
}

// Highest returns the largest observed price, or 0 for an empty history.
func Highest(items []models.PricePoint) float64 {
	if len(items) == 0 {
		return 0
	}

	highest := items[0].Price
	for _, item := range items[1:] {
		if item.Price > highest {
			highest = item.Price
		}
	}

	return highest
}

// Average returns the arithmetic mean of all observed prices, or 0 for an
// empty history.
func Average(items []models.PricePoint) float64 {
	if len(items) == 0 {
		return 0
	}

	var sum float64
	for _, item := range items {
		sum += item.Price
	}

	return sum / float64(len(items))
}
