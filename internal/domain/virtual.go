package domain

import (
	"time"
)

const (
	ItemCandle = "candle"
	ItemFlower = "flower"
)

// ClockSkewTolerance lets an item whose createdAt is slightly ahead of the
// local clock count as already placed.
const ClockSkewTolerance = 5 * time.Minute

// VirtualItem is a candle or flower left on a memorial. Duration is in hours;
// the expiry is always derived from CreatedAt and never stored.
type VirtualItem struct {
	ID        string    `json:"_id,omitempty"`
	Type      string    `json:"type"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Duration  int       `json:"duration"`
	Author    Ref       `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v VirtualItem) Lifetime() time.Duration {
	if v.Duration <= 0 {
		return 0
	}
	return time.Duration(v.Duration) * time.Hour
}

func (v VirtualItem) ExpiresAt() time.Time {
	return v.CreatedAt.Add(v.Lifetime())
}

// IsActive is the one place the active window is computed:
// [createdAt-ClockSkewTolerance, createdAt+duration).
func IsActive(v VirtualItem, now time.Time) bool {
	if v.CreatedAt.IsZero() || v.Lifetime() == 0 {
		return false
	}
	if now.Before(v.CreatedAt.Add(-ClockSkewTolerance)) {
		return false
	}
	return now.Before(v.ExpiresAt())
}

// Remaining is the time left before expiry, zero for inactive items.
func Remaining(v VirtualItem, now time.Time) time.Duration {
	if !IsActive(v, now) {
		return 0
	}
	left := v.ExpiresAt().Sub(now)
	if left > v.Lifetime() {
		return v.Lifetime()
	}
	return left
}

func ActiveItems(items []VirtualItem, now time.Time) []VirtualItem {
	active := make([]VirtualItem, 0, len(items))
	for _, item := range items {
		if IsActive(item, now) {
			active = append(active, item)
		}
	}
	return active
}

// CountActive returns the number of active candles and flowers.
func CountActive(items []VirtualItem, now time.Time) (candles, flowers int) {
	for _, item := range items {
		if !IsActive(item, now) {
			continue
		}
		switch item.Type {
		case ItemCandle:
			candles++
		case ItemFlower:
			flowers++
		}
	}
	return candles, flowers
}
