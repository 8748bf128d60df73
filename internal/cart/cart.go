package cart

import (
	"time"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type Cart struct {
	ID        string             `json:"cartId"`
	UserID    string             `json:"userId"`
	Lines     []pricing.CartLine `json:"lines"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
