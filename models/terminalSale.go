package models

import (
	"context"
	"time"

	"github.com/0xCarti/invoicemanager/config"
)

// Event is a scheduled sales event (game day, concert) during which stands
// operate terminals.
type Event struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// EventLocation places a location into an event; terminal sales are recorded
// against it, which is how a sale resolves to a location.
type EventLocation struct {
	ID         int `gorm:"primary_key" json:"id"`
	EventId    int `gorm:"index;not null" json:"event_id"`
	LocationId int `gorm:"index;not null" json:"location_id"`
}

// TerminalSale is one point-of-sale event for a product.
type TerminalSale struct {
	ID              int       `gorm:"primary_key" json:"id"`
	EventLocationId int       `gorm:"index;not null" json:"event_location_id"`
	ProductId       int       `gorm:"index;not null" json:"product_id"`
	Quantity        float64   `gorm:"not null" json:"quantity"`
	SoldAt          time.Time `gorm:"index;not null" json:"sold_at"`
}

func CreateEvent(ctx context.Context, name string, startDate, endDate time.Time) (*Event, error) {

	event := Event{
		Name:      name,
		StartDate: startDate,
		EndDate:   endDate,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func AddEventLocation(ctx context.Context, eventId, locationId int) (*EventLocation, error) {

	eventLocation := EventLocation{
		EventId:    eventId,
		LocationId: locationId,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&eventLocation).Error
	if err != nil {
		return nil, err
	}
	return &eventLocation, nil
}

func RecordTerminalSale(ctx context.Context, eventLocationId, productId int, quantity float64, soldAt time.Time) (*TerminalSale, error) {

	sale := TerminalSale{
		EventLocationId: eventLocationId,
		ProductId:       productId,
		Quantity:        quantity,
		SoldAt:          soldAt,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
