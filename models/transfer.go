package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"gorm.io/gorm"
)

// Transfer moves stock between two locations. Quantities are in each item's
// base unit. Only completed transfers count toward consumption.
type Transfer struct {
	ID             int            `gorm:"primary_key" json:"id"`
	FromLocationId int            `gorm:"index;not null" json:"from_location_id" binding:"required"`
	ToLocationId   int            `gorm:"index;not null" json:"to_location_id" binding:"required"`
	Completed      bool           `gorm:"not null;default:false" json:"completed"`
	DateCreated    time.Time      `gorm:"index;not null" json:"date_created"`
	Items          []TransferItem `gorm:"foreignKey:TransferId" json:"items"`
}

type TransferItem struct {
	ID         int     `gorm:"primary_key" json:"id"`
	TransferId int     `gorm:"index;not null" json:"transfer_id"`
	ItemId     int     `gorm:"index;not null" json:"item_id"`
	Quantity   float64 `gorm:"not null" json:"quantity"`
}

type NewTransfer struct {
	FromLocationId int               `json:"from_location_id" binding:"required"`
	ToLocationId   int               `json:"to_location_id" binding:"required"`
	DateCreated    time.Time         `json:"date_created"`
	Items          []NewTransferItem `json:"items" binding:"required"`
}

type NewTransferItem struct {
	ItemId   int     `json:"item_id" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
}

func (input *NewTransfer) validate() error {
	if input.FromLocationId == input.ToLocationId {
		return errors.New("transfers cannot be made within the same location")
	}
	if len(input.Items) == 0 {
		return errors.New("transfer requires at least one item")
	}
	return nil
}

func CreateTransfer(ctx context.Context, input *NewTransfer) (*Transfer, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	dateCreated := input.DateCreated
	if dateCreated.IsZero() {
		dateCreated = time.Now().UTC()
	}

	transfer := Transfer{
		FromLocationId: input.FromLocationId,
		ToLocationId:   input.ToLocationId,
		DateCreated:    dateCreated,
	}
	for _, line := range input.Items {
		transfer.Items = append(transfer.Items, TransferItem{
			ItemId:   line.ItemId,
			Quantity: line.Quantity,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// CompleteTransfer marks a transfer completed, which makes it visible to
// consumption aggregation.
func CompleteTransfer(ctx context.Context, id int) (*Transfer, error) {

	db := config.GetDB()
	var transfer Transfer
	err := db.WithContext(ctx).Preload("Items").Take(&transfer, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("transfer not found")
		}
		return nil, err
	}

	err = db.WithContext(ctx).Model(&transfer).Update("completed", true).Error
	if err != nil {
		return nil, err
	}
	transfer.Completed = true
	return &transfer, nil
}
