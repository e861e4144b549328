package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseInvoice records goods actually received at a location.
type PurchaseInvoice struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	PurchaseOrderId *int                  `gorm:"index" json:"purchase_order_id"`
	LocationId      int                   `gorm:"index;not null" json:"location_id" binding:"required"`
	ReceivedDate    time.Time             `gorm:"index;not null" json:"received_date"`
	DeliveryCharge  decimal.Decimal       `gorm:"type:decimal(20,8);default:0" json:"delivery_charge"`
	Items           []PurchaseInvoiceItem `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

type PurchaseInvoiceItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	ItemId    int             `gorm:"index;not null" json:"item_id"`
	UnitId    *int            `gorm:"index" json:"unit_id"`
	Quantity  float64         `gorm:"not null" json:"quantity"`
	Cost      decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"cost"`
}

type NewPurchaseInvoice struct {
	PurchaseOrderId *int                     `json:"purchase_order_id"`
	LocationId      int                      `json:"location_id" binding:"required"`
	ReceivedDate    time.Time                `json:"received_date"`
	DeliveryCharge  decimal.Decimal          `json:"delivery_charge"`
	Items           []NewPurchaseInvoiceItem `json:"items" binding:"required"`
}

type NewPurchaseInvoiceItem struct {
	ItemId   int             `json:"item_id" binding:"required"`
	UnitId   *int            `json:"unit_id"`
	Quantity float64         `json:"quantity" binding:"required"`
	Cost     decimal.Decimal `json:"cost"`
}

func CreatePurchaseInvoice(ctx context.Context, input *NewPurchaseInvoice) (*PurchaseInvoice, error) {

	if len(input.Items) == 0 {
		return nil, errors.New("invoice requires at least one item")
	}

	receivedDate := input.ReceivedDate
	if receivedDate.IsZero() {
		receivedDate = time.Now().UTC()
	}

	invoice := PurchaseInvoice{
		PurchaseOrderId: input.PurchaseOrderId,
		LocationId:      input.LocationId,
		ReceivedDate:    receivedDate,
		DeliveryCharge:  input.DeliveryCharge,
	}
	for _, line := range input.Items {
		invoice.Items = append(invoice.Items, PurchaseInvoiceItem{
			ItemId:   line.ItemId,
			UnitId:   line.UnitId,
			Quantity: line.Quantity,
			Cost:     line.Cost,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ItemTotal sums line cost across the invoice.
func (invoice *PurchaseInvoice) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range invoice.Items {
		total = total.Add(line.Cost.Mul(decimal.NewFromFloat(line.Quantity)))
	}
	return total
}

// Total is the invoice grand total including the delivery charge.
func (invoice *PurchaseInvoice) Total() decimal.Decimal {
	return invoice.ItemTotal().Add(invoice.DeliveryCharge)
}

func GetPurchaseInvoice(ctx context.Context, id int) (*PurchaseInvoice, error) {

	db := config.GetDB()
	var invoice PurchaseInvoice
	err := db.WithContext(ctx).Preload("Items").Take(&invoice, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
