package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PurchaseOrder is goods ordered from a vendor. While Received is false its
// lines count as incoming supply for every location stocking the item.
type PurchaseOrder struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	OrderNumber    string              `gorm:"size:30;uniqueIndex;not null" json:"order_number"`
	VendorId       int                 `gorm:"index;not null" json:"vendor_id" binding:"required"`
	OrderDate      time.Time           `gorm:"not null" json:"order_date"`
	ExpectedDate   time.Time           `gorm:"not null" json:"expected_date"`
	Received       bool                `gorm:"index;not null;default:false" json:"received"`
	DeliveryCharge decimal.Decimal     `gorm:"type:decimal(20,8);default:0" json:"delivery_charge"`
	Items          []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderId" json:"items"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderItem struct {
	ID              int     `gorm:"primary_key" json:"id"`
	PurchaseOrderId int     `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int     `gorm:"index;not null" json:"item_id"`
	UnitId          *int    `gorm:"index" json:"unit_id"`
	Quantity        float64 `gorm:"not null" json:"quantity"`
}

type NewPurchaseOrder struct {
	VendorId       int                    `json:"vendor_id" binding:"required"`
	OrderDate      time.Time              `json:"order_date"`
	ExpectedDate   time.Time              `json:"expected_date"`
	DeliveryCharge decimal.Decimal        `json:"delivery_charge"`
	Items          []NewPurchaseOrderItem `json:"items" binding:"required"`
}

type NewPurchaseOrderItem struct {
	ItemId   int     `json:"item_id" binding:"required"`
	UnitId   *int    `json:"unit_id"`
	Quantity float64 `json:"quantity" binding:"required"`
}

func newOrderNumber() string {
	return fmt.Sprintf("PO-%s", strings.ToUpper(uuid.NewString()[:8]))
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {

	if len(input.Items) == 0 {
		return nil, errors.New("purchase order requires at least one item")
	}

	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	expectedDate := input.ExpectedDate
	if expectedDate.IsZero() {
		expectedDate = orderDate.AddDate(0, 0, 3)
	}

	order := PurchaseOrder{
		OrderNumber:    newOrderNumber(),
		VendorId:       input.VendorId,
		OrderDate:      orderDate,
		ExpectedDate:   expectedDate,
		DeliveryCharge: input.DeliveryCharge,
	}
	for _, line := range input.Items {
		order.Items = append(order.Items, PurchaseOrderItem{
			ItemId:   line.ItemId,
			UnitId:   line.UnitId,
			Quantity: line.Quantity,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {

	db := config.GetDB()
	var order PurchaseOrder
	err := db.WithContext(ctx).Preload("Items").Take(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// MarkPurchaseOrderReceived flips the open flag; the order's lines stop
// counting as incoming supply.
func MarkPurchaseOrderReceived(ctx context.Context, id int) (*PurchaseOrder, error) {

	db := config.GetDB()
	var order PurchaseOrder
	err := db.WithContext(ctx).Preload("Items").Take(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	err = db.WithContext(ctx).Model(&order).Update("received", true).Error
	if err != nil {
		return nil, err
	}
	order.Received = true
	return &order, nil
}

// RecommendationSeedLine selects one recommendation row for seeding.
// Quantity overrides the recommended quantity; nil or non-positive falls
// back to it.
type RecommendationSeedLine struct {
	ItemId     int      `json:"item_id" binding:"required"`
	LocationId int      `json:"location_id" binding:"required"`
	Quantity   *float64 `json:"quantity"`
}

// SeedPurchaseOrderFromRecommendations creates a purchase order from a
// caller-selected subset of forecast recommendations. Lines resolving to a
// non-positive quantity are skipped; each line carries the recommendation's
// default receiving unit. A redis lock serializes concurrent seeds
// best-effort; seeding proceeds when the lock is unavailable.
func SeedPurchaseOrderFromRecommendations(
	ctx context.Context,
	vendorId int,
	orderDate time.Time,
	recommendations []ForecastRecommendation,
	selected []RecommendationSeedLine,
) (*PurchaseOrder, error) {

	if len(selected) == 0 {
		return nil, errors.New("no recommendation lines were selected")
	}

	logger := config.GetLogger()
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, err := redisLock.Obtain(ctx, "lock:po-seed", 10*time.Second, nil)
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				logger.WithFields(logrus.Fields{
					"module": "purchaseOrder",
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
			}
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(logrus.Fields{
						"module": "purchaseOrder",
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	recMap := make(map[string]*ForecastRecommendation, len(recommendations))
	for i := range recommendations {
		rec := &recommendations[i]
		recMap[fmt.Sprintf("%d:%d", rec.Item.ID, rec.Location.ID)] = rec
	}

	var lines []NewPurchaseOrderItem
	var suggestedDate time.Time
	for _, sel := range selected {
		rec, ok := recMap[fmt.Sprintf("%d:%d", sel.ItemId, sel.LocationId)]
		if !ok {
			continue
		}
		quantity := rec.RecommendedQuantity
		if sel.Quantity != nil && *sel.Quantity > 0 {
			quantity = *sel.Quantity
		}
		if quantity <= 0 {
			continue
		}
		lines = append(lines, NewPurchaseOrderItem{
			ItemId:   rec.Item.ID,
			UnitId:   rec.DefaultUnitId,
			Quantity: quantity,
		})
		if rec.SuggestedDeliveryDate.After(suggestedDate) {
			suggestedDate = rec.SuggestedDeliveryDate
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("selected lines resolve to no orderable quantity")
	}

	return CreatePurchaseOrder(ctx, &NewPurchaseOrder{
		VendorId:     vendorId,
		OrderDate:    orderDate,
		ExpectedDate: suggestedDate,
		Items:        lines,
	})
}
