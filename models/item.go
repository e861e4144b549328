package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item is a purchasable stock item. Quantity and cost are stored in the
// item's base unit; alternate units convert to it through ItemUnit.Factor.
type Item struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	BaseUnit         string          `gorm:"size:20;not null" json:"base_unit" binding:"required"`
	Cost             decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"cost"`
	PurchaseGLCodeId *int            `gorm:"index" json:"purchase_gl_code_id"`
	Archived         *bool           `gorm:"not null;default:false" json:"archived"`
	Units            []ItemUnit      `gorm:"foreignKey:ItemId" json:"units"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ItemUnit is an alternate unit for an item. Factor converts one of this
// unit into base units. At most one unit per item carries each default flag.
type ItemUnit struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ItemId           int       `gorm:"index;not null" json:"item_id"`
	Name             string    `gorm:"size:50;not null" json:"name" binding:"required"`
	Factor           float64   `gorm:"not null" json:"factor" binding:"required"`
	ReceivingDefault bool      `gorm:"not null;default:false" json:"receiving_default"`
	TransferDefault  bool      `gorm:"not null;default:false" json:"transfer_default"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewItem struct {
	Name             string          `json:"name" binding:"required"`
	BaseUnit         string          `json:"base_unit" binding:"required"`
	Cost             decimal.Decimal `json:"cost"`
	PurchaseGLCodeId *int            `json:"purchase_gl_code_id"`
	Units            []NewItemUnit   `json:"units"`
}

type NewItemUnit struct {
	Name             string  `json:"name" binding:"required"`
	Factor           float64 `json:"factor" binding:"required"`
	ReceivingDefault bool    `json:"receiving_default"`
	TransferDefault  bool    `json:"transfer_default"`
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	item := Item{
		Name:             input.Name,
		BaseUnit:         input.BaseUnit,
		Cost:             input.Cost,
		PurchaseGLCodeId: input.PurchaseGLCodeId,
	}
	for _, u := range input.Units {
		item.Units = append(item.Units, ItemUnit{
			Name:             u.Name,
			Factor:           u.Factor,
			ReceivingDefault: u.ReceivingDefault,
			TransferDefault:  u.TransferDefault,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem fetches an item with its units in declaration order.
func GetItem(ctx context.Context, id int) (*Item, error) {

	db := config.GetDB()
	var item Item
	err := db.WithContext(ctx).
		Preload("Units", func(tx *gorm.DB) *gorm.DB { return tx.Order("item_units.id") }).
		Take(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func GetItems(ctx context.Context, name *string) ([]*Item, error) {

	db := config.GetDB()
	var results []*Item
	dbCtx := db.WithContext(ctx).
		Preload("Units", func(tx *gorm.DB) *gorm.DB { return tx.Order("item_units.id") })
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func getItemsByIds(ctx context.Context, ids []int) (map[int]*Item, error) {

	db := config.GetDB()
	var results []*Item
	err := db.WithContext(ctx).
		Preload("Units", func(tx *gorm.DB) *gorm.DB { return tx.Order("item_units.id") }).
		Where("id IN ?", ids).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	itemMap := make(map[int]*Item, len(results))
	for _, item := range results {
		itemMap[item.ID] = item
	}
	return itemMap, nil
}

// UnitFactor resolves the multiplicative factor converting a quantity in the
// referenced unit into base units. A nil unit reference means the quantity is
// already in base units.
func UnitFactor(ctx context.Context, unitId *int) (float64, error) {
	if unitId == nil {
		return 1, nil
	}

	db := config.GetDB()
	var unit ItemUnit
	err := db.WithContext(ctx).Take(&unit, *unitId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return unit.Factor, nil
}

// DefaultReceivingUnitId suggests the unit a replenishment order should be
// placed in: the unit flagged as receiving default, then the first declared
// unit, then nil when the item has no alternate units. Units must be loaded.
func (item *Item) DefaultReceivingUnitId() *int {
	for i := range item.Units {
		if item.Units[i].ReceivingDefault {
			return &item.Units[i].ID
		}
	}
	if len(item.Units) > 0 {
		return &item.Units[0].ID
	}
	return nil
}

// PurchaseGLCodeForLocation resolves the item's effective purchase GL code at
// a location. A LocationStandItem override wins over the item's own code.
// Returns (nil, nil) when no code resolves.
func (item *Item) PurchaseGLCodeForLocation(ctx context.Context, locationId int) (*GLCode, error) {

	db := config.GetDB()

	var standItem LocationStandItem
	err := db.WithContext(ctx).
		Where("location_id = ? AND item_id = ?", locationId, item.ID).
		Take(&standItem).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	codeId := item.PurchaseGLCodeId
	if err == nil && standItem.PurchaseGLCodeId != nil {
		codeId = standItem.PurchaseGLCodeId
	}
	if codeId == nil {
		return nil, nil
	}

	var code GLCode
	err = db.WithContext(ctx).Take(&code, *codeId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}
