package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"gorm.io/gorm"
)

// Location is a stand or storage site. It can be the source or destination
// of a transfer and the receiving side of a purchase invoice.
type Location struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Archived  *bool     `gorm:"not null;default:false" json:"archived"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LocationStandItem pins an item to a location's stand sheet, with the
// expected on-hand count and an optional purchase GL code override that
// takes precedence over the item's own code at this location.
type LocationStandItem struct {
	ID               int     `gorm:"primary_key" json:"id"`
	LocationId       int     `gorm:"index:idx_loc_item,unique;not null" json:"location_id"`
	ItemId           int     `gorm:"index:idx_loc_item,unique;not null" json:"item_id"`
	ExpectedCount    float64 `gorm:"not null;default:0" json:"expected_count"`
	PurchaseGLCodeId *int    `gorm:"index" json:"purchase_gl_code_id"`
}

type NewLocation struct {
	Name string `json:"name" binding:"required"`
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	location := Location{
		Name: input.Name,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {

	db := config.GetDB()
	var location Location
	err := db.WithContext(ctx).Take(&location, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &location, nil
}

func GetLocations(ctx context.Context, includeArchived bool) ([]*Location, error) {

	db := config.GetDB()
	var results []*Location
	dbCtx := db.WithContext(ctx)
	if !includeArchived {
		dbCtx = dbCtx.Where("archived = ?", false)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func getLocationsByIds(ctx context.Context, ids []int) (map[int]*Location, error) {

	db := config.GetDB()
	var results []*Location
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return nil, err
	}
	locationMap := make(map[int]*Location, len(results))
	for _, location := range results {
		locationMap[location.ID] = location
	}
	return locationMap, nil
}

// SetStandItemGLCode records or updates a location-level purchase GL code
// override for an item.
func SetStandItemGLCode(ctx context.Context, locationId, itemId int, glCodeId *int) (*LocationStandItem, error) {

	db := config.GetDB()
	var standItem LocationStandItem
	err := db.WithContext(ctx).
		Where("location_id = ? AND item_id = ?", locationId, itemId).
		Take(&standItem).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		standItem = LocationStandItem{
			LocationId: locationId,
			ItemId:     itemId,
		}
	}
	standItem.PurchaseGLCodeId = glCodeId

	err = db.WithContext(ctx).Save(&standItem).Error
	if err != nil {
		return nil, err
	}
	return &standItem, nil
}
