package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/utils"
	"gorm.io/gorm"
)

// Vendor supplies purchase orders.
type Vendor struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Email     string    `gorm:"size:120" json:"email"`
	Archived  *bool     `gorm:"not null;default:false" json:"archived"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVendor struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (input *NewVendor) validate() error {
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return err
		}
	}
	return nil
}

func CreateVendor(ctx context.Context, input *NewVendor) (*Vendor, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	vendor := Vendor{
		Name:     input.Name,
		Phone:    input.Phone,
		Email:    input.Email,
		Archived: utils.NewFalse(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// ArchiveVendor hides a vendor from listings without breaking references
// from existing purchase orders.
func ArchiveVendor(ctx context.Context, id int) (*Vendor, error) {

	db := config.GetDB()
	var vendor Vendor
	err := db.WithContext(ctx).Take(&vendor, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	vendor.Archived = utils.NewTrue()
	err = db.WithContext(ctx).Model(&vendor).Update("archived", true).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func GetVendor(ctx context.Context, id int) (*Vendor, error) {

	db := config.GetDB()
	var vendor Vendor
	err := db.WithContext(ctx).Take(&vendor, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vendor, nil
}

func GetVendors(ctx context.Context, includeArchived bool) ([]*Vendor, error) {

	db := config.GetDB()
	var results []*Vendor
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
