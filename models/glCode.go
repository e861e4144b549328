package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"gorm.io/gorm"
)

// GLCode is a general-ledger account code used to classify purchases.
type GLCode struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Code        string    `gorm:"size:20;uniqueIndex;not null" json:"code" binding:"required"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewGLCode struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

func CreateGLCode(ctx context.Context, input *NewGLCode) (*GLCode, error) {

	code := GLCode{
		Code:        input.Code,
		Description: input.Description,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func GetGLCode(ctx context.Context, id int) (*GLCode, error) {

	db := config.GetDB()
	var code GLCode
	err := db.WithContext(ctx).Take(&code, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

func GetGLCodes(ctx context.Context) ([]*GLCode, error) {

	db := config.GetDB()
	var results []*GLCode
	err := db.WithContext(ctx).Order("code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
