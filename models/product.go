package models

import (
	"context"
	"errors"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a menu product sold at the terminal. Its recipe lines describe
// how much of each stock item one sold unit consumes.
type Product struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	Name        string              `gorm:"size:100;not null" json:"name" binding:"required"`
	Price       decimal.Decimal     `gorm:"type:decimal(20,8);default:0" json:"price"`
	Cost        decimal.Decimal     `gorm:"type:decimal(20,8);default:0" json:"cost"`
	RecipeItems []ProductRecipeItem `gorm:"foreignKey:ProductId" json:"recipe_items"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductRecipeItem is one recipe line: selling Quantity-per-unit of the
// item, optionally measured in an alternate unit. Only countable lines
// participate in consumption aggregation.
type ProductRecipeItem struct {
	ID        int     `gorm:"primary_key" json:"id"`
	ProductId int     `gorm:"index;not null" json:"product_id"`
	ItemId    int     `gorm:"index;not null" json:"item_id"`
	UnitId    *int    `gorm:"index" json:"unit_id"`
	Quantity  float64 `gorm:"not null" json:"quantity"`
	Countable bool    `gorm:"not null;default:false" json:"countable"`
}

type NewProduct struct {
	Name        string                 `json:"name" binding:"required"`
	Price       decimal.Decimal        `json:"price"`
	Cost        decimal.Decimal        `json:"cost"`
	RecipeItems []NewProductRecipeItem `json:"recipe_items"`
}

type NewProductRecipeItem struct {
	ItemId    int     `json:"item_id" binding:"required"`
	UnitId    *int    `json:"unit_id"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Countable bool    `json:"countable"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	product := Product{
		Name:  input.Name,
		Price: input.Price,
		Cost:  input.Cost,
	}
	for _, line := range input.RecipeItems {
		product.RecipeItems = append(product.RecipeItems, ProductRecipeItem{
			ItemId:    line.ItemId,
			UnitId:    line.UnitId,
			Quantity:  line.Quantity,
			Countable: line.Countable,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {

	db := config.GetDB()
	var product Product
	err := db.WithContext(ctx).Preload("RecipeItems").Take(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func GetProducts(ctx context.Context, name *string) ([]*Product, error) {

	db := config.GetDB()
	var results []*Product
	dbCtx := db.WithContext(ctx).Preload("RecipeItems")
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
