// seed-demo loads a small concession dataset: two stands, a warehouse, a
// cup item sold through a lemonade recipe, a completed restock transfer, a
// received invoice and one open purchase order. Running the recommendation
// endpoint right after seeding produces non-trivial numbers.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/models"
	"github.com/shopspring/decimal"
)

func must[T any](v T, err error) T {
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	return v
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	glBeverage := must(models.CreateGLCode(ctx, &models.NewGLCode{Code: "5100", Description: "Beverage supplies"}))
	glPaper := must(models.CreateGLCode(ctx, &models.NewGLCode{Code: "5200", Description: "Paper goods"}))

	cups := must(models.CreateItem(ctx, &models.NewItem{
		Name:             "12oz Cup",
		BaseUnit:         "each",
		Cost:             decimal.NewFromFloat(0.08),
		PurchaseGLCodeId: &glPaper.ID,
		Units: []models.NewItemUnit{
			{Name: "case", Factor: 12, ReceivingDefault: true},
		},
	}))
	lemonadeMix := must(models.CreateItem(ctx, &models.NewItem{
		Name:             "Lemonade Mix",
		BaseUnit:         "oz",
		Cost:             decimal.NewFromFloat(0.12),
		PurchaseGLCodeId: &glBeverage.ID,
		Units: []models.NewItemUnit{
			{Name: "bag", Factor: 64, ReceivingDefault: true},
		},
	}))

	northStand := must(models.CreateLocation(ctx, &models.NewLocation{Name: "North Stand"}))
	southStand := must(models.CreateLocation(ctx, &models.NewLocation{Name: "South Stand"}))
	warehouse := must(models.CreateLocation(ctx, &models.NewLocation{Name: "Warehouse"}))

	// South stand books cups against beverage spend.
	must(models.SetStandItemGLCode(ctx, southStand.ID, cups.ID, &glBeverage.ID))

	lemonade := must(models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Lemonade",
		Price: decimal.NewFromFloat(6.50),
		Cost:  decimal.NewFromFloat(1.20),
		RecipeItems: []models.NewProductRecipeItem{
			{ItemId: cups.ID, Quantity: 2, Countable: true},
			{ItemId: lemonadeMix.ID, Quantity: 4, Countable: true},
		},
	}))

	now := time.Now().UTC()
	event := must(models.CreateEvent(ctx, "Weekend Series", now.AddDate(0, 0, -7), now))
	northEL := must(models.AddEventLocation(ctx, event.ID, northStand.ID))
	southEL := must(models.AddEventLocation(ctx, event.ID, southStand.ID))
	for day := 0; day < 5; day++ {
		soldAt := now.AddDate(0, 0, -day)
		must(models.RecordTerminalSale(ctx, northEL.ID, lemonade.ID, 1, soldAt))
		must(models.RecordTerminalSale(ctx, southEL.ID, lemonade.ID, 2, soldAt))
	}

	transfer := must(models.CreateTransfer(ctx, &models.NewTransfer{
		FromLocationId: warehouse.ID,
		ToLocationId:   northStand.ID,
		DateCreated:    now.AddDate(0, 0, -2),
		Items: []models.NewTransferItem{
			{ItemId: cups.ID, Quantity: 24},
		},
	}))
	must(models.CompleteTransfer(ctx, transfer.ID))

	vendor := must(models.CreateVendor(ctx, &models.NewVendor{
		Name:  "Prairie Paper Supply",
		Phone: "+1 204 555 0138",
		Email: "orders@prairiepaper.example",
	}))

	caseUnit := cups.DefaultReceivingUnitId()
	bagUnit := lemonadeMix.DefaultReceivingUnitId()
	must(models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		LocationId:   warehouse.ID,
		ReceivedDate: now.AddDate(0, 0, -3),
		Items: []models.NewPurchaseInvoiceItem{
			{ItemId: cups.ID, UnitId: caseUnit, Quantity: 10, Cost: decimal.NewFromFloat(0.90)},
			{ItemId: lemonadeMix.ID, UnitId: bagUnit, Quantity: 2, Cost: decimal.NewFromFloat(7.50)},
		},
	}))

	order := must(models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VendorId:     vendor.ID,
		OrderDate:    now.AddDate(0, 0, -1),
		ExpectedDate: now.AddDate(0, 0, 2),
		Items: []models.NewPurchaseOrderItem{
			{ItemId: cups.ID, UnitId: caseUnit, Quantity: 3},
		},
	}))

	fmt.Printf("Seeded demo data: event %q, vendor %q, open order %s\n",
		event.Name, vendor.Name, order.OrderNumber)
}
