package models

import (
	"log"

	"github.com/0xCarti/invoicemanager/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&GLCode{},
		&Item{},
		&ItemUnit{},
		&Location{},
		&LocationStandItem{},
		&Product{},
		&ProductRecipeItem{},
		&Event{},
		&EventLocation{},
		&TerminalSale{},
		&Transfer{},
		&TransferItem{},
		&Vendor{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
		&PurchaseInvoice{},
		&PurchaseInvoiceItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
