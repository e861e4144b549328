package models_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/models"
	"github.com/shopspring/decimal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// concessionFixture wires one stand selling lemonade in 12oz cups plus a
// second stand used as the transfer counterparty.
type concessionFixture struct {
	cups       *models.Item
	caseUnitId int
	lemonade   *models.Product
	north      *models.Location
	south      *models.Location
	vendor     *models.Vendor
	now        time.Time
}

func seedConcession(t *testing.T, ctx context.Context) *concessionFixture {
	t.Helper()

	cups, err := models.CreateItem(ctx, &models.NewItem{
		Name:     "12oz Cup",
		BaseUnit: "each",
		Cost:     decimal.NewFromFloat(0.08),
		Units: []models.NewItemUnit{
			{Name: "case", Factor: 12, ReceivingDefault: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	north, err := models.CreateLocation(ctx, &models.NewLocation{Name: "North Stand"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	south, err := models.CreateLocation(ctx, &models.NewLocation{Name: "South Stand"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	lemonade, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Lemonade",
		Price: decimal.NewFromFloat(6.50),
		RecipeItems: []models.NewProductRecipeItem{
			{ItemId: cups.ID, Quantity: 2, Countable: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	vendor, err := models.CreateVendor(ctx, &models.NewVendor{Name: "Prairie Paper Supply"})
	if err != nil {
		t.Fatalf("CreateVendor: %v", err)
	}

	now := time.Now().UTC()
	return &concessionFixture{
		cups:       cups,
		caseUnitId: cups.Units[0].ID,
		lemonade:   lemonade,
		north:      north,
		south:      south,
		vendor:     vendor,
		now:        now,
	}
}

func (f *concessionFixture) sellLemonade(t *testing.T, ctx context.Context, locationId int, quantity float64, soldAt time.Time) {
	t.Helper()

	event, err := models.CreateEvent(ctx, "Game Day", soldAt.AddDate(0, 0, -1), soldAt.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	el, err := models.AddEventLocation(ctx, event.ID, locationId)
	if err != nil {
		t.Fatalf("AddEventLocation: %v", err)
	}
	if _, err := models.RecordTerminalSale(ctx, el.ID, f.lemonade.ID, quantity, soldAt); err != nil {
		t.Fatalf("RecordTerminalSale: %v", err)
	}
}

func (f *concessionFixture) completedTransfer(t *testing.T, ctx context.Context, fromId, toId int, quantity float64, at time.Time) {
	t.Helper()

	transfer, err := models.CreateTransfer(ctx, &models.NewTransfer{
		FromLocationId: fromId,
		ToLocationId:   toId,
		DateCreated:    at,
		Items:          []models.NewTransferItem{{ItemId: f.cups.ID, Quantity: quantity}},
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if _, err := models.CompleteTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("CompleteTransfer: %v", err)
	}
}

func findRecommendation(recs []models.ForecastRecommendation, itemId, locationId int) *models.ForecastRecommendation {
	for i := range recs {
		if recs[i].Item.ID == itemId && recs[i].Location.ID == locationId {
			return &recs[i]
		}
	}
	return nil
}

func TestBuildRecommendationsEndToEnd(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	// Five sales of one lemonade at North: 5 x 1 x 2 cups = 10 each.
	for day := 0; day < 5; day++ {
		f.sellLemonade(t, ctx, f.north.ID, 1, f.now.AddDate(0, 0, -day))
	}
	// North sends 2 out, receives 1.
	f.completedTransfer(t, ctx, f.north.ID, f.south.ID, 2, f.now.AddDate(0, 0, -2))
	f.completedTransfer(t, ctx, f.south.ID, f.north.ID, 1, f.now.AddDate(0, 0, -1))
	// Two cups received on an invoice at North.
	if _, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		LocationId:   f.north.ID,
		ReceivedDate: f.now.AddDate(0, 0, -3),
		Items:        []models.NewPurchaseInvoiceItem{{ItemId: f.cups.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	// Three cases on order and not yet received: 36 each.
	if _, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VendorId: f.vendor.ID,
		Items:    []models.NewPurchaseOrderItem{{ItemId: f.cups.ID, UnitId: &f.caseUnitId, Quantity: 3}},
	}); err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}

	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North; got %d rows", len(recs))
	}
	if !almostEqual(rec.History.SalesQty, 10) {
		t.Fatalf("SalesQty = %v, want 10", rec.History.SalesQty)
	}
	if !almostEqual(rec.History.TransferOutQty, 2) || !almostEqual(rec.History.TransferInQty, 1) {
		t.Fatalf("transfers = out %v in %v, want out 2 in 1", rec.History.TransferOutQty, rec.History.TransferInQty)
	}
	if !almostEqual(rec.History.InvoiceQty, 2) {
		t.Fatalf("InvoiceQty = %v, want 2", rec.History.InvoiceQty)
	}
	if !almostEqual(rec.History.OpenPOQty, 36) {
		t.Fatalf("OpenPOQty = %v, want 36", rec.History.OpenPOQty)
	}
	if !almostEqual(rec.BaseConsumption, 12) {
		t.Fatalf("BaseConsumption = %v, want 12", rec.BaseConsumption)
	}
	// Neutral multipliers: adjusted demand equals base consumption.
	if !almostEqual(rec.AdjustedDemand, rec.BaseConsumption) {
		t.Fatalf("AdjustedDemand = %v, want %v", rec.AdjustedDemand, rec.BaseConsumption)
	}
	// Incoming 39 swamps demand 12; clamp at zero.
	if !almostEqual(rec.RecommendedQuantity, 0) {
		t.Fatalf("RecommendedQuantity = %v, want 0", rec.RecommendedQuantity)
	}
	if rec.DefaultUnitId == nil || *rec.DefaultUnitId != f.caseUnitId {
		t.Fatalf("DefaultUnitId = %v, want %d", rec.DefaultUnitId, f.caseUnitId)
	}
	if rec.History.LastActivity == nil {
		t.Fatalf("LastActivity is nil")
	}
	wantDate := f.now.AddDate(0, 0, 3)
	if d := rec.SuggestedDeliveryDate.Sub(wantDate); d < -time.Minute || d > time.Minute {
		t.Fatalf("SuggestedDeliveryDate = %v, want ~%v", rec.SuggestedDeliveryDate, wantDate)
	}
}

func TestRecommendationWithoutOpenOrders(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	for day := 0; day < 5; day++ {
		f.sellLemonade(t, ctx, f.north.ID, 1, f.now.AddDate(0, 0, -day))
	}
	f.completedTransfer(t, ctx, f.north.ID, f.south.ID, 2, f.now.AddDate(0, 0, -2))
	f.completedTransfer(t, ctx, f.south.ID, f.north.ID, 1, f.now.AddDate(0, 0, -1))
	if _, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		LocationId:   f.north.ID,
		ReceivedDate: f.now.AddDate(0, 0, -3),
		Items:        []models.NewPurchaseInvoiceItem{{ItemId: f.cups.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North")
	}
	// base 12 minus incoming 3 (transfer in 1 + invoice 2).
	if !almostEqual(rec.RecommendedQuantity, 9) {
		t.Fatalf("RecommendedQuantity = %v, want 9", rec.RecommendedQuantity)
	}
}

func TestOpenOrdersOnlyReachExistingLedgerRows(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	// An open order with no recorded activity anywhere must not create rows.
	if _, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VendorId: f.vendor.ID,
		Items:    []models.NewPurchaseOrderItem{{ItemId: f.cups.ID, Quantity: 5}},
	}); err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d rows, want 0", len(recs))
	}

	// Once activity exists at both stands the order reaches each row.
	f.sellLemonade(t, ctx, f.north.ID, 1, f.now)
	f.sellLemonade(t, ctx, f.south.ID, 1, f.now)
	recs, err = forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d rows, want 2", len(recs))
	}
	for i := range recs {
		if !almostEqual(recs[i].History.OpenPOQty, 5) {
			t.Fatalf("OpenPOQty = %v at %s, want 5", recs[i].History.OpenPOQty, recs[i].Location.Name)
		}
	}
}

func TestMultiplierScaling(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	f.sellLemonade(t, ctx, f.north.ID, 3, f.now)

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{
		AttendanceFactor: 2,
		WeatherFactor:    1.5,
		PromotionFactor:  0, // non-positive, coerced to 1
	})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North")
	}
	if !almostEqual(rec.BaseConsumption, 6) {
		t.Fatalf("BaseConsumption = %v, want 6", rec.BaseConsumption)
	}
	if !almostEqual(rec.AdjustedDemand, 18) {
		t.Fatalf("AdjustedDemand = %v, want 18 (6 x 2 x 1.5)", rec.AdjustedDemand)
	}
	if !almostEqual(rec.RecommendedQuantity, 18) {
		t.Fatalf("RecommendedQuantity = %v, want 18", rec.RecommendedQuantity)
	}
}

func TestLocationFilterSplitsTransferSides(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	f.completedTransfer(t, ctx, f.north.ID, f.south.ID, 4, f.now.AddDate(0, 0, -1))

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{
		LocationIds: []int{f.south.ID},
	})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d rows, want only the receiving side", len(recs))
	}
	rec := recs[0]
	if rec.Location.ID != f.south.ID {
		t.Fatalf("Location = %d, want %d", rec.Location.ID, f.south.ID)
	}
	if !almostEqual(rec.History.TransferInQty, 4) || !almostEqual(rec.History.TransferOutQty, 0) {
		t.Fatalf("transfers = in %v out %v, want in 4 out 0", rec.History.TransferInQty, rec.History.TransferOutQty)
	}
}

func TestIncompleteTransfersIgnored(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	if _, err := models.CreateTransfer(ctx, &models.NewTransfer{
		FromLocationId: f.north.ID,
		ToLocationId:   f.south.ID,
		DateCreated:    f.now,
		Items:          []models.NewTransferItem{{ItemId: f.cups.ID, Quantity: 4}},
	}); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d rows from an in-flight transfer, want 0", len(recs))
	}
}

func TestSalesOutsideLookbackExcluded(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	f.sellLemonade(t, ctx, f.north.ID, 2, f.now.AddDate(0, 0, -45))
	f.sellLemonade(t, ctx, f.north.ID, 1, f.now.AddDate(0, 0, -5))

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North")
	}
	if !almostEqual(rec.History.SalesQty, 2) {
		t.Fatalf("SalesQty = %v, want 2 (only the recent sale)", rec.History.SalesQty)
	}
}

func TestLastActivityAdvancedOnlyByDemandActivity(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	soldAt := f.now.AddDate(0, 0, -5)
	f.sellLemonade(t, ctx, f.north.ID, 1, soldAt)
	// Newer supply-side activity: an invoice and an open order. Neither is
	// demand, so neither moves the activity timestamp.
	if _, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		LocationId:   f.north.ID,
		ReceivedDate: f.now.AddDate(0, 0, -1),
		Items:        []models.NewPurchaseInvoiceItem{{ItemId: f.cups.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if _, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VendorId: f.vendor.ID,
		Items:    []models.NewPurchaseOrderItem{{ItemId: f.cups.ID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North")
	}
	if rec.History.LastActivity == nil {
		t.Fatalf("LastActivity is nil")
	}
	if d := rec.History.LastActivity.Sub(soldAt); d < -time.Minute || d > time.Minute {
		t.Fatalf("LastActivity = %v, want sale time %v (invoices and orders must not advance it)",
			rec.History.LastActivity, soldAt)
	}

	// A newer completed transfer is demand-side and does advance it.
	transferredAt := f.now.AddDate(0, 0, -2)
	f.completedTransfer(t, ctx, f.north.ID, f.south.ID, 1, transferredAt)
	recs, err = forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec = findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil || rec.History.LastActivity == nil {
		t.Fatalf("missing recommendation or LastActivity after transfer")
	}
	if d := rec.History.LastActivity.Sub(transferredAt); d < -time.Minute || d > time.Minute {
		t.Fatalf("LastActivity = %v, want transfer time %v", rec.History.LastActivity, transferredAt)
	}
}

func TestGLCodeFilterHonorsLocationOverride(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	paper, err := models.CreateGLCode(ctx, &models.NewGLCode{Code: "5200", Description: "Paper goods"})
	if err != nil {
		t.Fatalf("CreateGLCode: %v", err)
	}
	beverage, err := models.CreateGLCode(ctx, &models.NewGLCode{Code: "5100", Description: "Beverage supplies"})
	if err != nil {
		t.Fatalf("CreateGLCode: %v", err)
	}
	db := config.GetDB()
	if err := db.Model(&models.Item{}).Where("id = ?", f.cups.ID).
		Update("purchase_gl_code_id", paper.ID).Error; err != nil {
		t.Fatalf("assign gl code: %v", err)
	}
	// South books cups against beverage spend.
	if _, err := models.SetStandItemGLCode(ctx, f.south.ID, f.cups.ID, &beverage.ID); err != nil {
		t.Fatalf("SetStandItemGLCode: %v", err)
	}

	f.sellLemonade(t, ctx, f.north.ID, 1, f.now)
	f.sellLemonade(t, ctx, f.south.ID, 1, f.now)

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{
		PurchaseGLCodeIds: []int{beverage.ID},
	})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d rows, want 1 (only the overridden location)", len(recs))
	}
	if recs[0].Location.ID != f.south.ID {
		t.Fatalf("Location = %d, want %d", recs[0].Location.ID, f.south.ID)
	}

	recs, err = forecaster.BuildRecommendations(ctx, &models.RecommendationParams{
		PurchaseGLCodeIds: []int{paper.ID},
	})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 1 || recs[0].Location.ID != f.north.ID {
		t.Fatalf("paper filter: got %d rows, want only North", len(recs))
	}
}

func TestStaleItemReferencesDropped(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	f.sellLemonade(t, ctx, f.north.ID, 1, f.now)

	db := config.GetDB()
	if err := db.Delete(&models.Item{}, f.cups.ID).Error; err != nil {
		t.Fatalf("delete item: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d rows referencing a deleted item, want 0", len(recs))
	}
}

func TestRecommendationOrdering(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	napkins, err := models.CreateItem(ctx, &models.NewItem{Name: "Napkin", BaseUnit: "each"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	combo, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Combo",
		RecipeItems: []models.NewProductRecipeItem{
			{ItemId: napkins.ID, Quantity: 1, Countable: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	// Cups at North outsell napkins at South.
	f.sellLemonade(t, ctx, f.north.ID, 5, f.now)
	event, err := models.CreateEvent(ctx, "Game Day", f.now.AddDate(0, 0, -1), f.now)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	el, err := models.AddEventLocation(ctx, event.ID, f.south.ID)
	if err != nil {
		t.Fatalf("AddEventLocation: %v", err)
	}
	if _, err := models.RecordTerminalSale(ctx, el.ID, combo.ID, 3, f.now); err != nil {
		t.Fatalf("RecordTerminalSale: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d rows, want 2", len(recs))
	}
	if recs[0].RecommendedQuantity < recs[1].RecommendedQuantity {
		t.Fatalf("rows not sorted by recommended quantity desc: %v then %v",
			recs[0].RecommendedQuantity, recs[1].RecommendedQuantity)
	}
	if recs[0].Item.ID != f.cups.ID {
		t.Fatalf("first row item = %d, want cups %d", recs[0].Item.ID, f.cups.ID)
	}
}

func TestUncountableRecipeLinesExcluded(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	ice, err := models.CreateItem(ctx, &models.NewItem{Name: "Ice", BaseUnit: "oz"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	slush, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Slush",
		RecipeItems: []models.NewProductRecipeItem{
			{ItemId: f.cups.ID, Quantity: 1, Countable: true},
			{ItemId: ice.ID, Quantity: 6, Countable: false},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	event, err := models.CreateEvent(ctx, "Game Day", f.now.AddDate(0, 0, -1), f.now)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	el, err := models.AddEventLocation(ctx, event.ID, f.north.ID)
	if err != nil {
		t.Fatalf("AddEventLocation: %v", err)
	}
	if _, err := models.RecordTerminalSale(ctx, el.ID, slush.ID, 2, f.now); err != nil {
		t.Fatalf("RecordTerminalSale: %v", err)
	}

	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d rows, want 1 (ice is not countable)", len(recs))
	}
	if recs[0].Item.ID != f.cups.ID {
		t.Fatalf("row item = %d, want cups %d", recs[0].Item.ID, f.cups.ID)
	}
}
