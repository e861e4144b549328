package models_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/0xCarti/invoicemanager/models"
)

func floatPtr(v float64) *float64 { return &v }

func seedRecommendations(f *concessionFixture, now time.Time) []models.ForecastRecommendation {
	caseUnit := f.caseUnitId
	return []models.ForecastRecommendation{
		{
			Item:                  f.cups,
			Location:              f.north,
			RecommendedQuantity:   9,
			SuggestedDeliveryDate: now.AddDate(0, 0, 3),
			DefaultUnitId:         &caseUnit,
		},
		{
			Item:                  f.cups,
			Location:              f.south,
			RecommendedQuantity:   0,
			SuggestedDeliveryDate: now.AddDate(0, 0, 3),
		},
	}
}

func TestSeedPurchaseOrderFromRecommendations(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	recs := seedRecommendations(f, f.now)

	order, err := models.SeedPurchaseOrderFromRecommendations(ctx, f.vendor.ID, f.now, recs,
		[]models.RecommendationSeedLine{
			{ItemId: f.cups.ID, LocationId: f.north.ID},
		})
	if err != nil {
		t.Fatalf("SeedPurchaseOrderFromRecommendations: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("got %d lines, want 1", len(order.Items))
	}
	line := order.Items[0]
	if line.Quantity != 9 {
		t.Fatalf("Quantity = %v, want recommended 9", line.Quantity)
	}
	if line.UnitId == nil || *line.UnitId != f.caseUnitId {
		t.Fatalf("UnitId = %v, want case unit %d", line.UnitId, f.caseUnitId)
	}
	if !strings.HasPrefix(order.OrderNumber, "PO-") {
		t.Fatalf("OrderNumber = %q, want PO- prefix", order.OrderNumber)
	}
	if order.Received {
		t.Fatalf("new seeded order is marked received")
	}
	// Expected date follows the latest suggested delivery among chosen lines.
	want := f.now.AddDate(0, 0, 3)
	if d := order.ExpectedDate.Sub(want); d < -time.Minute || d > time.Minute {
		t.Fatalf("ExpectedDate = %v, want ~%v", order.ExpectedDate, want)
	}
}

func TestSeedPurchaseOrderQuantityOverride(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	recs := seedRecommendations(f, f.now)

	order, err := models.SeedPurchaseOrderFromRecommendations(ctx, f.vendor.ID, f.now, recs,
		[]models.RecommendationSeedLine{
			{ItemId: f.cups.ID, LocationId: f.north.ID, Quantity: floatPtr(24)},
		})
	if err != nil {
		t.Fatalf("SeedPurchaseOrderFromRecommendations: %v", err)
	}
	if order.Items[0].Quantity != 24 {
		t.Fatalf("Quantity = %v, want override 24", order.Items[0].Quantity)
	}

	// Non-positive override falls back to the recommended quantity.
	order, err = models.SeedPurchaseOrderFromRecommendations(ctx, f.vendor.ID, f.now, recs,
		[]models.RecommendationSeedLine{
			{ItemId: f.cups.ID, LocationId: f.north.ID, Quantity: floatPtr(-1)},
		})
	if err != nil {
		t.Fatalf("SeedPurchaseOrderFromRecommendations: %v", err)
	}
	if order.Items[0].Quantity != 9 {
		t.Fatalf("Quantity = %v, want fallback 9", order.Items[0].Quantity)
	}
}

func TestSeedPurchaseOrderSkipsEmptyLines(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)
	recs := seedRecommendations(f, f.now)

	// South's recommendation is zero and there is no override.
	_, err := models.SeedPurchaseOrderFromRecommendations(ctx, f.vendor.ID, f.now, recs,
		[]models.RecommendationSeedLine{
			{ItemId: f.cups.ID, LocationId: f.south.ID},
		})
	if err == nil {
		t.Fatalf("expected error when every line resolves to zero")
	}

	// A line not present in the recommendations is ignored.
	order, err := models.SeedPurchaseOrderFromRecommendations(ctx, f.vendor.ID, f.now, recs,
		[]models.RecommendationSeedLine{
			{ItemId: f.cups.ID, LocationId: f.north.ID},
			{ItemId: 9999, LocationId: f.north.ID},
		})
	if err != nil {
		t.Fatalf("SeedPurchaseOrderFromRecommendations: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("got %d lines, want 1", len(order.Items))
	}
}

func TestMarkPurchaseOrderReceived(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	f := seedConcession(t, ctx)

	order, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VendorId: f.vendor.ID,
		Items:    []models.NewPurchaseOrderItem{{ItemId: f.cups.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	received, err := models.MarkPurchaseOrderReceived(ctx, order.ID)
	if err != nil {
		t.Fatalf("MarkPurchaseOrderReceived: %v", err)
	}
	if !received.Received {
		t.Fatalf("order not marked received")
	}

	// Received orders stop counting as incoming supply.
	f.sellLemonade(t, ctx, f.north.ID, 1, f.now)
	forecaster := models.NewDemandForecaster(30, 3)
	recs, err := forecaster.BuildRecommendations(ctx, &models.RecommendationParams{})
	if err != nil {
		t.Fatalf("BuildRecommendations: %v", err)
	}
	rec := findRecommendation(recs, f.cups.ID, f.north.ID)
	if rec == nil {
		t.Fatalf("no recommendation for cups at North")
	}
	if rec.History.OpenPOQty != 0 {
		t.Fatalf("OpenPOQty = %v, want 0 after receipt", rec.History.OpenPOQty)
	}
}
