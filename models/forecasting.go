package models

import (
	"context"
	"sort"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/sirupsen/logrus"
)

// ConsumptionRecord accumulates a lookback window of activity for one
// (item, location) pair. Quantities are in the item's base unit.
type ConsumptionRecord struct {
	SalesQty       float64    `json:"sales_qty"`
	TransferInQty  float64    `json:"transfer_in_qty"`
	TransferOutQty float64    `json:"transfer_out_qty"`
	InvoiceQty     float64    `json:"invoice_qty"`
	OpenPOQty      float64    `json:"open_po_qty"`
	LastActivity   *time.Time `json:"last_activity"`
}

// BaseConsumption is demand observed at the location: sales plus stock
// transferred out. Transfers in, invoices and open orders are supply.
func (r *ConsumptionRecord) BaseConsumption() float64 {
	return r.SalesQty + r.TransferOutQty
}

func (r *ConsumptionRecord) IncomingQty() float64 {
	return r.TransferInQty + r.InvoiceQty + r.OpenPOQty
}

func (r *ConsumptionRecord) touch(at time.Time) {
	if r.LastActivity == nil || at.After(*r.LastActivity) {
		t := at
		r.LastActivity = &t
	}
}

// ForecastRecommendation is one ledger row with the replenishment quantity
// derived from it.
type ForecastRecommendation struct {
	Item                  *Item             `json:"item"`
	Location              *Location         `json:"location"`
	History               ConsumptionRecord `json:"history"`
	BaseConsumption       float64           `json:"base_consumption"`
	AdjustedDemand        float64           `json:"adjusted_demand"`
	RecommendedQuantity   float64           `json:"recommended_quantity"`
	SuggestedDeliveryDate time.Time         `json:"suggested_delivery_date"`
	DefaultUnitId         *int              `json:"default_unit_id"`
}

// RecommendationParams narrows and scales a recommendation run. Zero-length
// ID slices mean no filtering on that dimension; non-positive multipliers
// are treated as 1.0.
type RecommendationParams struct {
	LocationIds       []int
	ItemIds           []int
	PurchaseGLCodeIds []int
	AttendanceFactor  float64
	WeatherFactor     float64
	PromotionFactor   float64
}

// DemandForecaster aggregates consumption from terminal sales, transfers,
// purchase invoices and open purchase orders over a lookback window and
// turns it into bounded replenishment recommendations.
type DemandForecaster struct {
	lookbackDays int
	leadTimeDays int
	now          time.Time
}

func NewDemandForecaster(lookbackDays, leadTimeDays int) *DemandForecaster {
	return &DemandForecaster{
		lookbackDays: lookbackDays,
		leadTimeDays: leadTimeDays,
		now:          time.Now().UTC(),
	}
}

func (f *DemandForecaster) since() time.Time {
	return f.now.AddDate(0, 0, -f.lookbackDays)
}

type consumptionKey struct {
	ItemId     int
	LocationId int
}

func normalizeMultiplier(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}

func intSet(ids []int) map[int]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// salesRow carries one recipe-exploded terminal sale line. Rows are fetched
// un-grouped and folded in Go so the max timestamp survives every driver.
type salesRow struct {
	ItemId     int
	LocationId int
	Quantity   float64
	UnitFactor float64
	SoldAt     time.Time
}

func (f *DemandForecaster) aggregateSales(ctx context.Context, params *RecommendationParams, ledger map[consumptionKey]*ConsumptionRecord) error {

	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("terminal_sales").
		Select(`product_recipe_items.item_id AS item_id,
			event_locations.location_id AS location_id,
			terminal_sales.quantity * product_recipe_items.quantity AS quantity,
			COALESCE(item_units.factor, 1) AS unit_factor,
			terminal_sales.sold_at AS sold_at`).
		Joins("JOIN event_locations ON event_locations.id = terminal_sales.event_location_id").
		Joins("JOIN product_recipe_items ON product_recipe_items.product_id = terminal_sales.product_id").
		Joins("LEFT JOIN item_units ON item_units.id = product_recipe_items.unit_id").
		Where("terminal_sales.sold_at >= ?", f.since()).
		Where("product_recipe_items.countable = ?", true)
	if len(params.LocationIds) > 0 {
		query = query.Where("event_locations.location_id IN ?", params.LocationIds)
	}
	if len(params.ItemIds) > 0 {
		query = query.Where("product_recipe_items.item_id IN ?", params.ItemIds)
	}

	var rows []salesRow
	err := query.Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		key := consumptionKey{ItemId: row.ItemId, LocationId: row.LocationId}
		record := ledger[key]
		if record == nil {
			record = &ConsumptionRecord{}
			ledger[key] = record
		}
		record.SalesQty += row.Quantity * row.UnitFactor
		record.touch(row.SoldAt)
	}
	return nil
}

type transferRow struct {
	ItemId         int
	FromLocationId int
	ToLocationId   int
	Quantity       float64
	DateCreated    time.Time
}

func (f *DemandForecaster) aggregateTransfers(ctx context.Context, params *RecommendationParams, ledger map[consumptionKey]*ConsumptionRecord) error {

	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("transfer_items").
		Select(`transfer_items.item_id AS item_id,
			transfers.from_location_id AS from_location_id,
			transfers.to_location_id AS to_location_id,
			transfer_items.quantity AS quantity,
			transfers.date_created AS date_created`).
		Joins("JOIN transfers ON transfers.id = transfer_items.transfer_id").
		Where("transfers.completed = ?", true).
		Where("transfers.date_created >= ?", f.since())
	if len(params.LocationIds) > 0 {
		query = query.Where("transfers.from_location_id IN ? OR transfers.to_location_id IN ?",
			params.LocationIds, params.LocationIds)
	}
	if len(params.ItemIds) > 0 {
		query = query.Where("transfer_items.item_id IN ?", params.ItemIds)
	}

	var rows []transferRow
	err := query.Scan(&rows).Error
	if err != nil {
		return err
	}

	// The OR above admits transfers where only one side matches the
	// location filter, so each side is re-checked before crediting.
	locations := intSet(params.LocationIds)
	for _, row := range rows {
		if locations == nil || locations[row.FromLocationId] {
			key := consumptionKey{ItemId: row.ItemId, LocationId: row.FromLocationId}
			record := ledger[key]
			if record == nil {
				record = &ConsumptionRecord{}
				ledger[key] = record
			}
			record.TransferOutQty += row.Quantity
			record.touch(row.DateCreated)
		}
		if locations == nil || locations[row.ToLocationId] {
			key := consumptionKey{ItemId: row.ItemId, LocationId: row.ToLocationId}
			record := ledger[key]
			if record == nil {
				record = &ConsumptionRecord{}
				ledger[key] = record
			}
			record.TransferInQty += row.Quantity
			record.touch(row.DateCreated)
		}
	}
	return nil
}

type invoiceRow struct {
	ItemId     int
	LocationId int
	Quantity   float64
}

func (f *DemandForecaster) aggregateInvoices(ctx context.Context, params *RecommendationParams, ledger map[consumptionKey]*ConsumptionRecord) error {

	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("purchase_invoice_items").
		Select(`purchase_invoice_items.item_id AS item_id,
			purchase_invoices.location_id AS location_id,
			SUM(purchase_invoice_items.quantity * COALESCE(item_units.factor, 1)) AS quantity`).
		Joins("JOIN purchase_invoices ON purchase_invoices.id = purchase_invoice_items.invoice_id").
		Joins("LEFT JOIN item_units ON item_units.id = purchase_invoice_items.unit_id").
		Where("purchase_invoices.received_date >= ?", f.since()).
		Group("purchase_invoice_items.item_id, purchase_invoices.location_id")
	if len(params.LocationIds) > 0 {
		query = query.Where("purchase_invoices.location_id IN ?", params.LocationIds)
	}
	if len(params.ItemIds) > 0 {
		query = query.Where("purchase_invoice_items.item_id IN ?", params.ItemIds)
	}

	var rows []invoiceRow
	err := query.Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		key := consumptionKey{ItemId: row.ItemId, LocationId: row.LocationId}
		record := ledger[key]
		if record == nil {
			record = &ConsumptionRecord{}
			ledger[key] = record
		}
		record.InvoiceQty += row.Quantity
	}
	return nil
}

type openPORow struct {
	ItemId   int
	Quantity float64
}

// aggregateOpenPOs totals undelivered purchase order lines per item. Orders
// carry no destination, so the quantity is later broadcast to every location
// already present in the ledger for that item. Open orders are counted
// regardless of age.
func (f *DemandForecaster) aggregateOpenPOs(ctx context.Context, params *RecommendationParams) (map[int]float64, error) {

	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("purchase_order_items").
		Select(`purchase_order_items.item_id AS item_id,
			SUM(purchase_order_items.quantity * COALESCE(item_units.factor, 1)) AS quantity`).
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_items.purchase_order_id").
		Joins("LEFT JOIN item_units ON item_units.id = purchase_order_items.unit_id").
		Where("purchase_orders.received = ?", false).
		Group("purchase_order_items.item_id")
	if len(params.ItemIds) > 0 {
		query = query.Where("purchase_order_items.item_id IN ?", params.ItemIds)
	}

	var rows []openPORow
	err := query.Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[int]float64, len(rows))
	for _, row := range rows {
		totals[row.ItemId] += row.Quantity
	}
	return totals, nil
}

// BuildRecommendations runs the four aggregators, merges them into a
// per-(item, location) ledger and derives a bounded order quantity for each
// row. Rows referencing items or locations that no longer exist are dropped.
func (f *DemandForecaster) BuildRecommendations(ctx context.Context, params *RecommendationParams) ([]ForecastRecommendation, error) {

	logger := config.GetLogger()
	ledger := make(map[consumptionKey]*ConsumptionRecord)

	err := f.aggregateSales(ctx, params, ledger)
	if err != nil {
		return nil, err
	}
	err = f.aggregateTransfers(ctx, params, ledger)
	if err != nil {
		return nil, err
	}
	err = f.aggregateInvoices(ctx, params, ledger)
	if err != nil {
		return nil, err
	}
	openPOs, err := f.aggregateOpenPOs(ctx, params)
	if err != nil {
		return nil, err
	}
	for key, record := range ledger {
		if qty, ok := openPOs[key.ItemId]; ok {
			record.OpenPOQty += qty
		}
	}

	if len(ledger) == 0 {
		return []ForecastRecommendation{}, nil
	}

	itemIds := make(map[int]bool)
	locationIds := make(map[int]bool)
	for key := range ledger {
		itemIds[key.ItemId] = true
		locationIds[key.LocationId] = true
	}

	items, err := getItemsByIds(ctx, keysOf(itemIds))
	if err != nil {
		return nil, err
	}
	locations, err := getLocationsByIds(ctx, keysOf(locationIds))
	if err != nil {
		return nil, err
	}

	attendance := normalizeMultiplier(params.AttendanceFactor)
	weather := normalizeMultiplier(params.WeatherFactor)
	promotion := normalizeMultiplier(params.PromotionFactor)
	multiplier := attendance * weather * promotion

	glFilter := intSet(params.PurchaseGLCodeIds)
	suggestedDate := f.now.AddDate(0, 0, f.leadTimeDays)

	recommendations := make([]ForecastRecommendation, 0, len(ledger))
	for key, record := range ledger {
		item, ok := items[key.ItemId]
		if !ok {
			logger.WithFields(logrus.Fields{
				"module":  "forecasting",
				"item_id": key.ItemId,
			}).Debug("dropping ledger row for missing item")
			continue
		}
		location, ok := locations[key.LocationId]
		if !ok {
			logger.WithFields(logrus.Fields{
				"module":      "forecasting",
				"location_id": key.LocationId,
			}).Debug("dropping ledger row for missing location")
			continue
		}

		if glFilter != nil {
			glCode, err := item.PurchaseGLCodeForLocation(ctx, key.LocationId)
			if err != nil {
				return nil, err
			}
			if glCode == nil || !glFilter[glCode.ID] {
				continue
			}
		}

		base := record.BaseConsumption()
		adjusted := base * multiplier
		recommended := adjusted - record.IncomingQty()
		if recommended < 0 {
			recommended = 0
		}

		recommendations = append(recommendations, ForecastRecommendation{
			Item:                  item,
			Location:              location,
			History:               *record,
			BaseConsumption:       base,
			AdjustedDemand:        adjusted,
			RecommendedQuantity:   recommended,
			SuggestedDeliveryDate: suggestedDate,
			DefaultUnitId:         item.DefaultReceivingUnitId(),
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		a, b := &recommendations[i], &recommendations[j]
		if a.RecommendedQuantity != b.RecommendedQuantity {
			return a.RecommendedQuantity > b.RecommendedQuantity
		}
		if a.BaseConsumption != b.BaseConsumption {
			return a.BaseConsumption > b.BaseConsumption
		}
		if a.Item.ID != b.Item.ID {
			return a.Item.ID < b.Item.ID
		}
		return a.Location.ID < b.Location.ID
	})
	return recommendations, nil
}

func keysOf(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
