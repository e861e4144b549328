package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/0xCarti/invoicemanager/models"
	"github.com/0xCarti/invoicemanager/utils"
	"github.com/shopspring/decimal"
)

const minForecastLookbackDays = 30

type PurchaseCostForecastRow struct {
	ItemID              int             `json:"itemId"`
	ItemName            string          `json:"itemName"`
	LocationID          int             `json:"locationId"`
	LocationName        string          `json:"locationName"`
	ConsumptionPerDay   float64         `json:"consumptionPerDay"`
	IncomingPerDay      float64         `json:"incomingPerDay"`
	ForecastConsumption float64         `json:"forecastConsumption"`
	ForecastIncoming    float64         `json:"forecastIncoming"`
	NetQuantity         float64         `json:"netQuantity"`
	UnitCost            decimal.Decimal `json:"unitCost"`
	ProjectedCost       decimal.Decimal `json:"projectedCost"`
	LastActivity        *time.Time      `json:"lastActivity,omitempty"`
}

type PurchaseCostForecastTotals struct {
	NetQuantity   float64         `json:"netQuantity"`
	ProjectedCost decimal.Decimal `json:"projectedCost"`
}

type PurchaseCostForecastResponse struct {
	ForecastDays int                         `json:"forecastDays"`
	LookbackDays int                         `json:"lookbackDays"`
	Rows         []*PurchaseCostForecastRow  `json:"rows"`
	Totals       *PurchaseCostForecastTotals `json:"totals"`
}

// GetPurchaseCostForecastReport projects recent per-day consumption and
// incoming supply over the next forecastDays and costs the shortfall at
// item unit cost. Rows where the net shortfall and its cost are both zero
// are dropped. The lookback window never falls below thirty days so rates
// are not dominated by a few busy days.
func GetPurchaseCostForecastReport(ctx context.Context, forecastDays, historyWindowDays int, locationId, itemId *int, glCodeIds []int) (*PurchaseCostForecastResponse, error) {

	if forecastDays <= 0 {
		return nil, errors.New("forecast period must be positive")
	}

	lookbackDays := historyWindowDays
	if lookbackDays < minForecastLookbackDays {
		lookbackDays = minForecastLookbackDays
	}

	cacheKey := fmt.Sprintf("report:purchase-cost-forecast:%d:%d:%d:%d:%v",
		forecastDays, lookbackDays,
		utils.DereferencePtr(locationId, 0), utils.DereferencePtr(itemId, 0), glCodeIds)
	if reportCacheEnabled() {
		var cached PurchaseCostForecastResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return &cached, nil
		}
	}
	started := time.Now()

	params := models.RecommendationParams{
		PurchaseGLCodeIds: glCodeIds,
	}
	if locationId != nil && *locationId > 0 {
		params.LocationIds = []int{*locationId}
	}
	if itemId != nil && *itemId > 0 {
		params.ItemIds = []int{*itemId}
	}

	forecaster := models.NewDemandForecaster(lookbackDays, 0)
	recommendations, err := forecaster.BuildRecommendations(ctx, &params)
	if err != nil {
		return nil, err
	}

	days := float64(lookbackDays)
	forecast := float64(forecastDays)
	rows := make([]*PurchaseCostForecastRow, 0, len(recommendations))
	totals := &PurchaseCostForecastTotals{ProjectedCost: decimal.Zero}
	for i := range recommendations {
		rec := &recommendations[i]

		consumptionPerDay := rec.BaseConsumption / days
		incomingPerDay := rec.History.IncomingQty() / days
		forecastConsumption := consumptionPerDay * forecast
		forecastIncoming := incomingPerDay * forecast
		net := forecastConsumption - forecastIncoming
		if net < 0 {
			net = 0
		}
		projectedCost := decimal.NewFromFloat(net).Mul(rec.Item.Cost)
		if net <= 0 && projectedCost.IsZero() {
			continue
		}

		rows = append(rows, &PurchaseCostForecastRow{
			ItemID:              rec.Item.ID,
			ItemName:            rec.Item.Name,
			LocationID:          rec.Location.ID,
			LocationName:        rec.Location.Name,
			ConsumptionPerDay:   consumptionPerDay,
			IncomingPerDay:      incomingPerDay,
			ForecastConsumption: forecastConsumption,
			ForecastIncoming:    forecastIncoming,
			NetQuantity:         net,
			UnitCost:            rec.Item.Cost,
			ProjectedCost:       projectedCost,
			LastActivity:        rec.History.LastActivity,
		})
		totals.NetQuantity += net
		totals.ProjectedCost = totals.ProjectedCost.Add(projectedCost)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ProjectedCost.Equal(rows[j].ProjectedCost) {
			return rows[i].ProjectedCost.GreaterThan(rows[j].ProjectedCost)
		}
		if rows[i].ItemID != rows[j].ItemID {
			return rows[i].ItemID < rows[j].ItemID
		}
		return rows[i].LocationID < rows[j].LocationID
	})

	response := &PurchaseCostForecastResponse{
		ForecastDays: forecastDays,
		LookbackDays: lookbackDays,
		Rows:         rows,
		Totals:       totals,
	}

	logSlowReport(ctx, "purchase_cost_forecast", started, map[string]any{
		"forecast_days": forecastDays,
		"lookback_days": lookbackDays,
		"rows":          len(rows),
	})
	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, response, reportCacheTTL())
	}
	return response, nil
}
