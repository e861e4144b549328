package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/models"
	"github.com/0xCarti/invoicemanager/models/reports"
	"github.com/0xCarti/invoicemanager/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const (
	defaultLookbackDays = 30
	defaultLeadTimeDays = 3
)

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(c *gin.Context, name string, fallback float64) float64 {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func queryIntList(c *gin.Context, name string) []int {
	var out []int
	for _, part := range strings.Split(c.Query(name), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

func recommendationParamsFromQuery(c *gin.Context) *models.RecommendationParams {
	params := &models.RecommendationParams{
		PurchaseGLCodeIds: queryIntList(c, "purchase_gl_code_ids"),
		AttendanceFactor:  queryFloat(c, "attendance_multiplier", 1.0),
		WeatherFactor:     queryFloat(c, "weather_multiplier", 1.0),
		PromotionFactor:   queryFloat(c, "promo_multiplier", 1.0),
	}
	if locationId := queryInt(c, "location_id", 0); locationId > 0 {
		params.LocationIds = []int{locationId}
	}
	if itemId := queryInt(c, "item_id", 0); itemId > 0 {
		params.ItemIds = []int{itemId}
	}
	return params
}

func recommendationPayload(rec *models.ForecastRecommendation) gin.H {
	return gin.H{
		"item_id":                 rec.Item.ID,
		"item_name":               rec.Item.Name,
		"location_id":             rec.Location.ID,
		"location_name":           rec.Location.Name,
		"history": gin.H{
			"sales_qty":        utils.Round6(rec.History.SalesQty),
			"transfer_in_qty":  utils.Round6(rec.History.TransferInQty),
			"transfer_out_qty": utils.Round6(rec.History.TransferOutQty),
			"invoice_qty":      utils.Round6(rec.History.InvoiceQty),
			"open_po_qty":      utils.Round6(rec.History.OpenPOQty),
			"last_activity":    rec.History.LastActivity,
		},
		"base_consumption":        utils.Round6(rec.BaseConsumption),
		"adjusted_demand":         utils.Round6(rec.AdjustedDemand),
		"recommended_quantity":    utils.Round6(rec.RecommendedQuantity),
		"suggested_delivery_date": rec.SuggestedDeliveryDate.Format("2006-01-02"),
		"default_unit_id":         rec.DefaultUnitId,
	}
}

func recommendationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lookbackDays := queryInt(c, "lookback_days", defaultLookbackDays)
		if lookbackDays <= 0 {
			lookbackDays = defaultLookbackDays
		}
		leadTimeDays := queryInt(c, "lead_time_days", defaultLeadTimeDays)
		if leadTimeDays < 0 {
			leadTimeDays = defaultLeadTimeDays
		}
		params := recommendationParamsFromQuery(c)

		forecaster := models.NewDemandForecaster(lookbackDays, leadTimeDays)
		recommendations, err := forecaster.BuildRecommendations(c.Request.Context(), params)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "recommendationsHandler", "BuildRecommendations", params, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		data := make([]gin.H, 0, len(recommendations))
		chartLabels := make([]string, 0, len(recommendations))
		chartValues := make([]float64, 0, len(recommendations))
		for i := range recommendations {
			rec := &recommendations[i]
			data = append(data, recommendationPayload(rec))
			chartLabels = append(chartLabels, fmt.Sprintf("%s @ %s", rec.Item.Name, rec.Location.Name))
			chartValues = append(chartValues, utils.Round6(rec.RecommendedQuantity))
		}

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"meta": gin.H{
				"lookback_days":  lookbackDays,
				"lead_time_days": leadTimeDays,
				"row_count":      len(data),
				"correlation_id": cid,
			},
			"data": data,
			"chart": gin.H{
				"labels": chartLabels,
				"values": chartValues,
			},
		})
	}
}

type seedPurchaseOrderRequest struct {
	VendorId             int                             `json:"vendor_id" binding:"required"`
	OrderDate            *time.Time                      `json:"order_date"`
	LookbackDays         int                             `json:"lookback_days"`
	LeadTimeDays         int                             `json:"lead_time_days"`
	AttendanceMultiplier float64                         `json:"attendance_multiplier"`
	WeatherMultiplier    float64                         `json:"weather_multiplier"`
	PromoMultiplier      float64                         `json:"promo_multiplier"`
	Lines                []models.RecommendationSeedLine `json:"lines" binding:"required"`
}

func seedPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seedPurchaseOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if len(req.Lines) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vendor_id and lines are required"})
			return
		}

		lookbackDays := req.LookbackDays
		if lookbackDays <= 0 {
			lookbackDays = defaultLookbackDays
		}
		leadTimeDays := req.LeadTimeDays
		if leadTimeDays < 0 {
			leadTimeDays = defaultLeadTimeDays
		}

		// Recommendations are rebuilt server-side so overrides apply to
		// current numbers, not whatever the client last fetched.
		forecaster := models.NewDemandForecaster(lookbackDays, leadTimeDays)
		recommendations, err := forecaster.BuildRecommendations(c.Request.Context(), &models.RecommendationParams{
			AttendanceFactor: req.AttendanceMultiplier,
			WeatherFactor:    req.WeatherMultiplier,
			PromotionFactor:  req.PromoMultiplier,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		orderDate := time.Now().UTC()
		if req.OrderDate != nil {
			orderDate = *req.OrderDate
		}
		order, err := models.SeedPurchaseOrderFromRecommendations(
			c.Request.Context(), req.VendorId, orderDate, recommendations, req.Lines)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusCreated, gin.H{
			"purchase_order_id": order.ID,
			"order_number":      order.OrderNumber,
			"expected_date":     order.ExpectedDate.Format("2006-01-02"),
			"line_count":        len(order.Items),
			"correlation_id":    cid,
		})
	}
}

func purchaseCostForecastHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		forecastDays := queryInt(c, "forecast_period", 0)
		if forecastDays <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "forecast_period is required and must be positive"})
			return
		}
		historyWindow := queryInt(c, "history_window", 0)

		var locationId, itemId *int
		if v := queryInt(c, "location_id", 0); v > 0 {
			locationId = &v
		}
		if v := queryInt(c, "item_id", 0); v > 0 {
			itemId = &v
		}
		glCodeIds := queryIntList(c, "purchase_gl_code_ids")

		report, err := reports.GetPurchaseCostForecastReport(
			c.Request.Context(), forecastDays, historyWindow, locationId, itemId, glCodeIds)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "purchaseCostForecastHandler", "GetPurchaseCostForecastReport", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if strings.EqualFold(c.Query("format"), "xlsx") {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=purchase_cost_forecast.xlsx")
			if err := reports.WritePurchaseCostForecastExcel(report, c.Writer); err != nil {
				c.Status(http.StatusInternalServerError)
			}
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated); non-production allows all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/purchase-orders/recommendations", recommendationsHandler())
	r.POST("/purchase-orders/seed", seedPurchaseOrderHandler())
	r.GET("/reports/purchase-cost-forecast", purchaseCostForecastHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling migrations
	// on startup and running them as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware enforces a fixed-window per-IP request cap in redis.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
