package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"
	"numpool/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HTTPHandler struct {
	orders  *service.OrderService
	pool    *service.PoolService
	pricing *service.PricingService
	ledger  *service.LedgerService
	catalog *service.CatalogService
	stats   *service.StatsService
	logger  *logrus.Logger
}

func NewHTTPHandler(
	orders *service.OrderService,
	pool *service.PoolService,
	pricing *service.PricingService,
	ledger *service.LedgerService,
	catalog *service.CatalogService,
	stats *service.StatsService,
	logger *logrus.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		orders:  orders,
		pool:    pool,
		pricing: pricing,
		ledger:  ledger,
		catalog: catalog,
		stats:   stats,
		logger:  logger,
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *HTTPHandler) OpenOrder(c *gin.Context) {
	var req struct {
		ServiceID string `json:"service_id" binding:"required"`
		CountryID string `json:"country_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(req.CountryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	order, err := h.orders.Open(c.Request.Context(), userID, serviceID, countryID, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":    order.ID.Hex(),
		"phone_id":    order.PhoneNumberID.Hex(),
		"price":       order.Price,
		"status":      order.Status,
		"start_time":  order.StartTime.Unix(),
		"transaction": order.TransactionID.Hex(),
	})
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	orderID, ok := h.objectID(c, "order_id")
	if !ok {
		return
	}

	order, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) SubmitCode(c *gin.Context) {
	orderID, ok := h.objectID(c, "order_id")
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.SubmitCode(c.Request.Context(), orderID, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	orderID, ok := h.objectID(c, "order_id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	order, err := h.orders.Fail(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) ActiveOrders(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	orders, err := h.orders.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderResponse(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *HTTPHandler) PoolAvailability(c *gin.Context) {
	serviceID, err := primitive.ObjectIDFromHex(c.Query("service_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(c.Query("country_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	count, err := h.pool.Available(c.Request.Context(), serviceID, countryID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": count})
}

func (h *HTTPHandler) ImportNumber(c *gin.Context) {
	var req struct {
		ServiceID string `json:"service_id" binding:"required"`
		CountryID string `json:"country_id" binding:"required"`
		DialCode  string `json:"dial_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(req.CountryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	phone, err := h.pool.ImportNumber(c.Request.Context(), serviceID, countryID, req.DialCode)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"phone_id":        phone.ID.Hex(),
		"number":          phone.Number,
		"expiration_time": phone.ExpirationTime.Unix(),
	})
}

func (h *HTTPHandler) NumberMessages(c *gin.Context) {
	number := c.Param("number")

	phone, err := h.pool.FindByNumber(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if phone == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "number not found"})
		return
	}

	logs, err := h.catalog.MessagesForNumber(c.Request.Context(), number, 50)
	if err != nil {
		h.writeError(c, err)
		return
	}
	orders, err := h.orders.HistoryForNumber(c.Request.Context(), phone.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	orderOut := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		orderOut = append(orderOut, orderResponse(order))
	}

	c.JSON(http.StatusOK, gin.H{
		"number":   phone.Number,
		"messages": phone.SMSReceived,
		"log":      logs,
		"orders":   orderOut,
	})
}

func (h *HTTPHandler) SetNumberStatus(c *gin.Context) {
	number := c.Param("number")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone, err := h.pool.FindByNumber(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if phone == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "number not found"})
		return
	}

	if err := h.pool.SetStatus(c.Request.Context(), phone.ID, models.PhoneStatus(req.Status)); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// InboundMessage is the delivery webhook: the message lands in the global log
// and on the phone's history, and a contained verification code closes the
// order bound to the number.
func (h *HTTPHandler) InboundMessage(c *gin.Context) {
	number := c.Param("number")

	var req struct {
		Content string `json:"content" binding:"required"`
		From    string `json:"from"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone, err := h.pool.FindByNumber(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if phone == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "number not found"})
		return
	}

	if err := h.catalog.LogInboundMessage(c.Request.Context(), number, req.Content, req.From); err != nil {
		h.logger.Warnf("Failed to log inbound message for %s: %v", number, err)
	}

	msg := models.SMSMessage{Content: req.Content, From: req.From, ReceivedAt: time.Now()}
	order, err := h.orders.IngestInbound(c.Request.Context(), phone.ID, msg)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"recorded": true}
	if order != nil {
		resp["order_id"] = order.ID.Hex()
		resp["order_status"] = order.Status
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) ExtendLease(c *gin.Context) {
	number := c.Param("number")

	phone, err := h.pool.FindByNumber(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if phone == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "number not found"})
		return
	}

	until, err := h.pool.ExtendLease(c.Request.Context(), phone.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expiration_time": until.Unix()})
}

func (h *HTTPHandler) PopularServices(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)

	services, err := h.catalog.PopularServices(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"services": services})
}

// ActiveCountries lists the enabled countries. A q parameter switches to a
// name or ISO-code search.
func (h *HTTPHandler) ActiveCountries(c *gin.Context) {
	if query := c.Query("q"); query != "" {
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
		countries, err := h.catalog.SearchCountries(c.Request.Context(), query, limit)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"countries": countries})
		return
	}

	countries, err := h.catalog.ActiveCountries(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"countries": countries})
}

func (h *HTTPHandler) GetService(c *gin.Context) {
	serviceID, ok := h.objectID(c, "service_id")
	if !ok {
		return
	}

	svc, err := h.catalog.Service(c.Request.Context(), serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}

	c.JSON(http.StatusOK, svc)
}

func (h *HTTPHandler) GetCountry(c *gin.Context) {
	countryID, ok := h.objectID(c, "country_id")
	if !ok {
		return
	}

	country, err := h.catalog.Country(c.Request.Context(), countryID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if country == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "country not found"})
		return
	}

	c.JSON(http.StatusOK, country)
}

func (h *HTTPHandler) CountriesForService(c *gin.Context) {
	serviceID, ok := h.objectID(c, "service_id")
	if !ok {
		return
	}

	countries, err := h.catalog.CountriesByService(c.Request.Context(), serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"countries": countries})
}

func (h *HTTPHandler) ServicesForCountry(c *gin.Context) {
	countryID, ok := h.objectID(c, "country_id")
	if !ok {
		return
	}

	services, err := h.catalog.ServicesByCountry(c.Request.Context(), countryID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (h *HTTPHandler) ServiceStats(c *gin.Context) {
	serviceID, ok := h.objectID(c, "service_id")
	if !ok {
		return
	}

	stats, err := h.stats.ServiceStats(c.Request.Context(), serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *HTTPHandler) Quote(c *gin.Context) {
	serviceID, err := primitive.ObjectIDFromHex(c.Query("service_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(c.Query("country_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}
	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
		return
	}

	unit, err := h.pricing.Resolve(c.Request.Context(), countryID, serviceID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	total, err := h.pricing.Quote(c.Request.Context(), countryID, serviceID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unit_price": unit,
		"total":      total,
		"quantity":   quantity,
	})
}

func (h *HTTPHandler) CountryPricing(c *gin.Context) {
	countryID, ok := h.objectID(c, "country_id")
	if !ok {
		return
	}

	entries, err := h.pricing.EntriesForCountry(c.Request.Context(), countryID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pricing": entries})
}

func (h *HTTPHandler) PricingEntry(c *gin.Context) {
	serviceID, err := primitive.ObjectIDFromHex(c.Query("service_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(c.Query("country_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	entry, err := h.pricing.Entry(c.Request.Context(), countryID, serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) SetCurrentPrice(c *gin.Context) {
	var req struct {
		ServiceID string  `json:"service_id" binding:"required"`
		CountryID string  `json:"country_id" binding:"required"`
		Price     float64 `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(req.CountryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	if err := h.pricing.SetCurrentPrice(c.Request.Context(), countryID, serviceID, req.Price); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) ReplaceDiscounts(c *gin.Context) {
	var req struct {
		ServiceID string `json:"service_id" binding:"required"`
		CountryID string `json:"country_id" binding:"required"`
		Tiers     []struct {
			MinQuantity int     `json:"min_quantity"`
			PricePer    float64 `json:"price_per"`
		} `json:"tiers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}
	countryID, err := primitive.ObjectIDFromHex(req.CountryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country_id"})
		return
	}

	tiers := make([]models.BulkDiscount, 0, len(req.Tiers))
	for _, tier := range req.Tiers {
		tiers = append(tiers, models.BulkDiscount{MinQuantity: tier.MinQuantity, PricePer: tier.PricePer})
	}

	if err := h.pricing.ReplaceDiscounts(c.Request.Context(), countryID, serviceID, tiers); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) SyncBasePrice(c *gin.Context) {
	var req struct {
		ServiceID string  `json:"service_id" binding:"required"`
		BasePrice float64 `json:"base_price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
		return
	}

	updated, err := h.pricing.SyncBasePrice(c.Request.Context(), serviceID, req.BasePrice)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *HTTPHandler) Balance(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *HTTPHandler) Deposit(c *gin.Context) {
	var req struct {
		Amount  float64                `json:"amount" binding:"required"`
		Method  string                 `json:"method" binding:"required"`
		Details map[string]interface{} `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	tx, err := h.ledger.Deposit(c.Request.Context(), userID, req.Amount, req.Method, req.Details)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction_id": tx.ID.Hex(),
		"amount":         tx.Amount,
		"status":         tx.Status,
	})
}

func (h *HTTPHandler) Withdraw(c *gin.Context) {
	var req struct {
		Amount float64 `json:"amount" binding:"required"`
		Method string  `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	tx, err := h.ledger.Withdraw(c.Request.Context(), userID, req.Amount, req.Method)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction_id": tx.ID.Hex(),
		"amount":         tx.Amount,
		"status":         tx.Status,
	})
}

func (h *HTTPHandler) OrderTransactions(c *gin.Context) {
	orderID, ok := h.objectID(c, "order_id")
	if !ok {
		return
	}

	txs, err := h.ledger.ByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *HTTPHandler) Transactions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filter := repository.TransactionFilter{
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
	}
	if limit, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil {
		filter.Limit = limit
	}
	if skip, err := strconv.ParseInt(c.Query("skip"), 10, 64); err == nil {
		filter.Skip = skip
	}

	txs, err := h.ledger.History(c.Request.Context(), userID, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *HTTPHandler) userID(c *gin.Context) (primitive.ObjectID, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return primitive.NilObjectID, false
	}

	hex, _ := raw.(string)
	userID, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return primitive.NilObjectID, false
	}

	return userID, true
}

func (h *HTTPHandler) objectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return primitive.NilObjectID, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged
// and surface as 500 without their internals.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrTransactionNotFound),
		errors.Is(err, models.ErrPricingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNoNumbersAvailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCarrierUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func orderResponse(order *models.Order) gin.H {
	resp := gin.H{
		"order_id":   order.ID.Hex(),
		"status":     order.Status,
		"phone_id":   order.PhoneNumberID.Hex(),
		"price":      order.Price,
		"start_time": order.StartTime.Unix(),
	}
	if order.VerificationCode != "" {
		resp["verification_code"] = order.VerificationCode
	}
	if order.FailureReason != "" {
		resp["failure_reason"] = order.FailureReason
	}
	if order.EndTime != nil {
		resp["end_time"] = order.EndTime.Unix()
	}
	return resp
}
