package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/middlewares"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/NathiDhliso/Lexo-sub007/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// App holds the services behind the HTTP API. Fields are set once before MarkReady.
type App struct {
	Fees      *workflow.FeeAggregator
	VAT       *workflow.VATEngine
	Invoices  *workflow.InvoiceService
	Reminders *workflow.ReminderScheduler

	ready atomic.Bool
}

func (a *App) MarkReady()    { a.ready.Store(true) }
func (a *App) IsReady() bool { return a.ready.Load() }

// readinessGate answers 503 until dependencies are connected and the services built.
func readinessGate(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !app.IsReady() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service starting"})
			return
		}
		c.Next()
	}
}

func registerRoutes(r *gin.Engine, app *App) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	v1 := r.Group("/api/v1", readinessGate(app), middlewares.AuthMiddleware())

	v1.POST("/matters", app.createMatterHandler)
	v1.GET("/matters/:id/wip", app.computeWIPHandler)
	v1.GET("/matters/:id/unbilled", app.listUnbilledHandler)
	v1.POST("/matters/:id/time-entries", app.createTimeEntryHandler)
	v1.POST("/matters/:id/logged-services", app.createLoggedServiceHandler)
	v1.POST("/matters/:id/disbursements", app.createDisbursementHandler)
	v1.PUT("/line-items/:kind/:id", app.updateLineItemHandler)
	v1.DELETE("/line-items/:kind/:id", app.deleteLineItemHandler)

	v1.GET("/disbursement-types", app.listDisbursementTypesHandler)
	v1.POST("/disbursement-types", app.createDisbursementTypeHandler)
	v1.PUT("/disbursement-types/:id", app.updateDisbursementTypeHandler)
	v1.DELETE("/disbursement-types/:id", app.deleteDisbursementTypeHandler)
	v1.POST("/disbursement-types/:id/suggest-vat", app.suggestVATHandler)
	v1.POST("/disbursements/:id/vat-correction", app.correctVATHandler)
	v1.GET("/disbursements/:id/vat-audit", app.disbursementAuditHandler)
	v1.GET("/vat-audit", app.auditLogHandler)
	v1.GET("/vat-audit/statistics", app.vatStatisticsHandler)
	v1.GET("/vat-audit/export", app.exportAuditHandler)

	v1.POST("/matters/:id/invoices", app.generateInvoiceHandler)
	v1.GET("/invoices", app.listInvoicesHandler)
	v1.GET("/invoices/:id", app.getInvoiceHandler)
	v1.POST("/invoices/:id/convert", app.convertProFormaHandler)
	v1.PATCH("/invoices/:id/status", app.updateStatusHandler)
	v1.POST("/invoices/:id/payments", app.recordPaymentHandler)
	v1.POST("/invoices/:id/reminders", app.sendReminderHandler)

	v1.GET("/reminders/upcoming", app.upcomingRemindersHandler)
	v1.POST("/internal/reminders/process", app.processRemindersHandler)

	r.NoRoute(customNotFoundHandler)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

var errorStatus = map[utils.ErrorKind]int{
	utils.KindValidation:             http.StatusBadRequest,
	utils.KindNotFound:               http.StatusNotFound,
	utils.KindUnauthorized:           http.StatusForbidden,
	utils.KindUnknownJurisdiction:    http.StatusUnprocessableEntity,
	utils.KindInvalidStateTransition: http.StatusConflict,
	utils.KindConcurrencyConflict:    http.StatusConflict,
	utils.KindCompliance:             http.StatusUnprocessableEntity,
	utils.KindNothingToInvoice:       http.StatusUnprocessableEntity,
	utils.KindExternalService:        http.StatusBadGateway,
}

// respondError maps a service error to its HTTP status. Unclassified errors are hidden
// from the caller and left on the gin context for the error logger.
func respondError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": utils.KindInternal})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func pathId(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, utils.NewValidationError("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if utils.KindOf(err) != utils.KindInternal {
			return err
		}
		return utils.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// dateRange reads from/to query parameters; both default to the current month.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := utils.DateOnly(now)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = utils.ParseDate(v); err != nil {
			return from, to, err
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = utils.ParseDate(v); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

type timeEntryRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
}

func (r timeEntryRequest) input() (workflow.NewTimeEntry, error) {
	date, err := utils.ParseDate(r.Date)
	if err != nil {
		return workflow.NewTimeEntry{}, err
	}
	return workflow.NewTimeEntry{Date: date, Description: r.Description, Hours: r.Hours, Rate: r.Rate}, nil
}

type loggedServiceRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
}

func (r loggedServiceRequest) input() (workflow.NewLoggedService, error) {
	date, err := utils.ParseDate(r.Date)
	if err != nil {
		return workflow.NewLoggedService{}, err
	}
	return workflow.NewLoggedService{Date: date, Description: r.Description, Quantity: r.Quantity, UnitRate: r.UnitRate}, nil
}

type disbursementRequest struct {
	DisbursementTypeId int                  `json:"disbursement_type_id"`
	Date               string               `json:"date"`
	Description        string               `json:"description"`
	Amount             decimal.Decimal      `json:"amount"`
	VATTreatment       *models.VATTreatment `json:"vat_treatment"`
	Reason             string               `json:"reason"`
}

func (r disbursementRequest) input() (workflow.NewDisbursement, error) {
	date, err := utils.ParseDate(r.Date)
	if err != nil {
		return workflow.NewDisbursement{}, err
	}
	return workflow.NewDisbursement{
		DisbursementTypeId: r.DisbursementTypeId,
		Date:               date,
		Description:        r.Description,
		Amount:             r.Amount,
		VATTreatment:       r.VATTreatment,
		Reason:             r.Reason,
	}, nil
}

func (a *App) createMatterHandler(c *gin.Context) {
	var input models.NewMatter
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	rules, err := a.Invoices.Registry.Lookup(input.Bar)
	if err != nil {
		respondError(c, err)
		return
	}
	input.Bar = rules.Bar
	matter, err := models.CreateMatter(c.Request.Context(), a.Fees.DB, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, matter)
}

func (a *App) computeWIPHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	wip, err := a.Fees.ComputeWIP(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wip)
}

func (a *App) listUnbilledHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := a.Fees.ListUnbilled(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *App) createTimeEntryHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req timeEntryRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	input, err := req.input()
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := a.Fees.CreateTimeEntry(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *App) createLoggedServiceHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req loggedServiceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	input, err := req.input()
	if err != nil {
		respondError(c, err)
		return
	}
	svc, err := a.Fees.CreateLoggedService(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (a *App) createDisbursementHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req disbursementRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	input, err := req.input()
	if err != nil {
		respondError(c, err)
		return
	}
	d, err := a.Fees.CreateDisbursement(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (a *App) updateLineItemHandler(c *gin.Context) {
	kind, err := models.ParseLineItemType(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	var result any
	switch kind {
	case models.LineItemTypeTimeEntry:
		var req timeEntryRequest
		if err = bindJSON(c, &req); err == nil {
			var input workflow.NewTimeEntry
			if input, err = req.input(); err == nil {
				result, err = a.Fees.UpdateTimeEntry(ctx, id, input)
			}
		}
	case models.LineItemTypeLoggedService:
		var req loggedServiceRequest
		if err = bindJSON(c, &req); err == nil {
			var input workflow.NewLoggedService
			if input, err = req.input(); err == nil {
				result, err = a.Fees.UpdateLoggedService(ctx, id, input)
			}
		}
	case models.LineItemTypeDisbursement:
		var req disbursementRequest
		if err = bindJSON(c, &req); err == nil {
			var input workflow.NewDisbursement
			if input, err = req.input(); err == nil {
				result, err = a.Fees.UpdateDisbursement(ctx, id, input)
			}
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *App) deleteLineItemHandler(c *gin.Context) {
	kind, err := models.ParseLineItemType(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.Fees.DeleteLineItem(c.Request.Context(), kind, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) listDisbursementTypesHandler(c *gin.Context) {
	types, err := a.VAT.ListDisbursementTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (a *App) createDisbursementTypeHandler(c *gin.Context) {
	var input models.NewDisbursementType
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	t, err := a.VAT.CreateCustomType(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (a *App) updateDisbursementTypeHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var input models.NewDisbursementType
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	t, err := a.VAT.UpdateCustomType(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *App) deleteDisbursementTypeHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := a.VAT.DeleteCustomType(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type suggestVATRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (a *App) suggestVATHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req suggestVATRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	s, err := a.VAT.SuggestVAT(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type vatCorrectionRequest struct {
	Treatment         string `json:"vat_treatment"`
	Reason            string `json:"reason"`
	RegenerateInvoice bool   `json:"regenerate_invoice"`
}

func (a *App) correctVATHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req vatCorrectionRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	d, err := a.VAT.CorrectVATTreatment(c.Request.Context(), id, req.Treatment, req.Reason, req.RegenerateInvoice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (a *App) disbursementAuditHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := a.VAT.GetAuditLogForDisbursement(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *App) auditLogHandler(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := a.VAT.GetAuditLog(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *App) vatStatisticsHandler(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := a.VAT.GetVATStatistics(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *App) exportAuditHandler(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"vat_audit_%s_%s.xlsx\"",
		from.Format("20060102"), to.Format("20060102")))
	if err := a.VAT.ExportAuditLog(c.Request.Context(), from, to, c.Writer); err != nil {
		c.Writer.Header().Del("Content-Disposition")
		respondError(c, err)
		return
	}
}

type generateInvoiceRequest struct {
	All        bool                 `json:"all"`
	Items      []models.LineItemRef `json:"items"`
	IsProForma bool                 `json:"is_pro_forma"`
}

func (a *App) generateInvoiceHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req generateInvoiceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	inv, err := a.Invoices.GenerateInvoice(c.Request.Context(), id,
		workflow.LineItemSelector{All: req.All, Items: req.Items},
		workflow.GenerateOptions{IsProForma: req.IsProForma})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (a *App) listInvoicesHandler(c *gin.Context) {
	var filter models.InvoiceFilter
	if v := c.Query("matter_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, utils.NewValidationError("invalid matter_id %q", v))
			return
		}
		filter.MatterId = &id
	}
	if v := c.Query("status"); v != "" {
		status, err := models.ParseInvoiceStatus(v)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = &status
	}
	filter.IncludeConverted = strings.EqualFold(c.Query("include_converted"), "true")
	invoices, err := a.Invoices.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (a *App) getInvoiceHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	inv, err := a.Invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (a *App) convertProFormaHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	inv, err := a.Invoices.ConvertProFormaToFinal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *App) updateStatusHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	inv, err := a.Invoices.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
}

func (a *App) recordPaymentHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req paymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	input := workflow.PaymentInput{Amount: req.Amount, Method: req.Method, Reference: req.Reference}
	if req.Date != "" {
		if input.Date, err = utils.ParseDate(req.Date); err != nil {
			respondError(c, err)
			return
		}
	}
	inv, err := a.Invoices.RecordPayment(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (a *App) sendReminderHandler(c *gin.Context) {
	id, err := pathId(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	inv, err := a.Reminders.SendReminder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (a *App) upcomingRemindersHandler(c *gin.Context) {
	horizon := 7
	if v := c.Query("horizon_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, utils.NewValidationError("invalid horizon_days %q", v))
			return
		}
		horizon = n
	}
	upcoming, err := a.Reminders.GetUpcomingReminders(c.Request.Context(), horizon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, upcoming)
}

// processRemindersHandler lets a scheduler job trigger a sweep. Only scheduler or admin
// tokens may call it.
func (a *App) processRemindersHandler(c *gin.Context) {
	claim := middlewares.CtxValue(c.Request.Context())
	if claim == nil || (claim.Role != "scheduler" && claim.Role != "admin") {
		respondError(c, utils.NewUnauthorizedError("reminder sweeps require a scheduler token"))
		return
	}
	result, err := a.Reminders.ProcessReminders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
