package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"retailpulse/internal/campaign"
	"retailpulse/internal/dataset"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/exporter"
	"retailpulse/internal/ingest"
	"retailpulse/internal/middleware"
	"retailpulse/internal/schema"
	"retailpulse/internal/services"
)

const (
	// multipartMemory is how much of an upload is buffered in memory before
	// spilling to temporary files.
	multipartMemory = 32 << 20

	defaultTopProducts = 10
	maxTopProducts     = 1000

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// uploadParts lists the multipart file parts an analytics request may carry.
var uploadParts = []schema.EntityType{schema.Sales, schema.Stores, schema.Products, schema.Inventory}

// AnalyticsHandler exposes the analytics service over HTTP
type AnalyticsHandler struct {
	service      AnalyticsServiceInterface
	validator    *middleware.Validator
	query        *middleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(service AnalyticsServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalyticsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsHandler{
		service:      service,
		validator:    middleware.NewValidator(logger),
		query:        middleware.NewQueryParamValidator(logger),
		logger:       logger.With(slog.String("component", "analytics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analytics routes
func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/schemas/{type}", h.GetExpectedColumns)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeValidator("multipart/form-data"))

		r.Post("/validate", h.ValidateFile)
		r.Post("/kpis", h.GetKPIs)
		r.Post("/kpis/grouped", h.GetGroupedKPIs)
		r.Post("/kpis/trend", h.GetTrend)
		r.Post("/kpis/top-products", h.GetTopProducts)
		r.Post("/overview", h.GetOverview)
		r.Post("/inventory/risk", h.GetStockoutRisk)
		r.Post("/campaign/simulate", h.SimulateCampaign)
	})

	return r
}

// GetExpectedColumns handles GET /api/v1/schemas/{type}
func (h *AnalyticsHandler) GetExpectedColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.service.ExpectedColumns(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, cols)
}

// ValidateFile handles POST /api/v1/validate?type=
//
// A schema mismatch is a normal outcome and is returned with status 200.
func (h *AnalyticsHandler) ValidateFile(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimSpace(r.URL.Query().Get("type"))
	if entity == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("type", "type is required"))
		return
	}
	if err := h.parseForm(r); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	src, ok := fileSource(r, "file")
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.MissingUpload("file"))
		return
	}

	res, err := h.service.Validate(r.Context(), entity, src)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// GetKPIs handles POST /api/v1/kpis
func (h *AnalyticsHandler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	k := h.service.Overall(r.Context(), b)
	if h.faulted(w, r, faults) {
		return
	}
	if wantsFormat(r, "csv") {
		h.writeCSV(w, r, "kpis.csv", exporter.KPIsTable(k))
		return
	}
	render.JSON(w, r, k)
}

// GetGroupedKPIs handles POST /api/v1/kpis/grouped?by=
func (h *AnalyticsHandler) GetGroupedKPIs(w http.ResponseWriter, r *http.Request) {
	by, err := h.query.Enum(r, "by", services.Dimensions, "")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if by == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("by",
			"by is required: one of "+strings.Join(services.Dimensions, ", ")))
		return
	}

	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	g := h.service.Grouped(r.Context(), b, by)
	if h.faulted(w, r, faults) {
		return
	}
	if wantsFormat(r, "csv") {
		h.writeCSV(w, r, "kpis_by_"+by+".csv", g.Table())
		return
	}
	render.JSON(w, r, g)
}

// GetTrend handles POST /api/v1/kpis/trend
func (h *AnalyticsHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	tr := h.service.Trend(r.Context(), b)
	if h.faulted(w, r, faults) {
		return
	}
	if wantsFormat(r, "csv") {
		h.writeCSV(w, r, "daily_trend.csv", tr.Table())
		return
	}
	render.JSON(w, r, tr)
}

// GetTopProducts handles POST /api/v1/kpis/top-products?limit=
func (h *AnalyticsHandler) GetTopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := h.query.Int(r, "limit", 1, maxTopProducts, defaultTopProducts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	top := h.service.TopProducts(r.Context(), b, limit)
	if h.faulted(w, r, faults) {
		return
	}
	if wantsFormat(r, "csv") {
		h.writeCSV(w, r, "top_products.csv", top.Table())
		return
	}
	render.JSON(w, r, top)
}

// GetOverview handles POST /api/v1/overview
func (h *AnalyticsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	o := h.service.Overview(r.Context(), b)
	if h.faulted(w, r, faults) {
		return
	}
	if wantsFormat(r, "xlsx") {
		h.writeWorkbook(w, r, "overview.xlsx", services.OverviewSheets(o))
		return
	}
	render.JSON(w, r, o)
}

// GetStockoutRisk handles POST /api/v1/inventory/risk
func (h *AnalyticsHandler) GetStockoutRisk(w http.ResponseWriter, r *http.Request) {
	r, faults, ok := h.strictMode(w, r)
	if !ok {
		return
	}
	b, ok := h.ingest(w, r, schema.Inventory)
	if !ok {
		return
	}
	risk := h.service.StockoutRisk(r.Context(), b)
	if h.faulted(w, r, faults) {
		return
	}
	render.JSON(w, r, risk)
}

// SimulateCampaign handles POST /api/v1/campaign/simulate
func (h *AnalyticsHandler) SimulateCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(r); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	p, err := campaignParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(p); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	b, ok := h.ingest(w, r, schema.Sales)
	if !ok {
		return
	}
	res := h.service.Simulate(r.Context(), b, p)
	if wantsFormat(r, "xlsx") {
		h.writeWorkbook(w, r, "campaign.xlsx", exporter.CampaignSheets(res))
		return
	}
	render.JSON(w, r, res)
}

// strictMode reads ?strict=. In strict mode the request context collects the
// faults the analytics operations swallow, so faulted can report them instead
// of serving the empty fallback.
func (h *AnalyticsHandler) strictMode(w http.ResponseWriter, r *http.Request) (*http.Request, *services.FaultCollector, bool) {
	strict, err := h.query.Enum(r, "strict", []string{"true", "false"}, "false")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return r, nil, false
	}
	if strict != "true" {
		return r, nil, true
	}
	ctx, faults := services.CollectFaults(r.Context())
	return r.WithContext(ctx), faults, true
}

// faulted writes the collected faults, if any, and reports whether it did.
func (h *AnalyticsHandler) faulted(w http.ResponseWriter, r *http.Request, faults *services.FaultCollector) bool {
	if faults == nil {
		return false
	}
	if err := faults.Err(); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return true
	}
	return false
}

// ingest parses the uploads and loads them through the service. On failure
// it writes the error response and returns false.
func (h *AnalyticsHandler) ingest(w http.ResponseWriter, r *http.Request, required ...schema.EntityType) (ingest.Bundle, bool) {
	if err := h.parseForm(r); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}

	sources := make(map[schema.EntityType]ingest.Source, len(uploadParts))
	for _, entity := range uploadParts {
		if src, ok := fileSource(r, string(entity)); ok {
			sources[entity] = src
		}
	}

	b, err := h.service.Ingest(r.Context(), sources, required...)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.translate(err))
		return nil, false
	}
	return b, true
}

// translate turns service errors into API errors the client can act on.
func (h *AnalyticsHandler) translate(err error) error {
	var missing *services.MissingTableError
	if errors.As(err, &missing) {
		return apierrors.MissingUpload(string(missing.Entity))
	}
	var invalid *services.TableValidationError
	if errors.As(err, &invalid) {
		return apierrors.SchemaMismatch(string(invalid.Entity), map[string]interface{}{
			"entity":     invalid.Entity,
			"validation": invalid.Result,
		})
	}
	return err
}

func (h *AnalyticsHandler) parseForm(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST",
			"Request must be multipart/form-data", err.Error())
	}
	return apierrors.InvalidRequestWithError(err)
}

func (h *AnalyticsHandler) writeCSV(w http.ResponseWriter, r *http.Request, filename string, t *dataset.Table) {
	var buf bytes.Buffer
	if err := h.service.Reports().WriteCSV(r.Context(), &buf, t); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeAttachment(w, contentTypeCSV, filename, &buf)
}

func (h *AnalyticsHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, filename string, sheets []exporter.Sheet) {
	var buf bytes.Buffer
	if err := h.service.Reports().WriteWorkbook(r.Context(), &buf, sheets...); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeAttachment(w, contentTypeXLSX, filename, &buf)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func wantsFormat(r *http.Request, format string) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), format)
}

// fileSource wraps the first file of a multipart part.
func fileSource(r *http.Request, part string) (ingest.Source, bool) {
	if r.MultipartForm == nil {
		return ingest.Source{}, false
	}
	files := r.MultipartForm.File[part]
	if len(files) == 0 {
		return ingest.Source{}, false
	}
	fh := files[0]
	return ingest.Source{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return openPart(fh) },
	}, true
}

func openPart(fh *multipart.FileHeader) (io.ReadCloser, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	return f, nil
}

// defaultCampaignParams are used for form fields the client omits.
func defaultCampaignParams() campaign.Params {
	return campaign.Params{
		DiscountPct:  10,
		PromoBudget:  10000,
		MarginFloor:  15,
		City:         campaign.AllFilter,
		Channel:      campaign.AllFilter,
		Category:     campaign.AllFilter,
		CampaignDays: 14,
	}
}

// campaignParams reads the campaign form fields on top of the defaults.
func campaignParams(r *http.Request) (campaign.Params, error) {
	p := defaultCampaignParams()

	floats := []struct {
		field string
		dst   *float64
	}{
		{"discount_pct", &p.DiscountPct},
		{"promo_budget", &p.PromoBudget},
		{"margin_floor", &p.MarginFloor},
	}
	for _, f := range floats {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, apierrors.ErrValidation(f.field, f.field+" must be a number")
		}
		*f.dst = n
	}

	if v := strings.TrimSpace(r.FormValue("campaign_days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, apierrors.ErrValidation("campaign_days", "campaign_days must be an integer")
		}
		p.CampaignDays = n
	}

	for field, dst := range map[string]*string{"city": &p.City, "channel": &p.Channel, "category": &p.Category} {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			*dst = v
		}
	}
	return p, nil
}
