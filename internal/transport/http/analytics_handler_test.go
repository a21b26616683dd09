package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"retailpulse/internal/analytics"
	"retailpulse/internal/campaign"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/ingest"
	"retailpulse/internal/schema"
	"retailpulse/internal/services"
)

const (
	salesCSV = "order_id,sku,store_id,qty,selling_price_aed,order_time\n" +
		"O1,A,S1,2,100,2024-03-01 10:00:00\n" +
		"O2,B,S2,1,50,2024-03-02 11:00:00\n" +
		"O3,A,S2,1,100,2024-03-02 12:00:00\n"
	storesCSV    = "store_id,city,channel\nS1,Dubai,App\nS2,Abu Dhabi,Web\n"
	productsCSV  = "sku,category,unit_cost_aed\nA,Electronics,60\nB,Fashion,20\n"
	inventoryCSV = "sku,store_id,stock_on_hand,reorder_point\nA,S1,0,5\nB,S1,3,5\nA,S2,50,5\n"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upload is one multipart file part.
type upload struct {
	part, filename, content string
}

func multipartRequest(t *testing.T, target string, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.part, f.filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func allUploads() []upload {
	return []upload{
		{"sales", "sales.csv", salesCSV},
		{"stores", "stores.csv", storesCSV},
		{"products", "products.csv", productsCSV},
		{"inventory", "inventory.csv", inventoryCSV},
	}
}

func newTestRouter(service AnalyticsServiceInterface) http.Handler {
	logger := discardLogger()
	h := NewAnalyticsHandler(service, logger, apierrors.NewErrorHandler(logger, false))
	r := chi.NewRouter()
	r.Mount("/api/v1", h.Routes())
	return r
}

func newRealRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := discardLogger()
	svc := services.NewAnalyticsService(services.AnalyticsDeps{
		Logger:  logger,
		Reports: services.NewReportWriter(t.TempDir(), nil, logger),
	})
	return newTestRouter(svc)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAnalyticsHandler_GetExpectedColumns(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "sales", body["type"])
	assert.Len(t, body["required"], 5)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/customers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeUnknownEntity, decodeJSON(t, rec)["type"])
}

func TestAnalyticsHandler_ValidateFile(t *testing.T) {
	router := newRealRouter(t)

	tests := []struct {
		name         string
		target       string
		files        []upload
		wantStatus   int
		wantValid    bool
		wantDetected string
	}{
		{
			name:       "valid sales",
			target:     "/api/v1/validate?type=sales",
			files:      []upload{{"file", "sales.csv", salesCSV}},
			wantStatus: http.StatusOK,
			wantValid:  true,
		},
		{
			name:         "products uploaded as sales",
			target:       "/api/v1/validate?type=sales",
			files:        []upload{{"file", "p.csv", "sku,category,base_price\nA,Electronics,100\n"}},
			wantStatus:   http.StatusOK,
			wantDetected: "products",
		},
		{
			name:       "missing type",
			target:     "/api/v1/validate",
			files:      []upload{{"file", "sales.csv", salesCSV}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing file",
			target:     "/api/v1/validate?type=sales",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported format",
			target:     "/api/v1/validate?type=sales",
			files:      []upload{{"file", "sales.pdf", "%PDF"}},
			wantStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, multipartRequest(t, tt.target, tt.files, nil))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decodeJSON(t, rec)
			assert.Equal(t, tt.wantValid, body["valid"])
			if tt.wantDetected != "" {
				assert.Equal(t, tt.wantDetected, body["detected_type"])
			}
		})
	}
}

func TestAnalyticsHandler_GetKPIs(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, multipartRequest(t, "/api/v1/kpis", allUploads(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.InDelta(t, 350, body["total_revenue"], 1e-9)
	assert.InDelta(t, 150, body["total_profit"], 1e-9)
	assert.EqualValues(t, 3, body["total_orders"])
}

func TestAnalyticsHandler_UploadErrors(t *testing.T) {
	router := newRealRouter(t)

	t.Run("missing sales", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis",
			[]upload{{"stores", "stores.csv", storesCSV}}, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeJSON(t, rec)
		assert.Equal(t, "MISSING_UPLOAD", body["error_code"])
	})

	t.Run("schema mismatch", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis",
			[]upload{{"sales", "sales.csv", storesCSV}}, nil))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeJSON(t, rec)
		assert.Equal(t, apierrors.TypeSchemaMismatch, body["type"])
		details, ok := body["details"].(map[string]interface{})
		require.True(t, ok)
		validation := details["validation"].(map[string]interface{})
		assert.Equal(t, "stores", validation["detected_type"])
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/kpis", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(router, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("unreadable xlsx", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis",
			[]upload{{"sales", "sales.xlsx", "not a workbook"}}, nil))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		body := decodeJSON(t, rec)
		assert.Equal(t, apierrors.TypeUnreadableFile, body["type"])
		assert.Equal(t, "INGEST", body["error_type"])
		assert.Equal(t, "sales", body["entity"])
	})
}

func TestAnalyticsHandler_GetGroupedKPIs(t *testing.T) {
	router := newRealRouter(t)

	t.Run("by city", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis/grouped?by=city", allUploads(), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var g analytics.GroupedKPIs
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
		assert.Equal(t, "city", g.Dimension)
		require.Len(t, g.Rows, 2)
		assert.Equal(t, "Dubai", g.Rows[0].Key)
	})

	t.Run("csv download", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis/grouped?by=channel&format=csv", allUploads(), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, contentTypeCSV, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "kpis_by_channel.csv")
		assert.Contains(t, rec.Body.String(), "channel,revenue,profit")
	})

	t.Run("invalid dimension", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis/grouped?by=planet", allUploads(), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing dimension", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/kpis/grouped", allUploads(), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAnalyticsHandler_GetTrend(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, multipartRequest(t, "/api/v1/kpis/trend", allUploads(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr analytics.Trend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.Len(t, tr.Points, 2)
	assert.Equal(t, "2024-03-01", tr.Points[0].Date)
	assert.False(t, tr.Synthetic)
}

func TestAnalyticsHandler_GetTopProducts(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, multipartRequest(t, "/api/v1/kpis/top-products?limit=1", allUploads(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var top analytics.GroupedKPIs
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top.Rows, 1)
	assert.Equal(t, "A", top.Rows[0].Key)

	rec = serve(router, multipartRequest(t, "/api/v1/kpis/top-products?limit=0", allUploads(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsHandler_GetOverview(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, multipartRequest(t, "/api/v1/overview", allUploads(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var o services.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.InDelta(t, 350, o.KPIs.TotalRevenue, 1e-9)
	require.NotNil(t, o.Stockout)
	assert.Equal(t, 3, o.Stockout.TotalItems)

	rec = serve(router, multipartRequest(t, "/api/v1/overview?format=xlsx", allUploads(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Stockout Risk")
}

func TestAnalyticsHandler_GetStockoutRisk(t *testing.T) {
	router := newRealRouter(t)

	rec := serve(router, multipartRequest(t, "/api/v1/inventory/risk",
		[]upload{{"inventory", "inventory.csv", inventoryCSV}}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.EqualValues(t, 3, body["total_items"])
	assert.EqualValues(t, 1, body["zero_stock"])
	assert.EqualValues(t, 2, body["low_stock"])

	rec = serve(router, multipartRequest(t, "/api/v1/inventory/risk",
		[]upload{{"sales", "sales.csv", salesCSV}}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "inventory part is required")
}

func TestAnalyticsHandler_SimulateCampaign(t *testing.T) {
	router := newRealRouter(t)

	t.Run("projection", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/campaign/simulate", allUploads(), map[string]string{
			"discount_pct":  "20",
			"promo_budget":  "500",
			"campaign_days": "30",
			"category":      "Electronics",
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res campaign.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.NotNil(t, res.Outputs)
		assert.InDelta(t, 36, res.Outputs.DemandLiftPct, 1e-9)
	})

	t.Run("no matching data", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/campaign/simulate", allUploads(), map[string]string{
			"city": "Nowhere",
		}))
		require.Equal(t, http.StatusOK, rec.Code)
		var res campaign.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Nil(t, res.Outputs)
		assert.Equal(t, []string{campaign.NoMatchingDataWarning}, res.Warnings)
	})

	t.Run("workbook", func(t *testing.T) {
		rec := serve(router, multipartRequest(t, "/api/v1/campaign/simulate?format=xlsx", allUploads(), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{"Outputs", "Comparison", "Warnings"}, f.GetSheetList())
	})

	invalid := []struct {
		name   string
		fields map[string]string
	}{
		{"discount above 100", map[string]string{"discount_pct": "150"}},
		{"negative budget", map[string]string{"promo_budget": "-1"}},
		{"zero days", map[string]string{"campaign_days": "0"}},
		{"non numeric", map[string]string{"discount_pct": "ten"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, multipartRequest(t, "/api/v1/campaign/simulate", allUploads(), tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, apierrors.TypeValidation, decodeJSON(t, rec)["type"])
		})
	}
}

// MockAnalyticsService is a mock implementation of AnalyticsServiceInterface
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) ExpectedColumns(ctx context.Context, entity string) (schema.ExpectedColumns, error) {
	args := m.Called(entity)
	return args.Get(0).(schema.ExpectedColumns), args.Error(1)
}

func (m *MockAnalyticsService) Validate(ctx context.Context, entity string, src ingest.Source) (schema.ValidationResult, error) {
	args := m.Called(entity, src.Name)
	return args.Get(0).(schema.ValidationResult), args.Error(1)
}

func (m *MockAnalyticsService) Ingest(ctx context.Context, sources map[schema.EntityType]ingest.Source, required ...schema.EntityType) (ingest.Bundle, error) {
	args := m.Called(len(sources), required)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ingest.Bundle), args.Error(1)
}

func (m *MockAnalyticsService) Overall(ctx context.Context, b ingest.Bundle) analytics.KPIs {
	return m.Called().Get(0).(analytics.KPIs)
}

func (m *MockAnalyticsService) Grouped(ctx context.Context, b ingest.Bundle, dimension string) analytics.GroupedKPIs {
	return m.Called(dimension).Get(0).(analytics.GroupedKPIs)
}

func (m *MockAnalyticsService) Trend(ctx context.Context, b ingest.Bundle) analytics.Trend {
	return m.Called().Get(0).(analytics.Trend)
}

func (m *MockAnalyticsService) TopProducts(ctx context.Context, b ingest.Bundle, limit int) analytics.GroupedKPIs {
	return m.Called(limit).Get(0).(analytics.GroupedKPIs)
}

func (m *MockAnalyticsService) Overview(ctx context.Context, b ingest.Bundle) services.Overview {
	return m.Called().Get(0).(services.Overview)
}

func (m *MockAnalyticsService) StockoutRisk(ctx context.Context, b ingest.Bundle) analytics.StockoutRisk {
	return m.Called().Get(0).(analytics.StockoutRisk)
}

func (m *MockAnalyticsService) Simulate(ctx context.Context, b ingest.Bundle, p campaign.Params) campaign.Result {
	return m.Called(p).Get(0).(campaign.Result)
}

func (m *MockAnalyticsService) Reports() *services.ReportWriter {
	return m.Called().Get(0).(*services.ReportWriter)
}

func TestAnalyticsHandler_PassesParsedParameters(t *testing.T) {
	svc := new(MockAnalyticsService)
	bundle := ingest.Bundle{}
	svc.On("Ingest", 1, []schema.EntityType{schema.Sales}).Return(bundle, nil)
	svc.On("TopProducts", 25).Return(analytics.GroupedKPIs{Dimension: "sku", Rows: []analytics.GroupKPI{}})

	expected := defaultCampaignParams()
	expected.DiscountPct = 12.5
	expected.Channel = "App"
	svc.On("Simulate", expected).Return(campaign.Result{Warnings: []string{}})

	router := newTestRouter(svc)
	sales := []upload{{"sales", "sales.csv", salesCSV}}

	rec := serve(router, multipartRequest(t, "/api/v1/kpis/top-products?limit=25", sales, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, multipartRequest(t, "/api/v1/campaign/simulate", sales, map[string]string{
		"discount_pct": "12.5",
		"channel":      "App",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.AssertExpectations(t)
}

func TestAnalyticsHandler_ServiceErrorsAreTranslated(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing table", &services.MissingTableError{Entity: schema.Sales}, http.StatusBadRequest, "MISSING_UPLOAD"},
		{"rejected table", &services.TableValidationError{Entity: schema.Sales}, http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
		{"row limit", ingest.ErrTooManyRows, http.StatusRequestEntityTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAnalyticsService)
			svc.On("Ingest", 1, []schema.EntityType{schema.Sales}).Return(nil, tt.err)

			rec := serve(newTestRouter(svc), multipartRequest(t, "/api/v1/kpis",
				[]upload{{"sales", "sales.csv", salesCSV}}, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeJSON(t, rec)["error_code"])
			}
			svc.AssertNotCalled(t, "Overall")
		})
	}
}

// faultingService reports an analytics fault from Overall the way the engine
// hook does, then returns the empty fallback.
type faultingService struct {
	*MockAnalyticsService
}

func (f faultingService) Overall(ctx context.Context, b ingest.Bundle) analytics.KPIs {
	services.OnFault(ctx, "overall_kpis", analytics.ErrNotEnriched)
	return analytics.KPIs{}
}

func TestAnalyticsHandler_StrictMode(t *testing.T) {
	newService := func() faultingService {
		svc := new(MockAnalyticsService)
		svc.On("Ingest", 1, []schema.EntityType{schema.Sales}).Return(ingest.Bundle{}, nil)
		return faultingService{svc}
	}

	t.Run("fallback served by default", func(t *testing.T) {
		rec := serve(newTestRouter(newService()), multipartRequest(t, "/api/v1/kpis",
			[]upload{{"sales", "sales.csv", salesCSV}}, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 0, decodeJSON(t, rec)["total_revenue"])
	})

	t.Run("fault reported when strict", func(t *testing.T) {
		rec := serve(newTestRouter(newService()), multipartRequest(t, "/api/v1/kpis?strict=true",
			[]upload{{"sales", "sales.csv", salesCSV}}, nil))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		body := decodeJSON(t, rec)
		assert.Equal(t, apierrors.TypeEmptyData, body["type"])
		assert.Equal(t, "overall_kpis", body["operation"])
	})

	t.Run("invalid strict value", func(t *testing.T) {
		svc := new(MockAnalyticsService)
		rec := serve(newTestRouter(svc), multipartRequest(t, "/api/v1/kpis?strict=yes",
			[]upload{{"sales", "sales.csv", salesCSV}}, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Ingest")
	})

	t.Run("clean computation passes strict", func(t *testing.T) {
		rec := serve(newRealRouter(t), multipartRequest(t, "/api/v1/kpis?strict=true", allUploads(), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.InDelta(t, 350, decodeJSON(t, rec)["total_revenue"], 1e-9)
	})
}
