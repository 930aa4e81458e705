package handlers

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"

	"nexus/internal/app"
	"nexus/internal/services"
	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

//go:embed templates/observability.html
var templateFS embed.FS

var observabilityTemplate = template.Must(
	template.ParseFS(templateFS, "templates/observability.html"),
)

type ObservabilityHandler struct {
	Handler
	aggregator *services.AggregatorService
}

type recentRow struct {
	Time    string
	Summary string
	Detail  string
	Path    string
}

type observabilityView struct {
	Query        services.ObservabilityQuery
	Kinds        []types.LogKind
	Ratings      []types.Rating
	Total        int
	SummaryJSON  string
	GroupsJSON   string
	RecentVitals []recentRow
	RecentErrors []recentRow
}

func NewObservabilityHandler(app app.App, router fiber.Router) *ObservabilityHandler {
	log := logger.New("handlers").File("observability_handler")
	return &ObservabilityHandler{
		aggregator: app.Services.Aggregator,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *ObservabilityHandler) Register() {
	h.router.Get("/observability", h.page)
	h.router.Get("/api/observability", h.report)
}

func (h *ObservabilityHandler) query(c *fiber.Ctx) services.ObservabilityQuery {
	return services.ParseObservabilityQuery(
		c.Query("type"),
		c.Query("rating"),
		c.Query("path"),
		c.Query("last"),
	)
}

func (h *ObservabilityHandler) report(c *fiber.Ctx) error {
	return c.JSON(h.aggregator.Query(c.UserContext(), h.query(c)))
}

func (h *ObservabilityHandler) page(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("page")

	report := h.aggregator.Query(c.UserContext(), h.query(c))

	var buf bytes.Buffer
	if err := observabilityTemplate.Execute(&buf, newObservabilityView(report)); err != nil {
		log.Er("Failed to render observability page", err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render observability page")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func newObservabilityView(report services.ObservabilityReport) observabilityView {
	view := observabilityView{
		Query:   report.Query,
		Kinds:   types.LogKinds,
		Ratings: []types.Rating{types.RatingGood, types.RatingNeedsImprovement, types.RatingPoor},
	}

	if report.Query.Type == types.LogKindErrors {
		view.Total = report.Errors.Summary.Total
		view.SummaryJSON = prettyJSON(report.Errors.Summary)
		view.GroupsJSON = prettyJSON(report.Errors.Groups)
	} else {
		view.Total = report.Vitals.Summary.Total
		view.SummaryJSON = prettyJSON(report.Vitals.Summary)
		view.GroupsJSON = prettyJSON(report.Vitals.Groups)
	}

	for _, record := range report.Vitals.Recent {
		view.RecentVitals = append(view.RecentVitals, recentRow{
			Time:    firstNonEmpty(record.Timestamp, record.ReceivedAt),
			Summary: record.Name + ": " + formatValue(record.Value),
			Detail:  string(record.Rating),
			Path:    services.VitalPathKey(record),
		})
	}

	for _, record := range report.Errors.Recent {
		severity := string(record.Severity)
		if severity == "" {
			severity = string(services.DEFAULT_SEVERITY)
		}
		view.RecentErrors = append(view.RecentErrors, recentRow{
			Time:    firstNonEmpty(record.Timestamp, record.ReceivedAt),
			Summary: record.Message,
			Detail:  severity,
			Path:    services.ErrorPathKey(record),
		})
	}

	return view
}

func prettyJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func formatValue(value float64) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "NaN"
	}
	return string(data)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
