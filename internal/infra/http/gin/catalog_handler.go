package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	catalogapp "activityhub/internal/app/handlers/catalog"
	"activityhub/internal/app/queries"
	"activityhub/internal/domain/shared/apperr"
)

type CatalogHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h CatalogHandler) RegisterVendor(c *gin.Context) {
	var cmd catalogapp.RegisterVendorCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	result, err := commands.Dispatch[catalogapp.RegisterVendorCommand, *dto.Vendor](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type reviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h CatalogHandler) ReviewVendor(c *gin.Context) {
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := catalogapp.ReviewVendorCommand{VendorID: c.Param("id"), Status: req.Status, Note: req.Note}
	result, err := commands.Dispatch[catalogapp.ReviewVendorCommand, *dto.Vendor](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CatalogHandler) CreateResource(c *gin.Context) {
	var cmd catalogapp.CreateResourceCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd.IdempotencyKeyV = c.GetHeader(idempotencyHeader)
	result, err := commands.Dispatch[catalogapp.CreateResourceCommand, *dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h CatalogHandler) GetResource(c *gin.Context) {
	result, err := queries.Ask[catalogapp.GetResourceQuery, dto.Resource](c.Request.Context(), h.Queries, catalogapp.GetResourceQuery{ResourceID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CatalogHandler) ListResources(c *gin.Context) {
	q := catalogapp.ListResourcesQuery{VendorID: c.Query("vendor_id")}
	result, err := queries.Ask[catalogapp.ListResourcesQuery, []dto.Resource](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result == nil {
		result = []dto.Resource{}
	}
	c.JSON(http.StatusOK, result)
}

type resourceStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion *int64 `json:"expected_version"`
}

func (h CatalogHandler) SetResourceStatus(c *gin.Context) {
	var req resourceStatusRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := catalogapp.SetResourceStatusCommand{ResourceID: c.Param("id"), Status: req.Status, ExpectedVersion: req.ExpectedVersion}
	result, err := commands.Dispatch[catalogapp.SetResourceStatusCommand, *dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CatalogHandler) ReviewResource(c *gin.Context) {
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := catalogapp.ReviewResourceCommand{ResourceID: c.Param("id"), Status: req.Status, Note: req.Note}
	result, err := commands.Dispatch[catalogapp.ReviewResourceCommand, *dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CatalogHandler) ResourceStats(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := catalogapp.ResourceStatsQuery{ResourceID: c.Param("id"), From: from, To: to}
	result, err := queries.Ask[catalogapp.ResourceStatsQuery, dto.ResourceStats](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// queryTime parses an optional timestamp or date query parameter.
func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("http.query", "%s must be a date or RFC3339 timestamp", name)
}

var _ CatalogHTTP = CatalogHandler{}
