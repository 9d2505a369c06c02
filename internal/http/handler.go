package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rdw-proxy/internal/domain/vehicle"
	"rdw-proxy/internal/export"
	"rdw-proxy/internal/service"
)

// VehicleLookup is satisfied by *service.VehicleService.
type VehicleLookup interface {
	Lookup(ctx context.Context, rawPlate string) (*vehicle.LookupResult, error)
}

type Handler struct {
	vehicles VehicleLookup
	log      zerolog.Logger
}

func NewHandler(vehicles VehicleLookup, log zerolog.Logger) *Handler {
	return &Handler{
		vehicles: vehicles,
		log:      log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/vehicle", h.getVehicleByQuery)
		api.GET("/kenteken/:kenteken", h.getVehicle)
		api.GET("/kenteken/:kenteken/export.xlsx", h.exportVehicle)
	}
}

func (h *Handler) getVehicleByQuery(c *gin.Context) {
	raw := c.Query("plate")
	if raw == "" {
		raw = c.Query("kenteken")
	}
	h.respondLookup(c, raw)
}

func (h *Handler) getVehicle(c *gin.Context) {
	h.respondLookup(c, c.Param("kenteken"))
}

func (h *Handler) respondLookup(c *gin.Context, raw string) {
	result, err := h.vehicles.Lookup(c.Request.Context(), raw)
	if err != nil {
		h.handleError(c, raw, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) exportVehicle(c *gin.Context) {
	raw := c.Param("kenteken")
	result, err := h.vehicles.Lookup(c.Request.Context(), raw)
	if err != nil {
		h.handleError(c, raw, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, result.Record); err != nil {
		h.log.Error().Err(err).Str("plate", result.Plate).Msg("failed to render xlsx export")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Plate+`.xlsx"`)
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

func (h *Handler) handleError(c *gin.Context, raw string, err error) {
	var (
		notFound *service.PlateNotFoundError
		upstream *service.UpstreamError
	)

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid plate",
			"detail": "provide a license plate containing letters or digits",
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "vehicle not found",
			"kenteken": notFound.Plate,
		})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "upstream request failed",
			"resource": upstream.Resource,
			"status":   upstream.Status,
		})
	default:
		h.log.Error().Err(err).Str("raw_plate", raw).Msg("vehicle lookup failed")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
