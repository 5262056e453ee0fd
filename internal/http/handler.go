package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"anpr-gate-service/internal/config"
	"anpr-gate-service/internal/domain/detection"
	"anpr-gate-service/internal/service"
)

type Handler struct {
	ingest *service.IngestService
	query  *service.QueryService
	config *config.Config
	log    zerolog.Logger
}

func NewHandler(
	ingest *service.IngestService,
	query *service.QueryService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		ingest: ingest,
		query:  query,
		config: cfg,
		log:    log,
	}
}

// Register wires the camera-facing ITSAPI routes behind the device
// Digest check and the operator API behind JWT.
func (h *Handler) Register(r *gin.Engine, deviceAuth, operatorAuth gin.HandlerFunc) {
	r.GET("/", h.liveness)

	device := r.Group("/NotificationInfo")
	device.Use(deviceAuth)
	{
		device.POST("/TollgateInfo", h.tollgateInfo)
		device.POST("/KeepAlive", h.keepAlive)
	}

	api := r.Group("/api/v1")
	api.Use(operatorAuth)
	{
		api.GET("/detections", h.listDetections)
		api.GET("/detections/:id", h.getDetection)
	}
}

func (h *Handler) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":    "anpr-gate-service",
		"status": "running",
	})
}

func (h *Handler) tollgateInfo(c *gin.Context) {
	payload, rawImage, err := bindTollgate(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	rec, err := h.ingest.ProcessTollgate(c.Request.Context(), payload, rawImage)
	if err != nil {
		if errors.Is(err, detection.ErrMalformedPayload) {
			h.log.Warn().Err(err).Msg("malformed detection payload")
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		// Storage failures surface as a 500 so the camera retries the
		// notification instead of dropping it.
		h.log.Error().Err(err).Msg("failed to process detection")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"detection_id":     rec.ID,
		"saved_image_path": rec.ImagePath,
		"direction":        rec.Direction,
	})
}

// bindTollgate reads the detection payload from either transport mode:
// a plain JSON body with the image base64-encoded inline, or a
// multipart body carrying the JSON and the raw JPEG as separate parts.
func bindTollgate(c *gin.Context) (*detection.TollgatePayload, []byte, error) {
	var payload detection.TollgatePayload

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, nil, errors.Join(detection.ErrMalformedPayload, err)
		}
		return &payload, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, errors.Join(detection.ErrMalformedPayload, err)
	}

	var decoded bool
	for _, values := range form.Value {
		for _, v := range values {
			if json.Unmarshal([]byte(v), &payload) == nil {
				decoded = true
				break
			}
		}
		if decoded {
			break
		}
	}
	if !decoded {
		return nil, nil, errors.Join(detection.ErrMalformedPayload, errors.New("no JSON part in multipart body"))
	}

	var rawImage []byte
	for _, files := range form.File {
		if len(files) == 0 {
			continue
		}
		f, err := files[0].Open()
		if err != nil {
			return nil, nil, errors.Join(detection.ErrMalformedPayload, err)
		}
		rawImage, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, errors.Join(detection.ErrMalformedPayload, err)
		}
		break
	}

	return &payload, rawImage, nil
}

func (h *Handler) keepAlive(c *gin.Context) {
	var payload detection.HeartbeatPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid heartbeat payload"))
		return
	}

	ack := h.ingest.ProcessHeartbeat(&payload)

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     "Heartbeat received",
		"timestamp":   ack.Format(time.RFC3339),
		"device_time": payload.Time,
	})
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	detections, err := h.query.FindDetections(c.Request.Context(), plateQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(detections))
}

func (h *Handler) getDetection(c *gin.Context) {
	info, err := h.query.GetDetection(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(info))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"status": "error",
		"error":  message,
	}
}
