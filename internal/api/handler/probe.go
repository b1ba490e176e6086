package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/capture"
	"github.com/saturnino-fabrica-de-software/ponto/internal/confirm"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/threshold"
)

const (
	maxImageSize = 5 * 1024 * 1024 // 5MB decoded
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// FrameProcessor is the capture pipeline as seen by the HTTP layer.
type FrameProcessor interface {
	Process(ctx context.Context, sessionID string, frame capture.Frame) (*capture.Result, error)
	Reset(sessionID string)
	SessionState(sessionID string) (confirm.State, bool)
}

// ProbeHandler feeds camera frames into the capture pipeline.
type ProbeHandler struct {
	pipeline FrameProcessor
	logger   *slog.Logger
}

func NewProbeHandler(pipeline FrameProcessor, logger *slog.Logger) *ProbeHandler {
	return &ProbeHandler{pipeline: pipeline, logger: logger}
}

// ProbeRequest is one frame. Either Embedding or Image (base64) is required.
type ProbeRequest struct {
	SessionID string                 `json:"session_id"`
	Embedding []float32              `json:"embedding,omitempty"`
	Image     string                 `json:"image,omitempty"`
	Quality   threshold.FrameQuality `json:"quality"`
	Timestamp int64                  `json:"timestamp,omitempty"` // epoch millis, defaults to now
	Latitude  *float64               `json:"latitude,omitempty"`
	Longitude *float64               `json:"longitude,omitempty"`
	PhotoRef  *string                `json:"photo_ref,omitempty"`
}

type ProbeResponse struct {
	Outcome    string                  `json:"outcome"`
	Reason     string                  `json:"reason,omitempty"`
	Phase      string                  `json:"phase"`
	Count      int                     `json:"count"`
	Identity   string                  `json:"identity_code,omitempty"`
	Confidence float64                 `json:"confidence,omitempty"`
	Event      *domain.AttendanceEvent `json:"event,omitempty"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Count     int    `json:"count"`
	Identity  string `json:"identity_code,omitempty"`
}

// Process POST /v1/probes
func (h *ProbeHandler) Process(c *fiber.Ctx) error {
	var req ProbeRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("session_id is required"))
	}

	frame, err := req.toFrame()
	if err != nil {
		return err
	}

	result, err := h.pipeline.Process(c.UserContext(), req.SessionID, frame)
	if err != nil {
		return err
	}

	if result.Outcome == capture.OutcomeConfirmed {
		h.logger.Info("attendance confirmed",
			"session_id", req.SessionID,
			"identity_code", result.Event.IdentityCode,
			"type", result.Event.Type,
			"event_id", result.Event.ID,
		)
	}

	resp := ProbeResponse{
		Outcome: string(result.Outcome),
		Reason:  result.Reason,
		Phase:   result.State.Phase.String(),
		Count:   result.State.Count,
		Event:   result.Event,
	}
	if result.Decision.Matched {
		resp.Identity = result.Decision.Identity.Code
		resp.Confidence = result.Decision.Confidence
	}

	status := fiber.StatusOK
	if result.Outcome == capture.OutcomeConfirmed {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resp)
}

// Reset POST /v1/sessions/:id/reset
func (h *ProbeHandler) Reset(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return domain.ErrValidationFailed.WithError(errors.New("session id is required"))
	}
	h.pipeline.Reset(id)
	return c.SendStatus(fiber.StatusNoContent)
}

// Session GET /v1/sessions/:id
func (h *ProbeHandler) Session(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	state, ok := h.pipeline.SessionState(id)
	if !ok {
		return domain.ErrNotFound
	}
	return c.JSON(SessionResponse{
		SessionID: id,
		Phase:     state.Phase.String(),
		Count:     state.Count,
		Identity:  state.Identity.Code,
	})
}

func (r ProbeRequest) toFrame() (capture.Frame, error) {
	frame := capture.Frame{
		Quality:   r.Quality,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		PhotoRef:  r.PhotoRef,
	}
	if r.Timestamp > 0 {
		frame.At = time.UnixMilli(r.Timestamp)
	}

	switch {
	case len(r.Embedding) > 0:
		frame.Embedding = domain.Embedding(r.Embedding)
	case r.Image != "":
		img, err := decodeImage(r.Image)
		if err != nil {
			return capture.Frame{}, err
		}
		frame.Image = img
	default:
		return capture.Frame{}, domain.ErrValidationFailed.WithError(errors.New("embedding or image is required"))
	}
	return frame, nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i > 0 {
		s = s[i+1:]
	}

	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}
	if len(img) == 0 || len(img) > maxImageSize {
		return nil, domain.ErrValidationFailed.WithError(errors.New("image size out of range"))
	}
	if !validImageTypes[http.DetectContentType(img)] {
		return nil, domain.ErrValidationFailed.WithError(errors.New("unsupported image type"))
	}
	return img, nil
}
