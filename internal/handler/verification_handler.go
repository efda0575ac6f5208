package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// Engine is the verification facade behind the HTTP routes.
type Engine interface {
	SubmitEmailJob(ctx context.Context, emails []string, cfg domain.JobConfig) (string, error)
	SubmitPhoneJob(ctx context.Context, numbers []string, cfg domain.JobConfig) (string, error)
	Status(jobID string) (domain.StatusSnapshot, error)
	Chunks(jobID string) ([]domain.Chunk, error)
	List() []domain.StatusSnapshot
	Cancel(jobID string) (bool, error)
	Subscribe(jobID string) (<-chan domain.Event, func(), error)
}

type VerificationHandler struct {
	engine  Engine
	results repository.ResultRepository
}

func NewVerificationHandler(engine Engine, results repository.ResultRepository) (*VerificationHandler, error) {
	if engine == nil {
		return nil, fmt.Errorf("verification engine is required")
	}
	return &VerificationHandler{engine: engine, results: results}, nil
}

func RegisterVerificationRoutes(router fiber.Router, engine Engine, results repository.ResultRepository) error {
	h, err := NewVerificationHandler(engine, results)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/verifications", h.CreateVerification)
	v1.Get("/verifications", h.ListVerifications)
	v1.Get("/verifications/:id", h.GetVerification)
	v1.Get("/verifications/:id/events", h.StreamEvents)
	v1.Get("/verifications/:id/chunks", h.GetChunks)
	v1.Get("/verifications/:id/results", h.GetResults)
	v1.Post("/verifications/:id/cancel", h.CancelVerification)

	return nil
}

type createVerificationRequest struct {
	Kind        string            `json:"kind"`
	Identifiers []string          `json:"identifiers"`
	Config      *jobConfigRequest `json:"config,omitempty"`
}

type jobConfigRequest struct {
	MaxConcurrent  *int `json:"maxConcurrent,omitempty"`
	ItemTimeoutSec *int `json:"itemTimeoutSec,omitempty"`
	RetryCount     *int `json:"retryCount,omitempty"`
	ChunkSize      *int `json:"chunkSize,omitempty"`
	MaxSessions    *int `json:"maxSessions,omitempty"`
}

type createVerificationResponse struct {
	TaskID string `json:"taskId"`
	Kind   string `json:"kind"`
	Total  int    `json:"total"`
}

type listVerificationsResponse struct {
	Data []domain.StatusSnapshot `json:"data"`
}

type chunksResponse struct {
	TaskID string         `json:"taskId"`
	Chunks []domain.Chunk `json:"chunks"`
}

type resultsResponse struct {
	TaskID string                      `json:"taskId"`
	Data   []domain.VerificationResult `json:"data"`
	Meta   listMeta                    `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *VerificationHandler) CreateVerification(c *fiber.Ctx) error {
	var req createVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	kind, err := domain.ParseJobKindFromString(req.Kind)
	if err != nil {
		return toHTTPError(err)
	}

	identifiers := make([]string, 0, len(req.Identifiers))
	for _, id := range req.Identifiers {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			identifiers = append(identifiers, trimmed)
		}
	}
	if len(identifiers) == 0 {
		return toHTTPError(fmt.Errorf("%w: identifiers is required", domain.ErrValidation))
	}

	cfg := requestToJobConfig(req.Config)

	var taskID string
	switch kind {
	case domain.KindEmail:
		taskID, err = h.engine.SubmitEmailJob(c.Context(), identifiers, cfg)
	case domain.KindPhone:
		taskID, err = h.engine.SubmitPhoneJob(c.Context(), identifiers, cfg)
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createVerificationResponse{
		TaskID: taskID,
		Kind:   kind.String(),
		Total:  len(identifiers),
	})
}

func (h *VerificationHandler) GetVerification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	snapshot, err := h.engine.Status(id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(snapshot)
}

func (h *VerificationHandler) ListVerifications(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(listVerificationsResponse{
		Data: h.engine.List(),
	})
}

func (h *VerificationHandler) GetChunks(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	chunks, err := h.engine.Chunks(id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(chunksResponse{
		TaskID: id,
		Chunks: chunks,
	})
}

func (h *VerificationHandler) CancelVerification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	cancelled, err := h.engine.Cancel(id)
	if err != nil {
		return toHTTPError(err)
	}
	if !cancelled {
		return toHTTPError(fmt.Errorf("%w: job %s already finished", domain.ErrConflict, id))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"taskId": id,
		"status": domain.JobStatusCancelled.String(),
	})
}

func (h *VerificationHandler) GetResults(c *fiber.Ctx) error {
	if h.results == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "result persistence is not configured")
	}

	id := strings.TrimSpace(c.Params("id"))
	if _, err := h.engine.Status(id); err != nil {
		return toHTTPError(err)
	}

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	results, total, err := h.results.ListByJob(c.Context(), id, params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(resultsResponse{
		TaskID: id,
		Data:   results,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

// StreamEvents serves the job's progress stream over server-sent events.
// A subscriber joining mid-run gets a snapshot first; a subscriber joining
// after completion gets the terminal event and an immediate close.
func (h *VerificationHandler) StreamEvents(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	events, unsubscribe, err := h.engine.Subscribe(id)
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		for event := range events {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client went away; unsubscribe drops us from the job.
				return
			}
		}
	}))

	return nil
}

func requestToJobConfig(req *jobConfigRequest) domain.JobConfig {
	// RetryCount -1 marks "not specified": zero is a meaningful request
	// value (no retries), so absence falls back to the engine default.
	cfg := domain.JobConfig{RetryCount: -1}
	if req == nil {
		return cfg
	}

	if req.MaxConcurrent != nil {
		cfg.MaxConcurrent = *req.MaxConcurrent
	}
	if req.ItemTimeoutSec != nil {
		cfg.ItemTimeout = time.Duration(*req.ItemTimeoutSec) * time.Second
	}
	if req.RetryCount != nil {
		cfg.RetryCount = *req.RetryCount
	}
	if req.ChunkSize != nil {
		cfg.ChunkSize = *req.ChunkSize
	}
	if req.MaxSessions != nil {
		cfg.MaxSessions = *req.MaxSessions
	}
	return cfg
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawValid := strings.TrimSpace(c.Query("valid")); rawValid != "" {
		switch strings.ToLower(rawValid) {
		case "true":
			valid := true
			params.Valid = &valid
		case "false":
			valid := false
			params.Valid = &valid
		default:
			return repository.ListParams{}, fmt.Errorf("%w: valid must be true or false", domain.ErrValidation)
		}
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category := domain.Category(strings.ToUpper(rawCategory))
		if !category.IsValid() {
			return repository.ListParams{}, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, rawCategory)
		}
		params.Category = &category
	}

	return params, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
