package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"easel/internal/services"
	"easel/internal/store"
	"easel/internal/worker"
)

// dispatchJobHandler accepts a render job request, submits it through the
// dispatch service, and returns the created record. A record with a
// SUBMIT_ERROR code is still a 200: the job was accepted and its failure
// is observable state, not a transport error.
func dispatchJobHandler(c *fiber.Ctx) error {
	var req JobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	if req.ClientTaskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'client_task_id'",
		})
	}
	if req.ServiceType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'service_type'",
		})
	}

	dispatcher := c.Locals("dispatcher").(services.DispatchService)

	rec, err := dispatcher.Dispatch(c.Context(), &services.DispatchRequest{
		ServiceType:  req.ServiceType,
		ClientTaskID: req.ClientTaskID,
		CallbackURL:  req.CallbackURL,
		Text:         req.Params.Text,
		ImageBase64:  req.Params.Image,
	})
	if err != nil {
		if errors.Is(err, services.ErrUnknownServiceType) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   err.Error(),
			})
		}
		if errors.Is(err, worker.ErrNoWorkers) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Success: false,
				Code:    "NO_WORKERS",
				Error:   err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "DISPATCH_FAILED",
			Error:   err.Error(),
		})
	}

	return c.JSON(rec)
}

// jobGetHandler returns a job record by its internal id.
func jobGetHandler(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid job id",
		})
	}

	st := c.Locals("store").(*store.Store)
	rec, err := st.GetJob(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Job not found",
		})
	}

	return c.JSON(rec)
}
