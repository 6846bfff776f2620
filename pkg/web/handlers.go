// Package web provides HTTP handlers and REST API endpoints for the
// monitoring index.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowscope/pkg/archiver"
	"github.com/dukex/flowscope/pkg/importer"
	"github.com/dukex/flowscope/pkg/operations"
	"github.com/dukex/flowscope/pkg/readmodel"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	listReader     *readmodel.ListReader
	treeReader     *readmodel.TreeReader
	incidentReader *readmodel.IncidentReader
	variableReader *readmodel.VariableReader
	writer         *operations.Writer
	pipeline       *importer.Pipeline
	archiver       *archiver.Archiver
	documentStore  store.DocumentStore
	validator      *validator.Validate
}

func NewAPIHandlers(
	listReader *readmodel.ListReader,
	treeReader *readmodel.TreeReader,
	incidentReader *readmodel.IncidentReader,
	variableReader *readmodel.VariableReader,
	writer *operations.Writer,
	pipeline *importer.Pipeline,
	archiverInstance *archiver.Archiver,
	documentStore store.DocumentStore,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		listReader:     listReader,
		treeReader:     treeReader,
		incidentReader: incidentReader,
		variableReader: variableReader,
		writer:         writer,
		pipeline:       pipeline,
		archiver:       archiverInstance,
		documentStore:  documentStore,
		validator:      validator,
	}
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	filter, page, err := parseListQuery(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.listReader.ListInstances(c.Context(), filter, page)
	if err != nil {
		return handleReadError(c, err)
	}

	return c.JSON(result)
}

// parseListQuery parses the list-view filter and page window from query
// parameters.
func parseListQuery(c fiber.Ctx) (readmodel.ListFilter, readmodel.Page, error) {
	filter := readmodel.ListFilter{}
	page := readmodel.Page{}

	if runningStr := c.Query("running"); runningStr != "" {
		running, err := strconv.ParseBool(runningStr)
		if err != nil {
			return filter, page, err
		}

		filter.Running = &running
	}

	if incidentsStr := c.Query("with_incidents"); incidentsStr != "" {
		withIncidents, err := strconv.ParseBool(incidentsStr)
		if err != nil {
			return filter, page, err
		}

		filter.WithIncidents = withIncidents
	}

	if idsStr := c.Query("ids"); idsStr != "" {
		filter.IDs = strings.Split(idsStr, ",")
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return filter, page, err
		}

		page.Size = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return filter, page, err
		}

		page.Offset = offset
	}

	return filter, page, nil
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	summary, err := h.listReader.Instance(c.Context(), c.Params("id"))
	if err != nil {
		return handleReadError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetActivityTree(c fiber.Ctx) error {
	tree, err := h.treeReader.ActivityTree(c.Context(), c.Params("id"))
	if err != nil {
		return handleReadError(c, err)
	}

	return c.JSON(fiber.Map{"children": tree})
}

func (h *APIHandlers) GetIncidents(c fiber.Ctx) error {
	view, err := h.incidentReader.IncidentView(c.Context(), c.Params("id"))
	if err != nil {
		return handleReadError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) GetVariables(c fiber.Ctx) error {
	instanceID := c.Params("id")

	// The instance's own scope holds the top-level variables.
	scopeID := c.Query("scope_id")
	if scopeID == "" {
		scopeID = instanceID
	}

	variables, err := h.variableReader.VariablesByScope(c.Context(), instanceID, scopeID)
	if err != nil {
		return handleReadError(c, err)
	}

	return c.JSON(fiber.Map{"variables": variables})
}

func (h *APIHandlers) CreateBatchOperation(c fiber.Ctx) error {
	var req BatchOperationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.writer.ScheduleBatch(c.Context(), req.toBatchRequest())
	if err != nil {
		return handleOperationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetImportStatus reports feed progress from the persisted positions, so it
// is accurate even when the import rounds run in the worker process.
func (h *APIHandlers) GetImportStatus(c fiber.Ctx) error {
	positions, caughtUp, err := h.pipeline.Status(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ImportStatusResponse{
		Scheduled: h.pipeline.ScheduledCount(),
		Imported:  h.pipeline.ImportedCount(),
		Positions: positions,
		CaughtUp:  caughtUp,
	})
}

func (h *APIHandlers) ResetImportCounters(c fiber.Ctx) error {
	h.pipeline.ResetCounters()

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunArchive(c fiber.Ctx) error {
	moved, err := h.archiver.ArchiveNextBatch(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ArchiveRunResponse{Moved: moved})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Flowscope API is healthy"
	httpStatus := http.StatusOK

	var storeCheck string
	if err := h.documentStore.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Flowscope API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = "Document store is unhealthy: " + err.Error()
	} else {
		storeCheck = "Document store is healthy"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
