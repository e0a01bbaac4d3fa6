package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/services"
)

// ActorHeader carries the caller's identity, injected by the gateway
// after session validation.
const ActorHeader = "X-Actor-Id"

type APIHandlers struct {
	documentService  *services.Document
	executionService *services.Execution
	auditService     *services.Audit
	validator        *validator.Validate
}

func NewAPIHandlers(
	documentService *services.Document,
	executionService *services.Execution,
	auditService *services.Audit,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		documentService:  documentService,
		executionService: executionService,
		auditService:     auditService,
		validator:        validator,
	}
}

// actorID extracts the caller's identity from the gateway header.
func actorID(c fiber.Ctx) (int64, error) {
	raw := c.Get(ActorHeader)
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "missing "+ActorHeader+" header")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "invalid "+ActorHeader+" header")
	}

	return id, nil
}

func (h *APIHandlers) CreateDocument(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req CreateDocumentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	stages := make([]services.StageDefinition, 0, len(req.Stages))
	for _, stage := range req.Stages {
		stages = append(stages, services.StageDefinition{
			AssigneeID:      stage.AssigneeID,
			Action:          models.TaskAction(stage.Action),
			Instruction:     stage.Instruction,
			CanSkip:         stage.CanSkip,
			CommentRequired: stage.CommentRequired,
		})
	}

	doc, err := h.documentService.Create(c.Context(), services.CreateDocumentRequest{
		ActorID:            actor,
		Title:              req.Title,
		Body:               req.Body,
		RecipientID:        req.RecipientID,
		ResponsibleID:      req.ResponsibleID,
		Stages:             stages,
		Watchers:           req.Watchers,
		ExecutionAssignees: req.ExecutionAssignees,
		ExecutionNotes:     req.ExecutionNotes,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) GetDocuments(c fiber.Ctx) error {
	req, err := h.parseListDocumentsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.documentService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"documents":     result.Documents,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListDocumentsRequest parses and validates query parameters for listing documents.
func (h *APIHandlers) parseListDocumentsRequest(c fiber.Ctx) (*services.ListDocumentsRequest, error) {
	req := &services.ListDocumentsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	for query, target := range map[string]*int64{
		"author_id":      &req.AuthorID,
		"recipient_id":   &req.RecipientID,
		"participant_id": &req.ParticipantID,
	} {
		if raw := c.Query(query); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, err
			}

			*target = id
		}
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.DocumentStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetDocument(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Document ID must be an integer")
	}

	doc, err := h.documentService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) ImportDocuments(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	docs, err := h.documentService.Import(c.Context(), services.ImportRequest{
		ActorID: actor,
		Payload: c.Body(),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *APIHandlers) DecideTask(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	taskID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Task ID must be an integer")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	doc, err := h.documentService.Decide(c.Context(), services.DecideTaskRequest{
		ActorID:  actor,
		TaskID:   taskID,
		Decision: services.TaskDecision(req.Decision),
		Comment:  req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) SetAssignments(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	documentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Document ID must be an integer")
	}

	var req SetAssignmentsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	assignments := make([]services.AssignmentDefinition, 0, len(req.Assignments))
	for _, assignment := range req.Assignments {
		assignments = append(assignments, services.AssignmentDefinition{
			AssigneeID: assignment.AssigneeID,
			Deadline:   assignment.Deadline,
			Comment:    assignment.Comment,
		})
	}

	doc, err := h.executionService.SetAssignments(c.Context(), services.SetAssignmentsRequest{
		ActorID:     actor,
		DocumentID:  documentID,
		Assignments: assignments,
		Notes:       req.Notes,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) AdvanceAssignment(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	documentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Document ID must be an integer")
	}

	var req AdvanceAssignmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	doc, err := h.executionService.Advance(c.Context(), services.AdvanceRequest{
		ActorID:      actor,
		DocumentID:   documentID,
		AssignmentID: req.AssignmentID,
		Next:         models.ExecutionStatus(req.Status),
		Comment:      req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) StartAuditSession(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req StartAuditRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := h.auditService.Start(c.Context(), services.StartAuditRequest{
		ActorID:     actor,
		Type:        models.AuditType(req.Type),
		AuditorOrg:  req.AuditorOrg,
		AuditorName: req.AuditorName,
		Comment:     req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) CloseAuditSession(c fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req CloseAuditRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	session, err := h.auditService.Close(c.Context(), actor, req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) GetActiveAuditSession(c fiber.Ctx) error {
	session, err := h.auditService.Active(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) GetAuditTrail(c fiber.Ctx) error {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Session ID must be an integer")
	}

	entries, err := h.auditService.Trail(c.Context(), sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TrailResponse{SessionID: sessionID, Entries: entries})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.documentService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Veriflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Veriflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
