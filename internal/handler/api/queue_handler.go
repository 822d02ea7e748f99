package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/utils"
	"github.com/trimline/trimline/pkg/xresponse"
)

// QueueHandler handles queue-related HTTP requests
type QueueHandler struct {
	queueUC     domain.QueueUsecase
	roleGuard   *RoleGuard
	notesMaxLen int
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueUC domain.QueueUsecase, notesMaxLen int) *QueueHandler {
	return &QueueHandler{
		queueUC:     queueUC,
		roleGuard:   NewRoleGuard(),
		notesMaxLen: notesMaxLen,
	}
}

// JoinQueueRequest represents request for joining a shop's queue
type JoinQueueRequest struct {
	ServiceName     string  `json:"service_name" binding:"required"`
	ServicePrice    float64 `json:"service_price"`
	ServiceDuration int     `json:"service_duration"`
	Notes           string  `json:"notes"`
}

// UpdateNotesRequest represents request for changing entry notes
type UpdateNotesRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// JoinQueue adds the authenticated customer to the shop's queue
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	shopID := c.Param("shopId")
	if shopID == "" {
		xresponse.BadRequest(c, "Shop ID is required")
		return
	}

	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Invalid request body", logger.ErrorField(err))
		xresponse.BadRequest(c, "Invalid request format")
		return
	}

	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	h.roleGuard.LogAccess(c, "join_queue", shopID)

	service := domain.ServiceRequest{
		Name:     req.ServiceName,
		Price:    req.ServicePrice,
		Duration: req.ServiceDuration,
	}
	notes := utils.NormalizeNotes(req.Notes, h.notesMaxLen)

	ranked, err := h.queueUC.Join(c.Request.Context(), shopID, userID, service, notes)
	if err != nil {
		logger.Error("Failed to join queue",
			logger.String("shop_id", shopID),
			logger.String("customer_id", userID),
			logger.ErrorField(err),
		)
		h.respondQueueError(c, err)
		return
	}

	xresponse.Created(c, "Joined queue successfully", ranked)
}

// LeaveQueue cancels the authenticated customer's entry
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	entryID := c.Param("entryId")
	if entryID == "" {
		xresponse.BadRequest(c, "Entry ID is required")
		return
	}

	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	h.roleGuard.LogAccess(c, "leave_queue", entryID)

	entry, err := h.queueUC.Leave(c.Request.Context(), entryID, userID)
	if err != nil {
		logger.Error("Failed to leave queue",
			logger.String("entry_id", entryID),
			logger.String("customer_id", userID),
			logger.ErrorField(err),
		)
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Left queue successfully", entry)
}

// UpdateNotes replaces the notes of the customer's waiting entry
func (h *QueueHandler) UpdateNotes(c *gin.Context) {
	entryID := c.Param("entryId")
	if entryID == "" {
		xresponse.BadRequest(c, "Entry ID is required")
		return
	}

	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xresponse.BadRequest(c, "Invalid request format")
		return
	}

	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	notes := utils.NormalizeNotes(req.Notes, h.notesMaxLen)

	entry, err := h.queueUC.UpdateNotes(c.Request.Context(), entryID, userID, notes)
	if err != nil {
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Notes updated successfully", entry)
}

// MyQueues lists the customer's active entries across shops
func (h *QueueHandler) MyQueues(c *gin.Context) {
	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	entries, err := h.queueUC.MyQueues(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to list customer queues",
			logger.String("customer_id", userID),
			logger.ErrorField(err),
		)
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Queues retrieved successfully", entries)
}

// CallNext dispatches the earliest waiting customer to the provider
func (h *QueueHandler) CallNext(c *gin.Context) {
	shopID := c.Param("shopId")
	if shopID == "" {
		xresponse.BadRequest(c, "Shop ID is required")
		return
	}

	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	h.roleGuard.LogAccess(c, "call_next", shopID)

	entry, err := h.queueUC.CallNext(c.Request.Context(), shopID, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCustomersWaiting) {
			logger.Error("Failed to call next customer",
				logger.String("shop_id", shopID),
				logger.String("provider_id", userID),
				logger.ErrorField(err),
			)
		}
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Customer dispatched successfully", entry)
}

// Complete marks the provider's in-progress entry as completed
func (h *QueueHandler) Complete(c *gin.Context) {
	h.finish(c, "complete_entry", h.queueUC.Complete, "Entry completed successfully")
}

// MarkNoShow marks the provider's in-progress entry as a no-show
func (h *QueueHandler) MarkNoShow(c *gin.Context) {
	h.finish(c, "mark_no_show", h.queueUC.MarkNoShow, "Entry marked as no-show")
}

type finishOp func(ctx context.Context, entryID, providerID string) (*domain.QueueEntry, error)

func (h *QueueHandler) finish(c *gin.Context, action string, op finishOp, message string) {
	entryID := c.Param("entryId")
	if entryID == "" {
		xresponse.BadRequest(c, "Entry ID is required")
		return
	}

	userID, _, exists := h.roleGuard.GetCurrentUser(c)
	if !exists {
		xresponse.Unauthorized(c, "Authentication required")
		return
	}

	h.roleGuard.LogAccess(c, action, entryID)

	entry, err := op(c.Request.Context(), entryID, userID)
	if err != nil {
		logger.Error("Failed to finish entry",
			logger.String("entry_id", entryID),
			logger.String("provider_id", userID),
			logger.String("action", action),
			logger.ErrorField(err),
		)
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, message, entry)
}

// QueueStatus returns the shop's public queue summary
func (h *QueueHandler) QueueStatus(c *gin.Context) {
	shopID := c.Param("shopId")
	if shopID == "" {
		xresponse.BadRequest(c, "Shop ID is required")
		return
	}

	status, err := h.queueUC.Status(c.Request.Context(), shopID)
	if err != nil {
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Queue status retrieved successfully", status)
}

// ShopQueue returns the provider view of the shop's active queue
func (h *QueueHandler) ShopQueue(c *gin.Context) {
	shopID := c.Param("shopId")
	if shopID == "" {
		xresponse.BadRequest(c, "Shop ID is required")
		return
	}

	h.roleGuard.LogAccess(c, "shop_queue", shopID)

	queue, err := h.queueUC.ShopQueue(c.Request.Context(), shopID)
	if err != nil {
		h.respondQueueError(c, err)
		return
	}

	xresponse.Success(c, "Shop queue retrieved successfully", queue)
}

// respondQueueError maps engine failures to API responses.
func (h *QueueHandler) respondQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrShopNotFound):
		xresponse.NotFoundWithCode(c, xresponse.ErrCodeShopNotFound, "Shop not found")
	case errors.Is(err, domain.ErrNotFound):
		xresponse.NotFound(c, "Entry not found")
	case errors.Is(err, domain.ErrAlreadyQueued):
		xresponse.ConflictWithCode(c, xresponse.ErrCodeAlreadyQueued, "Customer already has an active entry for this shop")
	case errors.Is(err, domain.ErrQueueFull):
		xresponse.BadRequestWithCode(c, xresponse.ErrCodeQueueFull, "Queue is full")
	case errors.Is(err, domain.ErrNotAccepting):
		xresponse.BadRequestWithCode(c, xresponse.ErrCodeNotAccepting, "Shop is not accepting new customers")
	case errors.Is(err, domain.ErrNoCustomersWaiting):
		xresponse.NotFoundWithCode(c, xresponse.ErrCodeNoCustomersWaiting, "No customers waiting")
	case errors.Is(err, domain.ErrPreconditionFailed):
		xresponse.PreconditionFailed(c, "Entry is not in the required status")
	case errors.Is(err, domain.ErrNotOwner):
		xresponse.Forbidden(c, "Entry belongs to a different customer")
	case errors.Is(err, domain.ErrNotAssigned):
		xresponse.Forbidden(c, "Entry is assigned to a different provider")
	case errors.Is(err, domain.ErrContention):
		xresponse.Contention(c, "Too many concurrent updates, please retry")
	default:
		xresponse.InternalServerError(c, "Internal server error")
	}
}
