package admission

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tixly/internal/inventory"
	"tixly/internal/shared/utils/response"
)

// Controller handles admission queue HTTP requests
type Controller interface {
	GetStatus(c *gin.Context)
	Claim(c *gin.Context)
	Leave(c *gin.Context)
}

type controller struct {
	service Service
}

// NewController creates a new admission queue controller
func NewController(service Service) Controller {
	return &controller{service: service}
}

// LeaveQueueRequest carries the optional cancellation reason
type LeaveQueueRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"`
}

func (ctrl *controller) queueID(c *gin.Context) (string, bool) {
	id := c.Param("queueId")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid queue ID", err.Error())
		return "", false
	}
	return id, true
}

// GetStatus reports the caller's place in line. Polling this endpoint is
// what drives promotion, the front entry gets its hold attempt here.
func (ctrl *controller) GetStatus(c *gin.Context) {
	queueID, ok := ctrl.queueID(c)
	if !ok {
		return
	}

	status, err := ctrl.service.Status(c.Request.Context(), queueID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get queue status", err.Error())
		return
	}
	if status == nil {
		response.Error(c, http.StatusNotFound, "Queue entry not found", ReasonQueueNotFound)
		return
	}

	response.Success(c, http.StatusOK, "Queue status retrieved", status)
}

// Claim hands the promoted hold to the buyer with a fresh window
func (ctrl *controller) Claim(c *gin.Context) {
	queueID, ok := ctrl.queueID(c)
	if !ok {
		return
	}

	result, err := ctrl.service.Claim(c.Request.Context(), queueID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to claim queue hold", err.Error())
		return
	}

	if !result.Success {
		switch result.Reason {
		case ReasonQueueNotFound:
			response.Error(c, http.StatusNotFound, "Queue entry not found", result)
		case inventory.ErrCodeHoldExpired:
			response.Error(c, http.StatusGone, "Hold expired before claim", result)
		default:
			response.Error(c, http.StatusConflict, "Queue entry not ready to claim", result)
		}
		return
	}

	response.Success(c, http.StatusOK, "Queue hold claimed", result)
}

// Leave cancels the entry and releases any hold it was granted
func (ctrl *controller) Leave(c *gin.Context) {
	queueID, ok := ctrl.queueID(c)
	if !ok {
		return
	}

	var req LeaveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	status, err := ctrl.service.Leave(c.Request.Context(), queueID, req.Reason)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to leave queue", err.Error())
		return
	}
	if status == nil {
		response.Error(c, http.StatusNotFound, "Queue entry not found", ReasonQueueNotFound)
		return
	}

	response.Success(c, http.StatusOK, "Left the queue", status)
}
