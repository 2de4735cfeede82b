package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

// AdoptionHandler serves the adoption request endpoints.
type AdoptionHandler struct {
	adoptionService services.IAdoptionService
}

func NewAdoptionHandler(adoptionService services.IAdoptionService) *AdoptionHandler {
	return &AdoptionHandler{adoptionService: adoptionService}
}

type adminReviewRequest struct {
	Status     models.AdoptionStatus `json:"status" binding:"required,oneof=pending approved rejected completed"`
	AdminNotes string                `json:"adminNotes" binding:"max=1000"`
}

type ownerActionRequest struct {
	Action services.OwnerDecision `json:"action" binding:"required,oneof=approve reject"`
	Notes  string                 `json:"notes" binding:"max=1000"`
}

func statusQuery(c *gin.Context) (models.AdoptionStatus, bool) {
	status := models.AdoptionStatus(c.Query("status"))
	switch status {
	case "", models.AdoptionStatusPending, models.AdoptionStatusApproved,
		models.AdoptionStatusRejected, models.AdoptionStatusCompleted:
		return status, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status filter"})
	return "", false
}

// Submit handles POST /api/adoptions
func (h *AdoptionHandler) Submit(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var input models.SubmitRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	req, err := h.adoptionService.SubmitRequest(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err, "Failed to submit adoption request")
		return
	}
	c.JSON(http.StatusCreated, req)
}

// List handles GET /api/adoptions. Admins see every request, others their own.
func (h *AdoptionHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	views, err := h.adoptionService.ListRequests(c.Request.Context(), actor, status)
	if err != nil {
		respondError(c, err, "Failed to list adoption requests")
		return
	}
	c.JSON(http.StatusOK, views)
}

// ListForMyPets handles GET /api/adoptions/my-pets-requests/all
func (h *AdoptionHandler) ListForMyPets(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	views, err := h.adoptionService.ListRequestsForMyPets(c.Request.Context(), actor, status)
	if err != nil {
		respondError(c, err, "Failed to list requests for your pets")
		return
	}
	c.JSON(http.StatusOK, views)
}

// Get handles GET /api/adoptions/:id
func (h *AdoptionHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id", "adoption request")
	if !ok {
		return
	}
	req, err := h.adoptionService.GetRequest(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err, "Failed to retrieve adoption request")
		return
	}
	c.JSON(http.StatusOK, req)
}

// AdminReview handles PUT /api/adoptions/:id
func (h *AdoptionHandler) AdminReview(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id", "adoption request")
	if !ok {
		return
	}
	var body adminReviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := h.adoptionService.ReviewAsAdmin(c.Request.Context(), actor, id, body.Status, body.AdminNotes)
	if err != nil {
		respondError(c, err, "Failed to review adoption request")
		return
	}
	c.JSON(http.StatusOK, req)
}

// OwnerAction handles PUT /api/adoptions/:id/owner-action
func (h *AdoptionHandler) OwnerAction(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id", "adoption request")
	if !ok {
		return
	}
	var body ownerActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := h.adoptionService.ReviewAsOwner(c.Request.Context(), actor, id, body.Action, body.Notes)
	if err != nil {
		respondError(c, err, "Failed to update adoption request")
		return
	}
	c.JSON(http.StatusOK, req)
}

// Complete handles PUT /api/adoptions/:id/complete
func (h *AdoptionHandler) Complete(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id", "adoption request")
	if !ok {
		return
	}
	req, err := h.adoptionService.CompleteAsOwner(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err, "Failed to complete adoption")
		return
	}
	c.JSON(http.StatusOK, req)
}

// Withdraw handles DELETE /api/adoptions/:id
func (h *AdoptionHandler) Withdraw(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id", "adoption request")
	if !ok {
		return
	}
	if err := h.adoptionService.WithdrawRequest(c.Request.Context(), actor, id); err != nil {
		respondError(c, err, "Failed to withdraw adoption request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Adoption request withdrawn"})
}
