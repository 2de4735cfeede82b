package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
	"furadapt/api/internal/storage"
)

// ImageQueue schedules processing of an uploaded pet image.
type ImageQueue interface {
	EnqueueImageProcess(ctx context.Context, petID primitive.ObjectID, key string) error
}

// PetHandler serves the listing endpoints.
type PetHandler struct {
	petService services.IPetService
	storage    storage.IS3Storage
	images     ImageQueue
}

func NewPetHandler(petService services.IPetService, store storage.IS3Storage, images ImageQueue) *PetHandler {
	return &PetHandler{petService: petService, storage: store, images: images}
}

// parseAgeRange accepts "min-max" or "min-".
func parseAgeRange(raw string) (*float64, *float64, bool) {
	if raw == "" {
		return nil, nil, true
	}
	lo, hi, found := strings.Cut(raw, "-")
	if !found {
		return nil, nil, false
	}
	minAge, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return nil, nil, false
	}
	if strings.TrimSpace(hi) == "" {
		return &minAge, nil, true
	}
	maxAge, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil || maxAge < minAge {
		return nil, nil, false
	}
	return &minAge, &maxAge, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// SearchPets handles GET /api/pets
func (h *PetHandler) SearchPets(c *gin.Context) {
	minAge, maxAge, ok := parseAgeRange(c.Query("age"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "age must look like min-max or min-"})
		return
	}
	filter := models.PetFilter{
		Species:  c.Query("species"),
		Size:     c.Query("size"),
		MinAge:   minAge,
		MaxAge:   maxAge,
		Location: c.Query("location"),
		Search:   c.Query("search"),
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 12)

	pets, total, err := h.petService.SearchPets(c.Request.Context(), filter, page, limit)
	if err != nil {
		respondError(c, err, "Failed to search pets")
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	c.JSON(http.StatusOK, gin.H{
		"pets":        pets,
		"total":       total,
		"currentPage": page,
		"totalPages":  totalPages,
	})
}

// GetPet handles GET /api/pets/:id
func (h *PetHandler) GetPet(c *gin.Context) {
	petID, ok := objectIDParam(c, "id", "pet")
	if !ok {
		return
	}
	pet, err := h.petService.FindPetByID(c.Request.Context(), petID)
	if err != nil {
		respondError(c, err, "Failed to retrieve pet")
		return
	}
	c.JSON(http.StatusOK, pet)
}

// MyPets handles GET /api/pets/my-pets/all
func (h *PetHandler) MyPets(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	pets, err := h.petService.FindPetsByOwner(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err, "Failed to retrieve your pets")
		return
	}
	c.JSON(http.StatusOK, pets)
}

// CreatePet handles POST /api/pets
func (h *PetHandler) CreatePet(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var input models.PetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	pet, err := h.petService.CreatePet(c.Request.Context(), actor.UserID, input)
	if err != nil {
		respondError(c, err, "Failed to create pet")
		return
	}
	c.JSON(http.StatusCreated, pet)
}

// UpdatePet handles PUT /api/pets/:id. The body is a partial document.
func (h *PetHandler) UpdatePet(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	petID, ok := objectIDParam(c, "id", "pet")
	if !ok {
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return
	}
	pet, err := h.petService.UpdatePet(c.Request.Context(), petID, actor, updates)
	if err != nil {
		respondError(c, err, "Failed to update pet")
		return
	}
	c.JSON(http.StatusOK, pet)
}

// DeletePet handles DELETE /api/pets/:id
func (h *PetHandler) DeletePet(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	petID, ok := objectIDParam(c, "id", "pet")
	if !ok {
		return
	}
	if err := h.petService.DeletePet(c.Request.Context(), petID, actor); err != nil {
		respondError(c, err, "Failed to delete pet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pet removed successfully"})
}

type uploadURLRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type attachImageRequest struct {
	Key string `json:"key" binding:"required"`
}

// loadManagedPet returns the pet when the caller may manage it.
func (h *PetHandler) loadManagedPet(c *gin.Context) (*models.Pet, bool) {
	actor, ok := mustActor(c)
	if !ok {
		return nil, false
	}
	petID, ok := objectIDParam(c, "id", "pet")
	if !ok {
		return nil, false
	}
	pet, err := h.petService.FindPetByID(c.Request.Context(), petID)
	if err != nil {
		respondError(c, err, "Failed to retrieve pet")
		return nil, false
	}
	if !pet.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to manage this pet"})
		return nil, false
	}
	return pet, true
}

// CreateImageUploadURL handles POST /api/pets/:id/images/upload-url
func (h *PetHandler) CreateImageUploadURL(c *gin.Context) {
	pet, ok := h.loadManagedPet(c)
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	url, key, err := h.storage.GeneratePresignedPutURL(c.Request.Context(), pet.AddedBy.Hex(), pet.ID.Hex(), req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImageType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Images must be JPEG or PNG"})
			return
		}
		respondError(c, err, "Failed to create upload URL")
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadUrl": url, "key": key, "imageUrl": h.storage.PublicURL(key)})
}

// AttachImage handles POST /api/pets/:id/images once the upload has finished.
func (h *PetHandler) AttachImage(c *gin.Context) {
	pet, ok := h.loadManagedPet(c)
	if !ok {
		return
	}
	var req attachImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !strings.HasPrefix(req.Key, storage.ImagePrefix(pet.AddedBy.Hex(), pet.ID.Hex())) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image key does not belong to this pet"})
		return
	}
	if err := h.images.EnqueueImageProcess(c.Request.Context(), pet.ID, req.Key); err != nil {
		respondError(c, err, "Failed to queue image processing")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Image queued for processing",
		"key":      req.Key,
		"imageUrl": h.storage.PublicURL(req.Key),
	})
}
