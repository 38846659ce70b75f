package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/audit"
	"github.com/sqlbots/license-admin/internal/license"
	authmw "github.com/sqlbots/license-admin/internal/middleware/auth"
	"github.com/sqlbots/license-admin/internal/models"
)

const maxBatchSize = 100

type LicenseHandler struct {
	DB    *gorm.DB
	Audit *audit.Logger
}

type licenseView struct {
	ID         string    `json:"id"`
	LicenseKey string    `json:"licenseKey"`
	PlanType   string    `json:"planType"`
	UserID     *string   `json:"userId"`
	UserName   *string   `json:"userName"`
	UserEmail  *string   `json:"userEmail"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IsUsed     bool      `json:"isUsed"`
}

func (h *LicenseHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var licenses []models.License
	if err := h.DB.WithContext(ctx).Order("created_at DESC").Find(&licenses).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch licenses"})
	}

	userIDs := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l.UserID != nil {
			userIDs = append(userIDs, *l.UserID)
		}
	}

	usersByID := map[string]models.User{}
	if len(userIDs) > 0 {
		var users []models.User
		if err := h.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err == nil {
			for _, u := range users {
				usersByID[u.ID] = u
			}
		}
	}

	views := make([]licenseView, len(licenses))
	for i, l := range licenses {
		v := licenseView{
			ID:         l.ID,
			LicenseKey: l.LicenseKey,
			PlanType:   l.PlanType,
			UserID:     l.UserID,
			CreatedAt:  l.CreatedAt,
			ExpiresAt:  l.ExpiresAt,
			IsUsed:     l.UserID != nil,
		}
		if l.UserID != nil {
			if u, ok := usersByID[*l.UserID]; ok {
				v.UserName = &u.Username
				v.UserEmail = &u.Email
			}
		}
		views[i] = v
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"licenses": views,
	})
}

func planDuration(planType string) time.Duration {
	if planType == models.Plan90d {
		return 90 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

func (h *LicenseHandler) Create(c echo.Context) error {
	var req struct {
		PlanType string `json:"planType"`
		Count    int    `json:"count"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	if req.PlanType != models.Plan30d && req.PlanType != models.Plan90d {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": `Plan type must be "30d" or "90d"`})
	}
	if req.Count < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Count must be at least 1"})
	}
	if req.Count > maxBatchSize {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Count cannot exceed 100"})
	}

	ctx := c.Request().Context()
	expiresAt := time.Now().Add(planDuration(req.PlanType))

	// One bounded uniqueness loop per license, sequentially. Two concurrent
	// batches can still race past the probe; the unique index is the backstop.
	toCreate := make([]models.License, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		var key string
		attempts := 0
		for {
			generated, err := license.GenerateKey(req.PlanType)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create licenses"})
			}

			var existing models.License
			err = h.DB.WithContext(ctx).
				Where("license_key = ?", generated).
				First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				key = generated
				break
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create licenses"})
			}

			attempts++
			if attempts >= license.MaxKeyAttempts {
				return c.JSON(http.StatusInternalServerError, echo.Map{
					"error": fmt.Sprintf("Failed to generate unique license key (attempt %d)", i+1),
				})
			}
		}

		toCreate = append(toCreate, models.License{
			LicenseKey: key,
			PlanType:   req.PlanType,
			ExpiresAt:  expiresAt,
		})
	}

	if err := h.DB.WithContext(ctx).Create(&toCreate).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create licenses"})
	}

	admin := authmw.AdminFromContext(c)
	h.Audit.Record(audit.LicenseCreation(admin, len(toCreate), req.PlanType, c.RealIP(), c.Request().UserAgent()))

	views := make([]licenseView, len(toCreate))
	for i, l := range toCreate {
		views[i] = licenseView{
			ID:         l.ID,
			LicenseKey: l.LicenseKey,
			PlanType:   l.PlanType,
			CreatedAt:  l.CreatedAt,
			ExpiresAt:  l.ExpiresAt,
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":  true,
		"count":    len(views),
		"licenses": views,
	})
}

func (h *LicenseHandler) BatchDelete(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	if len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "At least one ID is required"})
	}
	if len(req.IDs) > maxBatchSize {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Cannot delete more than 100 items at once"})
	}
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid UUID format"})
		}
	}

	ctx := c.Request().Context()

	var licenses []models.License
	if err := h.DB.WithContext(ctx).Where("id IN ?", req.IDs).Find(&licenses).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch licenses"})
	}
	if len(licenses) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No licenses found"})
	}

	inUse := 0
	availableIDs := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l.UserID != nil {
			inUse++
		} else {
			availableIDs = append(availableIDs, l.ID)
		}
	}
	if inUse > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":      fmt.Sprintf("Cannot delete %d license(s) that are in use. Please release them first.", inUse),
			"inUseCount": inUse,
		})
	}
	if len(availableIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No available licenses to delete"})
	}

	if err := h.DB.WithContext(ctx).
		Where("id IN ?", availableIDs).
		Delete(&models.License{}).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete licenses"})
	}

	admin := authmw.AdminFromContext(c)
	for _, id := range availableIDs {
		h.Audit.Record(audit.LicenseDeletion(admin, id, c.RealIP(), c.Request().UserAgent()))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      fmt.Sprintf("Successfully deleted %d license(s)", len(availableIDs)),
		"deletedCount": len(availableIDs),
	})
}

func (h *LicenseHandler) DeleteOne(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid UUID format"})
	}

	ctx := c.Request().Context()

	var lic models.License
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "License not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch license"})
	}

	if lic.UserID != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":      "Cannot delete a license that is in use. Please release it first.",
			"inUseCount": 1,
		})
	}

	if err := h.DB.WithContext(ctx).Delete(&lic).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete license"})
	}

	admin := authmw.AdminFromContext(c)
	h.Audit.Record(audit.LicenseDeletion(admin, lic.ID, c.RealIP(), c.Request().UserAgent()))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "License deleted successfully",
	})
}
