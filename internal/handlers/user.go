package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/audit"
	"github.com/sqlbots/license-admin/internal/logging"
	authmw "github.com/sqlbots/license-admin/internal/middleware/auth"
	"github.com/sqlbots/license-admin/internal/models"
)

type UserHandler struct {
	DB    *gorm.DB
	Audit *audit.Logger
}

type userView struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Plan             string     `json:"plan"`
	License          *string    `json:"license"`
	LicenseExpiresAt *time.Time `json:"licenseExpiresAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (h *UserHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var users []models.User
	if err := h.DB.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch users"})
	}

	licenseIDs := make([]string, 0, len(users))
	for _, u := range users {
		if u.LicenseID != nil {
			licenseIDs = append(licenseIDs, *u.LicenseID)
		}
	}

	licensesByID := map[string]models.License{}
	if len(licenseIDs) > 0 {
		var licenses []models.License
		if err := h.DB.WithContext(ctx).Where("id IN ?", licenseIDs).Find(&licenses).Error; err == nil {
			for _, l := range licenses {
				licensesByID[l.ID] = l
			}
		}
	}

	views := make([]userView, len(users))
	for i, u := range users {
		v := userView{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Plan:      "None",
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		}
		if u.LicenseID != nil {
			if l, ok := licensesByID[*u.LicenseID]; ok {
				v.Plan = l.PlanType
				key := l.LicenseKey
				exp := l.ExpiresAt
				v.License = &key
				v.LicenseExpiresAt = &exp
			}
		}
		views[i] = v
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"users":   views,
	})
}

func (h *UserHandler) Delete(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "User ID is required"})
	}

	ctx := c.Request().Context()

	var user models.User
	if err := h.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch user"})
	}

	if err := h.DB.WithContext(ctx).Delete(&user).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete user"})
	}

	// Release the license so it returns to the pool. Deliberately not
	// transactional with the delete; a failed release leaves an orphaned
	// in-use row and is only logged.
	if user.LicenseID != nil {
		if err := h.DB.WithContext(ctx).Model(&models.License{}).
			Where("id = ?", *user.LicenseID).
			Update("user_id", nil).Error; err != nil {
			logging.FromContext(ctx).Error("failed to release license",
				"license_id", *user.LicenseID, "user_id", userID, "error", err)
		}
	}

	admin := authmw.AdminFromContext(c)
	h.Audit.Record(audit.UserDeletion(admin, userID, c.RealIP(), c.Request().UserAgent()))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "User deleted successfully",
	})
}
