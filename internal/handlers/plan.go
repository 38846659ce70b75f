package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/models"
)

type PlanHandler struct {
	DB *gorm.DB
}

type planAvailability struct {
	PlanType       string `json:"planType"`
	AvailableCount int    `json:"availableCount"`
}

func (h *PlanHandler) Available(c echo.Context) error {
	var licenses []models.License
	if err := h.DB.WithContext(c.Request().Context()).
		Select("plan_type").
		Where("user_id IS NULL").
		Find(&licenses).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch available plans"})
	}

	counts := map[string]int{
		models.Plan30d: 0,
		models.Plan90d: 0,
	}
	for _, l := range licenses {
		if _, ok := counts[l.PlanType]; ok {
			counts[l.PlanType]++
		}
	}

	allPlanTypes := []planAvailability{
		{PlanType: models.Plan30d, AvailableCount: counts[models.Plan30d]},
		{PlanType: models.Plan90d, AvailableCount: counts[models.Plan90d]},
	}

	availablePlans := make([]planAvailability, 0, len(allPlanTypes))
	for _, p := range allPlanTypes {
		if p.AvailableCount > 0 {
			availablePlans = append(availablePlans, p)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":        true,
		"availablePlans": availablePlans,
		"allPlanTypes":   allPlanTypes,
	})
}
