package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/models"
)

func newUserHandler(t *testing.T) (*UserHandler, *gorm.DB, models.Admin) {
	db := initTestDB(t)
	admin := seedAdmin(t, db)
	return &UserHandler{DB: db, Audit: newAuditLogger(t, db)}, db, admin
}

func TestDeleteUserReleasesLicense(t *testing.T) {
	h, db, admin := newUserHandler(t)

	lic := seedLicense(t, db, "SQLBots30-SSSS-TTTT", models.Plan30d, nil)
	user := models.User{Username: "holder", Email: "holder@example.com", LicenseID: &lic.ID}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&lic).Update("user_id", user.ID).Error)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/users/"+user.ID, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(user.ID)
	asAdmin(c, admin)

	require.NoError(t, h.Delete(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var userCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.Equal(t, int64(0), userCount)

	var released models.License
	require.NoError(t, db.Where("id = ?", lic.ID).First(&released).Error)
	require.Nil(t, released.UserID, "deleting a user must release its license")
}

func TestDeleteUserWithoutLicense(t *testing.T) {
	h, db, admin := newUserHandler(t)

	user := models.User{Username: "plain", Email: "plain@example.com"}
	require.NoError(t, db.Create(&user).Error)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/users/"+user.ID, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(user.ID)
	asAdmin(c, admin)

	require.NoError(t, h.Delete(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteUserNotFound(t *testing.T) {
	h, _, admin := newUserHandler(t)

	missing := uuid.NewString()
	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/users/"+missing, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(missing)
	asAdmin(c, admin)

	require.NoError(t, h.Delete(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUsersIncludesPlanSummary(t *testing.T) {
	h, db, admin := newUserHandler(t)

	lic := models.License{
		LicenseKey: "SQLBots90-UUUU-VVVV",
		PlanType:   models.Plan90d,
		ExpiresAt:  time.Now().Add(90 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&lic).Error)

	withPlan := models.User{Username: "pro", Email: "pro@example.com", LicenseID: &lic.ID}
	require.NoError(t, db.Create(&withPlan).Error)
	require.NoError(t, db.Model(&lic).Update("user_id", withPlan.ID).Error)

	noPlan := models.User{Username: "rookie", Email: "rookie@example.com"}
	require.NoError(t, db.Create(&noPlan).Error)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodGet, "/users", nil)
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	views, ok := resp["users"].([]interface{})
	require.True(t, ok)
	require.Len(t, views, 2)

	byName := map[string]map[string]interface{}{}
	for _, v := range views {
		m := v.(map[string]interface{})
		byName[m["username"].(string)] = m
	}

	require.Equal(t, "90d", byName["pro"]["plan"])
	require.Equal(t, "SQLBots90-UUUU-VVVV", byName["pro"]["license"])
	require.NotNil(t, byName["pro"]["licenseExpiresAt"])

	require.Equal(t, "None", byName["rookie"]["plan"])
	require.Nil(t, byName["rookie"]["license"])
}
