package handlers

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/models"
)

func newLicenseHandler(t *testing.T) (*LicenseHandler, *gorm.DB, models.Admin) {
	db := initTestDB(t)
	admin := seedAdmin(t, db)
	return &LicenseHandler{DB: db, Audit: newAuditLogger(t, db)}, db, admin
}

func seedLicense(t *testing.T, db *gorm.DB, key, planType string, userID *string) models.License {
	lic := models.License{
		LicenseKey: key,
		PlanType:   planType,
		UserID:     userID,
		ExpiresAt:  time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&lic).Error)
	return lic
}

func TestCreateLicenses(t *testing.T) {
	h, db, admin := newLicenseHandler(t)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodPost, "/licenses", map[string]any{
		"planType": "30d",
		"count":    3,
	})
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody(t, rec)
	require.Equal(t, float64(3), resp["count"])

	var stored []models.License
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 3)

	pattern := regexp.MustCompile(`^SQLBots30-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	seen := map[string]bool{}
	for _, lic := range stored {
		require.Regexp(t, pattern, lic.LicenseKey)
		require.False(t, seen[lic.LicenseKey], "license keys must be unique")
		seen[lic.LicenseKey] = true
		require.Nil(t, lic.UserID)
		require.WithinDuration(t, time.Now().Add(30*24*time.Hour), lic.ExpiresAt, time.Minute)
	}
}

func TestCreateLicensesValidation(t *testing.T) {
	h, _, admin := newLicenseHandler(t)
	e := echo.New()

	cases := []map[string]any{
		{"planType": "60d", "count": 1},
		{"planType": "30d", "count": 0},
		{"planType": "30d", "count": 101},
	}
	for _, payload := range cases {
		req, rec := jsonRequest(t, http.MethodPost, "/licenses", payload)
		c := e.NewContext(req, rec)
		asAdmin(c, admin)

		require.NoError(t, h.Create(c))
		require.Equal(t, http.StatusBadRequest, rec.Code, "payload %v", payload)
	}
}

func TestDeleteOneRejectsInUseLicense(t *testing.T) {
	h, db, admin := newLicenseHandler(t)

	user := models.User{Username: "holder", Email: "holder@example.com"}
	require.NoError(t, db.Create(&user).Error)
	lic := seedLicense(t, db, "SQLBots30-AAAA-BBBB", models.Plan30d, &user.ID)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses/"+lic.ID, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(lic.ID)
	asAdmin(c, admin)

	require.NoError(t, h.DeleteOne(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.License{}).Count(&count).Error)
	require.Equal(t, int64(1), count, "in-use license must not be deleted")
}

func TestDeleteOneAvailableLicense(t *testing.T) {
	h, db, admin := newLicenseHandler(t)
	lic := seedLicense(t, db, "SQLBots30-CCCC-DDDD", models.Plan30d, nil)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses/"+lic.ID, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(lic.ID)
	asAdmin(c, admin)

	require.NoError(t, h.DeleteOne(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.License{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestDeleteOneNotFound(t *testing.T) {
	h, _, admin := newLicenseHandler(t)

	missing := uuid.NewString()
	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses/"+missing, nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(missing)
	asAdmin(c, admin)

	require.NoError(t, h.DeleteOne(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchDeleteRejectsWhenAnyInUse(t *testing.T) {
	h, db, admin := newLicenseHandler(t)

	user := models.User{Username: "holder", Email: "holder@example.com"}
	require.NoError(t, db.Create(&user).Error)
	inUse := seedLicense(t, db, "SQLBots30-EEEE-FFFF", models.Plan30d, &user.ID)
	free := seedLicense(t, db, "SQLBots30-GGGG-HHHH", models.Plan30d, nil)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses", map[string]any{
		"ids": []string{inUse.ID, free.ID},
	})
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.BatchDelete(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, float64(1), decodeBody(t, rec)["inUseCount"])

	var count int64
	require.NoError(t, db.Model(&models.License{}).Count(&count).Error)
	require.Equal(t, int64(2), count, "nothing may be deleted when any target is in use")
}

func TestBatchDeleteAvailableLicenses(t *testing.T) {
	h, db, admin := newLicenseHandler(t)

	a := seedLicense(t, db, "SQLBots90-JJJJ-KKKK", models.Plan90d, nil)
	b := seedLicense(t, db, "SQLBots90-LLLL-MMMM", models.Plan90d, nil)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses", map[string]any{
		"ids": []string{a.ID, b.ID},
	})
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.BatchDelete(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decodeBody(t, rec)["deletedCount"])

	var count int64
	require.NoError(t, db.Model(&models.License{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestBatchDeleteUnknownIDs(t *testing.T) {
	h, _, admin := newLicenseHandler(t)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses", map[string]any{
		"ids": []string{uuid.NewString()},
	})
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.BatchDelete(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchDeleteInvalidUUID(t *testing.T) {
	h, _, admin := newLicenseHandler(t)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodDelete, "/licenses", map[string]any{
		"ids": []string{"not-a-uuid"},
	})
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.BatchDelete(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLicensesJoinsHolders(t *testing.T) {
	h, db, admin := newLicenseHandler(t)

	user := models.User{Username: "holder", Email: "holder@example.com"}
	require.NoError(t, db.Create(&user).Error)
	seedLicense(t, db, "SQLBots30-NNNN-PPPP", models.Plan30d, &user.ID)
	seedLicense(t, db, "SQLBots90-QQQQ-RRRR", models.Plan90d, nil)

	e := echo.New()
	req, rec := jsonRequest(t, http.MethodGet, "/licenses", nil)
	c := e.NewContext(req, rec)
	asAdmin(c, admin)

	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	views, ok := resp["licenses"].([]interface{})
	require.True(t, ok)
	require.Len(t, views, 2)

	byKey := map[string]map[string]interface{}{}
	for _, v := range views {
		m := v.(map[string]interface{})
		byKey[m["licenseKey"].(string)] = m
	}

	used := byKey["SQLBots30-NNNN-PPPP"]
	require.Equal(t, true, used["isUsed"])
	require.Equal(t, "holder", used["userName"])
	require.Equal(t, "holder@example.com", used["userEmail"])

	free := byKey["SQLBots90-QQQQ-RRRR"]
	require.Equal(t, false, free["isUsed"])
	require.Nil(t, free["userName"])
}
