package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/models"
	"sportsreg_app/internal/repository"
	"sportsreg_app/internal/services"
)

const classCacheTTL = 5 * time.Minute

// CatalogHandler serves the class catalog and the caller's enrollments.
type CatalogHandler struct {
	store repository.Store
	cache *services.RedisCache
	log   *logrus.Logger
}

func NewCatalogHandler(store repository.Store, cache *services.RedisCache, log *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, cache: cache, log: log}
}

// ListClasses returns all active classes. The list changes rarely and is hit
// on every catalog page view, so it is served from cache.
func (h *CatalogHandler) ListClasses(c echo.Context) error {
	ctx := c.Request().Context()

	fetch := func() ([]models.Class, error) {
		return h.store.Catalog().ListClasses(ctx)
	}

	var (
		classes []models.Class
		err     error
	)
	if h.cache != nil {
		classes, err = services.GetOrSet(h.cache, ctx, "catalog:classes", classCacheTTL, fetch)
	} else {
		classes, err = fetch()
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, classes)
}

// GetClass returns one class by id, uncached so capacity counts are live.
func (h *CatalogHandler) GetClass(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	class, err := h.store.Catalog().GetClass(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, class)
}

// ListEnrollments returns every enrollment across the caller's children.
func (h *CatalogHandler) ListEnrollments(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	enrollments, err := h.store.Enrollments().ListByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, enrollments)
}
