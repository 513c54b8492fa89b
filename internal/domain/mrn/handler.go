package mrn

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dokterdibya/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole("admin", "doctor", "midwife"))
	staff.POST("/clinic-records", h.CreateRecord)
	staff.GET("/clinic-records/stats", h.Statistics)
	staff.GET("/clinic-records/:mrId", h.GetRecord)
	staff.POST("/clinic-records/:mrId/finalize", h.FinalizeRecord)
}

type createRecordRequest struct {
	PatientID     string                 `json:"patient_id"`
	AppointmentID *int64                 `json:"appointment_id"`
	Category      string                 `json:"category"`
	IntakeDoc     map[string]interface{} `json:"intake_doc"`
	CreatedBy     *int64                 `json:"created_by"`
}

type createRecordResponse struct {
	Record  *Record `json:"record"`
	Created bool    `json:"created"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	params := CreateRecordParams{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		IntakeDoc:     req.IntakeDoc,
		CreatedBy:     req.CreatedBy,
	}
	if req.Category != "" {
		category, err := ParseCategory(req.Category)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		params.Category = category
	}

	rec, created, err := h.svc.CreateRecord(c.Request().Context(), params)
	if err != nil {
		var invalid *InvalidCategoryError
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, createRecordResponse{Record: rec, Created: created})
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.GetByMrID(c.Request().Context(), c.Param("mrId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "clinic record not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) FinalizeRecord(c echo.Context) error {
	if err := h.svc.Finalize(c.Request().Context(), c.Param("mrId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "clinic record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"categories": stats})
}
