package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dokterdibya/clinic/internal/platform/auth"
	"github.com/dokterdibya/clinic/internal/platform/db"
	"github.com/dokterdibya/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the intake surface. Submission is public; it is
// the patient-facing form endpoint. Everything else is staff only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake", h.Submit)

	staff := api.Group("", auth.RequireRole("admin", "doctor", "midwife"))
	staff.GET("/intake", h.List)
	staff.GET("/intake/export", h.Export)
	staff.GET("/intake/:id", h.Get)
	staff.GET("/intake/:id/materialized", h.Materialized)
	staff.PATCH("/intake/:id/status", h.UpdateStatus)
}

type submitResponse struct {
	SubmissionID string    `json:"submissionId"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Status       Status    `json:"status"`
}

func (h *Handler) Submit(c echo.Context) error {
	var payload json.RawMessage
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	client := Client{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	sub, err := h.svc.Submit(c.Request().Context(), payload, client)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error":                "an active submission already exists for this phone number",
				"existingSubmissionId": dup.ExistingID,
			})
		}
		if errors.Is(err, db.ErrTimeout) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage timeout, please retry")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, submitResponse{
		SubmissionID: sub.SubmissionID,
		ReceivedAt:   sub.ReceivedAt,
		Status:       sub.Status,
	})
}

// parseFilter reads the shared listing query parameters. Bad dates are a
// client error, not an empty result.
func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "date_from must be YYYY-MM-DD")
		}
		f.From = &t
	}
	if v := c.QueryParam("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "date_to must be YYYY-MM-DD")
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	switch risk := c.QueryParam("risk"); risk {
	case "", "high", "normal":
		f.Risk = risk
	default:
		return f, echo.NewHTTPError(http.StatusBadRequest, "risk must be high or normal")
	}
	f.Name = c.QueryParam("name")
	f.Phone = c.QueryParam("phone")
	return f, nil
}

type listItem struct {
	SubmissionID string    `json:"submissionId"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Status       Status    `json:"status"`
	HighRisk     bool      `json:"highRisk"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
}

func (h *Handler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	subs, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return storageError(err)
	}

	page := pagination.FromContext(c)
	total := len(subs)
	start, end := page.Slice(total)

	items := make([]listItem, 0, end-start)
	for _, sub := range subs[start:end] {
		items = append(items, listItem{
			SubmissionID: sub.SubmissionID,
			ReceivedAt:   sub.ReceivedAt,
			Status:       sub.Status,
			HighRisk:     sub.IsHighRisk(),
			Name:         sub.FullName(),
			Phone:        sub.Phone(),
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	sub, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Materialized(c echo.Context) error {
	m, err := h.svc.Materialize(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type updateStatusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "submission not found")
		}
		if errors.Is(err, db.ErrTimeout) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage timeout, please retry")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Export(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := h.svc.Export(c.Request().Context(), f, &buf); err != nil {
		return storageError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="patient-intake.csv"`)
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func storageError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	if errors.Is(err, db.ErrTimeout) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage timeout, please retry")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
