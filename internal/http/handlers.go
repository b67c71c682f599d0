package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/reflection"
	"github.com/fyrsmithlabs/contextlog/internal/service"
)

func ok(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// Profile

func (s *Server) handleGetProfile(c echo.Context) error {
	p, err := s.svc.Profile(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"profile": p})
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	var patch journal.ProfilePatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	p, err := s.svc.UpdateProfile(c.Request().Context(), userID(c), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"profile": p})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	settings, err := s.svc.Settings(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"settings": settings})
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	var patch journal.SettingsPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	settings, err := s.svc.UpdateSettings(c.Request().Context(), userID(c), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"settings": settings})
}

// Receipts

func (s *Server) handleListReceipts(c echo.Context) error {
	receipts, err := s.svc.ListReceipts(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"receipts": receipts})
}

func (s *Server) handleCreateReceipt(c echo.Context) error {
	var in service.ReceiptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := s.svc.CreateReceipt(c.Request().Context(), userID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"receipt": r})
}

func (s *Server) handleGetReceipt(c echo.Context) error {
	r, err := s.svc.GetReceipt(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"receipt": r})
}

func (s *Server) handleUpdateReceipt(c echo.Context) error {
	var in service.ReceiptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := s.svc.UpdateReceipt(c.Request().Context(), userID(c), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"receipt": r})
}

func (s *Server) handleDeleteReceipt(c echo.Context) error {
	if err := s.svc.DeleteReceipt(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

// Moments

func (s *Server) handleListMoments(c echo.Context) error {
	moments, err := s.svc.ListMoments(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"moments": moments})
}

func (s *Server) handleCreateMoment(c echo.Context) error {
	var in service.MomentInput
	if err := bind(c, &in); err != nil {
		return err
	}
	m, err := s.svc.CreateMoment(c.Request().Context(), userID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"moment": m})
}

func (s *Server) handleGetMoment(c echo.Context) error {
	m, err := s.svc.GetMoment(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"moment": m})
}

func (s *Server) handleUpdateMoment(c echo.Context) error {
	var in service.MomentInput
	if err := bind(c, &in); err != nil {
		return err
	}
	m, err := s.svc.UpdateMoment(c.Request().Context(), userID(c), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"moment": m})
}

func (s *Server) handleDeleteMoment(c echo.Context) error {
	if err := s.svc.DeleteMoment(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

// Timeline and analysis

func (s *Server) handleTimeline(c echo.Context) error {
	items, err := s.svc.Timeline(c.Request().Context(), userID(c), service.TimelineFilter{
		Type:         c.QueryParam("type"),
		Tag:          c.QueryParam("tag"),
		Category:     c.QueryParam("category"),
		DecisionType: c.QueryParam("decision_type"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"timeline": items})
}

func (s *Server) handleDeadZone(c echo.Context) error {
	result, err := s.svc.DeadZone(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListCards(c echo.Context) error {
	cards, err := s.svc.PerspectiveCards(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"cards": cards})
}

func (s *Server) handleDismissCard(c echo.Context) error {
	if err := s.svc.DismissCard(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

// Reflections

func (s *Server) handleReflectionStatus(c echo.Context) error {
	status, err := s.svc.ReflectionStatus(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetWeekly(c echo.Context) error {
	res, err := s.svc.WeeklyReflection(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	if res.IsNew {
		return c.JSON(http.StatusOK, WeeklyResponse{Reflection: res.Generated, IsNew: true})
	}
	return c.JSON(http.StatusOK, WeeklyResponse{Reflection: res.Saved})
}

func (s *Server) handleSaveWeekly(c echo.Context) error {
	var in service.SaveReflectionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := s.svc.SaveReflection(c.Request().Context(), userID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"reflection": r, "saved": true})
}

// handleExportWeekly renders a freshly generated reflection as markdown
// (default) or plain text.
func (s *Server) handleExportWeekly(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "markdown"
	}
	if format != "markdown" && format != "text" {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be markdown or text")
	}
	r, err := s.svc.GenerateWeeklyReflection(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, reflection.FormatReflection(&r, format))
}

func (s *Server) handleReflectionHistory(c echo.Context) error {
	history, err := s.svc.ReflectionHistory(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"reflections": history})
}

func (s *Server) handleDismissSilence(c echo.Context) error {
	if err := s.svc.DismissSilencePrompt(c.Request().Context(), userID(c)); err != nil {
		return err
	}
	return ok(c)
}

// Notifications

func (s *Server) handleListNotifications(c echo.Context) error {
	list, err := s.svc.Notifications(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateNotification(c echo.Context) error {
	var req CreateNotificationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.CreateNotification(c.Request().Context(), userID(c), req.Type, notify.CreateOptions{
		Title:    req.Title,
		Message:  req.Message,
		Metadata: req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"notification": n})
}

func (s *Server) handleReadNotification(c echo.Context) error {
	if err := s.svc.MarkNotificationRead(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

func (s *Server) handleDismissNotification(c echo.Context) error {
	if err := s.svc.DismissNotification(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

// Outcomes and insights

func (s *Server) handleListOutcomes(c echo.Context) error {
	checks, err := s.svc.ListOutcomeChecks(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"outcomes": checks})
}

func (s *Server) handleDueOutcome(c echo.Context) error {
	due, err := s.svc.DueOutcomeCheck(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"due": due})
}

func (s *Server) handleRecordOutcome(c echo.Context) error {
	var req RecordOutcomeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ReceiptID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "receipt_id is required")
	}
	check, err := s.svc.RecordOutcome(c.Request().Context(), userID(c), req.ReceiptID, req.Outcome, req.AssumptionDelta)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"outcome": check})
}

func (s *Server) handleListInsights(c echo.Context) error {
	insights, err := s.svc.Insights(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleTopInsight(c echo.Context) error {
	top, err := s.svc.TopInsight(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"insight": top})
}

func (s *Server) handleWeeklyLearning(c echo.Context) error {
	learning, err := s.svc.WeeklyLearning(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, learning)
}

func (s *Server) handleSurfaceInsight(c echo.Context) error {
	if err := s.svc.SurfaceInsight(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}

func (s *Server) handleDismissInsight(c echo.Context) error {
	if err := s.svc.DismissInsight(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c)
}
