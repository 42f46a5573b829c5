package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"notion_sync/internal/domain"
)

// Event types that cause the referenced page to be reconciled.
var syncEvents = map[string]bool{
	"page.content_updated":    true,
	"page.properties_updated": true,
}

type webhookRequest struct {
	// Handshake
	VerificationToken string `json:"verification_token"`

	// Notion event
	Type   string         `json:"type"`
	Entity *webhookEntity `json:"entity"`

	// Manual trigger
	PageID  string `json:"pageId"`
	SyncAll bool   `json:"syncAll"`
}

type webhookEntity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type messageResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	VerificationToken string `json:"verification_token,omitempty"`
}

type pageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	domain.SyncResult
}

type reportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*domain.SyncReport
}

type statusResponse struct {
	Status string `json:"status"`
	*domain.SourceStats
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid body"})
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
	}

	if req.VerificationToken != "" {
		s.logger.Warn("received webhook verification token, set webhook.verification_token to enable signature checks",
			"verification_token", req.VerificationToken,
		)
		return c.JSON(http.StatusOK, messageResponse{
			Success:           true,
			Message:           "Verification token received",
			VerificationToken: req.VerificationToken,
		})
	}

	if req.Type != "" {
		if req.Entity == nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing entity"})
		}
		return s.handleEvent(c, body, req)
	}

	return s.handleManual(c, req)
}

func (s *Server) handleEvent(c echo.Context, body []byte, req webhookRequest) error {
	if s.config.VerificationToken != "" {
		signature := c.Request().Header.Get("X-Notion-Signature")
		if !VerifySignature(s.config.VerificationToken, body, signature) {
			s.logger.Warn("rejected webhook with invalid signature", "event", req.Type)
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Invalid signature"})
		}
	}

	logger := s.logger.With("event", req.Type, "entity_type", req.Entity.Type, "entity_id", req.Entity.ID)
	logger.Info("received notion event")

	if !syncEvents[req.Type] {
		return c.JSON(http.StatusOK, messageResponse{
			Success: true,
			Message: "Event " + req.Type + " acknowledged",
		})
	}

	if req.Entity.ID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing entity id"})
	}

	return s.syncPage(c, req.Entity.ID, "Page synced from webhook")
}

func (s *Server) handleManual(c echo.Context, req webhookRequest) error {
	if s.config.Secret != "" {
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || !secretMatches(s.config.Secret, token) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		}
	}

	if req.SyncAll || req.PageID == "" {
		return s.syncAll(c, "Full sync completed")
	}
	return s.syncPage(c, req.PageID, "Page synced")
}

func (s *Server) handleStatus(c echo.Context) error {
	if s.config.Secret != "" && !secretMatches(s.config.Secret, c.QueryParam("key")) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
	}

	if c.QueryParam("action") == "sync" {
		return s.syncAll(c, "Sync completed")
	}

	stats, err := s.syncer.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "ok", SourceStats: stats})
}

func (s *Server) syncPage(c echo.Context, pageID, message string) error {
	ctx, cancel := s.syncContext(c)
	defer cancel()

	result, err := s.syncer.SyncPage(ctx, pageID)
	if err != nil {
		s.logger.Error("page sync failed", "page_id", pageID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Sync failed", Details: err.Error()})
	}
	return c.JSON(http.StatusOK, pageResponse{Success: true, Message: message, SyncResult: result})
}

func (s *Server) syncAll(c echo.Context, message string) error {
	ctx, cancel := s.syncContext(c)
	defer cancel()

	report, err := s.syncer.SyncAll(ctx)
	if err != nil {
		s.logger.Error("full sync failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Sync failed", Details: err.Error()})
	}
	return c.JSON(http.StatusOK, reportResponse{Success: true, Message: message, SyncReport: report})
}
