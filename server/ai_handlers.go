package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"another-i/document"
	"another-i/llm"
	"another-i/model"
	"another-i/orchestrator"
)

type chatRequest struct {
	Messages []model.Message `json:"messages"`
	// Settings override the stored settings for this call
	Settings *model.AISettings `json:"settings,omitempty"`
}

type chatResponse struct {
	Text       string `json:"text"`
	IsFallback bool   `json:"isFallback"`
}

type summarizeResponse struct {
	Content    string `json:"content"`
	IsFallback bool   `json:"isFallback"`
}

type titleRequest struct {
	Message  string            `json:"message"`
	Settings *model.AISettings `json:"settings,omitempty"`
}

type titleResponse struct {
	Title      string `json:"title"`
	IsFallback bool   `json:"isFallback"`
}

type modelsRequest struct {
	Provider model.Provider `json:"provider"`
	APIKey   string         `json:"apiKey"`
}

// settingsFor resolves the settings of an AI call: an explicit override
// must be valid, otherwise the stored settings apply (nil is demo mode).
func (s *Server) settingsFor(override *model.AISettings) (*model.AISettings, error) {
	if override == nil {
		return s.state.Settings(), nil
	}
	settings := override.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &settings, nil
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages are required")
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		return err
	}

	msgs := model.Recent(req.Messages, orchestrator.MaxChatMessages)
	completion, err := s.ai.Complete(c.Request().Context(), msgs, settings)
	if err != nil {
		s.logger.Warn("Chat route falling back to apology: %v", err)
		s.metrics.ObserveAI("chat", "fallback")
		return c.JSON(http.StatusOK, chatResponse{Text: orchestrator.ApologyText, IsFallback: true})
	}
	s.metrics.ObserveAI("chat", "ok")
	return c.JSON(http.StatusOK, chatResponse{Text: completion.Text, IsFallback: completion.IsFallback})
}

func (s *Server) summarize(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		return err
	}

	msgs := model.Recent(req.Messages, document.MaxSummaryMessages)
	content, err := s.ai.Summarize(c.Request().Context(), msgs, settings)
	if err != nil || strings.TrimSpace(content) == "" {
		s.logger.Warn("Summarize route falling back to local template: %v", err)
		s.metrics.ObserveAI("summarize", "fallback")
		return c.JSON(http.StatusOK, summarizeResponse{
			Content:    document.Synthesize(req.Messages, "", s.state.Now()),
			IsFallback: true,
		})
	}
	s.metrics.ObserveAI("summarize", "ok")
	return c.JSON(http.StatusOK, summarizeResponse{Content: content, IsFallback: settings == nil})
}

func (s *Server) title(c echo.Context) error {
	var req titleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		return err
	}

	title, err := s.ai.TitleFor(c.Request().Context(), message, settings)
	if err != nil {
		s.metrics.ObserveAI("title", "fallback")
		return c.JSON(http.StatusOK, titleResponse{
			Title:      document.Preview(strings.Join(strings.Fields(message), " "), orchestrator.TitleRunes),
			IsFallback: true,
		})
	}
	s.metrics.ObserveAI("title", "ok")
	return c.JSON(http.StatusOK, titleResponse{Title: title})
}

func (s *Server) models(c echo.Context) error {
	var req modelsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	provider := model.AISettings{Provider: req.Provider}.Normalize().Provider
	if !provider.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported provider")
	}

	models := s.ai.ListModels(c.Request().Context(), provider, req.APIKey)
	s.metrics.ObserveAI("models", "ok")
	return c.JSON(http.StatusOK, map[string][]llm.ModelInfo{"models": models})
}
