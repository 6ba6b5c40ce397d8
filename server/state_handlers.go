package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"another-i/db"
	"another-i/model"
	"another-i/orchestrator"
	"another-i/store"
	"another-i/tags"
)

type stateResponse struct {
	Folders     []model.Folder    `json:"folders"`
	ActiveID    string            `json:"activeId"`
	Settings    *model.AISettings `json:"settings"`
	Preferences model.Preferences `json:"preferences"`
	Tags        []model.Tag       `json:"tags"`
	Storage     *db.DBStats       `json:"storage,omitempty"`
}

func (s *Server) getState(c echo.Context) error {
	resp := stateResponse{
		Folders:     s.state.Folders(),
		ActiveID:    s.state.ActiveID(),
		Settings:    s.state.Settings(),
		Preferences: s.state.Preferences(),
		Tags:        s.state.Tags(),
	}
	if s.storage != nil {
		stats, err := s.storage.GetStats()
		if err != nil {
			s.logger.Warn("Failed to read storage stats: %v", err)
		} else {
			resp.Storage = stats
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) findFolder(id string) (model.Folder, bool) {
	for _, f := range s.state.Folders() {
		if f.ID == id {
			return f, true
		}
	}
	return model.Folder{}, false
}

type folderRequest struct {
	Name       *string `json:"name"`
	IsExpanded *bool   `json:"isExpanded"`
}

func (s *Server) createFolder(c echo.Context) error {
	var req folderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "folder name is required")
	}

	id, ok := s.state.CreateFolder(*req.Name)
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "folder could not be created")
	}
	folder, _ := s.findFolder(id)
	return c.JSON(http.StatusCreated, folder)
}

func (s *Server) updateFolder(c echo.Context) error {
	id := c.Param("id")
	var req folderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	folder, ok := s.findFolder(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "folder not found")
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "folder name is required")
		}
		s.state.RenameFolder(id, *req.Name)
	}
	if req.IsExpanded != nil && *req.IsExpanded != folder.IsExpanded {
		s.state.ToggleFolder(id)
	}

	folder, _ = s.findFolder(id)
	return c.JSON(http.StatusOK, folder)
}

func (s *Server) deleteFolder(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.findFolder(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "folder not found")
	}
	if !s.state.DeleteFolder(id) {
		return echo.NewHTTPError(http.StatusConflict, "the last folder cannot be deleted")
	}
	return c.NoContent(http.StatusNoContent)
}

type createConversationRequest struct {
	FolderID string `json:"folderId"`
	Title    string `json:"title"`
	// Activate selects the new conversation
	Activate bool `json:"activate"`
}

func (s *Server) createConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New conversation"
	}

	id, ok := s.state.CreateConversation(req.FolderID, model.Conversation{Title: title})
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "folder not found")
	}
	if req.Activate {
		s.state.SetActive(id)
	}
	conv, _ := s.state.Conversation(id)
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) getConversation(c echo.Context) error {
	conv, ok := s.state.Conversation(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversation(c echo.Context) error {
	if !s.state.DeleteConversation(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type sendRequest struct {
	ConversationID string `json:"conversationId"`
	FolderID       string `json:"folderId"`
	Text           string `json:"text"`
}

// sendMessage starts a turn. The response is 202 with the user message,
// or 200 with the finished turn when ?wait=true.
func (s *Server) sendMessage(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if id := c.Param("id"); id != "" {
		req.ConversationID = id
	}

	turn, err := s.orch.SendMessage(c.Request().Context(), orchestrator.SendInput{
		ConversationID: req.ConversationID,
		FolderID:       req.FolderID,
		Text:           req.Text,
	})
	if err != nil {
		return orchestratorError(err)
	}
	return s.respondTurn(c, turn)
}

type editRequest struct {
	Text string `json:"text"`
}

func (s *Server) editMessage(c echo.Context) error {
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	turn, err := s.orch.EditAndResend(c.Request().Context(), c.Param("id"), c.Param("messageId"), req.Text)
	if err != nil {
		return orchestratorError(err)
	}
	return s.respondTurn(c, turn)
}

func (s *Server) respondTurn(c echo.Context, turn *orchestrator.Turn) error {
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	if !wait {
		return c.JSON(http.StatusAccepted, turn.Result())
	}

	timeout := time.Duration(s.config.WaitTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	if err := turn.Wait(ctx); err != nil {
		// The turn keeps running; report what is known so far
		return c.JSON(http.StatusAccepted, turn.Result())
	}
	return c.JSON(http.StatusOK, turn.Result())
}

func orchestratorError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage), errors.Is(err, orchestrator.ErrNotUserMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrConversationNotFound),
		errors.Is(err, orchestrator.ErrFolderNotFound),
		errors.Is(err, orchestrator.ErrMessageNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled").SetInternal(err)
	}
	return err
}

type moveRequest struct {
	FolderID string `json:"folderId"`
}

func (s *Server) moveConversation(c echo.Context) error {
	id := c.Param("id")
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if _, ok := s.state.Conversation(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if _, ok := s.findFolder(req.FolderID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "folder not found")
	}

	// Moving into the folder that already holds it is a no-op
	s.state.MoveConversation(id, req.FolderID)
	conv, _ := s.state.Conversation(id)
	return c.JSON(http.StatusOK, conv)
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) pinConversation(c echo.Context) error {
	id := c.Param("id")
	var req pinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if !s.state.SetPinned(id, req.Pinned) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	conv, _ := s.state.Conversation(id)
	return c.JSON(http.StatusOK, conv)
}

type tagRequest struct {
	// TagID attaches a tag already used elsewhere
	TagID string `json:"tagId"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) addTag(c echo.Context) error {
	id := c.Param("id")
	var req tagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if _, ok := s.state.Conversation(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	if req.TagID != "" {
		tag, ok := tags.Lookup(s.state.Folders(), req.TagID)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "tag not found")
		}
		s.state.AddTag(id, tag)
		return c.JSON(http.StatusOK, tag)
	}

	color, err := model.ParseTagColor(req.Color)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tag, err := s.state.CreateTag(id, req.Name, color)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, tag)
}

func (s *Server) removeTag(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.state.Conversation(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	s.state.RemoveTag(id, c.Param("tagId"))
	return c.NoContent(http.StatusNoContent)
}

type activeRequest struct {
	ID string `json:"id"`
}

func (s *Server) setActive(c echo.Context) error {
	var req activeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if !s.state.SetActive(req.ID) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, activeRequest{ID: s.state.ActiveID()})
}

func (s *Server) listTags(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.Tags())
}

func (s *Server) search(c echo.Context) error {
	results := s.state.Search(c.QueryParam("q"))
	if results == nil {
		results = []store.SearchResult{}
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]*model.AISettings{"settings": s.state.Settings()})
}

func (s *Server) putSettings(c echo.Context) error {
	var req model.AISettings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	settings, err := s.state.SetSettings(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]model.AISettings{"settings": settings})
}

func (s *Server) deleteSettings(c echo.Context) error {
	s.state.ClearSettings()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getPreferences(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.Preferences())
}

func (s *Server) putPreferences(c echo.Context) error {
	prefs := s.state.Preferences()
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := s.state.SetPreferences(prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}
