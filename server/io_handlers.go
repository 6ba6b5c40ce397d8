package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"another-i/importer"
	"another-i/utils"
)

// maxImportBytes bounds an uploaded ChatGPT export
const maxImportBytes = 64 << 20

type importResponse struct {
	ImportedCount int      `json:"importedCount"`
	SkippedCount  int      `json:"skippedCount"`
	Errors        []string `json:"errors"`
}

func (s *Server) importChatGPT(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload").SetInternal(err)
	}
	if len(data) > maxImportBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "export file is too large")
	}

	result, err := importer.ParseChatGPT(data, s.state.Now())
	if err != nil {
		if errors.Cause(err) == importer.ErrNotArray {
			return echo.NewHTTPError(http.StatusBadRequest, importer.ErrNotArray.Error()).SetInternal(err)
		}
		return errors.Wrap(err, "import failed")
	}

	added := s.state.Import(result.Conversations)
	s.logger.Info("Imported %d conversations, skipped %d", added, result.SkippedCount)

	resp := importResponse{
		ImportedCount: added,
		SkippedCount:  result.SkippedCount + result.ImportedCount - added,
		Errors:        result.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	return c.JSON(http.StatusOK, resp)
}

// export renders one conversation (scope=conversation&id=...) or the whole
// collection as a download
func (s *Server) export(c echo.Context) error {
	format, err := utils.ParseExportFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	scope := c.QueryParam("scope")
	id := c.QueryParam("id")
	if scope == "" {
		scope = "all"
		if id != "" {
			scope = "conversation"
		}
	}

	now := s.state.Now()
	var (
		data  []byte
		title string
	)
	switch scope {
	case "conversation":
		conv, ok := s.state.Conversation(id)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		data, err = utils.ExportConversation(conv, format, now)
		title = conv.Title
	case "all":
		data, err = utils.ExportAll(s.state.Folders(), format, now)
		title = "another-i-export"
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown export scope %q", scope))
	}
	if err != nil {
		return errors.Wrap(err, "export failed")
	}

	filename := utils.GenerateExportFilename(title, format, now)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, format.ContentType(), data)
}
