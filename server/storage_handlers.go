package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"another-i/db"
)

// storageRecord describes one persisted record without its value, which
// may hold an API key
type storageRecord struct {
	Key       string    `json:"key"`
	Bytes     int       `json:"bytes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type storageResponse struct {
	Stats   *db.DBStats     `json:"stats"`
	Records []storageRecord `json:"records"`
}

func (s *Server) storageReport() (storageResponse, error) {
	stats, err := s.storage.GetStats()
	if err != nil {
		return storageResponse{}, err
	}
	settings, err := s.storage.ListSettings()
	if err != nil {
		return storageResponse{}, err
	}

	resp := storageResponse{Stats: stats, Records: make([]storageRecord, 0, len(settings))}
	for _, st := range settings {
		resp.Records = append(resp.Records, storageRecord{
			Key:       st.Key,
			Bytes:     len(st.Value),
			UpdatedAt: st.UpdatedAt,
		})
	}
	return resp, nil
}

func (s *Server) getStorage(c echo.Context) error {
	if s.storage == nil {
		return echo.NewHTTPError(http.StatusNotFound, "storage is not available")
	}
	resp, err := s.storageReport()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read storage").SetInternal(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// vacuumStorage compacts the database and reports the size afterwards
func (s *Server) vacuumStorage(c echo.Context) error {
	if s.storage == nil {
		return echo.NewHTTPError(http.StatusNotFound, "storage is not available")
	}
	if err := s.storage.Vacuum(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to vacuum storage").SetInternal(err)
	}
	s.logger.Info("Storage vacuumed")

	resp, err := s.storageReport()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read storage").SetInternal(err)
	}
	return c.JSON(http.StatusOK, resp)
}
