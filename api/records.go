package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

type RecordsResponse struct {
	Schema  string          `json:"schema"`
	Count   int             `json:"count"`
	Records []models.Record `json:"records"`
}

func (s *Server) ListRecordsJSON(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	records, err := s.Repo.List(r.Context(), db.ListFilter{Owner: owner})
	if err != nil {
		logStorageError(err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{
		Schema:  s.Repo.Schema().Name,
		Count:   len(records),
		Records: records,
	})
}

func (s *Server) DeleteRecordsJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := lo.Filter(req.IDs, func(id int64, _ int) bool { return id > 0 })
	removed, err := s.Repo.Delete(r.Context(), ids)
	if err != nil {
		logStorageError(err)
		writeJSONError(w, http.StatusInternalServerError, "failed to delete records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": removed})
}

func (s *Server) GetCollectorStats(w http.ResponseWriter, r *http.Request) {
	if s.Collector == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "stats are not collected")
		return
	}
	writeJSON(w, http.StatusOK, s.Collector.GetStats())
}

func logStorageError(err error) {
	var serr *db.StorageError
	if errors.As(err, &serr) {
		log.WithError(serr.Err).WithField("op", serr.Op).Error("Storage failure")
		return
	}
	log.WithError(err).Error("Storage failure")
}
