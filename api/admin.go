package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type adminPage struct {
	page
	Owner   string
	Columns []models.Field
	Records []models.Record
}

func (s *Server) AdminPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	records, err := s.Repo.List(r.Context(), db.ListFilter{Owner: owner})
	if err != nil {
		storageFailure(w, err)
		return
	}

	data := adminPage{
		page:    page{Title: "Registros", Username: sess.Username},
		Owner:   owner,
		Columns: s.Repo.Schema().Fields,
		Records: records,
	}
	if n := r.URL.Query().Get("deleted"); n != "" {
		data.Notice = n + " registros eliminados"
	}
	render(w, http.StatusOK, "admin.html", data)
}

// parseIDs keeps the positive integer ids from raw and drops everything else.
func parseIDs(raw []string) []int64 {
	return lo.Uniq(lo.FilterMap(raw, func(v string, _ int) (int64, bool) {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	}))
}

func (s *Server) AdminDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	ids := parseIDs(r.PostForm["id"])
	removed, err := s.Repo.Delete(r.Context(), ids)
	if err != nil {
		storageFailure(w, err)
		return
	}
	log.WithFields(log.Fields{"username": sess.Username, "selected": len(ids), "removed": removed}).Info("Admin delete")

	q := url.Values{}
	if owner := strings.TrimSpace(r.PostForm.Get("owner")); owner != "" {
		q.Set("owner", owner)
	}
	q.Set("deleted", strconv.FormatInt(removed, 10))
	http.Redirect(w, r, "/admin?"+q.Encode(), http.StatusSeeOther)
}

// AdminExport downloads the (optionally filtered) table as a spreadsheet.
func (s *Server) AdminExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	records, err := s.Repo.List(r.Context(), db.ListFilter{Owner: owner})
	if err != nil {
		storageFailure(w, err)
		return
	}

	data, err := buildWorkbook(s.Repo.Schema(), records)
	if err != nil {
		log.WithError(err).Error("Error building spreadsheet")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	name := fmt.Sprintf("%s-%s.xlsx", s.Repo.Schema().Table, s.clock().Format("20060102-1504"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func exportHeader(schema models.Schema) []any {
	header := []any{"ID", "Usuario"}
	for _, f := range schema.Fields {
		header = append(header, f.Label)
	}
	return append(header, "Latitud", "Longitud", "Mapa", "Fecha")
}

func buildWorkbook(schema models.Schema, records []models.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := schema.Table
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	header := exportHeader(schema)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	mapColumn := len(header) - 1

	for i, rec := range records {
		row := []any{rec.ID, rec.Owner}
		for _, name := range schema.FieldNames() {
			row = append(row, rec.Value(name))
		}
		if rec.Location != nil {
			row = append(row, rec.Location.Latitude, rec.Location.Longitude, rec.MapURL())
		} else {
			row = append(row, nil, nil, nil)
		}
		row = append(row, rec.CreatedAt.UTC().Format(time.RFC3339))

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
		if link := rec.MapURL(); link != "" {
			mapCell, err := excelize.CoordinatesToCellName(mapColumn, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellHyperLink(sheet, mapCell, link, "External"); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
