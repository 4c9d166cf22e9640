package server

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// exportDateLayout renders the upload time in the exported rows. A fixed
// layout keeps exports stable across host locales.
const exportDateLayout = "02.01.2006 15:04:05"

var exportHeader = []string{"Original name", "Stored name", "IP", "Category", "Date", "Size"}

func exportRow(e FileEntry) []string {
	size := ""
	if e.Size.Valid {
		size = strconv.FormatInt(e.Size.Int64, 10)
	}
	return []string{
		e.OriginalName,
		e.Filename,
		e.IP,
		e.Category,
		e.Timestamp.Local().Format(exportDateLayout),
		size,
	}
}

func (cfg Config) exportOwnCSVHandler(w http.ResponseWriter, r *http.Request) {
	cfg.serveExport(w, r, "csv", false)
}

func (cfg Config) exportOwnXLSXHandler(w http.ResponseWriter, r *http.Request) {
	cfg.serveExport(w, r, "xlsx", false)
}

func (cfg Config) exportByIPCSVHandler(w http.ResponseWriter, r *http.Request) {
	cfg.serveExport(w, r, "csv", true)
}

func (cfg Config) exportByIPXLSXHandler(w http.ResponseWriter, r *http.Request) {
	cfg.serveExport(w, r, "xlsx", true)
}

// serveExport writes the full matching set (no pagination) with the same
// search/sort semantics as the listings. Admins may scope to any IP via the
// ip query; non-admins are always pinned to their own derived IP. The by-ip
// variants additionally require the ip parameter and the admin role.
func (cfg Config) serveExport(w http.ResponseWriter, r *http.Request, format string, byIP bool) {
	id := identityFromRequest(r)
	ip := clientIP(r)

	if byIP {
		if id.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		target := strings.TrimSpace(r.URL.Query().Get("ip"))
		if target == "" {
			writeError(w, http.StatusBadRequest, "missing ip")
			return
		}
		ip = target
	} else if id.Role == RoleAdmin {
		if target := strings.TrimSpace(r.URL.Query().Get("ip")); target != "" {
			ip = target
		}
	}

	q := parseListQuery(r)
	q.IP = ip

	entries, err := cfg.Files.ListAll(r.Context(), q)
	if err != nil {
		cfg.Log.Error("registry export query failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()), "ip": ip,
		}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	switch format {
	case "xlsx":
		cfg.writeXLSX(w, r, entries)
	default:
		cfg.writeCSV(w, r, entries)
	}
}

// csvDelimiter maps the sep query parameter to a rune; comma is the default,
// semicolon is offered for spreadsheet tools in locales that expect it.
func csvDelimiter(r *http.Request) rune {
	if r.URL.Query().Get("sep") == "semicolon" {
		return ';'
	}
	return ','
}

func (cfg Config) writeCSV(w http.ResponseWriter, r *http.Request, entries []FileEntry) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachmentDisposition("files.csv"))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Comma = csvDelimiter(r)

	_ = cw.Write(exportHeader)
	for _, e := range entries {
		_ = cw.Write(exportRow(e))
	}
	cw.Flush()
}

func (cfg Config) writeXLSX(w http.ResponseWriter, r *http.Request, entries []FileEntry) {
	const sheet = "Files"

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	_ = f.SetSheetName("Sheet1", sheet)
	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	for row, e := range entries {
		for col, value := range exportRow(e) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachmentDisposition("files.xlsx"))
	w.WriteHeader(http.StatusOK)

	if err := f.Write(w); err != nil {
		cfg.Log.Error("xlsx write failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
	}
}
