package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

type fileJSON struct {
	Name      string    `json:"name"`
	Original  string    `json:"original"`
	IP        string    `json:"ip"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Size      *int64    `json:"size"`
}

type listResponse struct {
	Files      []fileJSON `json:"files"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

func toFileJSON(e FileEntry) fileJSON {
	f := fileJSON{
		Name:      e.Filename,
		Original:  e.OriginalName,
		IP:        e.IP,
		Category:  e.Category,
		Timestamp: e.Timestamp,
	}
	if e.Size.Valid {
		size := e.Size.Int64
		f.Size = &size
	}
	return f
}

// parseListQuery reads search/sort/page/limit, defaulting to page 1 of 10
// newest-first and clamping caller-supplied bounds instead of trusting them.
func parseListQuery(r *http.Request) ListQuery {
	q := ListQuery{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Sort:   SortDesc,
		Page:   1,
		Limit:  defaultListLimit,
	}

	if r.URL.Query().Get("sort") == SortAsc {
		q.Sort = SortAsc
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 1 {
		q.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		switch {
		case limit < 1:
			q.Limit = defaultListLimit
		case limit > maxListLimit:
			q.Limit = maxListLimit
		default:
			q.Limit = limit
		}
	}
	return q
}

// listOwnHandler pages through the requester's own files (derived-IP scope).
func (cfg Config) listOwnHandler(w http.ResponseWriter, r *http.Request) {
	q := parseListQuery(r)
	q.IP = clientIP(r)
	cfg.serveListing(w, r, q)
}

// listByIPHandler is the admin variant with an explicit target IP.
func (cfg Config) listByIPHandler(w http.ResponseWriter, r *http.Request) {
	if identityFromRequest(r).Role != RoleAdmin {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		writeError(w, http.StatusBadRequest, "missing ip")
		return
	}

	q := parseListQuery(r)
	q.IP = ip
	cfg.serveListing(w, r, q)
}

func (cfg Config) serveListing(w http.ResponseWriter, r *http.Request, q ListQuery) {
	entries, total, err := cfg.Files.List(r.Context(), q)
	if err != nil {
		cfg.Log.Error("registry list failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()), "ip": q.IP,
		}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	resp := listResponse{
		Files:      make([]fileJSON, 0, len(entries)),
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}
	for _, e := range entries {
		resp.Files = append(resp.Files, toFileJSON(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
