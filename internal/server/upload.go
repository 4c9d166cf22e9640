package server

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

type uploadResponse struct {
	Msg          string `json:"msg"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	IP           string `json:"ip"`
	Size         int64  `json:"size"`
}

// generateStoredName prefixes the original name with the upload time in
// milliseconds. Two uploads of the same name in the same millisecond would
// collide; the service accepts that risk and does not deduplicate.
func generateStoredName(original string) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), original)
}

// uploadHandler accepts one multipart "file" part plus an optional
// "category" field. The blob is streamed to the store first and the registry
// row inserted second; if the insert fails the orphan blob is removed so the
// two stores cannot drift on this path.
func (cfg Config) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	}

	ip := clientIP(r)
	rid := RequestIDFromContext(r.Context())

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "select a file")
		return
	}

	var (
		category string
		stored   string
		original string
		size     int64
		haveFile bool
	)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if haveFile {
				_ = cfg.Blobs.Remove(r.Context(), stored)
			}
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "bad multipart body")
			return
		}

		switch part.FormName() {
		case "category":
			b, _ := io.ReadAll(io.LimitReader(part, 256))
			category = strings.TrimSpace(string(b))
		case "file":
			if haveFile {
				continue
			}
			original = filepath.Base(part.FileName())
			if original == "" || original == "." || original == string(filepath.Separator) {
				writeError(w, http.StatusBadRequest, "select a file")
				return
			}
			stored = generateStoredName(original)
			size, err = cfg.Blobs.Save(r.Context(), stored, part)
			if err != nil {
				_ = cfg.Blobs.Remove(r.Context(), stored)
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					writeError(w, http.StatusRequestEntityTooLarge, "file too large")
					return
				}
				cfg.Log.Error("blob write failed", map[string]any{"rid": rid, "filename": stored}, err)
				writeError(w, http.StatusInternalServerError, "upload failed")
				return
			}
			haveFile = true
		}
	}

	if !haveFile {
		writeError(w, http.StatusBadRequest, "select a file")
		return
	}

	if category == "" {
		category = CategoryOther
	}
	if !validCategories[category] {
		_ = cfg.Blobs.Remove(r.Context(), stored)
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	entry := &FileEntry{
		Filename:     stored,
		OriginalName: original,
		IP:           ip,
		Category:     category,
		Timestamp:    time.Now().UTC(),
		Size:         sql.NullInt64{Int64: size, Valid: true},
	}
	if err := cfg.Files.Insert(r.Context(), entry); err != nil {
		// Compensate: don't leave an orphan blob behind a failed insert.
		if rerr := cfg.Blobs.Remove(r.Context(), stored); rerr != nil {
			cfg.Log.Error("orphan blob cleanup failed", map[string]any{"rid": rid, "filename": stored}, rerr)
		}
		cfg.Log.Error("registry insert failed", map[string]any{"rid": rid, "filename": stored}, err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	cfg.Log.Info("file uploaded", map[string]any{
		"rid":      rid,
		"filename": stored,
		"ip":       ip,
		"size":     size,
		"category": category,
	})

	writeJSON(w, http.StatusOK, uploadResponse{
		Msg:          "file saved",
		Filename:     stored,
		OriginalName: original,
		IP:           ip,
		Size:         size,
	})
}
