package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// downloadHandler streams a stored blob back as an attachment named after
// the original filename. The requester must own the entry (same derived IP)
// unless the admin download override applies. A registry row whose blob has
// gone missing is reported distinctly so drift is visible.
func (cfg Config) downloadHandler(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	entry, err := cfg.Files.GetByFilename(r.Context(), filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		cfg.Log.Error("registry lookup failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()), "filename": filename,
		}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	id := identityFromRequest(r)
	if entry.IP != clientIP(r) && !(id.Role == RoleAdmin && cfg.Policy.AdminCanDownloadAny) {
		writeError(w, http.StatusForbidden, "you do not have access to this file")
		return
	}

	blob, err := cfg.Blobs.Open(r.Context(), entry.Filename)
	if err != nil {
		if errors.Is(err, ErrBlobMissing) {
			writeError(w, http.StatusNotFound, "file is physically missing")
			return
		}
		cfg.Log.Error("blob open failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()), "filename": filename,
		}, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	defer func() { _ = blob.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	if entry.Size.Valid {
		w.Header().Set("Content-Length", strconv.FormatInt(entry.Size.Int64, 10))
	}
	w.Header().Set("Content-Disposition", attachmentDisposition(entry.OriginalName))
	w.WriteHeader(http.StatusOK)

	_, _ = io.Copy(w, blob)
}

// attachmentDisposition quotes the download filename for the header.
func attachmentDisposition(filename string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	return fmt.Sprintf(`attachment; filename="%s"`, escaped)
}
