package server

import (
	"errors"
	"net/http"
)

// deleteHandler removes a file entry and its blob. Only the owning IP may
// delete, unless the (default-off) admin delete override is enabled; note
// that download and delete deliberately have separate override switches.
//
// The registry row goes first and the blob second: a crash in between can
// orphan a blob but can never leave a row pointing at reclaimed bytes.
func (cfg Config) deleteHandler(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	rid := RequestIDFromContext(r.Context())

	entry, err := cfg.Files.GetByFilename(r.Context(), filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		cfg.Log.Error("registry lookup failed", map[string]any{"rid": rid, "filename": filename}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	id := identityFromRequest(r)
	if entry.IP != clientIP(r) && !(id.Role == RoleAdmin && cfg.Policy.AdminCanDeleteAny) {
		writeError(w, http.StatusForbidden, "you do not have permission to delete this file")
		return
	}

	if err := cfg.Files.DeleteByFilename(r.Context(), entry.Filename); err != nil && !errors.Is(err, ErrNotFound) {
		cfg.Log.Error("registry delete failed", map[string]any{"rid": rid, "filename": filename}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	// Best effort: a missing blob is fine, any other failure leaves an
	// orphan behind and is only logged.
	if err := cfg.Blobs.Remove(r.Context(), entry.Filename); err != nil {
		cfg.Log.Warn("blob removal failed, orphan left behind", map[string]any{
			"rid": rid, "filename": filename,
		})
	}

	cfg.Log.Info("file deleted", map[string]any{"rid": rid, "filename": filename, "ip": entry.IP})
	writeJSON(w, http.StatusOK, msgResponse{Msg: "file deleted"})
}
