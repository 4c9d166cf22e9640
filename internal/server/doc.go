// Package server implements the HTTP backend of the file-share service:
// login and bearer-token auth, IP-scoped file upload/download/delete,
// listing with search and pagination, and CSV/XLSX exports.
package server
