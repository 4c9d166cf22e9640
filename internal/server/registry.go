package server

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// File categories accepted at upload time.
const (
	CategoryDocument = "Document"
	CategoryImage    = "Image"
	CategoryBackup   = "Backup"
	CategoryLog      = "Log"
	CategoryOther    = "Other"
)

var validCategories = map[string]bool{
	CategoryDocument: true,
	CategoryImage:    true,
	CategoryBackup:   true,
	CategoryLog:      true,
	CategoryOther:    true,
}

// FileEntry is a registry record describing one uploaded blob. Filename is
// the generated on-disk name; ownership is the IP recorded at upload time.
type FileEntry struct {
	ID           int64
	Filename     string
	OriginalName string
	IP           string
	Category     string
	Timestamp    time.Time
	Size         sql.NullInt64
}

// Sort directions over the upload timestamp.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListQuery scopes and pages a registry listing. IP is always set by the
// caller; Search is a case-insensitive substring match on the original
// filename. Page and Limit are 1-based and pre-validated by the handlers.
type ListQuery struct {
	IP     string
	Search string
	Sort   string
	Page   int
	Limit  int
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

// FileRegistry is the metadata store for uploaded files.
type FileRegistry interface {
	Insert(ctx context.Context, e *FileEntry) error
	GetByFilename(ctx context.Context, filename string) (*FileEntry, error)
	DeleteByFilename(ctx context.Context, filename string) error

	// List returns one page of matching entries plus the total match count.
	List(ctx context.Context, q ListQuery) ([]FileEntry, int, error)
	// ListAll returns the full matching set, ignoring Page/Limit.
	ListAll(ctx context.Context, q ListQuery) ([]FileEntry, error)

	// ListMissingSize and UpdateSize support the startup size backfill for
	// rows that predate the size column.
	ListMissingSize(ctx context.Context) ([]FileEntry, error)
	UpdateSize(ctx context.Context, id int64, size int64) error
}

// NewFileRegistry returns the SQL-backed registry.
func NewFileRegistry(db *sql.DB) FileRegistry {
	return &sqlFileRegistry{db: db}
}

type sqlFileRegistry struct {
	db *sql.DB
}

const fileColumns = `id, filename, originalname, ip, category, timestamp, size`

func scanFileEntry(row interface{ Scan(...any) error }) (FileEntry, error) {
	var e FileEntry
	err := row.Scan(&e.ID, &e.Filename, &e.OriginalName, &e.IP, &e.Category, &e.Timestamp, &e.Size)
	return e, err
}

func (s *sqlFileRegistry) Insert(ctx context.Context, e *FileEntry) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO files (filename, originalname, ip, category, timestamp, size)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.Filename, e.OriginalName, e.IP, e.Category, e.Timestamp, e.Size,
	).Scan(&e.ID)
}

func (s *sqlFileRegistry) GetByFilename(ctx context.Context, filename string) (*FileEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE filename = $1`,
		filename,
	)
	e, err := scanFileEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *sqlFileRegistry) DeleteByFilename(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE filename = $1`, filename)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike neutralises LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func orderDirection(sort string) string {
	if sort == SortAsc {
		return "ASC"
	}
	return "DESC"
}

const listFilter = ` WHERE ip = $1 AND ($2 = '' OR originalname ILIKE '%' || $2 || '%')`

func (s *sqlFileRegistry) List(ctx context.Context, q ListQuery) ([]FileEntry, int, error) {
	search := escapeLike(q.Search)

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files`+listFilter,
		q.IP, search,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files`+listFilter+
			` ORDER BY timestamp `+orderDirection(q.Sort)+`, id `+orderDirection(q.Sort)+
			` LIMIT $3 OFFSET $4`,
		q.IP, search, q.Limit, q.offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := collectFileEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *sqlFileRegistry) ListAll(ctx context.Context, q ListQuery) ([]FileEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files`+listFilter+
			` ORDER BY timestamp `+orderDirection(q.Sort)+`, id `+orderDirection(q.Sort),
		q.IP, escapeLike(q.Search),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFileEntries(rows)
}

func (s *sqlFileRegistry) ListMissingSize(ctx context.Context) ([]FileEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE size IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFileEntries(rows)
}

func (s *sqlFileRegistry) UpdateSize(ctx context.Context, id int64, size int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET size = $2 WHERE id = $1`, id, size)
	return err
}

func collectFileEntries(rows *sql.Rows) ([]FileEntry, error) {
	var entries []FileEntry
	for rows.Next() {
		e, err := scanFileEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
