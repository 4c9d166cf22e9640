package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// In-memory stand-ins for the SQL stores. They mimic the query semantics
// (IP scope, case-insensitive substring search, timestamp sort, offset
// pagination) so handler tests exercise real behavior.

type fakeRegistry struct {
	mu     sync.Mutex
	nextID int64
	rows   []FileEntry

	insertErr error
	listErr   error
}

func (f *fakeRegistry) Insert(_ context.Context, e *FileEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	f.rows = append(f.rows, *e)
	return nil
}

func (f *fakeRegistry) GetByFilename(_ context.Context, filename string) (*FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.rows {
		if e.Filename == filename {
			out := e
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRegistry) DeleteByFilename(_ context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.rows {
		if e.Filename == filename {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRegistry) matches(q ListQuery, e FileEntry) bool {
	if e.IP != q.IP {
		return false
	}
	if q.Search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.OriginalName), strings.ToLower(q.Search))
}

func (f *fakeRegistry) filtered(q ListQuery) []FileEntry {
	var out []FileEntry
	for _, e := range f.rows {
		if f.matches(q, e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if q.Sort == SortAsc {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		if q.Sort == SortAsc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return out
}

func (f *fakeRegistry) List(_ context.Context, q ListQuery) ([]FileEntry, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.filtered(q)
	total := len(all)

	start := q.offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *fakeRegistry) ListAll(_ context.Context, q ListQuery) ([]FileEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filtered(q), nil
}

func (f *fakeRegistry) ListMissingSize(_ context.Context) ([]FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FileEntry
	for _, e := range f.rows {
		if !e.Size.Valid {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRegistry) UpdateSize(_ context.Context, id int64, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Size.Int64 = size
			f.rows[i].Size.Valid = true
			return nil
		}
	}
	return ErrNotFound
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*User

	err error
}

func (f *fakeUsers) ByUsername(_ context.Context, username string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUsers) Create(_ context.Context, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Username] = u
	return nil
}

func newTestConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Auth:   AuthConfig{Secret: []byte("test-secret"), TokenTTL: time.Hour},
		Policy: DefaultPolicy(),
		Users:  &fakeUsers{users: map[string]*User{}},
		Files:  &fakeRegistry{},
		Blobs:  NewDiskStore(t.TempDir()),
		Log:    NewTestLogger(),
	}
}

func authToken(t *testing.T, cfg Config, userID, role string) string {
	t.Helper()
	tok, err := cfg.Auth.issueToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + tok
}

// multipartBody builds an upload body with a file part and, when category
// is non-empty, a category field.
func multipartBody(t *testing.T, filename, content, category string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if category != "" {
		require.NoError(t, writer.WriteField("category", category))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func seedEntry(t *testing.T, reg *fakeRegistry, filename, original, ip, category string, ts time.Time, size int64) FileEntry {
	t.Helper()
	e := &FileEntry{
		Filename:     filename,
		OriginalName: original,
		IP:           ip,
		Category:     category,
		Timestamp:    ts,
	}
	if size >= 0 {
		e.Size.Int64 = size
		e.Size.Valid = true
	}
	require.NoError(t, reg.Insert(context.Background(), e))
	return *e
}
