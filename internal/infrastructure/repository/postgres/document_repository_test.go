package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// passthroughConverter lets pgx-only argument types (slices, vectors)
// through sqlmock's driver value check.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func documentRows(ids ...int64) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "path", "filename", "extension", "size_bytes", "mtime", "sha256",
		"raw_text", "status", "doc_summary", "doc_status", "meta", "created_at", "updated_at",
	})
	for _, id := range ids {
		rows.AddRow(id, "/archive/a.txt", "a.txt", ".txt", int64(12), now, "abc",
			"hello", "ok", "", "pending", []byte(`{}`), now, now)
	}
	return rows
}

func TestGetByIDReturnsNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, path, filename").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimForEnrichmentMarksClaimedRows(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, path, filename").
		WithArgs("pending", 10).
		WillReturnRows(documentRows(1, 2))
	mock.ExpectExec("UPDATE documents SET doc_status").
		WithArgs("enriching", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	docs, err := repo.ClaimForEnrichment(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimForEnrichment() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, doc := range docs {
		if doc.DocStatus != domain.DocEnriching {
			t.Fatalf("expected enriching status, got %s", doc.DocStatus)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimForEnrichmentEmptyBatch(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, path, filename").
		WithArgs("pending", 10).
		WillReturnRows(documentRows())
	mock.ExpectCommit()

	docs, err := repo.ClaimForEnrichment(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimForEnrichment() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty batch, got %d", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocEnrichmentNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE documents").
		WithArgs(int64(5), "summary", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveDocEnrichment(context.Background(), 5, "summary", domain.DocEnrichment{Title: "T"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateExtractionRewritesTextAndStatus(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE documents").
		WithArgs(int64(3), "/archive/a.txt", "a.txt", ".txt", int64(12), sqlmock.AnyArg(),
			"recovered text", "ok", "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &domain.Document{
		Path: "/archive/a.txt", Filename: "a.txt", Extension: ".txt", SizeBytes: 12,
		MTime: time.Now(), RawText: "recovered text",
		Status: domain.StatusOK, DocStatus: domain.DocPending,
	}
	if err := repo.UpdateExtraction(context.Background(), 3, doc); err != nil {
		t.Fatalf("UpdateExtraction() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReleaseStaleDocuments(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE documents").
		WithArgs(120).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ReleaseStale(context.Background(), 120)
	if err != nil {
		t.Fatalf("ReleaseStale() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 released documents, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListFingerprints(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "path", "mtime_unix", "size_bytes", "status"}).
		AddRow(int64(1), "/archive/a.txt", int64(1700000000), int64(42), "ok").
		AddRow(int64(2), "/archive/b.txt", int64(1700000500), int64(7), "extract_failed")
	mock.ExpectQuery("SELECT id, path").WillReturnRows(rows)

	fps, err := repo.ListFingerprints(context.Background())
	if err != nil {
		t.Fatalf("ListFingerprints() error = %v", err)
	}
	if len(fps) != 2 {
		t.Fatalf("expected 2 fingerprints, got %d", len(fps))
	}
	if fps[1].Status != domain.StatusExtractFailed {
		t.Fatalf("expected extract_failed, got %s", fps[1].Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
