package postgres

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func retrievedRows(scoreCols int) *sqlmock.Rows {
	cols := []string{
		"id", "document_id", "ordinal", "title", "author", "category",
		"tags", "summary", "text", "path",
	}
	switch scoreCols {
	case 1:
		cols = append(cols, "score")
	case 3:
		cols = append(cols, "vector_score", "keyword_score", "score")
	}
	rows := sqlmock.NewRows(cols)
	base := []driver.Value{
		int64(1), int64(10), 0, "Title", "", "",
		[]byte(`["go"]`), "sum", "body", "/archive/a.md",
	}
	switch scoreCols {
	case 1:
		rows.AddRow(append(base, 0.42)...)
	case 3:
		rows.AddRow(append(base, 0.9, 0.1, 0.66)...)
	}
	return rows
}

func TestKeywordChunksScansScore(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewSearchRepository(db)

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs("golang", 5).
		WillReturnRows(retrievedRows(1))

	hits, err := repo.KeywordChunks(context.Background(), "golang", 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("KeywordChunks() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score != 0.42 || hits[0].KeywordScore != 0.42 {
		t.Fatalf("unexpected scores %+v", hits[0])
	}
	if len(hits[0].Tags) != 1 || hits[0].Tags[0] != "go" {
		t.Fatalf("unexpected tags %v", hits[0].Tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHybridChunksScansAllScores(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewSearchRepository(db)

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs(sqlmock.AnyArg(), "golang", 0.7, 5).
		WillReturnRows(retrievedRows(3))

	hits, err := repo.HybridChunks(context.Background(), "golang", []float32{0.1}, 5, 0.7, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("HybridChunks() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	hit := hits[0]
	if hit.VectorScore != 0.9 || hit.KeywordScore != 0.1 || hit.Score != 0.66 {
		t.Fatalf("unexpected scores %+v", hit)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorChunksInEmptyDocIDsSkipsQuery(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewSearchRepository(db)

	hits, err := repo.VectorChunksIn(context.Background(), []float32{0.1}, nil, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("VectorChunksIn() error = %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits, got %v", hits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnyEmbeddedChunksEmptyInput(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewSearchRepository(db)

	ok, err := repo.AnyEmbeddedChunks(context.Background(), nil)
	if err != nil {
		t.Fatalf("AnyEmbeddedChunks() error = %v", err)
	}
	if ok {
		t.Fatalf("expected false for empty input")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestKeywordChunksAppliesFilters(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewSearchRepository(db)

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs("golang", sqlmock.AnyArg(), "kim", 5).
		WillReturnRows(retrievedRows(1))

	filter := domain.SearchFilter{Tags: []string{"go"}, Author: "kim"}
	if _, err := repo.KeywordChunks(context.Background(), "golang", 5, filter); err != nil {
		t.Fatalf("KeywordChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
