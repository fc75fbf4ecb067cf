package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStandardExecutor_NilDB(t *testing.T) {
	_, err := NewStandardExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected sql.ErrConnDone, got %v", err)
	}
}

func TestStandardExecutor_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM t").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT id FROM t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReadOnlyExecutor_CommitsOnClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM t WHERE id > \\?").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
	mock.ExpectCommit()

	executor := NewReadOnlyExecutor(ReadOnlyExecutorConfig{DB: db})
	rows, err := executor.QueryContext(context.Background(), "SELECT id FROM t WHERE id > ?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var id int
	if !rows.Next() {
		t.Fatal("expected a row")
	}
	if err := rows.Scan(&id); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if id != 6 {
		t.Errorf("expected id 6, got %d", id)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReadOnlyExecutor_RollsBackOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	executor := NewReadOnlyExecutor(ReadOnlyExecutorConfig{DB: db})
	if _, err := executor.QueryContext(context.Background(), "SELECT broken"); err == nil {
		t.Fatal("expected query error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReadOnlyExecutor_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	executor := NewReadOnlyExecutor(ReadOnlyExecutorConfig{DB: db})
	_, err = executor.QueryContext(context.Background(), "SELECT 1")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped sql.ErrConnDone, got %v", err)
	}
}
