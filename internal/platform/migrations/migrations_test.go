package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesSchemaInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	for _, fragment := range []string{
		`CREATE TABLE IF NOT EXISTS users`,
		`users_email_unique`,
		`users_username_unique`,
		`CREATE TABLE IF NOT EXISTS breath_sessions`,
		`CREATE TABLE IF NOT EXISTS achievements`,
		`UNIQUE \(user_id, achievement_id\)`,
	} {
		mock.ExpectExec(fragment).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsAtFailingStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`users_email_unique`).WillReturnError(errors.New("index exists with different definition"))

	err = Apply(context.Background(), db)
	if err == nil {
		t.Fatal("expected error from failing statement")
	}
	if !strings.Contains(err.Error(), "apply migration 2") {
		t.Fatalf("error should name the failing statement, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
