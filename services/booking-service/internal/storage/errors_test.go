package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func TestIsConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"exclusion violation", &pgconn.PgError{Code: "23P01"}, true},
		{"wrapped", fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsConflict(tc.err); got != tc.want {
				t.Fatalf("IsConflict = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(pgx.ErrNoRows) {
		t.Fatal("pgx.ErrNoRows should be not found")
	}
	if !IsNotFound(fmt.Errorf("load: %w", model.ErrNotFound)) {
		t.Fatal("wrapped model.ErrNotFound should be not found")
	}
	if IsNotFound(errors.New("timeout")) {
		t.Fatal("unexpected not found")
	}
	if !errors.Is(notFound(pgx.ErrNoRows), model.ErrNotFound) {
		t.Fatal("notFound should translate pgx.ErrNoRows")
	}
	if notFound(nil) != nil {
		t.Fatal("notFound(nil) should be nil")
	}
}

func TestNormalizeNames(t *testing.T) {
	got := normalizeNames([]string{" Dye ", "dye", "", "Texturizing"})
	want := []string{"dye", "texturizing"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
