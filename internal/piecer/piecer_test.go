package piecer_test

import (
	"crypto/sha1" //nolint:gosec
	"fmt"
	"testing"

	"github.com/cenkalti/demagnetize/internal/piecer"
)

func TestPieceCountBoundaries(t *testing.T) {
	cases := []struct {
		total int64
		want  int
	}{
		{0, 0},
		{1, 1},
		{16384, 1},
		{16385, 2},
		{32768, 2},
		{32769, 3},
	}
	for _, c := range cases {
		p := piecer.New(c.total)
		if got := p.PieceCount(); got != c.want {
			t.Errorf("PieceCount(%d) = %d, want %d", c.total, got, c.want)
		}
	}
}

func TestAddPieceAndValidate(t *testing.T) {
	data := make([]byte, 20000)
	for i := range data {
		data[i] = byte(i)
	}
	p := piecer.New(int64(len(data)))
	if p.PieceCount() != 2 {
		t.Fatalf("PieceCount = %d, want 2", p.PieceCount())
	}
	if err := p.AddPiece(data[:16384]); err != nil {
		t.Fatalf("AddPiece(0) error: %v", err)
	}
	if p.Done() {
		t.Fatal("Done() true before all pieces added")
	}
	if err := p.AddPiece(data[16384:]); err != nil {
		t.Fatalf("AddPiece(1) error: %v", err)
	}
	if !p.Done() {
		t.Fatal("Done() false after all pieces added")
	}
	want := fmt.Sprintf("%x", sha1.Sum(data)) //nolint:gosec
	if got := p.Digest(); got != want {
		t.Errorf("Digest() = %s, want %s", got, want)
	}
	if string(p.Data()) != string(data) {
		t.Error("Data() does not match input")
	}
}

func TestAddPieceWrongSize(t *testing.T) {
	p := piecer.New(20000)
	if err := p.AddPiece(make([]byte, 100)); err == nil {
		t.Fatal("expected error for wrong-size first piece")
	}
}

func TestAddPieceTooMany(t *testing.T) {
	p := piecer.New(16384)
	if err := p.AddPiece(make([]byte, 16384)); err != nil {
		t.Fatal(err)
	}
	if err := p.AddPiece(make([]byte, 16384)); err == nil {
		t.Fatal("expected error adding a piece beyond the schedule")
	}
}
