package lessons

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emera/sattur/internal/apperr"
)

func writeLessons(t *testing.T, language string, files map[string]string) *Catalog {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, language)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewCatalog(root)
}

func TestListOrdersNumerically(t *testing.T) {
	c := writeLessons(t, "sanskrit", map[string]string{
		"lesson_2.txt":  "Greetings\nnamaste",
		"lesson_1.txt":  "The Alphabet\nअ आ इ",
		"lesson_10.txt": "Sandhi\n...",
		"notes.txt":     "not a lesson",
		"lesson_x.txt":  "not a lesson either",
	})

	got, err := c.List("Sanskrit")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Summary{{1, "The Alphabet"}, {2, "Greetings"}, {10, "Sandhi"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestListTitleFallback(t *testing.T) {
	c := writeLessons(t, "sanskrit", map[string]string{
		"lesson_3.txt": "\nbody without a title",
		"lesson_4.txt": "",
	})

	got, err := c.List("sanskrit")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Lesson 3" || got[1].Title != "Lesson 4" {
		t.Errorf("unexpected titles %+v", got)
	}
}

func TestListMissingLanguageIsEmpty(t *testing.T) {
	c := NewCatalog(t.TempDir())
	got, err := c.List("Pali")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestLoad(t *testing.T) {
	c := writeLessons(t, "sanskrit", map[string]string{
		"lesson_1.txt": "The Alphabet\nअ is the first vowel.\n",
	})

	l, err := c.Load("Sanskrit", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Title != "The Alphabet" || l.Number != 1 || l.Language != "Sanskrit" {
		t.Errorf("unexpected lesson %+v", l)
	}
	if l.Content != "The Alphabet\nअ is the first vowel.\n" {
		t.Errorf("content not read verbatim: %q", l.Content)
	}
}

func TestLoadErrors(t *testing.T) {
	c := writeLessons(t, "sanskrit", map[string]string{"lesson_1.txt": "x"})

	tests := []struct {
		name     string
		language string
		number   int
		want     error
	}{
		{"missing lesson", "sanskrit", 7, apperr.ErrNotFound},
		{"missing language dir", "pali", 1, apperr.ErrNotFound},
		{"empty language", " ", 1, apperr.ErrInvalidRequest},
		{"path traversal", "../sanskrit", 1, apperr.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Load(tt.language, tt.number)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestExists(t *testing.T) {
	if !NewCatalog(t.TempDir()).Exists() {
		t.Error("temp dir should exist")
	}
	if NewCatalog(filepath.Join(t.TempDir(), "missing")).Exists() {
		t.Error("missing dir should not exist")
	}
}
