// Package lessons reads the curriculum: one directory per language, one
// plain-text file per lesson named lesson_<n>.txt, first line the title.
package lessons

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emera/sattur/internal/apperr"
)

var lessonFile = regexp.MustCompile(`^lesson_(\d+)\.txt$`)

// Summary is a lesson's entry in a listing.
type Summary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Lesson is a single immutable lesson document.
type Lesson struct {
	Language string
	Number   int
	Title    string
	Content  string
}

// Catalog reads lessons from a curriculum root directory. It holds no
// state besides the root and is safe for concurrent use.
type Catalog struct {
	root string
}

// NewCatalog creates a Catalog rooted at dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{root: dir}
}

// Root returns the curriculum directory.
func (c *Catalog) Root() string {
	return c.root
}

// Exists reports whether the curriculum directory is present.
func (c *Catalog) Exists() bool {
	info, err := os.Stat(c.root)
	return err == nil && info.IsDir()
}

// List returns the lessons for language ordered by number. A language
// without a directory has no lessons; that is not an error.
func (c *Catalog) List(language string) ([]Summary, error) {
	dir, err := c.languageDir(language)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lessons for %s: %w", language, err)
	}

	lessons := []Summary{}
	for _, e := range entries {
		n, ok := lessonNumber(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		lessons = append(lessons, Summary{Number: n, Title: readTitle(filepath.Join(dir, e.Name()), n)})
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Number < lessons[j].Number })
	return lessons, nil
}

// Load reads lesson number n for language. It fails with
// apperr.ErrInvalidRequest for an empty language and apperr.ErrNotFound when
// the file does not exist.
func (c *Catalog) Load(language string, n int) (*Lesson, error) {
	dir, err := c.languageDir(language)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, fileName(n)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.New(apperr.ErrNotFound, "lessons.Load",
			fmt.Sprintf("Lesson %d for %s not found.", n, language))
	}
	if err != nil {
		return nil, fmt.Errorf("read lesson %d for %s: %w", n, language, err)
	}

	content := string(data)
	return &Lesson{
		Language: language,
		Number:   n,
		Title:    titleOf(content, n),
		Content:  content,
	}, nil
}

// languageDir maps a language to its directory. Names are lower-cased and
// must not escape the curriculum root.
func (c *Catalog) languageDir(language string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		return "", apperr.New(apperr.ErrInvalidRequest, "lessons", "Language is required.")
	}
	if lang == "." || lang == ".." || strings.ContainsAny(lang, `/\`) {
		return "", apperr.New(apperr.ErrInvalidRequest, "lessons", fmt.Sprintf("Invalid language %q.", language))
	}
	return filepath.Join(c.root, lang), nil
}

func fileName(n int) string {
	return fmt.Sprintf("lesson_%d.txt", n)
}

func lessonNumber(name string) (int, bool) {
	m := lessonFile.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// readTitle returns the first line of the file, or "Lesson <n>" when the
// file is unreadable or starts with an empty line.
func readTitle(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return defaultTitle(n)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	if sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			return t
		}
	}
	return defaultTitle(n)
}

func titleOf(content string, n int) string {
	first, _, _ := strings.Cut(content, "\n")
	if t := strings.TrimSpace(first); t != "" {
		return t
	}
	return defaultTitle(n)
}

func defaultTitle(n int) string {
	return fmt.Sprintf("Lesson %d", n)
}
