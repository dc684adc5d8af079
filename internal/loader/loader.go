// Package loader reads plain text, markdown and PDF documents from disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"

	"groundedrag/internal/domain"
)

// Extensions lists the file types picked up from globs and directories.
var Extensions = []string{".txt", ".md", ".pdf"}

// ErrNoDocuments is returned when the given paths match no readable documents.
var ErrNoDocuments = errors.New("no .txt, .md or .pdf documents found")

// DocumentID derives a stable id from a source path.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(source))).String()
}

// Resolve expands globs and directories into a sorted, de-duplicated list of
// supported files. A path that is neither a glob match nor an existing file
// is an error.
func Resolve(paths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				if supported(m) {
					add(m)
				}
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				if supported(path) {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

// Load resolves paths and reads every document. Documents are returned in
// path order so repeated loads produce identical indexes.
func Load(ctx context.Context, paths []string) ([]domain.Document, error) {
	files, err := Resolve(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoDocuments
	}
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		content, err := read(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		docs = append(docs, domain.Document{ID: DocumentID(f), Source: f, Content: content})
	}
	return docs, nil
}

func read(ctx context.Context, path string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		return readPDF(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readPDF extracts the plain text of every page, pages separated by a blank line.
func readPDF(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	pages, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if text := strings.TrimSpace(p.PageContent); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

func supported(path string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}
