package smt

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
)

// tee mirrors every s-expression sent to a solver into an in-memory buffer,
// flushed to a hash-named file under dir on SaveTee. Comments are rendered
// with a ";;" prefix; everything else is rendered via Sexp.String.
type tee struct {
	dir      string
	contents []sexp.Sexp
}

func newTee(dir string) *tee {
	return &tee{dir: dir}
}

func (t *tee) append(s sexp.Sexp) {
	t.contents = append(t.contents, s)
}

// save writes the buffer to query-<8hex>.smt2 under t.dir, named by the
// first 8 hex characters of a 64-bit FNV-1a hash over the serialized
// contents, and returns the file name.
func (t *tee) save() (string, error) {
	lines := make([]string, len(t.contents))
	for i, s := range t.contents {
		lines[i] = s.String()
	}
	contents := strings.Join(lines, "\n")

	h := fnv.New64a()
	_, _ = h.Write([]byte(contents))
	hash := fmt.Sprintf("%016x", h.Sum64())[:8]
	name := fmt.Sprintf("query-%s.smt2", hash)

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(t.dir, name)
	if err := os.WriteFile(dest, []byte(contents), 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// clearTeeDir removes any pre-existing tee files from dir, per the
// "persisted state" contract: a fresh driver run starts from a clean log
// directory. This is the one piece of process-wide state this package
// owns; callers invoke it once, on first driver creation.
func clearTeeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "query-") && strings.HasSuffix(e.Name(), ".smt2") {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
