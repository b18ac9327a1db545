package loaders

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupported is returned for files no loader accepts.
var ErrUnsupported = errors.New("unsupported file type")

// Loader extracts the text of one file, as plain text or markdown.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (string, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (string, error) { return f(ctx, path) }

// File is one loaded file.
type File struct {
	Text     string
	Type     string // document type, e.g. "markdown" or "pdf"
	MIME     string
	Modified time.Time
	Created  time.Time // zero when the filesystem does not record it
}

type entry struct {
	docType string
	loader  Loader
	exts    []string
	accepts func(*mimetype.MIME) bool
}

// Registry picks a loader by extension and checks the detected content type
// against it. Files with an unknown extension are matched by content type alone.
type Registry struct {
	entries []entry
}

// NewRegistry registers every built-in loader.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register("markdown", LoaderFunc(loadText), []string{".md", ".markdown"}, isText)
	r.Register("text", LoaderFunc(loadText), []string{".txt"}, isText)
	r.Register("html", LoaderFunc(loadHTML), []string{".html", ".htm"}, mimeIs("text/html"))
	r.Register("pdf", LoaderFunc(loadPDF), []string{".pdf"}, mimeIs("application/pdf"))
	r.Register("docx", LoaderFunc(loadDocx), []string{".docx"},
		mimeIs("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	r.Register("xlsx", LoaderFunc(loadXlsx), []string{".xlsx"},
		mimeIs("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	return r
}

// Register adds a loader. Later registrations win on extension clashes.
func (r *Registry) Register(docType string, l Loader, exts []string, accepts func(*mimetype.MIME) bool) {
	r.entries = append([]entry{{docType: docType, loader: l, exts: exts, accepts: accepts}}, r.entries...)
}

// Extensions lists every registered extension.
func (r *Registry) Extensions() []string {
	var out []string
	for _, e := range r.entries {
		out = append(out, e.exts...)
	}
	return out
}

// Load detects the file's type and extracts its text.
func (r *Registry) Load(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}

	e, err := r.pick(path, mtype)
	if err != nil {
		return nil, err
	}
	text, err := e.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s as %s: %w", path, e.docType, err)
	}

	f := &File{Text: text, Type: e.docType, MIME: mtype.String()}
	// 文件时间只是附加信息，取不到时不影响导入。
	if ts, err := times.Stat(path); err == nil {
		f.Modified = ts.ModTime()
		if ts.HasBirthTime() {
			f.Created = ts.BirthTime()
		}
	}
	return f, nil
}

func (r *Registry) pick(path string, mtype *mimetype.MIME) (entry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.entries {
		for _, x := range e.exts {
			if x != ext {
				continue
			}
			if e.accepts != nil && !e.accepts(mtype) {
				return entry{}, fmt.Errorf("%w: %s has extension %s but content %s", ErrUnsupported, path, ext, mtype.String())
			}
			return e, nil
		}
	}
	for _, e := range r.entries {
		if e.accepts != nil && e.docType != "text" && e.docType != "markdown" && e.accepts(mtype) {
			return e, nil
		}
	}
	return entry{}, fmt.Errorf("%w: %s (%s)", ErrUnsupported, path, mtype.String())
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func mimeIs(expected string) func(*mimetype.MIME) bool {
	return func(m *mimetype.MIME) bool { return m.Is(expected) }
}
