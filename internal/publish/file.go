package publish

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/TobiSchelling/curator/internal/models"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
{{.Body}}
</article>
<footer><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04"}} UTC{{range .Tags}} · {{.}}{{end}}</small></footer>
</body>
</html>
`))

// FilePublisher writes each report as markdown plus a standalone HTML page.
type FilePublisher struct {
	Dir string
}

// NewFilePublisher creates a publisher writing into dir.
func NewFilePublisher(dir string) *FilePublisher {
	return &FilePublisher{Dir: dir}
}

// Publish writes <date>-<slug>-<id8>.md and .html, named by FileName.
// Re-publishing overwrites both.
func (p *FilePublisher) Publish(ctx context.Context, r models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("creating publish dir: %w", err)
	}

	body, err := RenderHTML(r.Markdown)
	if err != nil {
		return err
	}
	var html strings.Builder
	err = page.Execute(&html, map[string]any{
		"Title":       r.Title,
		"Body":        body,
		"GeneratedAt": r.GeneratedAt.UTC(),
		"Tags":        r.Tags,
	})
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	base := filepath.Join(p.Dir, FileName(r))
	if err := writeAtomic(base+".md", []byte(r.Markdown)); err != nil {
		return err
	}
	if err := writeAtomic(base+".html", []byte(html.String())); err != nil {
		return err
	}
	log.Printf("Published %q to %s.md", r.Title, base)
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// FileName is the extension-less name used for a report's files.
func FileName(r models.Report) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(r.Title), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s", r.GeneratedAt.UTC().Format("2006-01-02"), slug, id)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".publish-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
