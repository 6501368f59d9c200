package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/index"
)

// Fields names the gjson paths read from each JSONL record.
type Fields struct {
	ID      string
	Content string
	Title   string
	Source  string
}

// DefaultFields matches records shaped like {"id", "text", "title", "url"}.
func DefaultFields() Fields {
	return Fields{ID: "id", Content: "text", Title: "title", Source: "url"}
}

const maxJSONLLine = 16 << 20

var ingestExts = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".jsonl": true}

// Ingest adds every supported file under paths to the index.
func Ingest(ctx context.Context, paths []string, fields Fields, out io.Writer, opts Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	idx, err := e.openIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}

	counts := make(map[index.AddStatus]int)
	for _, path := range files {
		docs, err := documentsFromFile(path, fields)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			res, err := idx.Add(ctx, doc)
			if errors.Is(err, index.ErrEmptyDocument) {
				e.logger.Warn("skipping empty document", zap.String("source", doc.Source))
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "add %s", doc.Source)
			}
			counts[res.Status]++
			if opts.Verbose {
				fmt.Fprintf(out, "%-10s %s (%d passages)\n", res.Status, res.Meta.ID, res.Meta.Passages)
			}
		}
	}

	stats := idx.Stats()
	fmt.Fprintf(out, "Ingested %d files: %d added, %d replaced, %d unchanged, %d duplicates.\n",
		len(files), counts[index.Added], counts[index.Replaced], counts[index.Unchanged], counts[index.Duplicate])
	fmt.Fprintf(out, "Index: %d documents, %d passages.\n", stats.Documents, stats.Passages)
	return nil
}

// collectFiles expands directories into the supported files they contain.
// Explicit file arguments are kept regardless of extension.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ingestExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", p)
		}
	}
	return files, nil
}

// documentsFromFile reads one file. JSONL files yield one document per
// line; anything else is a single document keyed by its slash path.
func documentsFromFile(path string, fields Fields) ([]index.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return documentsFromJSONL(path, fields)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	content := string(data)
	return []index.Document{{
		ID:      filepath.ToSlash(filepath.Clean(path)),
		Source:  path,
		Title:   titleOf(path, content),
		Content: content,
	}}, nil
}

func documentsFromJSONL(path string, fields Fields) ([]index.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var docs []index.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			return nil, errors.Newf("%s:%d: invalid JSON", path, line)
		}
		content := gjson.GetBytes(raw, fields.Content).String()
		if strings.TrimSpace(content) == "" {
			return nil, errors.Newf("%s:%d: missing %q field", path, line, fields.Content)
		}
		doc := index.Document{
			ID:      gjson.GetBytes(raw, fields.ID).String(),
			Title:   gjson.GetBytes(raw, fields.Title).String(),
			Source:  gjson.GetBytes(raw, fields.Source).String(),
			Content: content,
		}
		if doc.Source == "" {
			doc.Source = fmt.Sprintf("%s:%d", path, line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return docs, nil
}

// titleOf returns the first markdown heading, or the file name without
// its extension.
func titleOf(path, content string) string {
	for _, l := range strings.SplitN(content, "\n", 20) {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(l, "#")); t != "" {
				return t
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
