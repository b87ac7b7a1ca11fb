package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Formats ExportToDir understands, keyed by file extension.
var exporters = map[string]func(*bytes.Buffer, Source, string) error{
	"csv":  func(b *bytes.Buffer, s Source, id string) error { return ExportCSV(b, s, id) },
	"json": func(b *bytes.Buffer, s Source, id string) error { return ExportJSON(b, s, id) },
	"pdf":  func(b *bytes.Buffer, s Source, id string) error { return ExportPDF(b, s, id) },
}

// ExportToDir writes the requested formats to dir/<runID>/<runID>.<ext>
// and returns the written paths. Nothing is written if any format fails.
func ExportToDir(src Source, runID, dir string, formats ...string) ([]string, error) {
	if len(formats) == 0 {
		formats = []string{"json", "pdf"}
	}
	rendered := make(map[string][]byte, len(formats))
	for _, f := range formats {
		export, ok := exporters[f]
		if !ok {
			return nil, fmt.Errorf("unknown report format %q", f)
		}
		var buf bytes.Buffer
		if err := export(&buf, src, runID); err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		rendered[f] = buf.Bytes()
	}

	out := filepath.Join(dir, runID)
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", out, err)
	}
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		path := filepath.Join(out, runID+"."+f)
		if err := os.WriteFile(path, rendered[f], 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
