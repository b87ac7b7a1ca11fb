package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// maxPDFLogLines caps the log section.
const maxPDFLogLines = 500

// ExportPDF writes a printable report of one run to w.
func ExportPDF(w io.Writer, src Source, runID string) error {
	r, err := Build(src, runID)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Script Run Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	device := r.DeviceSerial
	if device == "" {
		device = "(auto)"
	}
	info := []struct{ label, value string }{
		{"Run ID", r.ID},
		{"Script", r.ScriptName},
		{"Device", device},
		{"Status", r.Status},
		{"Started", r.StartedAt.Format(time.RFC3339)},
	}
	if r.FinishedAt != nil {
		info = append(info, struct{ label, value string }{"Finished", r.FinishedAt.Format(time.RFC3339)})
	}
	info = append(info,
		struct{ label, value string }{"Duration", (time.Duration(r.DurationMs) * time.Millisecond).String()},
		struct{ label, value string }{"Commands", fmt.Sprintf("%d passed, %d failed", r.Passed, r.Failed)},
	)

	for _, item := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, item.value, "", 1, "L", false, 0, "")
	}
	if r.Error != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, "Error:", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 7, r.Error, "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Device Commands", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(r.Commands) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No device commands recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(12, 6, "Line", "1", 0, "R", true, 0, "")
		pdf.CellFormat(30, 6, "Command", "1", 0, "L", true, 0, "")
		pdf.CellFormat(55, 6, "Args", "1", 0, "L", true, 0, "")
		pdf.CellFormat(10, 6, "OK", "1", 0, "C", true, 0, "")
		pdf.CellFormat(50, 6, "Value / Error", "1", 0, "L", true, 0, "")
		pdf.CellFormat(0, 6, "Duration", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 8)
		for _, c := range r.Commands {
			ok, detail := "Y", c.Value
			if !c.Success {
				ok, detail = "N", c.Error
			}
			pdf.CellFormat(12, 6, fmt.Sprintf("%d", c.Line), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, truncate(c.Command, 18), "1", 0, "L", false, 0, "")
			pdf.CellFormat(55, 6, truncate(c.Args, 34), "1", 0, "L", false, 0, "")
			pdf.CellFormat(10, 6, ok, "1", 0, "C", false, 0, "")
			pdf.CellFormat(50, 6, truncate(detail, 30), "1", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, fmt.Sprintf("%dms", c.DurationMs), "1", 1, "R", false, 0, "")
		}
	}

	if len(r.Logs) > 0 {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Execution Log", "", 1, "L", false, 0, "")
		pdf.SetFont("Courier", "", 7)
		logs := r.Logs
		if len(logs) > maxPDFLogLines {
			logs = logs[:maxPDFLogLines]
		}
		for _, line := range logs {
			pdf.MultiCell(0, 4, printable(line), "", "L", false)
		}
		if len(r.Logs) > maxPDFLogLines {
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 6, fmt.Sprintf("... %d more lines omitted", len(r.Logs)-maxPDFLogLines), "", 1, "L", false, 0, "")
		}
	}

	return pdf.Output(w)
}

func truncate(s string, max int) string {
	s = printable(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// printable replaces characters the core PDF fonts cannot encode.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}
