package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Certificate holds what is printed on a diploma.
type Certificate struct {
	RecipientName string
	ProgramTitle  string
	ProgramDate   string
	Hours         float64
	Issuer        string
}

// DiplomaRenderer draws completion certificates. It is stateless and safe for concurrent use.
type DiplomaRenderer struct{}

// NewDiplomaRenderer constructs a renderer.
func NewDiplomaRenderer() *DiplomaRenderer {
	return &DiplomaRenderer{}
}

// Render returns a single landscape A4 page as PDF bytes.
func (r *DiplomaRenderer) Render(cert Certificate) ([]byte, error) {
	name := strings.TrimSpace(cert.RecipientName)
	if name == "" {
		return nil, fmt.Errorf("certificate requires a recipient name")
	}
	if strings.TrimSpace(cert.ProgramTitle) == "" {
		return nil, fmt.Errorf("certificate requires a program title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Diploma - "+name, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	width, height := pdf.GetPageSize()

	pdf.SetDrawColor(120, 90, 40)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(15, 15, width-30, height-30, "D")

	pdf.SetTextColor(120, 90, 40)
	pdf.SetFont("Times", "B", 40)
	pdf.SetY(35)
	pdf.CellFormat(0, 18, "DIPLOMA", "", 1, "C", false, 0, "")

	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Times", "I", 16)
	pdf.Ln(6)
	pdf.CellFormat(0, 10, tr("This certifies that"), "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "B", 30)
	pdf.Ln(4)
	pdf.CellFormat(0, 16, tr(name), "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "I", 16)
	pdf.Ln(4)
	pdf.CellFormat(0, 10, tr("has successfully completed"), "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "B", 22)
	pdf.CellFormat(0, 14, tr(cert.ProgramTitle), "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "", 13)
	if cert.ProgramDate != "" {
		pdf.CellFormat(0, 8, tr(cert.ProgramDate), "", 1, "C", false, 0, "")
	}
	if cert.Hours > 0 {
		pdf.CellFormat(0, 8, fmt.Sprintf("%s training hours", formatHours(cert.Hours)), "", 1, "C", false, 0, "")
	}

	if cert.Issuer != "" {
		lineY := height - 45
		pdf.SetLineWidth(0.3)
		pdf.Line(width/2-45, lineY, width/2+45, lineY)
		pdf.SetY(lineY + 2)
		pdf.SetFont("Times", "", 12)
		pdf.CellFormat(0, 8, tr(cert.Issuer), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render diploma: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename builds a download name such as diploma_maria_svensson.pdf.
func (r *DiplomaRenderer) Filename(name string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == ' ' || ch == '-' || ch == '_':
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "participant"
	}
	return "diploma_" + slug + ".pdf"
}

func formatHours(h float64) string {
	if h == float64(int64(h)) {
		return fmt.Sprintf("%d", int64(h))
	}
	return fmt.Sprintf("%.1f", h)
}
