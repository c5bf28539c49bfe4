package plandoc

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/go-pdf/fpdf"
)

// Document is a rendered plan.
type Document struct {
	Bytes       []byte
	ContentType string
	Extension   string
}

// Render renders plan in format (jobs.FormatPDF or jobs.FormatHTML).
func Render(plan Plan, format string) (Document, error) {
	switch format {
	case jobs.FormatHTML:
		b, err := RenderHTML(plan)
		return Document{Bytes: b, ContentType: "text/html; charset=utf-8", Extension: ".html"}, err
	case jobs.FormatPDF:
		b, err := RenderPDF(plan)
		return Document{Bytes: b, ContentType: "application/pdf", Extension: ".pdf"}, err
	default:
		return Document{}, plandocErrors.New(ErrUnsupportedFormat).WithDetail("format", format)
	}
}

var htmlTemplate = template.Must(template.New("plan").Funcs(template.FuncMap{
	"budget":     formatBudget,
	"paragraphs": paragraphs,
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Room.Name}} renovation plan</title>
<style>
body{font-family:Helvetica,Arial,sans-serif;color:#1f2933;max-width:760px;margin:40px auto;padding:0 16px}
h1{margin-bottom:4px}.meta{color:#7b8794}figure{margin:24px 0}figure img{max-width:100%;border-radius:6px}
figcaption{color:#52606d;font-size:14px}
</style>
</head>
<body>
<h1>{{.Room.Name}}</h1>
<p class="meta">{{with .Room.Kind}}{{.}} · {{end}}{{with .Room.Style}}{{.}} style · {{end}}generated {{.GeneratedAt.Format "2 Jan 2006"}}</p>
{{with budget .Room.BudgetCents}}<p><strong>Budget:</strong> {{.}}</p>{{end}}
{{with .Room.Notes}}<h2>Brief</h2>{{range paragraphs .}}<p>{{.}}</p>{{end}}{{end}}
{{with .Narrative}}<h2>Plan</h2>{{range paragraphs .}}<p>{{.}}</p>{{end}}{{end}}
{{if .Renders}}<h2>Renderings</h2>
{{range .Renders}}<figure>{{if .URL}}<img src="{{.URL}}" alt="{{.Prompt}}">{{end}}<figcaption>{{.Prompt}}</figcaption></figure>
{{end}}{{end}}
</body>
</html>
`))

// RenderHTML renders plan as a standalone HTML page.
func RenderHTML(plan Plan) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, plan); err != nil {
		return nil, plandocErrors.NewWithCause(ErrRenderDocument, err).WithDetail("format", jobs.FormatHTML)
	}
	return buf.Bytes(), nil
}

// RenderPDF renders plan as an A4 PDF.
func RenderPDF(plan Plan) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(plan.Room.Name+" renovation plan", true)
	pdf.SetCreator("remodel", true)
	pdf.SetCreationDate(plan.GeneratedAt)
	pdf.SetMargins(18, 18, 18)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 9, tr(plan.Room.Name), "", "L", false)

	var meta []string
	if plan.Room.Kind != "" {
		meta = append(meta, plan.Room.Kind)
	}
	if plan.Room.Style != "" {
		meta = append(meta, plan.Room.Style+" style")
	}
	meta = append(meta, "generated "+plan.GeneratedAt.Format("2 Jan 2006"))
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(123, 135, 148)
	pdf.MultiCell(0, 6, tr(strings.Join(meta, " - ")), "", "L", false)
	pdf.SetTextColor(31, 41, 51)

	if b := formatBudget(plan.Room.BudgetCents); b != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr("Budget: "+b), "", "L", false)
	}

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		pdf.Ln(5)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 8, tr(title), "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		for _, p := range paragraphs(body) {
			pdf.MultiCell(0, 5.5, tr(p), "", "L", false)
			pdf.Ln(2)
		}
	}
	section("Brief", plan.Room.Notes)
	section("Plan", plan.Narrative)

	if len(plan.Renders) > 0 {
		pdf.Ln(5)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 8, "Renderings", "", "L", false)
		for i, r := range plan.Renders {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(0, 5.5, fmt.Sprintf("%d. %s", i+1, tr(r.Prompt)), "", "L", false)
			if r.URL != "" {
				pdf.SetFont("Helvetica", "U", 10)
				pdf.SetTextColor(37, 99, 235)
				pdf.WriteLinkString(5, tr(r.URL), r.URL)
				pdf.SetTextColor(31, 41, 51)
				pdf.Ln(6)
			}
			pdf.Ln(1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, plandocErrors.NewWithCause(ErrRenderDocument, err).WithDetail("format", jobs.FormatPDF)
	}
	return buf.Bytes(), nil
}

func formatBudget(cents int64) string {
	if cents <= 0 {
		return ""
	}
	units := cents / 100
	s := fmt.Sprintf("%d", units)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if rem := cents % 100; rem != 0 {
		return fmt.Sprintf("$%s.%02d", out, rem)
	}
	return "$" + string(out)
}

// paragraphs splits text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
