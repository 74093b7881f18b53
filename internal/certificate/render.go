package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"
)

// Fields is the text placed on a certificate.
type Fields struct {
	CertificateID  string
	RecipientName  string
	VerifyURL      string
	CompletionText string
	// Highlight is a segment of CompletionText printed in the highlight colour.
	Highlight string
}

type rgb struct{ r, g, b int }

// Layout positions are measured in points from the top-left corner of the template page.
type Layout struct {
	MarginX        float64
	TextX          float64
	NameTop        float64
	NameMinSize    float64
	NameMaxSize    float64
	IDX, IDTop     float64
	IDSize         float64
	LinkX, LinkTop float64
	LinkSize       float64
	BodyTop        float64
	BodySize       float64
	LineHeight     float64
}

// DefaultLayout matches the production certificate template.
var DefaultLayout = Layout{
	MarginX:     220,
	TextX:       80,
	NameTop:     450,
	NameMinSize: 16,
	NameMaxSize: 48,
	IDX:         970,
	IDTop:       74,
	IDSize:      16,
	LinkX:       465,
	LinkTop:     684,
	LinkSize:    12,
	BodyTop:     520,
	BodySize:    18,
	LineHeight:  32,
}

var (
	nameColor = rgb{33, 49, 151}
	linkColor = rgb{89, 148, 238}
	bodyColor      = rgb{0, 0, 0}
	highlightColor = rgb{33, 49, 151}
)

const fontFamily = "Helvetica"

// PDFRenderer overlays text on page one of a PDF template.
type PDFRenderer struct {
	layout Layout
}

func NewPDFRenderer(layout Layout) *PDFRenderer {
	return &PDFRenderer{layout: layout}
}

// Render imports the first page of template and draws fields on it.
func (r *PDFRenderer) Render(template []byte, fields Fields) ([]byte, error) {
	if len(template) == 0 {
		return nil, errors.New("certificate: empty template")
	}
	l := r.layout

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	importer := gofpdi.NewImporter()

	tpl, width, height, err := importFirstPage(pdf, importer, template)
	if err != nil {
		return nil, err
	}

	pdf.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})
	importer.UseImportedTemplate(pdf, tpl, 0, 0, width, height)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	wrapWidth := width - l.MarginX*2

	name := tr(fields.RecipientName)
	pdf.SetFont(fontFamily, "", 1)
	nameSize := AutoFontSize(pdf.GetStringWidth(name), wrapWidth, l.NameMinSize, l.NameMaxSize)
	pdf.SetFont(fontFamily, "", nameSize)
	setColor(pdf, nameColor)
	pdf.SetXY(l.TextX, l.NameTop-nameSize)
	pdf.MultiCell(wrapWidth, l.LineHeight, name, "", "L", false)

	pdf.SetFont(fontFamily, "", l.IDSize)
	pdf.Text(l.IDX, l.IDTop, fields.CertificateID)

	pdf.SetFont(fontFamily, "", l.LinkSize)
	setColor(pdf, linkColor)
	pdf.Text(l.LinkX, l.LinkTop, fields.VerifyURL)

	pdf.SetFont(fontFamily, "", l.BodySize)
	pdf.SetLeftMargin(l.TextX)
	pdf.SetRightMargin(width - l.TextX - wrapWidth)
	pdf.SetXY(l.TextX, l.BodyTop-l.BodySize)
	for _, seg := range splitHighlight(fields.CompletionText, fields.Highlight) {
		if seg.highlight {
			setColor(pdf, highlightColor)
		} else {
			setColor(pdf, bodyColor)
		}
		pdf.Write(l.LineHeight, tr(seg.text))
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("certificate: write pdf: %w", err)
	}
	return out.Bytes(), nil
}

// importFirstPage loads page one of template. gofpdi panics on input it cannot
// parse, so the panic is turned into an error here.
func importFirstPage(pdf *fpdf.Fpdf, importer *gofpdi.Importer, template []byte) (tpl int, width, height float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("certificate: import template: %v", rec)
		}
	}()

	var rs io.ReadSeeker = bytes.NewReader(template)
	tpl = importer.ImportPageFromStream(pdf, &rs, 1, "/MediaBox")
	if perr := pdf.Error(); perr != nil {
		return 0, 0, 0, fmt.Errorf("certificate: import template: %w", perr)
	}
	box := importer.GetPageSizes()[1]["/MediaBox"]
	width, height = box["w"], box["h"]
	if width <= 0 || height <= 0 {
		return 0, 0, 0, errors.New("certificate: template page has no size")
	}
	return tpl, width, height, nil
}

type segment struct {
	text      string
	highlight bool
}

// splitHighlight cuts text around the first occurrence of highlight.
func splitHighlight(text, highlight string) []segment {
	i := -1
	if highlight != "" {
		i = strings.Index(text, highlight)
	}
	if i < 0 {
		return []segment{{text: text}}
	}
	var out []segment
	if i > 0 {
		out = append(out, segment{text: text[:i]})
	}
	out = append(out, segment{text: highlight, highlight: true})
	if rest := text[i+len(highlight):]; rest != "" {
		out = append(out, segment{text: rest})
	}
	return out
}

func setColor(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}
