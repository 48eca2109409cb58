// Package report renders wallet risk assessments as PDF documents.
package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/risk"
	"github.com/mbd888/blockphantom/internal/traces"
)

// Title is the heading on the first page.
const Title = "BlockPhantom - Wallet Risk Report"

// Layout constants in points on a Letter page.
const (
	pageHeight   = 792.0
	margin       = 72.0
	indent       = 84.0
	bodyStep     = 18.0
	detailStep   = 16.0
	sampleStep   = 14.0
	maxSamples   = 10
	maxSampleLen = 90
	filenameAddr = 10
)

// Field is one line of the details section.
type Field struct {
	Key   string
	Value string
}

// Input is everything that goes on the report.
type Input struct {
	Chain       string
	Address     string
	Score       int
	Level       string
	Probability float64
	Details     []Field
	Samples     []string
}

// Document is a rendered report.
type Document struct {
	Bytes    []byte
	Filename string
	Pages    int
}

// FromAssessment builds the report input for an assessment. Details are
// listed as avg, std, count.
func FromAssessment[S fmt.Stringer](chain, address string, a risk.Assessment, samples []S) Input {
	in := Input{
		Chain:       chain,
		Address:     address,
		Score:       a.Score,
		Level:       string(a.Level),
		Probability: a.Probability,
		Details: []Field{
			{Key: "avg", Value: formatFloat(a.Details.Avg)},
			{Key: "std", Value: formatFloat(a.Details.Std)},
			{Key: "count", Value: strconv.Itoa(a.Details.Count)},
		},
	}
	for _, s := range samples {
		in.Samples = append(in.Samples, s.String())
	}
	return in
}

// Filename returns report_<chain>_<first 10 characters of address>.pdf.
func Filename(chain, address string) string {
	r := []rune(address)
	if len(r) > filenameAddr {
		r = r[:filenameAddr]
	}
	return fmt.Sprintf("report_%s_%s.pdf", chain, string(r))
}

// Render draws the report.
func Render(ctx context.Context, in Input) (doc *Document, err error) {
	_, span := traces.StartSpan(ctx, "report.render",
		traces.Chain(in.Chain), traces.Address(in.Address), traces.Count(len(in.Samples)))
	defer func() { traces.End(span, err) }()

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.ReportsRenderedTotal.WithLabelValues(result).Inc()
		metrics.ReportRenderDuration.Observe(time.Since(start).Seconds())
	}()

	lines := layout(in)

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(Title, true)
	pdf.SetCreator("blockphantom", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	page := 0
	for _, l := range lines {
		for page < l.page {
			pdf.AddPage()
			page++
		}
		pdf.SetFont(l.font.family, l.font.style, l.font.size)
		pdf.Text(l.x, l.y, tr(l.text))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	return &Document{
		Bytes:    buf.Bytes(),
		Filename: Filename(in.Chain, in.Address),
		Pages:    page,
	}, nil
}

type font struct {
	family string
	style  string
	size   float64
}

var (
	titleFont = font{family: "Helvetica", style: "B", size: 20}
	bodyFont  = font{family: "Helvetica", size: 12}
)

// line is one positioned string. y is the baseline measured from the top of
// the page; page numbers start at 1.
type line struct {
	page int
	x, y float64
	font font
	text string
}

// layout positions every line of the report, breaking to a new page when the
// cursor passes the bottom margin.
func layout(in Input) []line {
	var lines []line
	page := 1
	draw := func(x, y float64, f font, text string) {
		lines = append(lines, line{page: page, x: x, y: y, font: f, text: text})
	}

	draw(margin, margin, titleFont, Title)

	y := 100.0
	for _, text := range []string{
		"Chain: " + in.Chain,
		"Address: " + in.Address,
		"Risk Score: " + strconv.Itoa(in.Score),
		"Risk Level: " + in.Level,
		"Probability: " + formatFloat(in.Probability),
	} {
		draw(margin, y, bodyFont, text)
		y += bodyStep
	}

	y += 10
	draw(margin, y, bodyFont, "Details:")
	y += bodyStep

	advance := func(step float64) {
		y += step
		if y > pageHeight-margin {
			page++
			y = margin
		}
	}

	for _, f := range in.Details {
		draw(indent, y, bodyFont, fmt.Sprintf("- %s: %s", f.Key, f.Value))
		advance(detailStep)
	}

	if len(in.Samples) > 0 {
		draw(margin, y+8, bodyFont, "Sample Transactions:")
		y += 26
		samples := in.Samples
		if len(samples) > maxSamples {
			samples = samples[:maxSamples]
		}
		for _, s := range samples {
			draw(indent, y, bodyFont, truncate(s, maxSampleLen))
			advance(sampleStep)
		}
	}

	return lines
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
