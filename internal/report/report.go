// Package report renders validation test runs into PDF reports: a cover
// page with the run metadata and overall verdict, per-case step tables
// with colour-coded assessment cells, and the plot images produced during
// evaluation.
package report

import (
	"fmt"
	"os"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/openadas/stk/internal/timeutil"
	"github.com/openadas/stk/internal/val"
)

const (
	pageWidth    = 210.0 // A4 portrait, mm
	marginLeft   = 10.0
	marginRight  = 10.0
	contentWidth = pageWidth - marginLeft - marginRight

	rowHeight = 7.0
)

// plot is one image scheduled for the appendix.
type plot struct {
	caption string
	path    string
}

// Generator builds the PDF for one test run.
type Generator struct {
	run   *val.TestRun
	plots []plot

	// Clock stamps the cover page; swap it in tests.
	Clock timeutil.Clock
}

// NewGenerator prepares a report over the given run.
func NewGenerator(run *val.TestRun) *Generator {
	return &Generator{run: run, Clock: timeutil.RealClock{}}
}

// AddPlot schedules a plot image for the report appendix. The caption is
// drawn above the image.
func (g *Generator) AddPlot(caption, path string) {
	g.plots = append(g.plots, plot{caption: caption, path: path})
}

// WriteFile renders the report and writes it to path.
func (g *Generator) WriteFile(path string) error {
	for _, p := range g.plots {
		if _, err := os.Stat(p.path); err != nil {
			return fmt.Errorf("failed to read plot %q: %w", p.path, err)
		}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, 15, marginRight)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 6, g.run.Name, "", 0, "L", false, 0, "")
		pdf.Ln(6)
		pdf.SetDrawColor(120, 120, 120)
		y := pdf.GetY()
		pdf.Line(marginLeft, y, pageWidth-marginRight, y)
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	g.coverPage(pdf)
	for _, tc := range g.run.Cases {
		g.casePage(pdf, tc)
	}
	if len(g.run.Jobs) > 0 {
		g.jobsPage(pdf)
	}
	for _, p := range g.plots {
		g.plotPage(pdf, p)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (g *Generator) coverPage(pdf *fpdf.Fpdf) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, "Validation Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, g.run.Name, "", 1, "C", false, 0, "")
	pdf.Ln(8)

	meta := [][2]string{
		{"Description", g.run.Description},
		{"Checkpoint", g.run.Checkpoint},
		{"Test type", g.run.Type},
		{"User", g.run.User},
		{"Simulation", strings.TrimSpace(g.run.SimName + " " + g.run.SimVersion)},
		{"Validation software", g.run.SWVersion},
		{"Remarks", g.run.Remarks},
		{"Generated", g.Clock.Now().Format("2006-01-02 15:04:05")},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range meta {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, rowHeight, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(contentWidth-50, rowHeight, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(10)

	verdict := g.run.Aggregate()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(50, 10, "Overall verdict", "1", 0, "L", false, 0, "")
	fillState(pdf, verdict.State)
	pdf.CellFormat(contentWidth-50, 10, string(verdict.State), "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if verdict.Comment != "" {
		pdf.Ln(2)
		pdf.MultiCell(contentWidth, 5, verdict.Comment, "", "L", false)
	}
}

func (g *Generator) casePage(pdf *fpdf.Fpdf, tc *val.TestCase) {
	pdf.AddPage()

	title := tc.Name
	if tc.Tag != "" {
		title += " (" + tc.Tag + ")"
	}
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	if tc.Description != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(contentWidth, 5, tc.Description, "", "L", false)
		pdf.Ln(2)
	}

	verdict := tc.Aggregate()
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, rowHeight, "Verdict", "1", 0, "L", false, 0, "")
	fillState(pdf, verdict.State)
	pdf.CellFormat(contentWidth-50, rowHeight, string(verdict.State), "1", 1, "C", true, 0, "")
	pdf.Ln(4)

	if len(tc.Steps) > 0 {
		g.stepsTable(pdf, tc.Steps)
	}
	if len(tc.Results) > 0 {
		g.resultsTable(pdf, tc.Results)
	}

	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf(
		"Processed: %d measurement(s), %.1f s driven time, %.1f m driven distance",
		tc.ProcessedCount, tc.ProcessedTime, tc.ProcessedDistance), "", 1, "L", false, 0, "")
}

func (g *Generator) stepsTable(pdf *fpdf.Fpdf, steps []*val.TestStep) {
	widths := []float64{60, 30, 30, 20, 50}
	headers := []string{"Test step", "Expected", "Actual", "Unit", "Verdict"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, step := range steps {
		state := val.StateNotAssessed
		if step.Assessment != nil {
			state = step.Assessment.State
		}
		pdf.CellFormat(widths[0], rowHeight, step.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], rowHeight, step.Expected, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], rowHeight, step.Actual, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], rowHeight, step.Unit, "1", 0, "C", false, 0, "")
		fillState(pdf, state)
		pdf.CellFormat(widths[4], rowHeight, string(state), "1", 0, "C", true, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

func (g *Generator) resultsTable(pdf *fpdf.Fpdf, results []val.MeasResult) {
	widths := []float64{70, 60, 30, 30}
	headers := []string{"Measurement", "Result", "Value", "Unit"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, r := range results {
		pdf.CellFormat(widths[0], rowHeight, r.Measurement, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], rowHeight, r.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], rowHeight, fmt.Sprintf("%.3f", r.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], rowHeight, r.Unit, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

func (g *Generator) jobsPage(pdf *fpdf.Fpdf) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Runtime jobs", "", 1, "L", false, 0, "")

	widths := []float64{50, 30, 30, 25, 30, 25}
	headers := []string{"Node", "Job", "State", "Errors", "Exceptions", "Crashes"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, job := range g.run.Jobs {
		pdf.CellFormat(widths[0], rowHeight, job.Node, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], rowHeight, fmt.Sprintf("%d", job.JobID), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], rowHeight, string(job.State), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], rowHeight, fmt.Sprintf("%d", job.Errors), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], rowHeight, fmt.Sprintf("%d", job.Exceptions), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], rowHeight, fmt.Sprintf("%d", job.Crashes), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
}

func (g *Generator) plotPage(pdf *fpdf.Fpdf, p plot) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 10, p.caption, "", 1, "L", false, 0, "")
	pdf.ImageOptions(p.path, marginLeft, pdf.GetY(), contentWidth, 0, true,
		fpdf.ImageOptions{ReadDpi: true}, 0, "")
}

// fillState sets the cell fill colour for an assessment state.
func fillState(pdf *fpdf.Fpdf, s val.State) {
	switch s {
	case val.StatePassed:
		pdf.SetFillColor(200, 230, 201)
	case val.StateFailed:
		pdf.SetFillColor(255, 205, 210)
	case val.StateInvestigate:
		pdf.SetFillColor(255, 236, 179)
	default:
		pdf.SetFillColor(224, 224, 224)
	}
}
