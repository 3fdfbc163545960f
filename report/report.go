// Package report exports analysis history as an Excel workbook.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/seo-maskinen/backend/store"
)

const (
	analysesSheet     = "Analyser"
	improvementsSheet = "Förbättringar"
)

var analysisHeader = []interface{}{
	"Datum", "Webbplats", "Sökord", "Läge", "Status", "Totalpoäng",
	"Titel", "H1", "Meta", "Innehåll", "Teknik", "Tokens", "Fel",
}

var improvementHeader = []interface{}{
	"Datum", "Webbplats", "Område", "Prioritet", "Poäng", "Problem", "Åtgärd",
}

// priorityLabels renders priorities the way the UI shows them
var priorityLabels = map[string]string{
	"high":   "Hög",
	"medium": "Medel",
	"low":    "Låg",
}

// WriteAnalyses writes rows as an xlsx workbook with one sheet of scores and
// one of improvements
func WriteAnalyses(w io.Writer, rows []store.Analysis) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", analysesSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(improvementsSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeHeader(f, analysesSheet, analysisHeader, bold); err != nil {
		return err
	}
	if err := writeHeader(f, improvementsSheet, improvementHeader, bold); err != nil {
		return err
	}

	impRow := 2
	for i, a := range rows {
		date := a.CreatedAt.UTC().Format("2006-01-02 15:04")
		values := []interface{}{
			date, a.WebsiteURL, a.TargetKeyword, a.Mode, string(a.Status), a.OverallScore,
			a.TitleScore, a.H1Score, a.MetaScore, a.ContentScore, a.TechnicalScore,
			a.OpenAITokensUsed, a.ErrorMessage,
		}
		if err := setRow(f, analysesSheet, i+2, values); err != nil {
			return err
		}

		for _, imp := range a.Improvements {
			priority := priorityLabels[imp.Priority]
			if priority == "" {
				priority = imp.Priority
			}
			values := []interface{}{date, a.WebsiteURL, imp.Area, priority, imp.Score, imp.Issue, imp.Solution}
			if err := setRow(f, improvementsSheet, impRow, values); err != nil {
				return err
			}
			impRow++
		}
	}

	f.SetColWidth(analysesSheet, "A", "A", 18)
	f.SetColWidth(analysesSheet, "B", "B", 40)
	f.SetColWidth(improvementsSheet, "B", "B", 40)
	f.SetColWidth(improvementsSheet, "F", "G", 60)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
