package loaders

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/unidoc/unioffice/v2/common/license"
	"github.com/unidoc/unioffice/v2/document"
	"github.com/xuri/excelize/v2"
)

// LicenseEnv names the variable holding the unioffice metered key used for .docx files.
const LicenseEnv = "UNIDOC_LICENSE_API_KEY"

var licenseOnce sync.Once

func loadDocx(_ context.Context, path string) (string, error) {
	var licErr error
	licenseOnce.Do(func() {
		if key := os.Getenv(LicenseEnv); key != "" {
			licErr = license.SetMeteredKey(key)
		}
	})
	if licErr != nil {
		return "", licErr
	}

	doc, err := document.Open(path)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// loadXlsx renders every sheet as a markdown table under a "## <sheet>" heading.
func loadXlsx(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		width := 0
		for _, row := range rows {
			if len(row) > width {
				width = len(row)
			}
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## " + sheet + "\n\n")
		writeRow(&sb, rows[0], width)
		sb.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		for _, row := range rows[1:] {
			writeRow(&sb, row, width)
		}
	}
	return sb.String(), nil
}

func writeRow(sb *strings.Builder, row []string, width int) {
	cells := make([]string, width)
	copy(cells, row)
	for i, c := range cells {
		cells[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}
