package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
)

// WriteXLSX writes the report as a two-sheet workbook: "개요" holds the
// report metadata, "상세" holds one row per populated field in section
// display order.
func WriteXLSX(rep *model.Report, path string) error {
	f := xlsx.NewFile()

	meta, err := f.AddSheet("개요")
	if err != nil {
		return eris.Wrap(err, "export: add meta sheet")
	}
	addMetaRow(meta, "질의", rep.Query)
	addMetaRow(meta, "행정동 코드", rep.UnitCode)
	addMetaRow(meta, "행정동", rep.UnitName)
	addMetaRow(meta, "신뢰도", confidenceLabel(rep.Confidence))
	if rep.Partial {
		addMetaRow(meta, "상태", "일부 데이터 누락")
	}
	addMetaRow(meta, "생성 시각", rep.GeneratedAt.Format(time.RFC3339))
	addMetaRow(meta, "스키마 버전", strconv.Itoa(rep.SchemaVersion))

	detail, err := f.AddSheet("상세")
	if err != nil {
		return eris.Wrap(err, "export: add detail sheet")
	}
	header := detail.AddRow()
	header.AddCell().SetString("섹션")
	header.AddCell().SetString("항목")
	header.AddCell().SetString("값")

	rows := 0
	for _, sec := range model.AllSections {
		fields, ok := rep.Sections[sec]
		if !ok {
			continue
		}
		for _, key := range sectionFieldOrder[sec] {
			v, ok := fields[key]
			if !ok {
				continue
			}
			row := detail.AddRow()
			row.AddCell().SetString(sectionLabel(sec))
			row.AddCell().SetString(fieldLabel(key))
			row.AddCell().SetString(formatValue(v))
			rows++
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, fmt.Sprintf("export: save workbook %s", path))
	}

	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("rows", rows))
	return nil
}

// addMetaRow appends a label/value row to the meta sheet, skipping
// empty values.
func addMetaRow(sheet *xlsx.Sheet, label, value string) {
	if value == "" {
		return
	}
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetString(value)
}
