package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/pkg/notion"
)

// UpsertReportPage creates or refreshes the database page for the
// report's district. An existing page is matched by unit code, falling
// back to the raw query for unresolved reports, so re-running a report
// updates its page instead of stacking duplicates.
func UpsertReportPage(ctx context.Context, c notion.Client, dbID string, rep *model.Report) (string, bool, error) {
	pages, err := notion.QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return "", false, eris.Wrap(err, "export: list report pages")
	}

	props := reportProperties(rep)

	if pageID, ok := findReportPage(pages, rep); ok {
		if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", false, eris.Wrap(err, "export: update report page")
		}
		zap.L().Info("export: notion page updated",
			zap.String("page_id", pageID),
			zap.String("unit_code", rep.UnitCode))
		return pageID, false, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", false, eris.Wrap(err, "export: create report page")
	}
	zap.L().Info("export: notion page created",
		zap.String("page_id", string(page.ID)),
		zap.String("unit_code", rep.UnitCode))
	return string(page.ID), true, nil
}

// reportProperties builds the page properties for the report. The page
// title is the district name, falling back to the query while the
// report is unresolved. Each populated section becomes one rich-text
// property under its Korean label.
func reportProperties(rep *model.Report) notionapi.Properties {
	title := rep.UnitName
	if title == "" {
		title = rep.Query
	}
	generated := notionapi.Date(rep.GeneratedAt)

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: title}},
			},
		},
		"Query": richTextProperty(rep.Query),
		"Confidence": &notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(rep.Confidence)},
		},
		"Partial": &notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: rep.Partial,
		},
		"Generated": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &generated,
			},
		},
	}

	if rep.UnitCode != "" {
		props["Unit Code"] = richTextProperty(rep.UnitCode)
	}

	for _, sec := range model.AllSections {
		body := sectionText(rep, sec)
		if body == "" {
			continue
		}
		props[sectionLabel(sec)] = richTextProperty(body)
	}

	return props
}

func richTextProperty(value string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: value},
			},
		},
	}
}

// findReportPage returns the ID of the page already holding this
// report's district, if any.
func findReportPage(pages []notionapi.Page, rep *model.Report) (string, bool) {
	for _, p := range pages {
		if rep.UnitCode != "" {
			if pageRichText(p, "Unit Code") == rep.UnitCode {
				return string(p.ID), true
			}
			continue
		}
		if pageRichText(p, "Query") == rep.Query {
			return string(p.ID), true
		}
	}
	return "", false
}

// pageRichText extracts the plain text of a rich-text property from a
// queried page. Missing or differently typed properties read as empty.
func pageRichText(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	rt, ok := prop.(*notionapi.RichTextProperty)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, t := range rt.RichText {
		b.WriteString(t.PlainText)
	}
	return b.String()
}
