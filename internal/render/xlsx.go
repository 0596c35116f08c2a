// Package render turns committed ledger documents into downloadable files.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"invofox/internal/domain"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Output struct {
	Data        []byte
	FileName    string
	ContentType string
}

type Renderer interface {
	Render(ctx context.Context, doc domain.Document) (Output, error)
}

type field struct {
	Label string
	Value any
}

var titles = map[domain.DocumentType]string{
	domain.DocumentTypeInvoice:        "Invoice",
	domain.DocumentTypeReceipt:        "Receipt",
	domain.DocumentTypeInvoiceReceipt: "Invoice / Receipt",
}

// XLSXRenderer lays a document out as a single-sheet workbook: a title, a
// label/value block and, for receipts, the settled invoices.
type XLSXRenderer struct {
	Creator string
}

func NewXLSXRenderer(creator string) *XLSXRenderer {
	return &XLSXRenderer{Creator: creator}
}

func money(amount decimal.Decimal, currency string) string {
	return domain.FormatMoney(amount, currency)
}

func optional(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func fieldsOf(doc domain.Document) ([]field, error) {
	h := domain.HeaderOf(doc)
	fields := []field{
		{"Document number", h.DocumentNumber},
		{"Issue date", h.IssueDate.Format("2006-01-02")},
		{"Customer", h.CustomerName},
	}

	switch d := doc.(type) {
	case *domain.Invoice:
		fields = append(fields,
			field{"Tax ID", optional(d.CustomerTaxID)},
			field{"Description", d.Description},
			field{"Total (VAT incl.)", money(d.TotalAmount, d.Currency)},
			field{"Paid", money(d.PaidAmount, d.Currency)},
			field{"Balance due", money(d.RemainingBalance, d.Currency)},
			field{"Status", string(d.PaymentStatus)},
		)
	case *domain.Receipt:
		fields = append(fields,
			field{"Description", d.Description},
			field{"Amount paid", money(d.AmountPaid, d.Currency)},
			field{"Payment method", d.PaymentMethod},
		)
	case *domain.InvoiceReceipt:
		fields = append(fields,
			field{"Tax ID", optional(d.CustomerTaxID)},
			field{"Description", d.Description},
			field{"Total (VAT incl.)", money(d.TotalAmount, d.Currency)},
			field{"Amount paid", money(d.PaidAmount, d.Currency)},
			field{"Payment method", d.PaymentMethod},
		)
	default:
		return nil, fmt.Errorf("render: unsupported document %T", doc)
	}
	return fields, nil
}

func (r *XLSXRenderer) Render(ctx context.Context, doc domain.Document) (Output, error) {
	fields, err := fieldsOf(doc)
	if err != nil {
		return Output{}, err
	}
	h := domain.HeaderOf(doc)

	f := excelize.NewFile()
	defer f.Close()

	sheet := titles[doc.Type()]
	sheet = strings.ReplaceAll(sheet, "/", "-")
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return Output{}, fmt.Errorf("render %s: %w", h.DocumentNumber, err)
	}

	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: r.Creator,
		Title:   fmt.Sprintf("%s %s", titles[doc.Type()], h.DocumentNumber),
	})

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Output{}, fmt.Errorf("render %s: %w", h.DocumentNumber, err)
	}

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("%s %s", titles[doc.Type()], h.DocumentNumber))
	_ = f.SetCellStyle(sheet, "A1", "A1", bold)

	row := 3
	for _, fl := range fields {
		label, _ := excelize.CoordinatesToCellName(1, row)
		value, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, label, fl.Label)
		_ = f.SetCellStyle(sheet, label, label, bold)
		_ = f.SetCellValue(sheet, value, fl.Value)
		row++
	}

	if rc, ok := doc.(*domain.Receipt); ok {
		row++
		header, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheet, header, "Settled invoices")
		_ = f.SetCellStyle(sheet, header, header, bold)
		row++
		for _, n := range rc.RelatedInvoiceNumbers {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			_ = f.SetCellValue(sheet, cell, n)
			row++
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 22)
	_ = f.SetColWidth(sheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Output{}, fmt.Errorf("render %s: %w", h.DocumentNumber, err)
	}

	return Output{
		Data:        buf.Bytes(),
		FileName:    fmt.Sprintf("%s.xlsx", h.DocumentNumber),
		ContentType: ContentTypeXLSX,
	}, nil
}
