package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"invofox/internal/domain"
	"invofox/internal/service"
)

var (
	accent  = lipgloss.Color("#2563EB")
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 3)

	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(fg)
	dimStyle   = lipgloss.NewStyle().Foreground(dim)

	statusStyles = map[domain.PaymentStatus]lipgloss.Style{
		domain.PaymentStatusPaid:    lipgloss.NewStyle().Bold(true).Foreground(success),
		domain.PaymentStatusPartial: lipgloss.NewStyle().Bold(true).Foreground(warning),
		domain.PaymentStatusUnpaid:  lipgloss.NewStyle().Bold(true).Foreground(danger),
	}

	stateStyles = map[service.DocumentState]lipgloss.Style{
		service.DocumentReady:  lipgloss.NewStyle().Bold(true).Foreground(success),
		service.DocumentFailed: lipgloss.NewStyle().Bold(true).Foreground(danger),
	}
)

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func renderStatus(s domain.PaymentStatus) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// RenderInvoice draws a single invoice with its balances.
func RenderInvoice(inv *domain.Invoice) string {
	lines := []string{
		headerStyle.Render("Invoice " + inv.DocumentNumber),
		"",
		field("Customer", fmt.Sprintf("%s (%s)", inv.CustomerName, inv.CustomerID)),
		field("Issued", inv.IssueDate.Format("2006-01-02")),
		field("Description", inv.Description),
		"",
		field("Total", domain.FormatMoney(inv.TotalAmount, inv.Currency)),
		field("Paid", domain.FormatMoney(inv.PaidAmount, inv.Currency)),
		field("Remaining", domain.FormatMoney(inv.RemainingBalance, inv.Currency)),
		field("Status", renderStatus(inv.PaymentStatus)),
	}
	if inv.PaymentMethod != nil {
		lines = append(lines, field("Method", *inv.PaymentMethod))
	}
	if len(inv.RelatedReceiptIDs) > 0 {
		lines = append(lines, field("Receipts", strings.Join(inv.RelatedReceiptIDs, ", ")))
	}
	if inv.DocumentURL != nil {
		lines = append(lines, field("File", *inv.DocumentURL))
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// RenderInvoiceList prints one row per invoice.
func RenderInvoiceList(customerID string, invoices []*domain.Invoice) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Invoices for " + customerID))
	b.WriteString("\n\n")

	if len(invoices) == 0 {
		b.WriteString("  " + dimStyle.Render("No invoices.") + "\n")
		return b.String()
	}

	for _, inv := range invoices {
		fmt.Fprintf(&b, "  %-16s %-10s %18s %18s  %s\n",
			inv.DocumentNumber,
			inv.IssueDate.Format("2006-01-02"),
			domain.FormatMoney(inv.TotalAmount, inv.Currency),
			domain.FormatMoney(inv.RemainingBalance, inv.Currency),
			renderStatus(inv.PaymentStatus),
		)
	}
	b.WriteString("\n  " + dimStyle.Render(fmt.Sprintf("%d invoice(s)", len(invoices))) + "\n")
	return b.String()
}

func RenderDocumentStatus(st service.DocumentStatus) string {
	state := string(st.State)
	if style, ok := stateStyles[st.State]; ok {
		state = style.Render(state)
	}

	lines := []string{
		headerStyle.Render("Document " + st.DocumentID),
		"",
		field("State", state),
		field("Attempts", fmt.Sprintf("%d", st.Attempts)),
	}
	if st.URL != nil {
		lines = append(lines, field("URL", *st.URL))
	}
	if st.Error != "" {
		lines = append(lines, field("Error", st.Error))
	}
	if !st.Updated.IsZero() {
		lines = append(lines, field("Updated", st.Updated.Format("2006-01-02 15:04:05")))
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}
