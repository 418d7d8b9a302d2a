package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"github.com/mmeshcher/taxflow/internal/model"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render печатает v как JSON при --json, иначе вызывает построитель таблицы.
func render(v any, build func(tw table.Writer)) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	build(tw)
	tw.Render()
	return nil
}

func printTotal(shown, total int) {
	if !viper.GetBool("json") {
		fmt.Printf("%d of %d\n", shown, total)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dossierTable(items []model.Dossier) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Taxpayer", "Period", "Status", "Total", "Payment", "Created"})
		for _, d := range items {
			created := d.CreatedAt
			tw.AppendRow(table.Row{d.ID, d.TaxpayerName, d.TaxPeriod, d.Status, formatAmount(d.TotalAmount), d.PaymentMethod, formatTime(&created)})
		}
	}
}

func dossierDetails(d *model.Dossier) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Field", "Value"})
		tw.AppendRows([]table.Row{
			{"ID", d.ID},
			{"Taxpayer", d.TaxpayerName},
			{"Period", d.TaxPeriod},
			{"Status", d.Status},
		})
		for _, td := range d.TaxDetails {
			amount := "-"
			if td.Amount != nil {
				amount = formatAmount(*td.Amount)
			}
			tw.AppendRow(table.Row{"Tax " + td.Name, amount})
		}
		tw.AppendRow(table.Row{"Total", formatAmount(d.TotalAmount)})
		if d.PaymentDetails != nil {
			tw.AppendRow(table.Row{"Payment", fmt.Sprintf("%s by %s at %s", d.PaymentMethod, d.PaymentDetails.ProcessedBy, formatTime(&d.PaymentDetails.ProcessedAt))})
		}
		if d.CancelledAt != nil {
			tw.AppendRow(table.Row{"Cancelled", fmt.Sprintf("%s: %s", formatTime(d.CancelledAt), d.Reason)})
		}
	}
}

func orderTable(items []model.ResourceOrder) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Resource", "Quantity", "From", "To", "Status", "Delivered", "Received"})
		for _, o := range items {
			tw.AppendRow(table.Row{o.ID, o.ResourceType, fmt.Sprintf("%d %s", o.Quantity, o.Unit), o.RequestedByRole, o.TargetDivision, o.Status, formatTime(o.DeliveredAt), formatTime(o.ReceivedAt)})
		}
	}
}

func messageTable(items []model.Message) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "From", "To", "Content", "Confirmed"})
		for _, m := range items {
			tw.AppendRow(table.Row{m.ID, m.FromRole, m.ToRole, truncate(m.Content, 60), m.Confirmed})
		}
	}
}

func auditTable(items []model.AuditEntry) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"#", "Time", "Role", "Actor", "Action"})
		for _, e := range items {
			ts := e.Timestamp
			tw.AppendRow(table.Row{e.ID, formatTime(&ts), e.ActorRole, e.ActorID, e.Action})
		}
	}
}

func personnelTable(items []model.Personnel) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Name", "Division", "Affectation", "Assignments"})
		for _, p := range items {
			tw.AppendRow(table.Row{p.ID, p.Name, p.Division, p.Affectation, len(p.History)})
		}
	}
}

func userTable(items []model.User) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Username", "Role"})
		for _, u := range items {
			tw.AppendRow(table.Row{u.ID, u.Username, u.Role})
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
