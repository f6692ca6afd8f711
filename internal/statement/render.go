package statement

import (
	"bytes"
	"fmt"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders a monetary value with thousands separators.
func formatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

var statementTemplate = template.Must(template.New("statement").Funcs(template.FuncMap{
	"amount": formatAmount,
	"date":   func(t interface{ Format(string) string }) string { return t.Format("02 Jan 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: sans-serif; font-size: 12px; color: #222; }
h1 { font-size: 18px; }
table { width: 100%; border-collapse: collapse; margin-top: 12px; }
th, td { padding: 4px 8px; border-bottom: 1px solid #ddd; text-align: left; }
td.num, th.num { text-align: right; }
.overdue { color: #b00020; }
.remit { margin-top: 24px; padding: 8px; border: 1px solid #ccc; }
.footer { margin-top: 16px; font-size: 11px; color: #555; }
</style>
</head>
<body>
<h1>Statement of Account</h1>
<p>{{.CustomerName}}<br>
Period {{date .From}} to {{date .To}}<br>
Generated {{date .GeneratedAt}}</p>

<table>
<tr><th>Date</th><th>Reference</th><th>Status</th><th class="num">Debit</th><th class="num">Credit</th><th class="num">Balance</th></tr>
<tr><td>{{date .From}}</td><td>Balance brought forward</td><td></td><td class="num"></td><td class="num"></td><td class="num">{{amount .OpeningBalance}}</td></tr>
{{range .Lines}}
<tr>
<td>{{date .Date}}</td>
<td>{{.Reference}}</td>
<td{{if .Overdue}} class="overdue"{{end}}>{{.Status}}</td>
<td class="num">{{if .Debit}}{{amount .Debit}}{{end}}</td>
<td class="num">{{if .Credit}}{{amount .Credit}}{{end}}</td>
<td class="num">{{amount .Balance}}</td>
</tr>
{{end}}
<tr><th colspan="5">Closing balance</th><th class="num">{{amount .ClosingBalance}}</th></tr>
</table>

{{if .OverdueTotal}}<p class="overdue">Total overdue: {{amount .OverdueTotal}}</p>{{end}}

<div class="remit">
<strong>Payment details</strong><br>
Bank: {{.Remittance.BankName}}<br>
BSB: {{.Remittance.BSB}} &nbsp; Account: {{.Remittance.AccountNumber}}<br>
{{if .Remittance.PayID}}PayID: {{.Remittance.PayID}}<br>{{end}}
</div>

{{if .FooterNote}}<p class="footer">{{.FooterNote}}</p>{{end}}
</body>
</html>
`))

// RenderHTML produces the printable HTML for a statement.
func RenderHTML(stmt *Statement) (string, error) {
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, stmt); err != nil {
		return "", fmt.Errorf("statement: render: %w", err)
	}
	return buf.String(), nil
}
