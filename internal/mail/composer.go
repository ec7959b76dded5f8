package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
)

var htmlBody = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Last Wish - Digital Time Capsule</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin-bottom: 20px;">
    <h2>Last Wish - Digital Time Capsule</h2>
    <p>Dear {{.RecipientName}}, this email contains financial data that {{.Owner}} asked to be delivered to you.</p>
  </div>
  <div style="background: #fff3cd; border: 1px solid #ffeaa7; padding: 15px; border-radius: 8px; margin-bottom: 20px;">
    <strong>Important notice:</strong>
    <p>This data was delivered automatically because {{.OwnerEmail}} has not checked in with their financial management app for an extended period.</p>
  </div>
  {{- if .Message}}
  <div style="background: #f8f9fa; padding: 15px; border-radius: 8px; margin-bottom: 20px;">
    <h3>Personal message from {{.Owner}}:</h3>
    <div style="white-space: pre-wrap;">{{.Message}}</div>
  </div>
  {{- end}}
  <div style="background: #e9ecef; padding: 15px; border-radius: 8px; margin-bottom: 20px;">
    <h3>Financial data summary:</h3>
    <ul>
    {{- range .Sections}}
      <li>{{.Title}}: {{.Count}}{{range .Totals}}<br><small>{{.Label}}: {{.Amount.StringFixed 2}}</small>{{end}}</li>
    {{- else}}
      <li>No financial records were available.</li>
    {{- end}}
    </ul>
  </div>
  {{- if .Files}}
  <p>The full data is attached: {{range $i, $f := .Files}}{{if $i}}, {{end}}{{$f}}{{end}}.</p>
  {{- end}}
  <div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #dee2e6; font-size: 12px; color: #6c757d;">
    <p>This is an automated delivery from the Last Wish system. Please handle this information with care and respect for {{.OwnerEmail}}'s privacy.</p>
    <p>Delivery date: {{.Date}}</p>
  </div>
</div>
</body>
</html>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`Last Wish - Digital Time Capsule

Dear {{.RecipientName}},

This data was delivered automatically because {{.OwnerEmail}} has not checked in with their financial management app for an extended period.
{{if .Message}}
Personal message from {{.Owner}}:
{{.Message}}
{{end}}
Financial data summary:
{{range .Sections}}- {{.Title}}: {{.Count}}
{{else}}- No financial records were available.
{{end}}
{{- if .Files}}
Attached: {{range $i, $f := .Files}}{{if $i}}, {{end}}{{$f}}{{end}}
{{end}}
Delivery date: {{.Date}}
`))

type view struct {
	RecipientName string
	Owner         string
	OwnerEmail    string
	Message       string
	Sections      []delivery.Section
	Files         []string
	Date          string
}

// Composer renders the Last Wish email. The personal message is escaped, never
// trusted as HTML.
type Composer struct {
	SubjectPrefix string
}

var _ delivery.Composer = Composer{}

func (c Composer) Compose(p *delivery.Payload, r models.Recipient) (delivery.Message, error) {
	v := view{
		RecipientName: r.Name,
		Owner:         p.OwnerName,
		OwnerEmail:    p.OwnerEmail,
		Message:       strings.TrimSpace(p.Message),
		Sections:      p.Summary,
		Date:          p.GeneratedAt.UTC().Format("January 2, 2006"),
	}
	if v.RecipientName == "" {
		v.RecipientName = r.Email
	}
	for _, d := range p.Documents {
		v.Files = append(v.Files, d.Filename)
	}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, v); err != nil {
		return delivery.Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&text, v); err != nil {
		return delivery.Message{}, fmt.Errorf("render text body: %w", err)
	}

	return delivery.Message{
		To:          r.Email,
		ToName:      r.Name,
		Subject:     fmt.Sprintf("%sImportant: Financial Data from %s - Last Wish", c.SubjectPrefix, p.OwnerEmail),
		HTMLBody:    html.String(),
		TextBody:    text.String(),
		Attachments: p.Documents,
	}, nil
}
