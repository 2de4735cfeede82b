package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// AdoptionNotice is the data behind the mail an applicant receives when
// their request changes status.
type AdoptionNotice struct {
	AppName     string
	AdopterName string
	PetName     string
	Status      string
	Notes       string
}

type noticeTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustNotice(subject, body string) noticeTemplate {
	return noticeTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

var noticeTemplates = map[string]noticeTemplate{
	"approved": mustNotice(
		"{{.AppName}}: your request for {{.PetName}} was approved",
		`Hi {{.AdopterName}},

Good news! Your adoption request for {{.PetName}} has been approved.
The owner will be in touch to arrange the handover.
{{if .Notes}}
Notes: {{.Notes}}
{{end}}
The {{.AppName}} team
`),
	"rejected": mustNotice(
		"{{.AppName}}: update on your request for {{.PetName}}",
		`Hi {{.AdopterName}},

Unfortunately your adoption request for {{.PetName}} was not accepted.
{{if .Notes}}
Notes: {{.Notes}}
{{end}}
There are plenty of other pets looking for a home.

The {{.AppName}} team
`),
	"completed": mustNotice(
		"{{.AppName}}: welcome home, {{.PetName}}!",
		`Hi {{.AdopterName}},

The adoption of {{.PetName}} is complete. Thank you for giving a pet a home.

The {{.AppName}} team
`),
}

// RenderAdoptionNotice renders subject and plain-text body for n.Status.
func RenderAdoptionNotice(n AdoptionNotice) (string, string, error) {
	tmpl, ok := noticeTemplates[n.Status]
	if !ok {
		return "", "", fmt.Errorf("no notification template for status %q", n.Status)
	}
	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, n); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, n); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

// Compose builds a plain-text RFC 5322 message.
func Compose(from, to, subject, body string, date time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", date.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\r\n")
	}
	return []byte(sb.String())
}
