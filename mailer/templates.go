package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

// getMarkdown returns the shared renderer. Raw HTML in the source is
// omitted by goldmark's default renderer.
func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New()
	})
	return markdown
}

var funcs = template.FuncMap{"md": escapeMarkdown}

var otpTemplate = template.Must(template.New("otp").Funcs(funcs).Parse(`Hello {{md .SignerName}},

{{if .CompanyName}}**{{md .CompanyName}}** has asked you{{else}}You have been asked{{end}} to sign **{{md .DocumentTitle}}**.

Your verification code is:

**{{.Code}}**

The code is valid for {{.ValidMinutes}} minutes. If you did not request it, you can ignore this email.
`))

var linkTemplate = template.Must(template.New("link").Funcs(funcs).Parse(`Hello {{md .SignerName}},

{{if .CompanyName}}**{{md .CompanyName}}** has sent you{{else}}You have received{{end}} **{{md .DocumentTitle}}** for signature.

[Review and sign the document]({{.URL}})

The link is valid until {{.ExpiresAt.Format "02 Jan 2006 15:04 MST"}}. To sign you will receive a one-time code at this address.
`))

// OTPEmail is the content of a verification code message.
type OTPEmail struct {
	SignerName    string
	DocumentTitle string
	CompanyName   string
	Code          string
	ValidMinutes  int
}

// LinkEmail is the content of a signing link message.
type LinkEmail struct {
	SignerName    string
	DocumentTitle string
	CompanyName   string
	URL           string
	ExpiresAt     time.Time
}

// RenderOTP returns the subject and HTML body of a verification code email.
func RenderOTP(d OTPEmail) (string, string, error) {
	body, err := render(otpTemplate, d)
	if err != nil {
		return "", "", err
	}
	return "Your signing code for " + oneLine(d.DocumentTitle), body, nil
}

// RenderLink returns the subject and HTML body of a signing link email.
func RenderLink(d LinkEmail) (string, string, error) {
	body, err := render(linkTemplate, d)
	if err != nil {
		return "", "", err
	}
	return "Please sign: " + oneLine(d.DocumentTitle), body, nil
}

func render(t *template.Template, data any) (string, error) {
	var src bytes.Buffer
	if err := t.Execute(&src, data); err != nil {
		return "", fmt.Errorf("mailer: execute %s: %w", t.Name(), err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html><html><body>\n")
	if err := getMarkdown().Convert(src.Bytes(), &out); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", t.Name(), err)
	}
	out.WriteString("</body></html>\n")
	return out.String(), nil
}

// escapeMarkdown backslash-escapes ASCII punctuation so user supplied text
// renders literally.
func escapeMarkdown(s string) string {
	s = oneLine(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune("\\`*_{}[]()<>#+-.!|~&\"'=:;/?@$%^,", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
