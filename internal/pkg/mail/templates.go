package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const confirmationTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">Confirm your subscription</h2>
  <p>Hi {{.Name}}, thanks for subscribing to {{.SiteName}}! Please confirm your email address by clicking the button below:</p>
  <p style="margin-top:24px">
    <a href="{{.ConfirmURL}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Confirm subscription</a>
  </p>
  <p style="color:#999;font-size:12px">If you did not request this, you can safely ignore this email.</p>
  <p style="font-size:10px;line-height:24px;margin:16px 0;text-align:center;color:rgb(156,163,175)">This is an automated message, please do not reply.<br />&copy;{{year}} {{.SiteName}}</p>
</div>
</body>
</html>`

const issueTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#fff;padding:20px">
<div style="max-width:600px;margin:0 auto;border:1px solid #eaeaea;border-radius:8px;padding:24px">
  <p style="font-size:14px;line-height:24px;margin:16px 0">{{.SiteName}} just published:</p>
  <h1 style="font-size:20px;text-align:center">{{.Title}}</h1>
  <p style="font-size:14px;line-height:24px;margin:16px 0">{{.Excerpt}}</p>
  <p style="text-align:center;margin:32px 0">
    <a href="{{.DetailURL}}" target="_blank" style="padding:12px 20px;background:#4f46e5;border-radius:4px;color:#fff;font-size:12px;font-weight:600;text-decoration:none">Read the full issue</a>
  </p>
  <hr style="width:100%;border:none;border-top:1px solid #eaeaea" />
  <p style="font-size:10px;line-height:24px;margin:16px 0;text-align:center;color:rgb(156,163,175)">This is an automated message, please do not reply.<br />&copy;{{year}} {{.SiteName}}</p>
</div>
</body>
</html>`

// ConfirmationData is the data for subscription confirmation emails.
type ConfirmationData struct {
	Name       string
	ConfirmURL string
	SiteName   string
}

// IssueData is the data for newsletter issue emails.
type IssueData struct {
	Title     string
	Excerpt   string
	DetailURL string
	SiteName  string
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ConfirmationMessage builds the double opt-in confirmation email.
func ConfirmationMessage(to string, data ConfirmationData) (Message, error) {
	if data.SiteName == "" {
		data.SiteName = "Letterspace"
	}
	html, err := renderTemplate(confirmationTpl, data)
	if err != nil {
		return Message{}, err
	}
	text := fmt.Sprintf("Hi %s, please confirm your subscription to %s by visiting: %s",
		data.Name, data.SiteName, data.ConfirmURL)
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Please confirm your subscription", data.SiteName),
		HTML:    html,
		Text:    text,
	}, nil
}

// IssueMessage builds a newsletter issue email.
func IssueMessage(to string, data IssueData) (Message, error) {
	if data.SiteName == "" {
		data.SiteName = "Letterspace"
	}
	html, err := renderTemplate(issueTpl, data)
	if err != nil {
		return Message{}, err
	}
	text := fmt.Sprintf("%s just published: %s\n\n%s\n\nRead it here: %s",
		data.SiteName, data.Title, data.Excerpt, data.DetailURL)
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] %s", data.SiteName, data.Title),
		HTML:    html,
		Text:    text,
	}, nil
}
