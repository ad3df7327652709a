package notifier

import (
	"bytes"
	"html/template"
)

var emailTemplate = template.Must(template.New("activation").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Emergency Activation Request</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #1f2937; }
    .wrap { max-width: 600px; margin: 0 auto; padding: 20px; }
    .banner { background: #b91c1c; color: #fff; padding: 18px; text-align: center; }
    .notice { background: #fee2e2; color: #7f1d1d; padding: 14px; margin: 14px 0; }
    .body { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .action { display: inline-block; background: #b91c1c; color: #fff; padding: 12px 22px; text-decoration: none; }
    .steps { background: #fef3c7; padding: 14px; margin: 14px 0; border-left: 4px solid #d97706; }
    .foot { color: #6b7280; font-size: 12px; text-align: center; padding: 14px; }
  </style>
</head>
<body>
<div class="wrap">
  <div class="banner">
    <h1>Emergency Activation Request</h1>
    <p>Your verification is required</p>
  </div>
  {{if .Reminder}}<div class="notice"><strong>{{.Reminder}}:</strong> this request is still waiting for your answer.</div>{{end}}
  <div class="body">
    <h2>Hello {{.GuardianName}},</h2>
    <p>An emergency activation has been opened for <strong>{{.UserName}}</strong>.</p>
    <p><strong>Reason:</strong> {{.ActivationReason}}</p>
    <p>You are listed as an emergency guardian. Please review the request and confirm or reject it.</p>
    <p style="text-align: center;"><a class="action" href="{{.VerificationURL}}">Review the activation request</a></p>
    <p><strong>The link expires:</strong> {{.ExpiresAt}}</p>
    <div class="steps">
      <h3>What to do next</h3>
      <ul>{{range .Instructions}}<li>{{.}}</li>{{end}}</ul>
    </div>
    <p>If several guardians are configured, more than one confirmation may be needed before the protocol activates.</p>
  </div>
  <div class="foot">Automated message from the Family Shield emergency protocol. Replies are not monitored.</div>
</div>
</body>
</html>
`))

func renderEmail(d templateData) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
