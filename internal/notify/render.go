package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/models"
)

const textBody = `🚨 IoT Sensor Alert

Alert Type: {{.Type}}
Sensor ID: {{.SensorID}}
Current Value: {{.Value}}
Threshold: {{.Threshold}}
Message: {{.Message}}
Timestamp: {{.Timestamp}}

---
This is an automated alert from your IoT Sensor Monitoring System.
`

const htmlBody = `<html>
<body>
  <h2>🚨 IoT Sensor Alert</h2>
  <p><strong>Alert Type:</strong> {{.Type}}</p>
  <p><strong>Sensor ID:</strong> {{.SensorID}}</p>
  <p><strong>Current Value:</strong> {{.Value}}</p>
  <p><strong>Threshold:</strong> {{.Threshold}}</p>
  <p><strong>Message:</strong> {{.Message}}</p>
  <p><strong>Timestamp:</strong> {{.Timestamp}}</p>
  <hr>
  <p><em>This is an automated alert from your IoT Sensor Monitoring System.</em></p>
</body>
</html>
`

var (
	textTmpl = template.Must(template.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// view is the template data for one alert email.
type view struct {
	Type      string
	SensorID  string
	Value     string
	Threshold string
	Message   string
	Timestamp string
}

// Subject is the email subject line for an alert.
func Subject(a models.Alert) string {
	return fmt.Sprintf("🚨 IoT Sensor Alert: %s", a.Type)
}

// Render builds the email for a at delivery time at. The HTML body escapes
// every field.
func Render(a models.Alert, at time.Time) (Email, error) {
	v := view{
		Type:      string(a.Type),
		SensorID:  a.SensorID,
		Value:     alerts.FormatValue(a.Value),
		Threshold: alerts.FormatValue(a.Threshold),
		Message:   a.Message,
		Timestamp: at.UTC().Format(time.RFC3339),
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return Email{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return Email{}, fmt.Errorf("render html body: %w", err)
	}

	return Email{
		Subject: Subject(a),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
