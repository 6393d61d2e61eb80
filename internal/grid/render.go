package grid

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// AlertContext carries everything needed to describe an alert to an operator.
type AlertContext struct {
	Type            AlertType
	Status          Status
	ConsumerID      string
	ConsumerName    string
	Address         string
	TransformerCode string
	TransformerName string
	Village         string
	District        string
	Raw             Raw
	Losses          Losses
	Timestamp       time.Time
}

// ErrIncompleteAlert is returned when an alert lacks identifying data.
var ErrIncompleteAlert = errors.New("alert context is missing required fields")

var statusLabels = map[Status]string{
	StatusNormal:         "Normal",
	StatusLowVoltage:     "Low Voltage",
	StatusHighVoltage:    "High Voltage",
	StatusLossDetected:   "Loss Detected",
	StatusTheftSuspected: "Theft Suspected",
	StatusEquipmentFault: "Equipment Fault",
}

// Label returns the display name of a status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

const fallbackTitle = `Alert at {{.ConsumerID}}`

var titleTemplates = map[AlertType]string{
	AlertTheftSuspected: `Theft Suspected at {{.ConsumerID}} - {{fixed .Losses.PowerLossPct 1}}% loss`,
	AlertVoltageDrop:    `Low Voltage at {{.ConsumerID}} - {{fixed .Raw.VoltageReceived 2}}V`,
	AlertEquipmentFault: `Equipment Fault at {{.ConsumerID}}`,
	AlertPowerLoss:      `Power Loss at {{.ConsumerID}} - {{fixed .Losses.PowerLossPct 1}}%`,
	AlertOverload:       `Overload at {{.ConsumerID}}`,
	AlertLineFault:      `Line Fault affecting {{.ConsumerID}}`,
}

const descriptionTemplate = `Electricity loss detected

Location
- Consumer: {{.ConsumerName}} ({{.ConsumerID}})
- Address: {{.Address}}
- Transformer: {{.TransformerCode}} ({{.TransformerName}})
- Village: {{.Village}}
- District: {{.District}}

Reading
- Voltage sent: {{fixed .Raw.VoltageSent 2}} V
- Voltage received: {{fixed .Raw.VoltageReceived 2}} V
- Voltage loss: {{fixed .Losses.VoltageLoss 2}} V ({{fixed .Losses.VoltageLossPct 2}}%)
- Power sent: {{fixed .Raw.PowerSentKw 3}} kW
- Power received: {{fixed .Raw.PowerReceivedKw 3}} kW
- Power loss: {{fixed .Losses.PowerLossKw 3}} kW ({{fixed .Losses.PowerLossPct 2}}%)
- Line distance: {{fixed .Raw.LineDistanceMeters 2}} m

Status: {{.Status.Label}}
Timestamp: {{.Timestamp.UTC.Format "2006-01-02T15:04:05Z07:00"}}`

var templateFuncs = template.FuncMap{
	"fixed": func(v float64, places int32) string {
		return decimal.NewFromFloat(v).StringFixed(places)
	},
}

// Renderer turns an AlertContext into a title and a multi-line description.
type Renderer struct {
	titles      map[AlertType]*template.Template
	fallback    *template.Template
	description *template.Template
}

// NewRenderer parses the alert templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{titles: make(map[AlertType]*template.Template, len(titleTemplates))}

	for alertType, text := range titleTemplates {
		tmpl, err := template.New(string(alertType)).Funcs(templateFuncs).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s title template: %w", alertType, err)
		}
		r.titles[alertType] = tmpl
	}

	var err error
	if r.fallback, err = template.New("fallback").Funcs(templateFuncs).Parse(fallbackTitle); err != nil {
		return nil, fmt.Errorf("failed to parse fallback title template: %w", err)
	}

	if r.description, err = template.New("description").Funcs(templateFuncs).Parse(descriptionTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse description template: %w", err)
	}

	return r, nil
}

// Render produces the alert title and description.
func (r *Renderer) Render(ac AlertContext) (title, description string, err error) {
	if ac.ConsumerID == "" || ac.TransformerCode == "" || ac.Timestamp.IsZero() {
		return "", "", ErrIncompleteAlert
	}

	tmpl, ok := r.titles[ac.Type]
	if !ok {
		tmpl = r.fallback
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, ac); err != nil {
		return "", "", fmt.Errorf("failed to render alert title: %w", err)
	}
	title = b.String()

	b.Reset()
	if err := r.description.Execute(&b, ac); err != nil {
		return "", "", fmt.Errorf("failed to render alert description: %w", err)
	}

	return title, b.String(), nil
}
