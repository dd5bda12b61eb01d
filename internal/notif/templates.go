package notif

import (
	"bytes"
	"fmt"
	"html/template"
)

// Email templates used by the negotiation engine. Kept deliberately
// plain: the marketing-grade HTML lives in the upstream mailer, this
// core only sends transactional notices.
const (
	TemplateNegotiationCreated   = "negotiation-created"
	TemplateCounterOffer         = "counter-offer"
	TemplateNegotiationAccepted  = "negotiation-accepted"
	TemplateNegotiationCancelled = "negotiation-cancelled"
	TemplateCascadeCancelled     = "cascade-cancelled"
	TemplateNewMessage           = "new-message"
)

var templates = template.Must(template.New("emails").Parse(`
{{define "negotiation-created"}}<p>Hi {{.Name}},</p><p>{{.Counterpart}} opened a negotiation on order {{.OrderID}}{{if .OfferPrice}} with an opening offer of {{.OfferPrice}}{{end}}.</p>{{end}}
{{define "counter-offer"}}<p>Hi {{.Name}},</p><p>{{.Counterpart}} countered with {{.OfferPrice}} on order {{.OrderID}}.</p>{{end}}
{{define "negotiation-accepted"}}<p>Hi {{.Name}},</p><p>The negotiation on order {{.OrderID}} was accepted. The deal is binding.</p>{{end}}
{{define "negotiation-cancelled"}}<p>Hi {{.Name}},</p><p>{{.Counterpart}} cancelled the negotiation on order {{.OrderID}}.</p>{{end}}
{{define "cascade-cancelled"}}<p>Hi {{.Name}},</p><p>Your negotiation on order {{.OrderID}} was automatically cancelled because another offer was accepted.</p>{{end}}
{{define "new-message"}}<p>Hi {{.Name}},</p><p>{{.Counterpart}} sent you a message: {{.Preview}}</p>{{end}}
`))

// Render executes the named template against ctx. An unknown template
// or execution failure falls back to a plain-text body so the email is
// still sent.
func Render(name string, ctx map[string]interface{}) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, ctx); err != nil {
		return fmt.Sprintf("You have a new update on your negotiation (%s).", name)
	}
	return buf.String()
}
