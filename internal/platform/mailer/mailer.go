package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/config"
	"github.com/jara-commerce/api/internal/services"
)

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPMailer delivers transactional order mail over SMTP.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// Option customises the mailer.
type Option func(*SMTPMailer)

// WithSender replaces SMTP delivery, e.g. with a capturing stub in tests.
func WithSender(send func(ctx context.Context, msg *mail.Msg) error) Option {
	return func(m *SMTPMailer) {
		if send != nil {
			m.send = send
		}
	}
}

// NewSMTPMailer validates cfg and returns a mailer. The SMTP connection is opened per message.
func NewSMTPMailer(cfg config.SMTPConfig, opts ...Option) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mailer: smtp host is not configured")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer: from address is required")
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.dialAndSend
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// SendOrderConfirmation implements services.OrderNotifier.
func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, to services.Recipient, order domain.Order) error {
	if strings.TrimSpace(to.Email) == "" {
		return errors.New("mailer: recipient email is required")
	}
	body, err := renderConfirmation(to, order)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return fmt.Errorf("mailer: from: %w", err)
	}
	if err := msg.AddToFormat(to.Name, to.Email); err != nil {
		return fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject(fmt.Sprintf("Order %s confirmed", order.OrderNumber))
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send order %s: %w", order.ID, err)
	}
	return nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(m.cfg.TLSPolicy)),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func tlsPolicy(value string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none", "notls":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<body style="font-family: Arial, sans-serif;">
<h2>Thank you for your order, {{.Name}}</h2>
<p>Order <strong>{{.Number}}</strong> has been received and is {{.Status}}.</p>
<table style="border-collapse: collapse;">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
{{range .Lines}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{.Unit}}</td><td align="right">{{.Total}}</td></tr>
{{end}}</table>
<p>Subtotal: {{.Subtotal}}<br>Shipping: {{.Shipping}}<br>Discount: {{.Discount}}<br>VAT: {{.Tax}}<br><strong>Total: {{.Total}}</strong></p>
<p>Payment method: {{.Payment}}</p>
<p>Ship to: {{.Address}}</p>
</body>
</html>`))

type confirmationLine struct {
	Name     string
	Quantity int
	Unit     string
	Total    string
}

func renderConfirmation(to services.Recipient, order domain.Order) (string, error) {
	f := NewMoneyFormatter(to.Locale, order.Currency)
	name := strings.TrimSpace(to.Name)
	if name == "" {
		name = strings.TrimSpace(order.ShippingAddress.FirstName)
	}

	lines := make([]confirmationLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, confirmationLine{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Unit:     f.Format(item.UnitPrice),
			Total:    f.Format(item.Total),
		})
	}
	addr := order.ShippingAddress
	data := map[string]any{
		"Lang":     f.Tag().String(),
		"Name":     name,
		"Number":   order.OrderNumber,
		"Status":   string(order.Status),
		"Lines":    lines,
		"Subtotal": f.Format(order.ItemsSubtotal()),
		"Shipping": f.Format(order.ShippingCost),
		"Discount": f.Format(order.DiscountApplied),
		"Tax":      f.Format(order.TaxAmount),
		"Total":    f.Format(order.OrderTotal),
		"Payment":  string(order.PaymentMethod),
		"Address":  strings.Join([]string{addr.Street, addr.City, addr.Province}, ", "),
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render confirmation: %w", err)
	}
	return buf.String(), nil
}
