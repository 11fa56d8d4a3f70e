package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sellerdesk/api/internal/services"
)

// Deliverer hands a rendered message off to the actual channel. The default
// implementation records the click-to-chat link for the operator UI.
type Deliverer func(ctx context.Context, delivery Delivery) error

// Delivery is a fully rendered outbound message.
type Delivery struct {
	StoreID string
	OrderID string
	Phone   string
	Body    string
	Link    string
}

// WhatsAppLogger defines the logging contract for message dispatch.
type WhatsAppLogger func(ctx context.Context, event string, fields map[string]any)

// WhatsAppSenderConfig configures the WhatsAppSender.
type WhatsAppSenderConfig struct {
	// CountryCode replaces a leading national zero when normalising phone
	// numbers, e.g. "212" turns 0612345678 into 212612345678.
	CountryCode string
	Deliver     Deliverer
	Logger      WhatsAppLogger
}

// WhatsAppSender renders order message templates and dispatches them as
// wa.me click-to-chat links. Template text is sanitised before rendering so
// stored templates can never smuggle markup into the channel.
type WhatsAppSender struct {
	countryCode string
	deliver     Deliverer
	sanitizer   *bluemonday.Policy
	printer     *message.Printer
	logger      WhatsAppLogger
}

// NewWhatsAppSender constructs a WhatsAppSender.
func NewWhatsAppSender(cfg WhatsAppSenderConfig) (*WhatsAppSender, error) {
	countryCode := strings.TrimSpace(cfg.CountryCode)
	if countryCode == "" {
		return nil, errors.New("whatsapp: country code is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	s := &WhatsAppSender{
		countryCode: countryCode,
		deliver:     cfg.Deliver,
		sanitizer:   bluemonday.StrictPolicy(),
		printer:     message.NewPrinter(language.French),
		logger:      logger,
	}
	if s.deliver == nil {
		s.deliver = s.logDelivery
	}
	return s, nil
}

// SendOrderMessage renders the template for the order and dispatches it.
func (s *WhatsAppSender) SendOrderMessage(ctx context.Context, cmd services.SendOrderMessageCommand) error {
	phone, err := s.normalizePhone(cmd.Phone)
	if err != nil {
		return err
	}
	body := s.render(cmd.Template, cmd.Order, cmd.Store)
	if strings.TrimSpace(body) == "" {
		return errors.New("whatsapp: rendered message is empty")
	}

	delivery := Delivery{
		StoreID: cmd.StoreID,
		OrderID: cmd.OrderID,
		Phone:   phone,
		Body:    body,
		Link:    ChatLink(phone, body),
	}
	if err := s.deliver(ctx, delivery); err != nil {
		return fmt.Errorf("whatsapp: deliver to %s: %w", phone, err)
	}
	return nil
}

// render substitutes the order placeholders into the sanitised template.
// Unknown placeholders pass through untouched.
func (s *WhatsAppSender) render(template string, order services.Order, store services.Store) string {
	clean := s.sanitizer.Sanitize(template)
	replacer := strings.NewReplacer(
		"{name}", order.CustomerName,
		"{product}", order.ArticleName,
		"{city}", order.CustomerCity,
		"{total}", s.formatAmount(order.Total(), store.Currency),
		"{payment_method}", order.PaymentMethod,
		"{store_name}", store.Name,
		"{delivery_address}", order.CustomerAddress,
		"{tracking}", order.TrackingID,
	)
	return strings.TrimSpace(replacer.Replace(clean))
}

// formatAmount renders monetary values with locale-aware grouping.
func (s *WhatsAppSender) formatAmount(amount float64, currency string) string {
	formatted := s.printer.Sprintf("%.2f", amount)
	if currency = strings.TrimSpace(currency); currency != "" {
		return formatted + " " + currency
	}
	return formatted
}

// normalizePhone strips formatting and applies the national-to-international
// prefix rule.
func (s *WhatsAppSender) normalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if normalized == "" {
		return "", errors.New("whatsapp: phone number is required")
	}
	if strings.HasPrefix(normalized, "0") {
		normalized = s.countryCode + normalized[1:]
	}
	if len(normalized) < 8 {
		return "", fmt.Errorf("whatsapp: phone number %q is too short", phone)
	}
	return normalized, nil
}

func (s *WhatsAppSender) logDelivery(ctx context.Context, delivery Delivery) error {
	s.logger(ctx, "messaging.whatsapp.link_ready", map[string]any{
		"storeId": delivery.StoreID,
		"orderId": delivery.OrderID,
		"phone":   delivery.Phone,
		"link":    delivery.Link,
	})
	return nil
}

// ChatLink builds a wa.me click-to-chat URL for the given number and body.
func ChatLink(phone string, body string) string {
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(body)
}
