package lib

import (
	"context"
	"fmt"
	"log"
	"raffles/src/config"
	"raffles/src/types"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

func GetSMTPClient() (*mail.Client, error) {
	cfg := config.Get()
	c, err := mail.NewClient(
		cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUser),
		mail.WithPassword(cfg.SMTPPassword),
	)
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
	Html     bool
}

// NewMessage builds a go-mail message from the input.
func NewMessage(input *SendMailInput) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(input.FromName, input.From); err != nil {
		return nil, fmt.Errorf("setting From address: %w", err)
	}
	if err := msg.To(input.To...); err != nil {
		return nil, fmt.Errorf("setting To address: %w", err)
	}
	msg.Subject(input.Subject)
	if input.Html {
		msg.SetBodyString(mail.TypeTextHTML, input.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, input.Body)
	}
	return msg, nil
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailPublisher emails buyers when their reservation is created and when it is paid.
type MailPublisher struct {
	client mailSender
	from   string
}

func NewMailPublisher(client mailSender, from string) *MailPublisher {
	return &MailPublisher{client: client, from: from}
}

func (p *MailPublisher) Publish(ctx context.Context, e types.DomainEvent) error {
	if e.Email == "" {
		return nil
	}
	input, ok := receipt(e)
	if !ok {
		return nil
	}
	input.From = p.from
	input.FromName = "Rifas"
	input.To = []string{e.Email}
	msg, err := NewMessage(input)
	if err != nil {
		return err
	}
	if err := p.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending %s mail for order %s: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// brasilia is the buyers' wall clock; Brazil has not observed daylight saving since 2019.
var brasilia = time.FixedZone("BRT", -3*60*60)

func receipt(e types.DomainEvent) (*SendMailInput, bool) {
	numbers := joinNumbers(e.Numbers)
	switch e.Type {
	case types.EVENT_ORDER_RESERVED:
		held := "estão reservados"
		if e.ExpiresAt != nil {
			held = fmt.Sprintf("estão reservados até %s", e.ExpiresAt.In(brasilia).Format("02/01/2006 às 15:04"))
		}
		return &SendMailInput{
			Subject: "Reserva confirmada",
			Body:    fmt.Sprintf("Seus números %s %s. Total: R$ %.2f.\nPedido: %s", numbers, held, e.Amount, e.OrderID),
		}, true
	case types.EVENT_ORDER_PAID:
		title := e.Title
		if title == "" {
			title = "sua rifa"
		}
		return &SendMailInput{
			Subject: fmt.Sprintf("Pagamento aprovado: %s", title),
			Body:    fmt.Sprintf("Recebemos o pagamento de R$ %.2f. Seus números em %s: %s.\nPedido: %s", e.Amount, title, numbers, e.OrderID),
		}, true
	}
	return nil, false
}

func joinNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
