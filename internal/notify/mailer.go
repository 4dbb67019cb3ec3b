package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/queue"
)

// Sender delivers composed messages.  *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends the ticket email with the QR code attached.
type Mailer struct {
	sender Sender
	from   string
	log    *slog.Logger
}

// NewMailer constructs a Mailer that sends over SMTP.
func NewMailer(cfg config.SMTPConfig, log *slog.Logger) *Mailer {
	return NewMailerWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, log)
}

// NewMailerWithSender constructs a Mailer on an arbitrary Sender.
func NewMailerWithSender(sender Sender, from string, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	return &Mailer{sender: sender, from: from, log: log.With("component", "mailer")}
}

// SendTicket mails the confirmation of ev.  Bookings without an email
// address (counter sales with a phone only) are skipped.
func (m *Mailer) SendTicket(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	if ev.CustomerEmail == "" {
		m.log.Info("no email on booking, ticket mail skipped", "booking_id", ev.BookingID)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.compose(ev)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSend(msg); err != nil {
		return errors.Wrapf(err, "send ticket of booking %s", ev.BookingID)
	}
	m.log.Info("ticket mailed", "booking_id", ev.BookingID)
	return nil
}

func (m *Mailer) compose(ev queue.BookingConfirmedEvent) (*gomail.Message, error) {
	png, err := RenderQR(ev.QRToken)
	if err != nil {
		return nil, errors.Wrapf(err, "ticket qr of booking %s", ev.BookingID)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", ev.CustomerEmail, ev.CustomerName)
	msg.SetHeader("Subject", fmt.Sprintf("Your tickets for %s", ev.MovieTitle))
	msg.SetBody("text/plain", ticketBody(ev))
	msg.Attach("ticket-"+ev.BookingID+".png",
		gomail.SetHeader(map[string][]string{"Content-Type": {"image/png"}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}),
	)
	return msg, nil
}

func ticketBody(ev queue.BookingConfirmedEvent) string {
	var b strings.Builder
	name := ev.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Your booking %s is confirmed.\n\n", ev.BookingID)
	fmt.Fprintf(&b, "Movie:    %s\n", ev.MovieTitle)
	fmt.Fprintf(&b, "Cinema:   %s, %s\n", ev.BranchName, ev.TheaterName)
	fmt.Fprintf(&b, "Starts:   %s\n", ev.StartsAt)
	fmt.Fprintf(&b, "Seats:    %s\n", strings.Join(ev.SeatLabels, ", "))
	if len(ev.Combos) > 0 {
		fmt.Fprintf(&b, "Combos:   %s\n", strings.Join(ev.Combos, ", "))
	}
	if ev.Discount > 0 {
		fmt.Fprintf(&b, "Discount: %d\n", ev.Discount)
	}
	fmt.Fprintf(&b, "Total:    %d\n\n", ev.TotalAmount)
	fmt.Fprintf(&b, "Ticket code: %s\n", ev.QRToken)
	b.WriteString("Show the attached QR code at the entrance.\n")
	return b.String()
}
