package algorithms

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"qaworkbench/internal/report"
)

const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
	mailSubject     = "Dataset QA Workbench - Validation report"
)

const (
	SecurityStartTLS = "starttls"
	SecuritySSL      = "ssl"
	SecurityNone     = "none"
)

var reportFormats = []string{"plain text", "json"}

type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// MailServer holds the connection settings for one delivery.
type MailServer struct {
	Host     string
	Port     int
	Security string
	Username string
	Password string
}

// MailSender delivers a message and reports the recipients that were refused.
type MailSender interface {
	Send(ctx context.Context, server MailServer, m Mail) (refused map[string]error, err error)
}

// ReportMailer emails the report to a list of recipients.
type ReportMailer struct {
	Sender MailSender
}

func (ReportMailer) Name() string        { return "reportmailer" }
func (ReportMailer) DisplayName() string { return "Report mailer" }

func (ReportMailer) Parameters() []Parameter {
	return []Parameter{
		{Name: ReportParameter, Description: "Input validation report", Kind: KindString, Default: "{}"},
		{Name: "INPUT_REPORT_FORMAT", Description: "Report format", Kind: KindEnum, Default: 0, Options: reportFormats},
		{Name: "INPUT_SENDER_ADDRESS", Description: "Sender email", Kind: KindString},
		{Name: "INPUT_SENDER_PASSWORD", Description: "Sender password", Kind: KindString, Optional: true},
		{Name: "INPUT_RECIPIENTS", Description: "Recipients", Kind: KindMatrix},
		{Name: "INPUT_SMTP_HOST", Description: "SMTP host", Kind: KindString, Default: DefaultSMTPHost},
		{Name: "INPUT_SMTP_PORT", Description: "SMTP port", Kind: KindNumber, Default: DefaultSMTPPort},
		{Name: "INPUT_SMTP_SECURE_CONNECTION", Description: "Connection security", Kind: KindString, Default: SecurityStartTLS},
	}
}

func recipientsParam(params map[string]any) []string {
	if s, ok := params["INPUT_RECIPIENTS"].(string); ok {
		return strings.Fields(strings.ReplaceAll(s, ",", " "))
	}
	return matrixParam(params, "INPUT_RECIPIENTS")
}

func (m ReportMailer) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(m, params)
	if err != nil {
		return nil, err
	}
	log = nopIfNil(log)
	rep, raw, err := reportParam(params)
	if err != nil {
		return nil, err
	}
	format, err := enumParam(params, "INPUT_REPORT_FORMAT", reportFormats)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	if format == "plain text" {
		body = report.Text(rep)
	}
	port, err := intParam(params, "INPUT_SMTP_PORT")
	if err != nil {
		return nil, err
	}
	server := MailServer{
		Host:     stringParam(params, "INPUT_SMTP_HOST"),
		Port:     port,
		Security: strings.ToLower(stringParam(params, "INPUT_SMTP_SECURE_CONNECTION")),
		Username: stringParam(params, "INPUT_SENDER_ADDRESS"),
		Password: stringParam(params, "INPUT_SENDER_PASSWORD"),
	}
	mail := Mail{
		From:    server.Username,
		To:      recipientsParam(params),
		Subject: mailSubject,
		Body:    body,
	}
	if mail.From == "" || len(mail.To) == 0 {
		return nil, errors.New("sender and recipients are required")
	}
	sender := m.Sender
	if sender == nil {
		sender = SMTPSender{}
	}
	log.Info("sending report", zap.String("host", server.Host), zap.Int("port", server.Port),
		zap.String("security", server.Security), zap.Strings("recipients", mail.To))
	refused, err := sender.Send(ctx, server, mail)
	if err != nil {
		log.Error("report mail failed", zap.Error(err))
		return map[string]any{"MAIL_SENT": false}, nil
	}
	for rcpt, rerr := range refused {
		log.Warn("could not send report", zap.String("recipient", rcpt), zap.Error(rerr))
	}
	return map[string]any{"MAIL_SENT": len(refused) == 0}, nil
}

// SMTPSender delivers mail with net/smtp.
type SMTPSender struct{}

func (SMTPSender) Send(ctx context.Context, server MailServer, m Mail) (map[string]error, error) {
	addr := net.JoinHostPort(server.Host, strconv.Itoa(server.Port))
	tlsConfig := &tls.Config{ServerName: server.Host}
	var (
		conn net.Conn
		err  error
	)
	if server.Security == SecuritySSL {
		d := tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, server.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer c.Close()
	if server.Security == SecurityStartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	if server.Password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", server.Username, server.Password, server.Host)); err != nil {
				return nil, fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(m.From); err != nil {
		return nil, err
	}
	refused := map[string]error{}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			refused[rcpt] = err
		}
	}
	if len(refused) == len(m.To) {
		return refused, errors.New("no recipient accepted")
	}
	w, err := c.Data()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(message(m)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return refused, c.Quit()
}

func message(m Mail) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", m.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", m.Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	sb.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(sb.String())
}
