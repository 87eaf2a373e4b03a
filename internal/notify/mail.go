package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// MailConfig はSMTP送信の設定。
type MailConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	From      string // 空の場合はUser
	Recipient string // 空の場合はUser
	Timeout   time.Duration
}

// MailNotifier はSTARTTLS必須のSMTPでメール通知を送信する。
type MailNotifier struct {
	config MailConfig
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewMailNotifier はMailNotifierを生成する。
func NewMailNotifier(config MailConfig) *MailNotifier {
	if config.From == "" {
		config.From = config.User
	}
	if config.Recipient == "" {
		config.Recipient = config.User
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	n := &MailNotifier{config: config}
	n.send = n.dialAndSend
	return n
}

// Notify はtitleを件名、bodyをプレーンテキスト本文としてメールを送信する。
func (n *MailNotifier) Notify(ctx context.Context, title, body string) error {
	msg, err := n.buildMessage(title, body)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("メール送信に失敗: %w", err)
	}
	return nil
}

func (n *MailNotifier) buildMessage(title, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return nil, fmt.Errorf("送信元アドレスが不正です: %w", err)
	}
	if err := msg.To(n.config.Recipient); err != nil {
		return nil, fmt.Errorf("宛先アドレスが不正です: %w", err)
	}
	msg.Subject(title)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (n *MailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.config.Host,
		mail.WithPort(n.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.config.User),
		mail.WithPassword(n.config.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("SMTPクライアントの作成に失敗: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
