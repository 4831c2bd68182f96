package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/murmurapp/murmur/internal/config"
	"github.com/murmurapp/murmur/internal/logging"
)

// Service sends verification code emails over SMTP. Delivery is attempted
// synchronously with a per-attempt timeout and exponential backoff between
// retries; the caller decides what a final failure means.
type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	sendTimeout  time.Duration
	maxRetries   int
}

func NewService(cfg config.EmailConfig) *Service {
	return &Service{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUser:     cfg.SMTPUser,
		smtpPassword: cfg.SMTPPassword,
		fromEmail:    cfg.FromAddress,
		sendTimeout:  cfg.SendTimeout,
		maxRetries:   cfg.MaxRetries,
	}
}

// SendVerificationCode emails the 6-digit code to a new registrant.
func (s *Service) SendVerificationCode(ctx context.Context, toEmail, username, code string) error {
	logger := logging.GetLoggerFromContext(ctx)

	subject := "Your murmur verification code"
	body, err := renderVerificationEmail(username, code)
	if err != nil {
		logger.Error("failed to render email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = s.sendWithTimeout(ctx, toEmail, subject, body)
		if lastErr == nil {
			logger.Info("verification email sent", "email", toEmail, "attempt", attempt+1)
			return nil
		}
		logger.Warn("verification email attempt failed", "email", toEmail, "attempt", attempt+1, "error", lastErr)
	}

	return fmt.Errorf("send email: %w", lastErr)
}

// sendWithTimeout bounds a single SMTP attempt. net/smtp has no context
// support, so the dial-and-send runs in a goroutine and the slot is abandoned
// on timeout.
func (s *Service) sendWithTimeout(ctx context.Context, to, subject, body string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.sendEmail(to, subject, body)
	}()

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return fmt.Errorf("smtp send timed out after %s", s.sendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	// Build message
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return smtp.SendMail(addr, auth, s.fromEmail, []string{to}, msg)
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .code {
            display: inline-block;
            background-color: #eef2ff;
            color: #4F46E5;
            font-size: 28px;
            letter-spacing: 6px;
            font-weight: bold;
            padding: 12px 30px;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>Welcome to murmur, {{.Username}}!</h1>
    </div>
    <div class="content">
        <h2>Verify your account</h2>
        <p>Thank you for signing up! Enter this code to verify your account and start receiving anonymous messages.</p>

        <div class="code">{{.Code}}</div>

        <p style="margin-top: 30px;">If you didn't create an account, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This code will expire in 1 hour.</p>
        <p>&copy; 2026 murmur. All rights reserved.</p>
    </div>
</body>
</html>
`))

func renderVerificationEmail(username, code string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Username string
		Code     string
	}{
		Username: username,
		Code:     code,
	}

	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
