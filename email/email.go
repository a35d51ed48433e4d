package email

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
)

func send(to, subject, body string) error {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	user := os.Getenv("SMTP_USER")
	pass := os.Getenv("SMTP_PASS")
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = user
	}
	if host == "" || port == "" || user == "" || pass == "" || from == "" {
		return fmt.Errorf("SMTP environment variables missing")
	}
	addr := fmt.Sprintf("%s:%s", host, port)
	auth := smtp.PlainAuth("", user, pass, host)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}

func SendWelcome(to, name string) error {
	subject := "Welcome to LegalAI"
	body := fmt.Sprintf(`Hi %s,

Your account is ready. Your freemium plan includes 50 tokens to get you started with AI contract reviews.

Upload your first document from the dashboard whenever you're ready.

The LegalAI team`, name)
	if err := send(to, subject, body); err != nil {
		return err
	}
	log.Printf("[EMAIL] welcome sent to %s", to)
	return nil
}

func SendPasswordChanged(to, name string) error {
	subject := "Your password was changed"
	body := fmt.Sprintf(`Hi %s,

Your password was just updated. If this wasn't you, contact support immediately.

The LegalAI team`, name)
	if err := send(to, subject, body); err != nil {
		return err
	}
	log.Printf("[EMAIL] password change notification sent to %s", to)
	return nil
}

// SendSubscriptionChanged notifies the user after a plan change is applied.
func SendSubscriptionChanged(to, name, tier string) error {
	subject := "Your subscription was updated"
	body := fmt.Sprintf(`Hi %s,

Your subscription change to the %s plan has been processed. Your monthly token balance refreshes when the change takes effect.

The LegalAI team`, name, tier)
	if err := send(to, subject, body); err != nil {
		return err
	}
	log.Printf("[EMAIL] subscription change notification sent to %s", to)
	return nil
}
