package jobs

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// Mailer sends statement emails over SMTP. Runs against Mailpit in
// development.
type Mailer struct {
	addr string
	from string
}

// NewMailer constructs a mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string) *Mailer {
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers a plain-text email with an optional PDF attachment.
func (m *Mailer) Send(to, subject, body string, pdf []byte) error {
	var msg bytes.Buffer
	writer := multipart.NewWriter(&msg)

	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return err
	}

	if len(pdf) > 0 {
		attachment, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/pdf"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {`attachment; filename="statement.pdf"`},
		})
		if err != nil {
			return err
		}
		encoded := base64.StdEncoding.EncodeToString(pdf)
		for len(encoded) > 0 {
			n := 76
			if n > len(encoded) {
				n = len(encoded)
			}
			if _, err := attachment.Write([]byte(encoded[:n] + "\r\n")); err != nil {
				return err
			}
			encoded = encoded[n:]
		}
	}

	if err := writer.Close(); err != nil {
		return err
	}
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, msg.Bytes())
}
