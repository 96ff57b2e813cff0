package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/jmcleod/doorman/auth"
)

const resetSubject = "Reset your password"

var resetBody = template.Must(template.New("reset").Parse(`Hello {{.Email}},

Someone asked to reset the password for your account.
To choose a new password, open the link below:

{{.Link}}

The link expires in {{.ExpiresIn}}. If you did not ask for this, you can
ignore this email and your password will stay the same.
`))

// ResetMailer implements auth.Mailer by rendering the reset email and
// placing it on a Queue.
type ResetMailer struct {
	queue    *Queue
	from     string
	baseURL  string
	tokenTTL time.Duration
}

var _ auth.Mailer = (*ResetMailer)(nil)

func NewResetMailer(queue *Queue, from, baseURL string, tokenTTL time.Duration) *ResetMailer {
	return &ResetMailer{
		queue:    queue,
		from:     from,
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenTTL: tokenTTL,
	}
}

// EditLink returns the URL of the edit form for token.
func (m *ResetMailer) EditLink(token string) string {
	return fmt.Sprintf("%s/passwords/%s/edit", m.baseURL, url.PathEscape(token))
}

func (m *ResetMailer) EnqueueReset(ctx context.Context, u *auth.User, token string) {
	var body strings.Builder
	err := resetBody.Execute(&body, struct {
		Email     string
		Link      string
		ExpiresIn string
	}{
		Email:     u.Email,
		Link:      m.EditLink(token),
		ExpiresIn: humanDuration(m.tokenTTL),
	})
	if err != nil {
		m.queue.logger.ErrorContext(ctx, "rendering reset email failed", "error", err)
		return
	}
	m.queue.Enqueue(Message{
		From:    m.from,
		To:      u.Email,
		Subject: resetSubject,
		Body:    body.String(),
	})
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}
