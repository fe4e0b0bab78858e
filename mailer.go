package auth

import (
	"context"
	"strings"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultResetSubjectTemplate renders as "<Website Name>: Password Reset".
const DefaultResetSubjectTemplate = "{{ website_name }}: Password Reset"

// DefaultResetBodyTemplate is the HTML body of the recovery message.
const DefaultResetBodyTemplate = `<p>You submitted a request on {{ website_name }} for assistance in resetting your password. ` +
	`To change your password please click on the link below and complete the requested information.</p>` +
	`<a href="{{ reset_link }}">Recover Account</a>`

// ResetMessage is a composed recovery email
type ResetMessage struct {
	Recipients []string
	Subject    string
	Body       string
	Link       string
}

// ResetMessageComposer renders recovery messages with pongo2 templates.
// The reset URL template receives the token as {{ token }}.
type ResetMessageComposer struct {
	websiteName string
	link        *pongo2.Template
	subject     *pongo2.Template
	body        *pongo2.Template
}

func NewResetMessageComposer(websiteName, resetURLTemplate string) (*ResetMessageComposer, error) {
	if resetURLTemplate == "" {
		resetURLTemplate = "/reset/{{ token }}"
	}

	link, err := pongo2.FromString(resetURLTemplate)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset url template")
	}

	c := &ResetMessageComposer{
		websiteName: websiteName,
		link:        link,
	}

	if err := c.WithTemplates(DefaultResetSubjectTemplate, DefaultResetBodyTemplate); err != nil {
		return nil, err
	}

	return c, nil
}

// WithTemplates replaces the subject and body templates.
func (c *ResetMessageComposer) WithTemplates(subject, body string) error {
	subjectTpl, err := pongo2.FromString(subject)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset subject template")
	}

	bodyTpl, err := pongo2.FromString(body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset body template")
	}

	c.subject = subjectTpl
	c.body = bodyTpl
	return nil
}

// Compose builds the message for one recipient and token.
func (c *ResetMessageComposer) Compose(email, token string) (*ResetMessage, error) {
	link, err := c.link.Execute(pongo2.Context{"token": token})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset link")
	}
	link = strings.TrimSpace(link)

	data := pongo2.Context{
		"website_name": c.websiteName,
		"reset_link":   link,
		"email":        email,
	}

	subject, err := c.subject.Execute(data)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset subject")
	}

	body, err := c.body.Execute(data)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset body")
	}

	return &ResetMessage{
		Recipients: []string{email},
		Subject:    strings.TrimSpace(subject),
		Body:       body,
		Link:       link,
	}, nil
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger Logger
}

func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	m.logger.Info("mail to=%s subject=%q body=%q", strings.Join(recipients, ","), subject, body)
	return nil
}
