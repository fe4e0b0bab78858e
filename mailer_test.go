package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetMessageComposerDefaults(t *testing.T) {
	composer, err := auth.NewResetMessageComposer("Acme Portal", "")
	require.NoError(t, err)

	msg, err := composer.Compose("a@x.com", "tok123")
	require.NoError(t, err)

	assert.Equal(t, []string{"a@x.com"}, msg.Recipients)
	assert.Equal(t, "Acme Portal: Password Reset", msg.Subject)
	assert.Equal(t, "/reset/tok123", msg.Link)
	assert.Contains(t, msg.Body, `<a href="/reset/tok123">Recover Account</a>`)
	assert.Contains(t, msg.Body, "on Acme Portal")
}

func TestResetMessageComposerCustomTemplates(t *testing.T) {
	composer, err := auth.NewResetMessageComposer("Acme", "https://acme.test/auth/reset?t={{ token }}")
	require.NoError(t, err)
	require.NoError(t, composer.WithTemplates("Reset for {{ email }}", "Go to {{ reset_link }}"))

	msg, err := composer.Compose("b@x.com", "abc")
	require.NoError(t, err)
	assert.Equal(t, "Reset for b@x.com", msg.Subject)
	assert.Equal(t, "Go to https://acme.test/auth/reset?t=abc", msg.Body)
}

func TestResetMessageComposerInvalidTemplate(t *testing.T) {
	_, err := auth.NewResetMessageComposer("Acme", "{% if %}")
	assert.Error(t, err)

	composer, err := auth.NewResetMessageComposer("Acme", "")
	require.NoError(t, err)
	assert.Error(t, composer.WithTemplates("{{ unclosed", "body"))
}

func TestMailerFunc(t *testing.T) {
	var got []string
	mailer := auth.MailerFunc(func(_ context.Context, recipients []string, subject, body string) error {
		got = append(recipients, subject, body)
		return nil
	})

	require.NoError(t, mailer.Send(context.Background(), []string{"a@x.com"}, "s", "b"))
	assert.Equal(t, []string{"a@x.com", "s", "b"}, got)

	var nilMailer auth.MailerFunc
	assert.NoError(t, nilMailer.Send(context.Background(), nil, "", ""))

	assert.NoError(t, auth.NewLogMailer(testLogger{}).Send(context.Background(), []string{"a@x.com"}, "s", "b"))
}
