package communication

import (
	"fmt"
	"os"
	"strings"

	"github.com/slack-go/slack"
)

type Slack struct {
	client  *slack.Client
	options SlackOption
}

type SlackOption struct {
	InfoChannelID  string
	ErrorChannelID string
}

func ConnectSlack() *Slack {
	token := os.Getenv("SLACK_BOT_TOKEN")
	infoCh := os.Getenv("SLACK_INFO_CHANNEL")
	errorCh := os.Getenv("SLACK_ERROR_CHANNEL")

	return NewSlack(token, SlackOption{InfoChannelID: infoCh, ErrorChannelID: errorCh})
}

func NewSlack(token string, options SlackOption) *Slack {
	client := slack.New(token)
	return &Slack{client: client, options: options}
}

func (s *Slack) postMessage(channelID, message string) error {
	_, _, err := s.client.PostMessage(
		channelID,
		slack.MsgOptionText(message, false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

func (this *Slack) Info(message string) error {
	return this.postMessage(this.options.InfoChannelID, message)
}

func (this *Slack) Error(message string) error {
	return this.postMessage(this.options.ErrorChannelID, message)
}

// ProvisioningFailed and TenantsImported satisfy core.Notifier. Slack being
// down must never fail a provisioning call, so errors end up on stderr only.
func (this *Slack) ProvisioningFailed(subdomain string, cause string) {
	msg := fmt.Sprintf("tenant provisioning failed for %q: %s", subdomain, cause)
	if err := this.Error(msg); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (this *Slack) TenantsImported(subdomains []string) {
	msg := fmt.Sprintf("tenant sync imported %d tenant(s): %s",
		len(subdomains), strings.Join(subdomains, ", "))
	if err := this.Info(msg); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
