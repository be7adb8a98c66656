package channel

import (
	"errors"
	"fmt"
	"net/http"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// JSON error code for "Request entity too large".
const discordCodeEntityTooLarge = 40005

// errWebhookGone marks a cached webhook that was deleted out from under us.
var errWebhookGone = errors.New("webhook removed")

// mapDiscordError wraps REST failures with the domain sentinel that matches
// them. Errors it does not recognise are returned unchanged.
func mapDiscordError(err error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}

	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return err
	}

	code, status := 0, 0
	if re.Message != nil {
		code = re.Message.Code
	}
	if re.Response != nil {
		status = re.Response.StatusCode
	}

	switch {
	case code == discordgo.ErrCodeUnknownWebhook:
		return fmt.Errorf("%w: %w", errWebhookGone, err)
	case status == http.StatusRequestEntityTooLarge || code == discordCodeEntityTooLarge:
		return fmt.Errorf("%w: %w", domain.ErrPayloadTooLarge, err)
	case code == discordgo.ErrCodeUnknownChannel:
		return fmt.Errorf("%w: %w", domain.ErrDestinationGone, err)
	case code == discordgo.ErrCodeMissingAccess || code == discordgo.ErrCodeMissingPermissions || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrDestinationGone, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return err
}
