package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/charlesng35/alterra/internal/notify"
)

var _ notify.Messenger = (*Bot)(nil)

// SendDirect opens a DM channel with the user and posts the confirm prompt.
func (b *Bot) SendDirect(ctx context.Context, userID string, prompt notify.Prompt) error {
	channel, err := b.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bot: open dm channel: %w", err)
	}
	if _, err := b.api.ChannelMessageSendComplex(channel.ID, confirmMessage(prompt), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("bot: send dm: %w", err)
	}
	return nil
}

// SendChannel posts the confirm prompt in a guild channel, allowing only the
// prompt's user to be pinged.
func (b *Bot) SendChannel(ctx context.Context, channelID string, prompt notify.Prompt) error {
	msg := confirmMessage(prompt)
	msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{prompt.UserID}}
	if _, err := b.api.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("bot: send channel message: %w", err)
	}
	return nil
}

func confirmMessage(prompt notify.Prompt) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: prompt.Content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "☑️ Confirm Verification",
					Style:    discordgo.PrimaryButton,
					CustomID: finalConfirmID(prompt.UserID),
				},
			}},
		},
	}
}
