package bot

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/alterra/internal/services"
)

const embedColor = 0x00AEEF

type commandHandler func(ctx context.Context, m *discordgo.Message) error

func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.cfg.CommandPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(content, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	handler, ok := b.commands[name]
	if !ok {
		return
	}

	if err := handler(ctx, m); err != nil {
		b.log.Warn("command failed",
			zap.String("command", name),
			zap.String("user_id", m.Author.ID),
			zap.String("channel_id", m.ChannelID),
			zap.Error(err),
		)
	}
}

// handleSetup posts the verification panel. Only administrators may run it
// and only inside the setup channel; anything else is silently ignored.
func (b *Bot) handleSetup(ctx context.Context, m *discordgo.Message) error {
	if m.ChannelID != b.cfg.SetupChannelID {
		return nil
	}

	perms, err := b.api.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	if perms&discordgo.PermissionAdministrator == 0 {
		b.audit(ctx, services.AuditEntry{
			UserID: m.Author.ID,
			Action: services.AuditActionSetup,
			Result: services.AuditResultDenied,
		})
		return ErrPermissionDenied
	}

	if err := b.api.ChannelMessageDelete(m.ChannelID, m.ID, discordgo.WithContext(ctx)); err != nil {
		b.log.Debug("could not delete setup command", zap.String("message_id", m.ID), zap.Error(err))
	}

	_, err = b.api.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Alterra Verification",
			Description: "Press the button to start verification.",
			Color:       embedColor,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Start Verification",
					Style:    discordgo.SuccessButton,
					CustomID: customIDStartVerification,
				},
			}},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}

	b.audit(ctx, services.AuditEntry{
		UserID:   m.Author.ID,
		Action:   services.AuditActionSetup,
		Result:   services.AuditResultSuccess,
		Metadata: map[string]any{"channel_id": m.ChannelID},
	})
	return nil
}
