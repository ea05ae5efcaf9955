package bot

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/pkg/metrics"
)

const (
	customIDStartVerification = "start_verification"
	customIDFinalConfirm      = "final_confirm"
)

// componentHandler handles one button family. arg is the part of the custom
// id after the first ':' (empty when absent).
type componentHandler func(ctx context.Context, interaction *discordgo.Interaction, arg string) error

func finalConfirmID(userID string) string {
	return customIDFinalConfirm + ":" + userID
}

func (b *Bot) handleInteraction(ctx context.Context, interaction *discordgo.Interaction) {
	if interaction.Type != discordgo.InteractionMessageComponent {
		return
	}

	customID := interaction.MessageComponentData().CustomID
	prefix, arg, _ := strings.Cut(customID, ":")
	handler, ok := b.components[prefix]
	if !ok {
		b.log.Debug("unhandled component", zap.String("custom_id", customID))
		return
	}

	if err := handler(ctx, interaction, arg); err != nil {
		b.log.Warn("interaction failed",
			zap.String("custom_id", customID),
			zap.String("user_id", interactionUserID(interaction)),
			zap.Error(err),
		)
	}
}

func (b *Bot) handleStartVerification(ctx context.Context, interaction *discordgo.Interaction, _ string) error {
	userID := interactionUserID(interaction)
	if userID == "" {
		return errors.New("bot: interaction without user")
	}

	previous, prevErr := b.sessions.FindByUser(userID)
	token := b.sessions.CreateSession(userID)

	metadata := map[string]any{}
	content := "Your verification link:\n" + b.startURL(token)
	if prevErr == nil {
		metadata["replaced"] = true
		metadata["previous_state"] = string(previous.State())
		content += "\nYour previous link is no longer valid."
		if previous.Notified {
			b.log.Info("verification restarted after completion", zap.String("user_id", userID))
		}
	} else if !errors.Is(prevErr, verification.ErrSessionNotFound) {
		b.log.Warn("session lookup failed", zap.String("user_id", userID), zap.Error(prevErr))
	}

	b.audit(ctx, services.AuditEntry{
		UserID:   userID,
		Action:   services.AuditActionSessionStart,
		Result:   services.AuditResultSuccess,
		Metadata: metadata,
	})

	return b.respondEphemeral(ctx, interaction, content)
}

func (b *Bot) handleFinalConfirm(ctx context.Context, interaction *discordgo.Interaction, targetUserID string) error {
	userID := interactionUserID(interaction)
	if userID == "" || userID != targetUserID {
		metrics.RoleGrants.WithLabelValues("denied").Inc()
		b.audit(ctx, services.AuditEntry{
			UserID:   userID,
			Action:   services.AuditActionRoleGrant,
			Result:   services.AuditResultDenied,
			Metadata: map[string]any{"target_user_id": targetUserID},
		})
		if err := b.respondEphemeral(ctx, interaction, "This button is not meant for you."); err != nil {
			return err
		}
		return ErrPermissionDenied
	}

	err := b.api.GuildMemberRoleAdd(b.cfg.GuildID, userID, b.cfg.RoleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason("Verification complete"),
	)
	if err != nil {
		metrics.RoleGrants.WithLabelValues("error").Inc()
		b.audit(ctx, services.AuditEntry{
			UserID:   userID,
			Action:   services.AuditActionRoleGrant,
			Result:   services.AuditResultFailure,
			Metadata: map[string]any{"error": err.Error()},
		})
		if respErr := b.respondEphemeral(ctx, interaction, "The member or role is unavailable."); respErr != nil {
			b.log.Warn("failed to report role grant error", zap.Error(respErr))
		}
		return err
	}

	metrics.RoleGrants.WithLabelValues("granted").Inc()
	b.audit(ctx, services.AuditEntry{
		UserID:   userID,
		Action:   services.AuditActionRoleGrant,
		Result:   services.AuditResultSuccess,
		Metadata: map[string]any{"role_id": b.cfg.RoleID},
	})
	b.log.Info("verified role granted", zap.String("user_id", userID))

	return b.respondEphemeral(ctx, interaction, "Verification successful.")
}

func (b *Bot) startURL(token string) string {
	return b.cfg.BaseURL + "/start?state=" + url.QueryEscape(token)
}
