package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/pkg/logger"
)

const defaultCommandPrefix = "!"

// intents covers guild events, member lookups, DMs and message content for
// prefix commands.
const intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMembers |
	discordgo.IntentDirectMessages |
	discordgo.IntentMessageContent

// ErrPermissionDenied is returned when a member presses a control that was not
// issued to them or runs a command they may not use.
var ErrPermissionDenied = errors.New("bot: permission denied")

// Config holds the Discord identifiers the bot operates on.
type Config struct {
	Token          string
	GuildID        string
	RoleID         string
	SetupChannelID string
	BaseURL        string
	CommandPrefix  string
}

func (c Config) validate() error {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.GuildID) == "" {
		missing = append(missing, "guild id")
	}
	if strings.TrimSpace(c.RoleID) == "" {
		missing = append(missing, "role id")
	}
	if strings.TrimSpace(c.SetupChannelID) == "" {
		missing = append(missing, "setup channel id")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bot: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// SessionStore is the part of the verification registry the bot needs.
type SessionStore interface {
	CreateSession(userID string) string
	FindByUser(userID string) (verification.Session, error)
}

// discordAPI is the subset of the discordgo REST surface used by the bot.
type discordAPI interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Option customises a Bot.
type Option func(*Bot)

// WithAuditor records setup, start and role grant events.
func WithAuditor(auditor services.Auditor) Option {
	return func(b *Bot) {
		b.auditor = auditor
	}
}

// Bot is the Discord side of the verification flow.
type Bot struct {
	cfg      Config
	sessions SessionStore
	auditor  services.Auditor
	log      *zap.Logger

	session *discordgo.Session
	api     discordAPI

	commands   map[string]commandHandler
	components map[string]componentHandler

	baseMu  sync.RWMutex
	baseCtx context.Context
}

// New constructs a Bot backed by a discordgo session. The gateway is not
// opened until Run.
func New(cfg Config, sessions SessionStore, opts ...Option) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("bot: token is required")
	}

	token := cfg.Token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("bot: create session: %w", err)
	}
	session.Identify.Intents = intents

	b, err := newBot(cfg, sessions, session, opts...)
	if err != nil {
		return nil, err
	}
	b.session = session
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)
	session.AddHandler(b.onReady)
	return b, nil
}

func newBot(cfg Config, sessions SessionStore, api discordAPI, opts ...Option) (*Bot, error) {
	if sessions == nil {
		return nil, errors.New("bot: session store is required")
	}
	if api == nil {
		return nil, errors.New("bot: discord api is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		cfg.CommandPrefix = defaultCommandPrefix
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	b := &Bot{
		cfg:      cfg,
		sessions: sessions,
		api:      api,
		log:      logger.WithModule("bot"),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.commands = map[string]commandHandler{
		"setup": b.handleSetup,
	}
	b.components = map[string]componentHandler{
		customIDStartVerification: b.handleStartVerification,
		customIDFinalConfirm:      b.handleFinalConfirm,
	}
	return b, nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.session == nil {
		return errors.New("bot: no gateway session")
	}

	b.baseMu.Lock()
	b.baseCtx = ctx
	b.baseMu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("bot: open gateway: %w", err)
	}
	b.log.Info("discord gateway connected", zap.String("guild_id", b.cfg.GuildID))

	<-ctx.Done()

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("bot: close gateway: %w", err)
	}
	b.log.Info("discord gateway closed")
	return nil
}

// lifetime returns the context handlers run under.
func (b *Bot) lifetime() context.Context {
	b.baseMu.RLock()
	defer b.baseMu.RUnlock()
	return b.baseCtx
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	b.log.Info("logged in", zap.String("bot_user", r.User.Username), zap.String("bot_id", r.User.ID))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	b.handleMessage(b.lifetime(), m.Message)
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}
	b.handleInteraction(b.lifetime(), i.Interaction)
}

func (b *Bot) respondEphemeral(ctx context.Context, interaction *discordgo.Interaction, content string) error {
	return b.api.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
}

func (b *Bot) audit(ctx context.Context, entry services.AuditEntry) {
	entry.Source = services.AuditSourceDiscord
	services.RecordAudit(ctx, b.auditor, entry)
}

func interactionUserID(interaction *discordgo.Interaction) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}
