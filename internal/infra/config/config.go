package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL   string
	DiscordToken  string
	DiscordGuild  string
	AdminRoleIDs  []string
	StaffRoleIDs  []string
	ModLogChannel string
	AppealChannel string
	LoaChannel    string
	HTTPAddr      string // default :8080
	RedisURL      string // vacío = cooldowns en memoria
	LogLevel      string
	LogFormat     string

	Escalation EscalationConfig

	LoaMaxDays         int
	LoaRequestCooldown time.Duration
	AppealMinChars     int
	AppealMaxChars     int
	TicketOpenLimit    int
	TicketCooldown     time.Duration
	TicketCategoryID   string // categoría donde se crean los canales de ticket

	EnforcementTimeout time.Duration
	NotifyTimeout      time.Duration
	SweepInterval      time.Duration

	RobloxUsersURL string
	WebhookSecret  string
	WebhookHeader  string
}

type EscalationConfig struct {
	VerbalWarns int
	Warns       int
	Kicks       int
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ESCALATION_VERBAL_WARNS", 3)
	v.SetDefault("ESCALATION_WARNS", 3)
	v.SetDefault("ESCALATION_KICKS", 2)
	v.SetDefault("LOA_MAX_DAYS", 60)
	v.SetDefault("LOA_REQUEST_COOLDOWN", "24h")
	v.SetDefault("APPEAL_MIN_CHARS", 20)
	v.SetDefault("APPEAL_MAX_CHARS", 1000)
	v.SetDefault("TICKET_OPEN_LIMIT", 3)
	v.SetDefault("TICKET_COOLDOWN", "5m")
	v.SetDefault("ENFORCEMENT_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("SWEEP_INTERVAL", "6h")
	v.SetDefault("ROBLOX_USERS_URL", "https://users.roblox.com/v1")
	v.SetDefault("WEBHOOK_HEADER_NAME", "x-kronoz-secret")
}

// Load lee .env (si existe) y luego el entorno. required son las keys que
// el binario necesita sí o sí (el bot pide token, las lambdas no).
func Load(required ...string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	var missing []string
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("faltan envs: %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		DatabaseURL:   v.GetString("DATABASE_URL"),
		DiscordToken:  v.GetString("DISCORD_BOT_TOKEN"),
		DiscordGuild:  v.GetString("DISCORD_GUILD_ID"),
		AdminRoleIDs:  splitIDs(v.GetString("ADMIN_ROLE_IDS")),
		StaffRoleIDs:  splitIDs(v.GetString("STAFF_ROLE_IDS")),
		ModLogChannel: v.GetString("MOD_LOG_CHANNEL_ID"),
		AppealChannel: v.GetString("APPEAL_CHANNEL_ID"),
		LoaChannel:    v.GetString("LOA_CHANNEL_ID"),
		HTTPAddr:      v.GetString("HTTP_ADDR"),
		RedisURL:      v.GetString("REDIS_URL"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		LogFormat:     v.GetString("LOG_FORMAT"),
		Escalation: EscalationConfig{
			VerbalWarns: v.GetInt("ESCALATION_VERBAL_WARNS"),
			Warns:       v.GetInt("ESCALATION_WARNS"),
			Kicks:       v.GetInt("ESCALATION_KICKS"),
		},
		LoaMaxDays:         v.GetInt("LOA_MAX_DAYS"),
		LoaRequestCooldown: v.GetDuration("LOA_REQUEST_COOLDOWN"),
		AppealMinChars:     v.GetInt("APPEAL_MIN_CHARS"),
		AppealMaxChars:     v.GetInt("APPEAL_MAX_CHARS"),
		TicketOpenLimit:    v.GetInt("TICKET_OPEN_LIMIT"),
		TicketCooldown:     v.GetDuration("TICKET_COOLDOWN"),
		TicketCategoryID:   v.GetString("TICKET_CATEGORY_ID"),
		EnforcementTimeout: v.GetDuration("ENFORCEMENT_TIMEOUT"),
		NotifyTimeout:      v.GetDuration("NOTIFY_TIMEOUT"),
		SweepInterval:      v.GetDuration("SWEEP_INTERVAL"),
		RobloxUsersURL:     strings.TrimRight(v.GetString("ROBLOX_USERS_URL"), "/"),
		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		WebhookHeader:      strings.ToLower(v.GetString("WEBHOOK_HEADER_NAME")),
	}
	return cfg, cfg.Validate()
}

// Validate: umbrales y límites deben ser positivos.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, n int) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s debe ser > 0 (es %d)", name, n))
		}
	}
	positiveDur := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s debe ser > 0 (es %s)", name, d))
		}
	}
	positive("ESCALATION_VERBAL_WARNS", c.Escalation.VerbalWarns)
	positive("ESCALATION_WARNS", c.Escalation.Warns)
	positive("ESCALATION_KICKS", c.Escalation.Kicks)
	positive("LOA_MAX_DAYS", c.LoaMaxDays)
	positive("APPEAL_MIN_CHARS", c.AppealMinChars)
	positive("TICKET_OPEN_LIMIT", c.TicketOpenLimit)
	positiveDur("ENFORCEMENT_TIMEOUT", c.EnforcementTimeout)
	positiveDur("NOTIFY_TIMEOUT", c.NotifyTimeout)
	positiveDur("SWEEP_INTERVAL", c.SweepInterval)
	if c.AppealMaxChars < c.AppealMinChars {
		errs = append(errs, fmt.Errorf("APPEAL_MAX_CHARS (%d) < APPEAL_MIN_CHARS (%d)", c.AppealMaxChars, c.AppealMinChars))
	}
	if c.LoaRequestCooldown < 0 || c.TicketCooldown < 0 {
		errs = append(errs, errors.New("los cooldowns no pueden ser negativos"))
	}
	if c.DiscordGuild != "" {
		if _, err := strconv.ParseInt(c.DiscordGuild, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("DISCORD_GUILD_ID inválido: %q", c.DiscordGuild))
		}
	}
	return errors.Join(errs...)
}

// GuildID como snowflake numérico (0 si no está).
func (c Config) GuildID() int64 {
	id, _ := strconv.ParseInt(c.DiscordGuild, 10, 64)
	return id
}

func splitIDs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
