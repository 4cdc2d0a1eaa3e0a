package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const DefaultPath = "./config/config.yml"

// Error marks a configuration problem that must stop the process.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	// IRC
	Connection Connection
	Login      Login
	Channels   []string

	// Commands
	Prefix   string
	Commands map[string]CommandPolicy
	Messages map[string][]string

	// Coin & wallet
	Coin Coin
	RPC  RPC

	Identity Identity
	Log      Log
	Admin    Admin
}

type Connection struct {
	Host   string
	Port   int
	Secure bool
	Debug  bool
}

type Login struct {
	Nickname         string
	Username         string
	Realname         string
	NickServPassword string
}

// CommandPolicy holds the per-command visibility flags. A nil flag means allowed.
type CommandPolicy struct {
	PM      *bool
	Channel *bool
}

func (p CommandPolicy) AllowPM() bool      { return p.PM == nil || *p.PM }
func (p CommandPolicy) AllowChannel() bool { return p.Channel == nil || *p.Channel }

type Coin struct {
	FullName         string
	ShortName        string
	MinTip           decimal.Decimal
	MinRain          decimal.Decimal
	MinWithdraw      decimal.Decimal
	WithdrawalFee    decimal.Decimal
	MinConfirmations int
	Decimals         int32

	// Raw holds every coin key as text for template expansion.
	Raw map[string]string
}

type RPC struct {
	Host string
	Port int
	User string
	Pass string
	TLS  bool

	// ProbeInterval is how often the running bot checks the wallet. Zero disables it.
	ProbeInterval time.Duration
}

type Identity struct {
	Service       string
	VerifiedLevel int
	Timeout       time.Duration
}

type Log struct {
	File      string
	Level     string
	FileLevel string
}

type Admin struct {
	Enabled   bool
	Bind      string
	JWTSecret string
}

// Load reads the YAML config at path. Secrets may be overridden through the
// environment (or a .env file) as TIPBOT_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("configuration file %s doesn't exist", path), Err: err}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("tipbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Msg: "failed to read configuration", Err: err}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.port", 6667)
	v.SetDefault("login.username", "tipbot")
	v.SetDefault("login.realname", "tipbot")
	v.SetDefault("coin.min_confirmations", 5)
	v.SetDefault("coin.decimals", 8)
	v.SetDefault("rpc.host", "localhost")
	v.SetDefault("rpc.port", 22555)
	v.SetDefault("rpc.probe_interval", "1m")
	v.SetDefault("identity.service", "NickServ")
	v.SetDefault("identity.verified_level", 3)
	v.SetDefault("identity.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_level", "info")
	v.SetDefault("admin.bind", "127.0.0.1:3000")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Connection: Connection{
			Host:   v.GetString("connection.host"),
			Port:   v.GetInt("connection.port"),
			Secure: v.GetBool("connection.secure"),
			Debug:  v.GetBool("connection.debug"),
		},
		Login: Login{
			Nickname:         v.GetString("login.nickname"),
			Username:         v.GetString("login.username"),
			Realname:         v.GetString("login.realname"),
			NickServPassword: v.GetString("login.nickserv_password"),
		},
		Channels: v.GetStringSlice("channels"),
		Prefix:   v.GetString("commands.prefix"),
		RPC: RPC{
			Host: v.GetString("rpc.host"),
			Port: v.GetInt("rpc.port"),
			User: v.GetString("rpc.user"),
			Pass: v.GetString("rpc.pass"),
			TLS:  v.GetBool("rpc.tls"),

			ProbeInterval: v.GetDuration("rpc.probe_interval"),
		},
		Identity: Identity{
			Service:       v.GetString("identity.service"),
			VerifiedLevel: v.GetInt("identity.verified_level"),
			Timeout:       v.GetDuration("identity.timeout"),
		},
		Log: Log{
			File:      v.GetString("log.file"),
			Level:     v.GetString("log.level"),
			FileLevel: v.GetString("log.file_level"),
		},
		Admin: Admin{
			Enabled:   v.GetBool("admin.enabled"),
			Bind:      v.GetString("admin.bind"),
			JWTSecret: v.GetString("admin.jwt_secret"),
		},
	}

	// make sure the command prefix has been specified
	if strings.TrimSpace(cfg.Prefix) == "" {
		return nil, &Error{Msg: "command prefix is missing from the config"}
	}
	if cfg.Connection.Host == "" {
		return nil, &Error{Msg: "connection.host is required"}
	}
	if cfg.Login.Nickname == "" {
		return nil, &Error{Msg: "login.nickname is required"}
	}
	if cfg.Admin.Enabled && cfg.Admin.JWTSecret == "" {
		return nil, &Error{Msg: "admin.jwt_secret is required when admin is enabled"}
	}

	cfg.Commands = loadCommands(v)
	cfg.Messages = loadMessages(v)

	coin, err := loadCoin(v)
	if err != nil {
		return nil, err
	}
	cfg.Coin = coin

	return cfg, nil
}

func loadCommands(v *viper.Viper) map[string]CommandPolicy {
	commands := make(map[string]CommandPolicy)
	for name := range v.GetStringMap("commands") {
		if name == "prefix" {
			continue
		}
		var p CommandPolicy
		if key := "commands." + name + ".pm"; v.IsSet(key) {
			p.PM = boolPtr(v.GetBool(key))
		}
		if key := "commands." + name + ".channel"; v.IsSet(key) {
			p.Channel = boolPtr(v.GetBool(key))
		}
		commands[name] = p
	}
	return commands
}

// loadMessages accepts both single templates and ordered lists of lines.
func loadMessages(v *viper.Viper) map[string][]string {
	messages := make(map[string][]string)
	for key := range v.GetStringMap("messages") {
		switch raw := v.Get("messages." + key).(type) {
		case string:
			messages[key] = []string{raw}
		case []interface{}:
			lines := make([]string, 0, len(raw))
			for _, l := range raw {
				lines = append(lines, fmt.Sprint(l))
			}
			messages[key] = lines
		default:
			messages[key] = v.GetStringSlice("messages." + key)
		}
	}
	return messages
}

func loadCoin(v *viper.Viper) (Coin, error) {
	coin := Coin{
		FullName:         v.GetString("coin.full_name"),
		ShortName:        v.GetString("coin.short_name"),
		MinConfirmations: v.GetInt("coin.min_confirmations"),
		Decimals:         int32(v.GetInt("coin.decimals")),
		Raw:              v.GetStringMapString("coin"),
	}

	amounts := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"coin.min_tip", &coin.MinTip},
		{"coin.min_rain", &coin.MinRain},
		{"coin.min_withdraw", &coin.MinWithdraw},
		{"coin.withdrawal_fee", &coin.WithdrawalFee},
	}
	for _, a := range amounts {
		raw := v.GetString(a.key)
		if raw == "" {
			*a.dst = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Coin{}, &Error{Msg: fmt.Sprintf("%s is not a valid amount", a.key), Err: err}
		}
		if d.IsNegative() {
			return Coin{}, &Error{Msg: fmt.Sprintf("%s must not be negative", a.key)}
		}
		*a.dst = d
	}
	return coin, nil
}

// IsConfigError reports whether err is a fatal configuration problem.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Message returns the template lines for key, or fallback when it is not configured.
func (c *Config) Message(key string, fallback ...string) []string {
	if lines, ok := c.Messages[key]; ok && len(lines) > 0 {
		return lines
	}
	return fallback
}

func boolPtr(b bool) *bool {
	return &b
}
