package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/roomsync/internal/app"
	"github.com/sharetube/roomsync/pkg/configvar"
)

var (
	secret = configvar.Var[string]{
		EnvKey:  "RELAY_SECRET",
		FlagKey: "secret",
		Usage:   "Token signing secret",
	}
	host = configvar.Var[string]{
		EnvKey:       "RELAY_HOST",
		FlagKey:      "host",
		DefaultValue: "0.0.0.0",
		Usage:        "Relay host",
	}
	port = configvar.Var[int]{
		EnvKey:       "RELAY_PORT",
		FlagKey:      "port",
		DefaultValue: 8080,
		Usage:        "Relay port",
	}
	logLevel = configvar.Var[string]{
		EnvKey:       "RELAY_LOG_LEVEL",
		FlagKey:      "log-level",
		DefaultValue: "INFO",
		Usage:        "Logging level",
	}
	membersLimit = configvar.Var[int]{
		EnvKey:       "RELAY_MEMBERS_LIMIT",
		FlagKey:      "members-limit",
		DefaultValue: 10,
		Usage:        "Maximum number of guests in a room",
	}
	heartbeatInterval = configvar.Var[time.Duration]{
		EnvKey:       "RELAY_HEARTBEAT_INTERVAL",
		FlagKey:      "heartbeat-interval",
		DefaultValue: 30 * time.Second,
		Usage:        "Interval between heartbeats on push streams",
	}
	musicTTL = configvar.Var[time.Duration]{
		EnvKey:       "RELAY_MUSIC_TTL",
		FlagKey:      "music-ttl",
		DefaultValue: 5 * time.Second,
		Usage:        "How long a shared state is handed to joiners",
	}
	onlineTTL = configvar.Var[time.Duration]{
		EnvKey:       "RELAY_ONLINE_TTL",
		FlagKey:      "online-ttl",
		DefaultValue: 45 * time.Second,
		Usage:        "Presence lifetime without a heartbeat",
	}
	redisPort = configvar.Var[int]{
		EnvKey:       "REDIS_PORT",
		FlagKey:      "redis-port",
		DefaultValue: 6379,
		Usage:        "Redis port",
	}
	redisHost = configvar.Var[string]{
		EnvKey:       "REDIS_HOST",
		FlagKey:      "redis-host",
		DefaultValue: "localhost",
		Usage:        "Redis host",
	}
	redisPassword = configvar.Var[string]{
		EnvKey:  "REDIS_PASSWORD",
		FlagKey: "redis-password",
		Usage:   "Redis password",
	}
	issueToken = configvar.Var[string]{
		EnvKey:  "RELAY_ISSUE_TOKEN",
		FlagKey: "issue-token",
		Usage:   "Print a viewer token for this email and exit",
	}
	tokenTTL = configvar.Var[time.Duration]{
		EnvKey:  "RELAY_TOKEN_TTL",
		FlagKey: "token-ttl",
		Usage:   "Lifetime of issued tokens, 0 for none",
	}
)

func loadRelayConfig() (*app.RelayConfig, *viper.Viper) {
	fs := pflag.CommandLine
	v := viper.GetViper()

	for _, register := range []func(*pflag.FlagSet, *viper.Viper){
		secret.Register, host.Register, port.Register, logLevel.Register,
		membersLimit.Register, heartbeatInterval.Register, musicTTL.Register,
		onlineTTL.Register, redisPort.Register, redisHost.Register,
		redisPassword.Register, issueToken.Register, tokenTTL.Register,
	} {
		register(fs, v)
	}

	if err := configvar.Load(fs, v, os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	return &app.RelayConfig{
		Secret:            secret.Get(v),
		Host:              host.Get(v),
		Port:              port.Get(v),
		LogLevel:          logLevel.Get(v),
		MembersLimit:      membersLimit.Get(v),
		HeartbeatInterval: heartbeatInterval.Get(v),
		MusicTTL:          musicTTL.Get(v),
		OnlineTTL:         onlineTTL.Get(v),
		RedisPort:         redisPort.Get(v),
		RedisHost:         redisHost.Get(v),
		RedisPassword:     redisPassword.Get(v),
	}, v
}

func main() {
	ctx := context.Background()

	relayConfig, v := loadRelayConfig()
	if err := relayConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	if email := issueToken.Get(v); email != "" {
		token, err := app.IssueToken(relayConfig, email, tokenTTL.Get(v))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(token)
		return
	}

	jsonConfig, _ := json.MarshalIndent(relayConfig, "", "  ")
	fmt.Printf("starting relay with config: %s\n", jsonConfig)

	if err := app.RunRelay(ctx, relayConfig); err != nil {
		log.Fatal(err)
	}
}
