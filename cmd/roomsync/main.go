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
	email = configvar.Var[string]{
		EnvKey:  "AGENT_EMAIL",
		FlagKey: "email",
		Usage:   "Viewer email, the identity of this agent's own room",
	}
	token = configvar.Var[string]{
		EnvKey:  "AGENT_TOKEN",
		FlagKey: "token",
		Usage:   "Relay token",
	}
	relayURL = configvar.Var[string]{
		EnvKey:       "AGENT_RELAY_URL",
		FlagKey:      "relay-url",
		DefaultValue: "http://localhost:8080",
		Usage:        "Relay base url",
	}
	pushTransport = configvar.Var[string]{
		EnvKey:       "AGENT_PUSH",
		FlagKey:      "push",
		DefaultValue: app.PushSSE,
		Usage:        "Push transport: sse or ws",
	}
	host = configvar.Var[string]{
		EnvKey:       "AGENT_HOST",
		FlagKey:      "host",
		DefaultValue: "127.0.0.1",
		Usage:        "Control api host",
	}
	port = configvar.Var[int]{
		EnvKey:       "AGENT_PORT",
		FlagKey:      "port",
		DefaultValue: 7070,
		Usage:        "Control api port",
	}
	dbPath = configvar.Var[string]{
		EnvKey:       "AGENT_DB_PATH",
		FlagKey:      "db-path",
		DefaultValue: "roomsync.db",
		Usage:        "Session database file",
	}
	logLevel = configvar.Var[string]{
		EnvKey:       "AGENT_LOG_LEVEL",
		FlagKey:      "log-level",
		DefaultValue: "INFO",
		Usage:        "Logging level",
	}
	playlistLimit = configvar.Var[int]{
		EnvKey:       "AGENT_PLAYLIST_LIMIT",
		FlagKey:      "playlist-limit",
		DefaultValue: 25,
		Usage:        "Maximum number of videos in the queue",
	}
	broadcastInterval = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_BROADCAST_INTERVAL",
		FlagKey:      "broadcast-interval",
		DefaultValue: 3 * time.Second,
		Usage:        "Owner state broadcast period",
	}
	pollInterval = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_POLL_INTERVAL",
		FlagKey:      "poll-interval",
		DefaultValue: time.Second,
		Usage:        "Progress poll period while playing",
	}
	retryDelay = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_RETRY_DELAY",
		FlagKey:      "retry-delay",
		DefaultValue: 3 * time.Second,
		Usage:        "Delay before reopening a failed push stream",
	}
	heartbeatTimeout = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_HEARTBEAT_TIMEOUT",
		FlagKey:      "heartbeat-timeout",
		DefaultValue: 120 * time.Second,
		Usage:        "Silence on the push stream before it is treated as dead",
	}
	driftTolerance = configvar.Var[int64]{
		EnvKey:       "AGENT_DRIFT_TOLERANCE_MS",
		FlagKey:      "drift-tolerance-ms",
		DefaultValue: 2000,
		Usage:        "Follower drift that triggers a seek",
	}
	loadDelay = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_LOAD_DELAY",
		FlagKey:      "load-delay",
		DefaultValue: 500 * time.Millisecond,
		Usage:        "Virtual player time to become ready",
	}
	videoDuration = configvar.Var[time.Duration]{
		EnvKey:       "AGENT_VIDEO_DURATION",
		FlagKey:      "video-duration",
		DefaultValue: 3 * time.Minute,
		Usage:        "Virtual player track length",
	}
)

func loadAgentConfig() *app.AgentConfig {
	fs := pflag.CommandLine
	v := viper.GetViper()

	for _, register := range []func(*pflag.FlagSet, *viper.Viper){
		email.Register, token.Register, relayURL.Register, pushTransport.Register,
		host.Register, port.Register, dbPath.Register, logLevel.Register,
		playlistLimit.Register, broadcastInterval.Register, pollInterval.Register,
		retryDelay.Register, heartbeatTimeout.Register, driftTolerance.Register,
		loadDelay.Register, videoDuration.Register,
	} {
		register(fs, v)
	}

	if err := configvar.Load(fs, v, os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	return &app.AgentConfig{
		Email:             email.Get(v),
		Token:             token.Get(v),
		RelayURL:          relayURL.Get(v),
		Push:              pushTransport.Get(v),
		Host:              host.Get(v),
		Port:              port.Get(v),
		DBPath:            dbPath.Get(v),
		LogLevel:          logLevel.Get(v),
		PlaylistLimit:     playlistLimit.Get(v),
		BroadcastInterval: broadcastInterval.Get(v),
		PollInterval:      pollInterval.Get(v),
		RetryDelay:        retryDelay.Get(v),
		HeartbeatTimeout:  heartbeatTimeout.Get(v),
		DriftToleranceMs:  driftTolerance.Get(v),
		LoadDelay:         loadDelay.Get(v),
		VideoDuration:     videoDuration.Get(v),
	}
}

func main() {
	ctx := context.Background()

	agentConfig := loadAgentConfig()
	if err := agentConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(agentConfig, "", "  ")
	fmt.Printf("starting agent with config: %s\n", jsonConfig)

	if err := app.RunAgent(ctx, agentConfig); err != nil {
		log.Fatal(err)
	}
}
