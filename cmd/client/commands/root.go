package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var envName string

var rootCmd = &cobra.Command{
	Use:   "voice-agent",
	Short: "Voice agent session client",
	Long: `voice-agent joins a realtime room with a voice agent and serves the
session UI over HTTP.

Configuration is read from config/config.<env>.yaml, then from VOICE_*
environment variables (.env.local and .env are loaded first).

Examples:
  voice-agent --env dev
  VOICE_TOKEN_ENDPOINT=http://localhost:3000/api/connection-details voice-agent`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogger)
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "config environment (overrides CONFIG_ENV)")
}

func initLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func setLogLevel(name string) {
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", name).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(level)
}
