// Package main is the entry point for the voice agent session client.
//
// Usage:
//
//	voice-agent [--env dev]
//	voice-agent version
package main

import (
	"fmt"
	"os"

	"github.com/dkeye/VoiceAgent/cmd/client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
