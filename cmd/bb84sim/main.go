package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/qkdlab/bb84sim/cmd/bb84sim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Error().Err(err).Msg("bb84sim failed")
		os.Exit(1)
	}
}
