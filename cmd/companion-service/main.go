package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/companionos/companion/companionservice"
)

func main() {
	buildTarget := flag.String("build-target", "", "override COMPANION_BUILD_TARGET (local, cloud-dev, cloud)")
	flag.Parse()

	if err := companionservice.Run(*buildTarget); err != nil {
		log.Error().Err(err).Msg("companion-service exited with error")
		os.Exit(1)
	}
}
