package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// EnvPrefix prefixes every environment key read into Config.
const EnvPrefix = "TOKENKEEPER_"

// parseEnv overlays TOKENKEEPER_* variables onto config. A dotenv file named
// by -env-file is loaded first; without the flag ./.env is tried and may be
// absent. Variables already present in the process environment win over the
// file. Unset variables leave fields untouched. Malformed values panic.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlag(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
