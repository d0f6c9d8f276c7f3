package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv improves local developer experience by loading a .env file
// into the process environment, if one is present. It never overrides a
// variable already set in the environment. In production, env vars are
// expected to be injected by the runtime, not read from a file.
//
// override, when non-empty (typically from a --dotenv flag), takes
// precedence over $ENV_FILE and the default ./.env path, and it is an
// error if the named file can't be read — the caller asked for it
// explicitly. The default lookup stays silent on a missing file.
func LoadDotEnv(override string) error {
	path := override
	if path == "" {
		path = os.Getenv("ENV_FILE")
	}
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	return godotenv.Load(path)
}
