package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment.
const EnvVar = "SIGNIN_FRONT_ENV"

// IsDev reports whether we run in development mode, where cookies may be
// sent over plain http to localhost.
func IsDev() bool {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "development", "dev":
		return true
	default:
		return false
	}
}
