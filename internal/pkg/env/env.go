package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file. Process variables win over it
// so hosted deployments can override a checked-in file.
var Env = map[string]string{}

// candidate locations relative to the working directory of the binaries
var envFiles = []string{
	".env",
	"../../.env", // go run from cmd/coinschool or cmd/migrate
}

func GetEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(Env[key]); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns def when key is unset or not a positive integer.
func GetEnvInt(key string, def int) int {
	n, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// SetupEnvFile loads the first readable .env file and returns its path. A
// missing file is not an error.
func SetupEnvFile() string {
	for _, path := range envFiles {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		Env = values
		log.Infof("[Env] Loaded %s", path)
		return path
	}

	Env = map[string]string{}
	log.Info("[Env] No .env file found, using process environment only")
	return ""
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
