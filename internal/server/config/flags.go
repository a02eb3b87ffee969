package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-b string   storage backend (postgres|memory)
//	-d string   PostgreSQL DSN
//	-s string   HMAC master secret
//	-k string   signing key id
//	-i string   issuer
//	-m int      max expiration, minutes
//	-l string   log level
//	-o string   OTLP endpoint
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with -c/-config and -env-file.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-b", "-d", "-s", "-k", "-i", "-m", "-l", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SigningKeyID, "k", config.SigningKeyID, "signing key id")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "token issuer")

	maxExpiration := fs.Int("m", int(config.MaxExpiration.Minutes()), "max expiration (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.OTLPEndpoint, "o", config.OTLPEndpoint, "OTLP gRPC endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MaxExpiration = time.Duration(*maxExpiration) * time.Minute
}
