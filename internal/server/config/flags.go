package config

import (
	"flag"
	"os"
	"time"

	"github.com/buildvault/buildvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   ticket signing key (HS256)
//	-m string   DEK master key
//	-t int      ticket validity, seconds
//	-l int      lease validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-n string   NATS URL
//	-r string   Redis address
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-m", "-t", "-l", "-u", "-p", "-b", "-g", "-e", "-n", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "ticket signing key")
	fs.StringVar(&config.MasterKey, "m", config.MasterKey, "DEK master key")

	ticketValidity := fs.Int("t", int(config.TicketValidity.Seconds()), "ticket_validity (in seconds)")
	leaseValidity := fs.Int("l", int(config.LeaseValidity.Minutes()), "lease_validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.NatsURL, "n", config.NatsURL, "NATS URL")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "Redis address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TicketValidity = time.Duration(*ticketValidity) * time.Second
	config.LeaseValidity = time.Duration(*leaseValidity) * time.Minute
}
