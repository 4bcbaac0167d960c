package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Sternrassler/osf-archiver/pkg/cache"
	"github.com/Sternrassler/osf-archiver/pkg/client"
	"github.com/Sternrassler/osf-archiver/pkg/sink"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx     context.Context
	Stdout  io.Writer
	Stderr  io.Writer
	RunID   string
	Client  *client.Client
	Objects *sink.ObjectStore

	// Cache is nil unless --redis-url is set.
	Cache *cache.Manager
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Globals

	Wiki   WikiCmd   `cmd:"" help:"Dump every wiki page of a registration or node"`
	Files  FilesCmd  `cmd:"" help:"Download and extract a project's osfstorage files"`
	Upload UploadCmd `cmd:"" help:"Upload a local directory to the archival bucket"`
}

// Globals are the flags shared by all commands.
type Globals struct {
	APIURL            string        `name:"api-url" env:"OSF_API_URL" default:"https://api.osf.io/" help:"OSF API root"`
	Token             string        `env:"OSF_TOKEN" help:"OSF personal access token"`
	Cooldown          string        `env:"SLEEP_PERIOD" default:"60s" help:"Wait before resubmitting a throttled request (seconds or duration)"`
	MaxAttempts       int           `env:"OSF_MAX_ATTEMPTS" default:"0" help:"Give up after this many attempts per request (0 retries forever)"`
	RequestsPerSecond float64       `env:"OSF_REQUESTS_PER_SECOND" default:"0" help:"Pace outgoing requests (0 disables pacing)"`
	UserAgent         string        `env:"OSF_USER_AGENT" default:"osf-archiver/1.0" help:"User-Agent header"`
	HeaderTimeout     time.Duration `name:"header-timeout" env:"OSF_HEADER_TIMEOUT" default:"0s" help:"Give up on a response whose headers take longer (0 waits forever); bodies are never timed out"`
	RedisURL          string        `name:"redis-url" env:"REDIS_URL" help:"Redis URL for the response cache (disabled when empty)"`
	LogLevel          string        `env:"LOG_LEVEL" default:"info" help:"Log level (debug, info, warn, error)"`
	LogPretty         bool          `env:"LOG_PRETTY" help:"Human-readable log output"`
	MetricsFile       string        `env:"METRICS_FILE" type:"path" help:"Write metrics to this file in textfile collector format"`

	S3 S3Flags `embed:"" prefix:"s3-" group:"Object storage"`
}

// S3Flags configure the S3-compatible archival bucket.
type S3Flags struct {
	Endpoint   string `env:"IA_S3_ENDPOINT" default:"s3.us.archive.org" help:"S3 endpoint host"`
	AccessKey  string `env:"IA_ACCESS_KEY" help:"S3 access key"`
	SecretKey  string `env:"IA_SECRET_KEY" help:"S3 secret key"`
	Region     string `env:"IA_S3_REGION" help:"S3 region"`
	Insecure   bool   `env:"IA_S3_INSECURE" help:"Use plain HTTP"`
	Collection string `env:"OSF_COLLECTION_NAME" help:"Collection metadata attached to every object"`
}

// WikiCmd is the "wiki" subcommand.
type WikiCmd struct {
	GUID           string `name:"guid" short:"i" required:"" help:"GUID of the registration or node"`
	OutputDir      string `type:"path" default:"." help:"Directory wiki pages are written to"`
	Kind           string `default:"registrations" enum:"registrations,nodes" help:"Resource kind"`
	Sink           string `default:"dir" enum:"dir,s3" help:"Write to a directory or to the bucket"`
	Bucket         string `env:"IA_BUCKET" help:"Bucket for --sink=s3"`
	Prefix         string `help:"Object name prefix for --sink=s3"`
	MaxConcurrency int    `short:"c" default:"0" help:"Concurrent fetch limit (0 is unbounded)"`
	Refresh        bool   `help:"Drop cached listing pages of this wiki before dumping"`
}

// FilesCmd is the "files" subcommand.
type FilesCmd struct {
	GUID        string `name:"guid" short:"i" required:"" help:"GUID of the project"`
	Directory   string `type:"path" default:"." help:"Files are extracted to <directory>/<guid>/files"`
	FilesURL    string `name:"files-url" env:"OSF_FILES_URL" help:"Root of the v1 resources API (defaults to --api-url)"`
	KeepArchive bool   `help:"Keep the downloaded zip"`
}

// UploadCmd is the "upload" subcommand.
type UploadCmd struct {
	Bucket         string `required:"" env:"IA_BUCKET" help:"Target bucket"`
	Source         string `required:"" type:"existingdir" help:"Directory to upload"`
	MaxConcurrency int    `short:"c" default:"0" help:"Concurrent upload limit (0 is unbounded)"`
}

// parseCooldown accepts a bare number of seconds, as SLEEP_PERIOD has
// always been given, or a Go duration.
func parseCooldown(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("cooldown must be >= 0 (got %s)", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cooldown %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("cooldown must be >= 0 (got %s)", s)
	}
	return d, nil
}
