package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"voicepaste/internal/app"
	"voicepaste/internal/asr"
	"voicepaste/internal/audio/ffmpeg"
	"voicepaste/internal/awsutil"
	"voicepaste/internal/clipboard"
	"voicepaste/internal/config"
	"voicepaste/internal/hotkey"
	"voicepaste/internal/logging"
	"voicepaste/internal/notify"
	"voicepaste/internal/pipeline"
	"voicepaste/internal/record"
	"voicepaste/internal/record/portaudio"
	"voicepaste/internal/storage"
	s3store "voicepaste/internal/storage/s3"
)

const (
	appName           = "voicepaste"
	defaultConfigFile = "config.json"
)

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), `Usage: %s [options]

Hold the hotkey to record; release it to transcribe and paste.

[config]
  -config <path>        config file (JSON or YAML); ./config.json is used when present
  -init-config <path>   write a default config file and exit

  Every config key can also be set as %s_<KEY> in the environment or in .env.

[options]
`, appName, config.EnvPrefix)
	fs.PrintDefaults()
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }
	configPath := fs.String("config", "", "path to config file")
	initConfig := fs.String("init-config", "", "write default config to path and exit")
	fv := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *initConfig != "" {
		if err := config.SaveDefault(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "write default config: %v\n", err)
			return 1
		}
		fmt.Printf("default config written to %s\n", *initConfig)
		return 0
	}

	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	config.ApplyFlags(&cfg, fv)
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	root := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component(root, "main", false)
	if path != "" {
		log.Info().Str("path", path).Msg("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, cfg, root); err != nil {
		log.Error().Err(err).Msg("exiting")
		return 1
	}
	log.Info().Msg("bye")
	return 0
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// start wires every component and blocks until ctx is cancelled.
func start(ctx context.Context, cfg config.Config, root zerolog.Logger) error {
	chord, err := hotkey.ParseChord(cfg.Hotkey)
	if err != nil {
		return fmt.Errorf("hotkey: %w", err)
	}

	uploadLog := logging.Component(root, "upload", cfg.UPLOAD_DEBUG)
	awsCfg, err := awsutil.Load(ctx, awsutil.Options{
		Region:    cfg.AWSRegion,
		Profile:   cfg.AWSProfile,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		return err
	}
	bucket, err := awsutil.BucketName(ctx, cfg.Bucket, sts.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	s3cfg := s3store.Config{
		Bucket:         bucket,
		Region:         awsCfg.Region,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3PathStyle,
	}
	s3cfg.ApplyDefaults()
	if err := s3cfg.Validate(); err != nil {
		return err
	}
	store := storage.New(s3store.New(s3store.NewClient(awsCfg, s3cfg), s3cfg), storage.DefaultExpiryDays, uploadLog)
	uploadLog.Info().Str("bucket", bucket).Str("region", s3cfg.Region).Msg("using temporary bucket")

	jobs := asr.NewTranscribe(asr.NewTranscribeClient(awsCfg), uploadLog)
	httpClient := asr.NewHTTPClient(asr.HTTPOptions{
		Timeout:     time.Duration(cfg.RequestTimeout) * time.Second,
		EnableHTTP2: cfg.EnableHTTP2,
		VerifySSL:   cfg.VerifySSL,
	})
	fetcher := asr.NewFetcher(httpClient, asr.FetchOptions{
		TextPath:       cfg.TEXTPath,
		MaxRetry:       cfg.MaxRetry,
		RetryBaseDelay: seconds(cfg.RetryBaseDelay),
	}, uploadLog)

	ffmpegLog := logging.Component(root, "ffmpeg", cfg.FFMPEG_DEBUG)
	ffopts := ffmpeg.Options{
		Container:  cfg.CONTAINER,
		Codec:      cfg.CODECS,
		SampleRate: cfg.SAMPLING_RATE,
		Channels:   cfg.Channels,
	}
	transcode := func(ctx context.Context, wav []byte) ([]byte, int, error) {
		out, err := ffmpeg.Convert(ctx, ffmpegLog, wav, ffopts)
		return out, ffmpeg.OutputRate(ffopts), err
	}
	pipe := pipeline.New(store, jobs, fetcher, pipeline.Options{
		ObjectPrefix:   cfg.ObjectPrefix,
		JobPrefix:      cfg.JobPrefix,
		Language:       cfg.Language,
		Container:      config.ContainerExt(cfg.CONTAINER),
		Transcode:      transcode,
		PollInterval:   seconds(cfg.PollInterval),
		PollTimeout:    seconds(cfg.PollTimeout),
		CleanupTimeout: time.Duration(cfg.CleanupTimeout) * time.Second,
	}, logging.Component(root, "pipeline", cfg.UPLOAD_DEBUG))

	session := record.New(portaudio.Device{}, record.Options{
		Stream: record.StreamConfig{
			SampleRate:      cfg.SAMPLING_RATE,
			Channels:        cfg.Channels,
			FramesPerBuffer: cfg.FramesPerBuffer,
		},
		MinDuration: seconds(cfg.MinRecordSecs),
		MaxDuration: seconds(cfg.MaxRecordSecs),
	}, logging.Component(root, "record", cfg.RECORD_DEBUG))

	deliverer, err := clipboard.New(clipboard.Options{
		PasteKey: cfg.PasteKey,
		Restore:  cfg.RestoreClipboard,
	}, logging.Component(root, "paste", false))
	if err != nil {
		return err
	}
	notifier := notify.New(cfg.Notification, appName, logging.Component(root, "notify", false))

	source, err := hotkey.NewSource(chord, logging.Component(root, "hotkey", cfg.HOTKEY_DEBUG))
	if err != nil {
		return fmt.Errorf("hotkey: %w", err)
	}

	a := app.New(source, chord, session, pipe, deliverer, notifier, app.Options{
		Title:           appName,
		MaxInFlight:     cfg.MaxInFlight,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeout) * time.Second,
	}, logging.Component(root, "app", cfg.HOTKEY_DEBUG))
	root.Info().Str("hotkey", chord.String()).Str("paste", cfg.PasteKey).Str("language", cfg.Language).Msg("voicepaste started")
	return a.Run(ctx)
}
