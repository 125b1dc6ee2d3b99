package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// FlagValues holds parsed flags with explicit set tracking.
type FlagValues struct {
	AWSRegion         string
	AWSRegionSet      bool
	AWSProfile        string
	AWSProfileSet     bool
	Bucket            string
	BucketSet         bool
	Language          string
	LanguageSet       bool
	CONTAINER         string
	CONTAINERSet      bool
	CODECS            string
	CODECSSet         bool
	MinRecordSecs     float64
	MinRecordSecsSet  bool
	MaxRecordSecs     float64
	MaxRecordSecsSet  bool
	PollInterval      float64
	PollIntervalSet   bool
	PollTimeout       float64
	PollTimeoutSet    bool
	MaxInFlight       int
	MaxInFlightSet    bool
	Hotkey            string
	HotkeySet         bool
	PasteKey          string
	PasteKeySet       bool
	RestoreClipboard  bool
	RestoreClipSet    bool
	Notification      bool
	NotificationSet   bool
	LogLevel          string
	LogLevelSet       bool
	LogFormat         string
	LogFormatSet      bool
	FFMPEG_DEBUG      bool
	FFMPEG_DEBUGSet   bool
	RECORD_DEBUG      bool
	RECORD_DEBUGSet   bool
	HOTKEY_DEBUG      bool
	HOTKEY_DEBUGSet   bool
	UPLOAD_DEBUG      bool
	UPLOAD_DEBUGSet   bool
	EnableHTTP2       bool
	EnableHTTP2Set    bool
	VerifySSL         bool
	VerifySSLSet      bool
	RequestTimeout    int
	RequestTimeoutSet bool
}

type stringFlag struct {
	target *string
	set    *bool
}

func (s *stringFlag) String() string {
	if s == nil || s.target == nil {
		return ""
	}
	return *s.target
}

func (s *stringFlag) Set(v string) error {
	if s.target != nil {
		*s.target = v
	}
	if s.set != nil {
		*s.set = true
	}
	return nil
}

type intFlag struct {
	target *int
	set    *bool
}

func (i *intFlag) String() string {
	if i == nil || i.target == nil {
		return ""
	}
	return strconv.Itoa(*i.target)
}

func (i *intFlag) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if i.target != nil {
		*i.target = n
	}
	if i.set != nil {
		*i.set = true
	}
	return nil
}

type floatFlag struct {
	target *float64
	set    *bool
}

func (f *floatFlag) String() string {
	if f == nil || f.target == nil {
		return ""
	}
	return fmt.Sprintf("%v", *f.target)
}

func (f *floatFlag) Set(v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	if f.target != nil {
		*f.target = n
	}
	if f.set != nil {
		*f.set = true
	}
	return nil
}

type boolFlag struct {
	target *bool
	set    *bool
}

func (b *boolFlag) String() string {
	if b == nil || b.target == nil {
		return ""
	}
	return fmt.Sprintf("%v", *b.target)
}

// IsBoolFlag lets "-notification" be passed without a value.
func (b *boolFlag) IsBoolFlag() bool { return true }

func parseBoolExt(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", v)
}

func (b *boolFlag) Set(v string) error {
	n, err := parseBoolExt(v)
	if err != nil {
		return err
	}
	if b.target != nil {
		*b.target = n
	}
	if b.set != nil {
		*b.set = true
	}
	return nil
}

// BindFlags registers all flags and returns the populated FlagValues.
func BindFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{}

	fs.Var(&stringFlag{&fv.AWSRegion, &fv.AWSRegionSet}, "region", "AWS region")
	fs.Var(&stringFlag{&fv.AWSProfile, &fv.AWSProfileSet}, "profile", "AWS shared config profile")
	fs.Var(&stringFlag{&fv.Bucket, &fv.BucketSet}, "bucket", "S3 bucket for temporary audio (derived from account id when empty)")
	fs.Var(&stringFlag{&fv.Language, &fv.LanguageSet}, "language", "transcription language code (e.g. en-US)")

	fs.Var(&stringFlag{&fv.CONTAINER, &fv.CONTAINERSet}, "container", "upload container (WAV, FLAC, OGG, MP3, ...)")
	fs.Var(&stringFlag{&fv.CODECS, &fv.CODECSSet}, "codecs", "audio codec for non-WAV containers (e.g. FLAC, OPUS)")
	fs.Var(&floatFlag{&fv.MinRecordSecs, &fv.MinRecordSecsSet}, "min-record-seconds", "shortest recording that is transcribed")
	fs.Var(&floatFlag{&fv.MaxRecordSecs, &fv.MaxRecordSecsSet}, "max-record-seconds", "cap on captured audio, 0 = unlimited")

	fs.Var(&floatFlag{&fv.PollInterval, &fv.PollIntervalSet}, "poll-interval", "job status poll interval seconds (float)")
	fs.Var(&floatFlag{&fv.PollTimeout, &fv.PollTimeoutSet}, "poll-timeout", "give up polling after seconds, 0 = never")
	fs.Var(&intFlag{&fv.MaxInFlight, &fv.MaxInFlightSet}, "max-in-flight", "concurrent transcriptions before new ones are rejected")
	fs.Var(&intFlag{&fv.RequestTimeout, &fv.RequestTimeoutSet}, "request-timeout", "request timeout seconds")
	fs.Var(&boolFlag{&fv.EnableHTTP2, &fv.EnableHTTP2Set}, "enable-http2", "enable HTTP/2 (true/false)")
	fs.Var(&boolFlag{&fv.VerifySSL, &fv.VerifySSLSet}, "verify-ssl", "verify TLS certificates (true/false)")

	fs.Var(&stringFlag{&fv.Hotkey, &fv.HotkeySet}, "hotkey", "push-to-talk chord (e.g. ctrl+shift+space)")
	fs.Var(&stringFlag{&fv.PasteKey, &fv.PasteKeySet}, "paste-key", "paste keystroke (e.g. ctrl+v)")
	fs.Var(&boolFlag{&fv.RestoreClipboard, &fv.RestoreClipSet}, "restore-clipboard", "restore clipboard after pasting (true/false)")
	fs.Var(&boolFlag{&fv.Notification, &fv.NotificationSet}, "notification", "enable notifications (true/false)")

	fs.Var(&stringFlag{&fv.LogLevel, &fv.LogLevelSet}, "log-level", "log level (debug, info, warn, error)")
	fs.Var(&stringFlag{&fv.LogFormat, &fv.LogFormatSet}, "log-format", "log format (console, json)")
	fs.Var(&boolFlag{&fv.FFMPEG_DEBUG, &fv.FFMPEG_DEBUGSet}, "ffmpeg-debug", "enable ffmpeg debug output (true/false)")
	fs.Var(&boolFlag{&fv.RECORD_DEBUG, &fv.RECORD_DEBUGSet}, "record-debug", "enable record debug output (true/false)")
	fs.Var(&boolFlag{&fv.HOTKEY_DEBUG, &fv.HOTKEY_DEBUGSet}, "hotkey-debug", "enable hotkey debug output (true/false)")
	fs.Var(&boolFlag{&fv.UPLOAD_DEBUG, &fv.UPLOAD_DEBUGSet}, "upload-debug", "enable upload debug output (true/false)")

	return fv
}

// ApplyFlags applies present flags to the config.
func ApplyFlags(cfg *Config, fv *FlagValues) {
	if fv.AWSRegionSet {
		cfg.AWSRegion = fv.AWSRegion
	}
	if fv.AWSProfileSet {
		cfg.AWSProfile = fv.AWSProfile
	}
	if fv.BucketSet {
		cfg.Bucket = fv.Bucket
	}
	if fv.LanguageSet {
		cfg.Language = fv.Language
	}

	if fv.CONTAINERSet {
		cfg.CONTAINER = fv.CONTAINER
	}
	if fv.CODECSSet {
		cfg.CODECS = fv.CODECS
	}
	if fv.MinRecordSecsSet {
		cfg.MinRecordSecs = fv.MinRecordSecs
	}
	if fv.MaxRecordSecsSet {
		cfg.MaxRecordSecs = fv.MaxRecordSecs
	}

	if fv.PollIntervalSet {
		cfg.PollInterval = fv.PollInterval
	}
	if fv.PollTimeoutSet {
		cfg.PollTimeout = fv.PollTimeout
	}
	if fv.MaxInFlightSet {
		cfg.MaxInFlight = fv.MaxInFlight
	}
	if fv.RequestTimeoutSet {
		cfg.RequestTimeout = fv.RequestTimeout
	}
	if fv.EnableHTTP2Set {
		cfg.EnableHTTP2 = fv.EnableHTTP2
	}
	if fv.VerifySSLSet {
		cfg.VerifySSL = fv.VerifySSL
	}

	if fv.HotkeySet {
		cfg.Hotkey = fv.Hotkey
	}
	if fv.PasteKeySet {
		cfg.PasteKey = fv.PasteKey
	}
	if fv.RestoreClipSet {
		cfg.RestoreClipboard = fv.RestoreClipboard
	}
	if fv.NotificationSet {
		cfg.Notification = fv.Notification
	}

	if fv.LogLevelSet {
		cfg.LogLevel = fv.LogLevel
	}
	if fv.LogFormatSet {
		cfg.LogFormat = fv.LogFormat
	}
	if fv.FFMPEG_DEBUGSet {
		cfg.FFMPEG_DEBUG = fv.FFMPEG_DEBUG
	}
	if fv.RECORD_DEBUGSet {
		cfg.RECORD_DEBUG = fv.RECORD_DEBUG
	}
	if fv.HOTKEY_DEBUGSet {
		cfg.HOTKEY_DEBUG = fv.HOTKEY_DEBUG
	}
	if fv.UPLOAD_DEBUGSet {
		cfg.UPLOAD_DEBUG = fv.UPLOAD_DEBUG
	}
}
