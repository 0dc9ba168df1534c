package config

const (
	defaultDataDir             = "~/.local/share/lectern"
	defaultLogDir              = "~/.local/share/lectern/logs"
	defaultAPIBind             = "127.0.0.1:7611"
	defaultYieldEveryFiles     = 50
	defaultYieldEveryFolders   = 10
	defaultCompletionThreshold = 95.0
	defaultFileThrottleSeconds = 60
	defaultSidecarName         = ".lectern-progress.json"
	defaultSubtitleLanguage    = "en"
	defaultSyncTimeoutSeconds  = 15
	defaultSyncIntervalSeconds = 300
	defaultSyncBatchSize       = 100
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// DefaultVideoExtensions lists the containers treated as playable media.
var DefaultVideoExtensions = []string{
	".mp4", ".m4v", ".mkv", ".webm", ".mov", ".avi", ".ogv", ".wmv", ".flv", ".mpg", ".mpeg", ".3gp",
}

// DefaultAudioExtensions lists audio-only files that are never treated as lectures,
// even when an allowlist entry would otherwise accept them.
var DefaultAudioExtensions = []string{
	".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".oga", ".opus", ".wma",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Scanner: Scanner{
			VideoExtensions:   append([]string(nil), DefaultVideoExtensions...),
			AudioExtensions:   append([]string(nil), DefaultAudioExtensions...),
			YieldEveryFiles:   defaultYieldEveryFiles,
			YieldEveryFolders: defaultYieldEveryFolders,
		},
		Progress: Progress{
			CompletionThreshold: defaultCompletionThreshold,
			FileThrottleSeconds: defaultFileThrottleSeconds,
			SidecarName:         defaultSidecarName,
		},
		Subtitles: Subtitles{
			DefaultLanguage: defaultSubtitleLanguage,
		},
		Sync: Sync{
			TimeoutSeconds:  defaultSyncTimeoutSeconds,
			IntervalSeconds: defaultSyncIntervalSeconds,
			BatchSize:       defaultSyncBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
