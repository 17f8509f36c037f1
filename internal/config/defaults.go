package config

const (
	defaultDataDir              = "~/.local/share/porter"
	defaultLogDir               = "~/.local/share/porter/logs"
	defaultAPIBind              = "127.0.0.1:7733"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultChunkSize            = 200
	defaultTickInterval         = 30
	defaultErrorRetryInterval   = 15
	defaultClaimTimeoutMinutes  = 30
	defaultDispatchWorkers      = 4
	defaultShutdownGraceSeconds = 20
	defaultRequestTimeout       = 30
	defaultSourceMaxRetries     = 3
	defaultSourceRetryDelay     = 2
	defaultMinCallGapMS         = 250
	defaultMaxSubmitRetries     = 3
	defaultSubmitRetryDelay     = 5
	defaultPollInterval         = 10
	defaultMaxPollAttempts      = 60
	defaultNotifyTimeout        = 10
	defaultNotifyDedupSeconds   = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Source: Source{
			RequestTimeout: defaultRequestTimeout,
			MaxRetries:     defaultSourceMaxRetries,
			RetryDelay:     defaultSourceRetryDelay,
			MinCallGapMS:   defaultMinCallGapMS,
		},
		Target: Target{
			MinCallGapMS: defaultMinCallGapMS,
		},
		CMS: CMS{
			RequestTimeout:   defaultRequestTimeout,
			MaxSubmitRetries: defaultMaxSubmitRetries,
			SubmitRetryDelay: defaultSubmitRetryDelay,
			PollInterval:     defaultPollInterval,
			MaxPollAttempts:  defaultMaxPollAttempts,
		},
		Rewriter: Rewriter{
			RequestTimeout: defaultRequestTimeout,
		},
		Pipeline: Pipeline{
			ChunkSize:            defaultChunkSize,
			TickInterval:         defaultTickInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			ClaimTimeoutMinutes:  defaultClaimTimeoutMinutes,
			DispatchWorkers:      defaultDispatchWorkers,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			ProjectCreated:     true,
			StageFailures:      true,
			ProjectCompleted:   true,
			DedupWindowSeconds: defaultNotifyDedupSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
