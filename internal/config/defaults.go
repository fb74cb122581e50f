package config

const (
	defaultDataDir               = "~/.local/share/castspc"
	defaultLogDir                = "~/.local/share/castspc/logs"
	defaultSnapshotDir           = "~/.local/share/castspc/snapshots"
	defaultAPIBind               = "127.0.0.1:7611"
	defaultSourceKind            = SourceSimulated
	defaultWebSocketURL          = "ws://localhost:8765"
	defaultSourceRequestTimeout  = 5
	defaultSimulatedFailRatio    = 0.25
	defaultBufferSize            = 100
	defaultBufferMaxAgeHours     = 24
	defaultRateWindowMinutes     = 60
	defaultHistorySize           = 30
	defaultUpdateIntervalSeconds = 180
	defaultMinSamples            = 5
	defaultRestoreLookbackHours  = 24
	defaultPollInterval          = 5
	defaultStoreTimeout          = 5
	defaultSnapshotSchedule      = "@every 15m"
	defaultSnapshotFormat        = SnapshotJSON
	defaultSnapshotRetentionDays = 7
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

var defaultMoldCodes = []string{"8412", "8573", "8600", "8722"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	molds := make([]string, len(defaultMoldCodes))
	copy(molds, defaultMoldCodes)
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			SnapshotDir: defaultSnapshotDir,
			APIBind:     defaultAPIBind,
		},
		Source: Source{
			Kind:           defaultSourceKind,
			WebSocketURL:   defaultWebSocketURL,
			RequestTimeout: defaultSourceRequestTimeout,
			FailRatio:      defaultSimulatedFailRatio,
			MoldCodes:      molds,
		},
		SPC: SPC{
			BufferSize:            defaultBufferSize,
			BufferMaxAgeHours:     defaultBufferMaxAgeHours,
			RateWindowMinutes:     defaultRateWindowMinutes,
			HistorySize:           defaultHistorySize,
			UpdateIntervalSeconds: defaultUpdateIntervalSeconds,
			MinSamples:            defaultMinSamples,
			RestoreLookbackHours:  defaultRestoreLookbackHours,
		},
		Workflow: Workflow{
			PollInterval:   defaultPollInterval,
			StoreTimeout:   defaultStoreTimeout,
			CollectOnStart: true,
		},
		Snapshot: Snapshot{
			Enabled:       true,
			Schedule:      defaultSnapshotSchedule,
			Format:        defaultSnapshotFormat,
			RetentionDays: defaultSnapshotRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
