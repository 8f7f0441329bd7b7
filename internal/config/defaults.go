package config

const (
	defaultDataDir              = "data"
	defaultStateDir             = "~/.local/state/imdata"
	defaultLogDir               = "~/.local/state/imdata/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultUserAgent            = "imdata/1.0 (+https://github.com/isle-of-man-data/imdata)"
	defaultHTTPTimeoutSeconds   = 60
	defaultHTTPRetries          = 2
	defaultHTTPRetryWaitSeconds = 2
	defaultRegistryURL          = "https://services.gov.im/ded/services/companiesregistry/"
	defaultPageSize             = 30
	defaultPageDelaySeconds     = 5
	defaultDetailsDelaySeconds  = 2
	defaultPlanningEncoding     = "iso-8859-1"
	defaultOverpassURL          = "https://overpass-api.de/api/interpreter"
	defaultOverpassTimeout      = 180
	defaultOverpassVerbosity    = "geom"
	defaultFootprintLinksURL    = "https://minedbuildings.z5.web.core.windows.net/global-buildings/dataset-links.csv"
	defaultFootprintLocation    = "IsleofMan"
	defaultRBUserAgent          = "Mozilla/5.0 (compatible; RB-PDF-Collector/1.5)"
	defaultRBDelayMin           = 1.0
	defaultRBDelayMax           = 3.0
	defaultRBTimeoutSeconds     = 45
	defaultRBRetries            = 2
	defaultRBMaxChars           = 160000
	defaultLLMBaseURL           = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel             = "gpt-4o-2024-08-06"
	defaultLLMTimeoutSeconds    = 120
	defaultLLMMaxRetries        = 3
	defaultLLMBackoffBase       = 1.5
	defaultLLMBackoffCap        = 30.0
	defaultLLMDelayMin          = 0.4
	defaultLLMDelayMax          = 1.2
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Dir:           defaultLogDir,
			RetentionDays: defaultLogRetentionDays,
		},
		HTTP: HTTP{
			UserAgent:        defaultUserAgent,
			TimeoutSeconds:   defaultHTTPTimeoutSeconds,
			Retries:          defaultHTTPRetries,
			RetryWaitSeconds: defaultHTTPRetryWaitSeconds,
		},
		Companies: Companies{
			RegistryURL:         defaultRegistryURL,
			PageSize:            defaultPageSize,
			PageDelaySeconds:    defaultPageDelaySeconds,
			DetailsDelaySeconds: defaultDetailsDelaySeconds,
		},
		Planning: Planning{
			SourceEncoding: defaultPlanningEncoding,
		},
		OpenStreetMap: OpenStreetMap{
			OverpassURL:    defaultOverpassURL,
			TimeoutSeconds: defaultOverpassTimeout,
			Verbosity:      defaultOverpassVerbosity,
		},
		Footprints: Footprints{
			LinksURL: defaultFootprintLinksURL,
			Location: defaultFootprintLocation,
		},
		Registered: Registered{
			UserAgent:       defaultRBUserAgent,
			DelayMinSeconds: defaultRBDelayMin,
			DelayMaxSeconds: defaultRBDelayMax,
			TimeoutSeconds:  defaultRBTimeoutSeconds,
			Retries:         defaultRBRetries,
			MaxChars:        defaultRBMaxChars,
		},
		LLM: LLM{
			BaseURL:            defaultLLMBaseURL,
			Model:              defaultLLMModel,
			TimeoutSeconds:     defaultLLMTimeoutSeconds,
			MaxRetries:         defaultLLMMaxRetries,
			BackoffBaseSeconds: defaultLLMBackoffBase,
			BackoffCapSeconds:  defaultLLMBackoffCap,
			DelayMinSeconds:    defaultLLMDelayMin,
			DelayMaxSeconds:    defaultLLMDelayMax,
		},
	}
}
