package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Browser: BrowserConfig{
			Engine:              "chromedp",
			ProfileDir:          "~/.webchat/browser-profile",
			Headless:            false,
			ReadyTimeoutSeconds: 15,
		},
		Site: SiteConfig{
			Profile:     "gemini",
			ProfilesDir: "~/.webchat/sites",
		},
		Detect: DetectConfig{
			PollIntervalMs:  500,
			StableTicks:     3,
			MinLength:       10,
			TimeoutSeconds:  45,
			FallbackMinLine: 20,
		},
		Display: DisplayConfig{
			Markdown: true,
		},
		Relay: RelayConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Stats: StatsConfig{
			Enabled: true,
			DBPath:  "~/.webchat/stats.db",
		},
	}
}
