package config

import "relaybot/internal/domain"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Discord: DiscordConfig{
			UseWebhooks:       true,
			WebhookName:       "relaybot",
			EmbedWaitSeconds:  []int{2, 3, 4},
			SendRatePerMinute: 30,
			SendBurst:         5,
			MaxRequestBytes:   100 * domain.MiB,
		},
		Forward: ForwardConfig{
			DefaultCeilingBytes:  domain.DefaultAttachmentCeiling,
			ElevatedCeilingBytes: domain.ElevatedAttachmentCeiling,
			ElevatedTier:         domain.ElevatedTier,
			SizeRetries:          1,
			SendTimeoutSeconds:   15,
			DefaultDailyLimit:    100,
			BusBuffer:            256,
			AutoDeactivate:       true,
		},
		Store: StoreConfig{
			DBPath:        "~/.relaybot/relaybot.db",
			RetentionDays: 30,
			PruneSchedule: "17 3 * * *",
		},
		Quota: QuotaConfig{
			Backend: "sqlite",
		},
		Ops: OpsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Protocol:    "grpc",
			SampleRate:  1.0,
			ServiceName: "relaybot",
		},
	}
}

// CapacityLimits converts the forward section into domain limits.
func (f ForwardConfig) CapacityLimits() domain.CapacityLimits {
	return domain.CapacityLimits{
		DefaultCeiling:  f.DefaultCeilingBytes,
		ElevatedCeiling: f.ElevatedCeilingBytes,
		ElevatedTier:    f.ElevatedTier,
	}
}
