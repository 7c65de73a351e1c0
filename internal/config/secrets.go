package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: credentials are
// masked and slices are cloned so the copy cannot alias cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, s := range []*string{
		&out.Supabase.DSN,
		&out.Supabase.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Exchange.QuoteFallbacks = slices.Clone(cfg.Exchange.QuoteFallbacks)
	if cfg.Pairs != nil {
		out.Pairs = make([]PairConfig, len(cfg.Pairs))
		for i, p := range cfg.Pairs {
			p.AssetA = slices.Clone(p.AssetA)
			p.AssetB = slices.Clone(p.AssetB)
			out.Pairs[i] = p
		}
	}
	return out
}
