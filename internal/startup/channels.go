package startup

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/config"
	"github.com/petchat/internal/email"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/notify"
	"github.com/petchat/internal/push"
	"github.com/petchat/internal/sms"
	"github.com/petchat/internal/storage"
)

// PushOptions — VAPID-ключи из конфигурации, файла или свежесгенерированные.
func PushOptions(cfg *config.Config) push.Options {
	opts, err := push.ResolveKeys(push.Options{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber: cfg.Push.Subscriber,
	}, cfg.Push.KeysFile)
	if err != nil {
		logger.Errorf("push: VAPID keys: %v (push disabled)", err)
	}
	return opts
}

// Channels собирает адаптеры внешних каналов. Ненастроенный канал пропускается с записью в лог.
func Channels(ctx context.Context, cfg *config.Config, subs storage.SubscriptionStore, pushOpts push.Options) []notify.ChannelSender {
	var out []notify.ChannelSender
	if cfg.SMTP.Host != "" && cfg.SMTP.Username != "" && cfg.SMTP.Password != "" {
		out = append(out, email.NewChannel(email.NewSender(&cfg.SMTP)))
	} else {
		logger.Info("channels: SMTP not configured, email disabled")
	}
	if ps := push.NewSender(subs, pushOpts); ps.Enabled() {
		out = append(out, ps)
	} else {
		logger.Info("channels: VAPID keys missing, push disabled")
	}
	if cfg.SMS.Enabled {
		s, err := sms.New(ctx, cfg.SMS.Region, cfg.SMS.SenderID)
		if err != nil {
			logger.Errorf("channels: sms disabled: %v", err)
		} else {
			out = append(out, s)
		}
	}
	return out
}

// AuditLogger пишет аудит в поток Redis, а без Redis или при выключенном потоке — в лог сервиса.
func AuditLogger(cfg *config.Config, rdb *redis.Client) *audit.Async {
	if cfg.Audit.Enabled && rdb != nil {
		return audit.NewAsync(audit.NewStreamWriter(rdb, cfg.Audit.Stream))
	}
	return audit.NewAsync(audit.LogWriter{})
}
