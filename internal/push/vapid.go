package push

import (
	"encoding/json"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/petchat/internal/logger"
)

type keyFile struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultKeysPath = "config/vapid.json"

// ResolveKeys дополняет opts VAPID-ключами. Ключи из конфигурации имеют приоритет; иначе берутся
// из файла path, а при его отсутствии генерируются и сохраняются туда же.
func ResolveKeys(opts Options, path string) (Options, error) {
	if opts.PublicKey != "" && opts.PrivateKey != "" {
		return opts, nil
	}
	if path == "" {
		path = defaultKeysPath
	}
	if k, err := loadKeys(path); err == nil && k.PublicKey != "" && k.PrivateKey != "" {
		opts.PublicKey, opts.PrivateKey = k.PublicKey, k.PrivateKey
		return opts, nil
	}
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return opts, err
	}
	opts.PublicKey, opts.PrivateKey = pub, priv
	if err := saveKeys(path, keyFile{PublicKey: pub, PrivateKey: priv}); err != nil {
		logger.Errorf("push: VAPID keys generated but not saved to %s: %v", path, err)
		return opts, nil
	}
	logger.Infof("push: VAPID keys generated and saved to %s", path)
	return opts, nil
}

func loadKeys(path string) (keyFile, error) {
	var k keyFile
	data, err := os.ReadFile(path)
	if err != nil {
		return k, err
	}
	err = json.Unmarshal(data, &k)
	return k, err
}

func saveKeys(path string, k keyFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
