// Package config loads gopbs settings from defaults, YAML files, environment
// variables and runtime overrides.
//
// Precedence (highest first): runtime overrides, GOPBS_* environment
// variables, --config file, $HOME/.gopbs.yaml, <home>/gopbs.yaml, defaults.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/gopbs/internal/observability"
	"github.com/3leaps/gopbs/pkg/settings"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GOPBS"

	// HomeEnv names the gopbs home directory.
	HomeEnv = "GOPBS_HOME"

	// FileName is the config file inside the gopbs home.
	FileName = "gopbs.yaml"

	// UserFileName is the per-user config file in $HOME.
	UserFileName = ".gopbs.yaml"
)

var (
	configMu  sync.RWMutex
	appConfig *settings.Settings
)

// EnvSpec maps an environment variable to a config key.
type EnvSpec struct {
	Name string
	Path string
}

// Load builds the settings for home, merging configFile when given, and
// applies overrides (nested maps keyed like the YAML file). Invalid values are
// reset to defaults with a warning. The result is also available via
// GetConfig.
func Load(ctx context.Context, home, configFile string, overrides ...map[string]any) (*settings.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	for _, path := range getConfigPaths(home) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		if err := mergeFile(v, configFile); err != nil {
			return nil, err
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var s settings.Settings
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&s, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.Normalize(observability.CLILogger)

	configMu.Lock()
	appConfig = &s
	configMu.Unlock()

	observability.CLILogger.Debug("Configuration loaded", zap.String("home", home), zap.String("config_file", configFile))
	return &s, nil
}

// GetConfig returns the most recently loaded settings, or nil.
func GetConfig() *settings.Settings {
	configMu.RLock()
	defer configMu.RUnlock()
	if appConfig == nil {
		return nil
	}
	c := *appConfig
	return &c
}

// ResolveHome returns the gopbs home directory: flag value, then $GOPBS_HOME.
func ResolveHome(flagValue string) (string, error) {
	home := strings.TrimSpace(flagValue)
	if home == "" {
		home = strings.TrimSpace(os.Getenv(HomeEnv))
	}
	if home == "" {
		return "", fmt.Errorf("gopbs home is not set: use --home or set %s", HomeEnv)
	}
	return filepath.Abs(home)
}

func mergeFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	observability.CLILogger.Debug("Merged config file", zap.String("path", path))
	return nil
}

// getConfigPaths returns the implicit config files, lowest precedence first.
func getConfigPaths(home string) []string {
	var paths []string
	if home = strings.TrimSpace(home); home != "" {
		paths = append(paths, filepath.Join(home, FileName))
	}
	if userHome, err := os.UserHomeDir(); err == nil && userHome != "" {
		paths = append(paths, filepath.Join(userHome, UserFileName))
	}
	return paths
}

// getEnvSpecs returns one GOPBS_<SECTION>_<KEY> variable per config key.
func getEnvSpecs() []EnvSpec {
	keys := make([]string, 0, len(defaultValues()))
	for key := range defaultValues() {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	specs := make([]EnvSpec, 0, len(keys))
	for _, key := range keys {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		specs = append(specs, EnvSpec{Name: name, Path: key})
	}
	return specs
}

// defaultValues returns settings.Defaults as flat dotted keys.
func defaultValues() map[string]any {
	d := settings.Defaults()
	return map[string]any{
		"server.hostname":        d.Server.Hostname,
		"server.domain":          d.Server.Domain,
		"node.hostname":          d.Node.Hostname,
		"node.domain":            d.Node.Domain,
		"jobs.username_in_jobid": d.Jobs.UsernameInJobID,
		"jobs.sequence_file":     d.Jobs.SequenceFile,
		"notification.send_mail": d.Notification.SendMail,
		"notification.send_push": d.Notification.SendPush,
		"mail.from":              d.Mail.From,
		"mail.smtp":              d.Mail.SMTP,
		"mail.username":          d.Mail.Username,
		"mail.password":          d.Mail.Password,
		"mail.authenticate":      d.Mail.Authenticate,
		"mail.tls":               d.Mail.TLS,
		"mail.timeout":           d.Mail.Timeout.String(),
		"mail.recipients":        []string{},
		"push.hosts":             d.Push.Hosts,
		"push.passwords":         d.Push.Passwords,
		"push.sticky":            d.Push.Sticky,
		"push.timeout":           d.Push.Timeout.String(),
		"log.logfile":            d.Log.Logfile,
		"log.max_size_mb":        d.Log.MaxSizeMB,
		"log.max_backups":        d.Log.MaxBackups,
	}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := map[string]any{}
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// WriteDefaults writes the default configuration to path unless the file
// already exists. It reports whether a file was written.
func WriteDefaults(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	doc := map[string]any{}
	for key, value := range defaultValues() {
		section, name, _ := strings.Cut(key, ".")
		m, ok := doc[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			doc[section] = m
		}
		m[name] = value
	}

	var node yaml.Node
	if err := node.Encode(doc); err != nil {
		return false, fmt.Errorf("encode defaults: %w", err)
	}
	node.HeadComment = "gopbs configuration. Environment variables GOPBS_<SECTION>_<KEY> override these values."
	b, err := yaml.Marshal(&node)
	if err != nil {
		return false, fmt.Errorf("marshal defaults: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
