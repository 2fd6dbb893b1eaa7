package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/config"
	"github.com/3leaps/gopbs/internal/observability"
	"github.com/3leaps/gopbs/pkg/jobid"
	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/settings"
	"github.com/3leaps/gopbs/pkg/usage"
)

// configError marks failures to resolve the home directory or load settings.
type configError struct {
	err error
}

func (e *configError) Error() string { return "configuration: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// environment bundles what every job command needs.
type environment struct {
	home     string
	settings *settings.Settings
	store    *jobregistry.Store
	events   *zap.Logger
	closer   io.Closer
}

func loadEnvironment(ctx context.Context) (*environment, error) {
	home, err := config.ResolveHome(viper.GetString("home"))
	if err != nil {
		return nil, &configError{err: err}
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return nil, &configError{err: fmt.Errorf("create home %s: %w", home, err)}
	}
	s, err := config.Load(ctx, home, viper.GetString("config"))
	if err != nil {
		return nil, &configError{err: err}
	}

	logger := observability.CLILogger
	events, closer := observability.NewEventLogger(observability.EventLogConfig{
		Path:       filepath.Join(home, s.Log.Logfile),
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
	})
	acct := usage.NewAccountant(usage.WithLogger(logger))
	store := jobregistry.NewStore(home, jobregistry.WithAccountant(acct), jobregistry.WithLogger(logger))

	return &environment{
		home:     home,
		settings: s,
		store:    store,
		events:   events,
		closer:   closer,
	}, nil
}

func (e *environment) Close() {
	if e == nil {
		return
	}
	_ = e.events.Sync()
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

func (e *environment) allocator() *jobid.Allocator {
	return jobid.NewAllocator(filepath.Join(e.home, e.settings.Jobs.SequenceFile), jobid.Identity{
		Hostname:        e.settings.Server.Hostname,
		Domain:          e.settings.Server.Domain,
		Username:        jobid.CurrentUsername(),
		UsernameInJobID: e.settings.Jobs.UsernameInJobID,
	}, observability.CLILogger)
}
