package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/pkg/jobid"
	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/supervisor"
)

// errUsage marks invalid command line input.
var errUsage = errors.New("invalid argument")

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// ExitWithCode logs msg with err and terminates the process with code.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err != nil {
		logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
	} else {
		logger.Error(msg, zap.Int("exit_code", code))
	}
	_ = logger.Sync()
	exitFunc(code)
}

// exitCodeFor maps an error to its foundry exit code.
func exitCodeFor(err error) int {
	var cfgErr *configError
	switch {
	case err == nil:
		return foundry.ExitSuccess
	case errors.Is(err, errUsage):
		return foundry.ExitInvalidArgument
	case errors.As(err, &cfgErr):
		return foundry.ExitConfigInvalid
	case jobregistry.IsNotFound(err):
		return foundry.ExitFileNotFound
	case jobregistry.IsReadFailure(err):
		return foundry.ExitFileReadError
	case jobid.IsWriteFailure(err), jobregistry.IsWriteFailure(err):
		return foundry.ExitFileWriteError
	case supervisor.IsSpawnFailure(err) && errors.Is(err, fs.ErrPermission):
		return foundry.ExitPermissionDenied
	case supervisor.IsSpawnFailure(err) && errors.Is(err, fs.ErrNotExist):
		return foundry.ExitMissingDependency
	default:
		return foundry.ExitFailure
	}
}
