package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrMissingFixture = errors.New("missing fixture")

// Env holds the fixture manifest: the programs and account snapshots the
// validator is started with and the market they describe.
type Env struct {
	logger   *zap.SugaredLogger
	dir      string
	manifest *Manifest
}

func NewEnv(logger *zap.SugaredLogger) *Env {
	if logger == nil {
		logger = utils.NopLog()
	}
	return &Env{
		logger:   logger,
		manifest: &Manifest{},
	}
}

// Load reads the manifest. Snapshot and program files are resolved relative
// to the manifest's directory.
func (e *Env) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: manifest %s", ErrMissingFixture, path)
		}
		return err
	}
	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := manifest.validate(); err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}
	e.dir = filepath.Dir(path)
	e.manifest = manifest
	e.logger.Infof("load env from %s: %d programs, %d accounts", path, len(manifest.Programs), len(manifest.Accounts))
	return nil
}

func (e *Env) Manifest() *Manifest {
	return e.manifest
}

func (e *Env) path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(e.dir, file)
}

// Snapshot returns the raw account data captured for address.
func (e *Env) Snapshot(address solana.PublicKey) ([]byte, error) {
	snapshot, ok := e.manifest.account(address)
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrMissingFixture, address)
	}
	return e.readSnapshot(snapshot)
}

func (e *Env) readSnapshot(snapshot *Snapshot) ([]byte, error) {
	data, err := os.ReadFile(e.path(snapshot.File))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissingFixture, snapshot.File, snapshot.Address)
		}
		return nil, err
	}
	return data, nil
}
