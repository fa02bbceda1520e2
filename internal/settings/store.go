package settings

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// Store persists settings between runs
type Store interface {
	// Load overlays the stored values onto base
	Load(ctx context.Context, base Settings) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

var _ Store = (*EnvFileStore)(nil)

// EnvFileStore keeps settings in a dotenv file next to the rest of the
// process configuration. Unrelated keys in the file are preserved.
type EnvFileStore struct {
	path string
}

// NewEnvFileStore creates a store on path
func NewEnvFileStore(path string) *EnvFileStore {
	return &EnvFileStore{path: path}
}

// Path returns the file location
func (s *EnvFileStore) Path() string {
	return s.path
}

func (s *EnvFileStore) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	return values, nil
}

func (s *EnvFileStore) Load(ctx context.Context, base Settings) (Settings, error) {
	values, err := s.read()
	if err != nil {
		return base, err
	}
	return FromValues(values, base)
}

func (s *EnvFileStore) Save(ctx context.Context, settings Settings) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range settings.Values() {
		values[k] = v
	}
	if err := godotenv.Write(values, s.path); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}
	return nil
}
