package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
)

// FileStore хранит документ в JSON-файле. Запись атомарная: временный файл
// в том же каталоге и rename.
type FileStore struct {
	path   string
	logger *zerolog.Logger
	now    func() time.Time
}

// NewFileStore создаёт файловое хранилище. dsn задаётся путём или file://путь.
func NewFileStore(dsn string, logger *zerolog.Logger) (*FileStore, error) {
	path := NormalizeFilePath(dsn)
	if path == "" {
		return nil, fmt.Errorf("state: file path is empty")
	}
	return &FileStore{path: path, logger: logging.OrNop(logger), now: time.Now}, nil
}

// Path возвращает путь к файлу состояния.
func (s *FileStore) Path() string { return s.path }

// Load читает файл. Нет файла: первый запуск; битый JSON: предупреждение
// и новое состояние; прочие ошибки ввода-вывода возвращаются.
func (s *FileStore) Load(ctx context.Context) (engine.State, error) {
	if err := ctx.Err(); err != nil {
		return engine.State{}, Fail("file", "load", err)
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug().Str("path", s.path).Msg("state file not found, first run")
		return engine.NewState(), nil
	}
	if err != nil {
		return engine.State{}, Fail("file", "load", err)
	}
	return DecodeOrFresh(data, s.path, s.logger), nil
}

// Save записывает состояние.
func (s *FileStore) Save(ctx context.Context, st engine.State) error {
	if err := ctx.Err(); err != nil {
		return Fail("file", "save", err)
	}
	data, err := Encode(st, s.now().UTC())
	if err != nil {
		return Fail("file", "save", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return Fail("file", "save", err)
	}
	s.logger.Debug().Str("path", s.path).Int("window", len(st.Window)).Msg("state saved")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// IsFile проверяет, что DSN указывает на JSON-файл: file:// или путь без схемы,
// не оканчивающийся на .db/.sqlite.
func IsFile(dsn string) bool {
	if dsn == "" {
		return false
	}
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "file://") {
		return true
	}
	if strings.Contains(lower, "://") {
		return false
	}
	return !strings.HasSuffix(lower, ".db") && !strings.HasSuffix(lower, ".sqlite")
}

// NormalizeFilePath убирает префикс file://.
func NormalizeFilePath(dsn string) string {
	if len(dsn) >= len("file://") && strings.EqualFold(dsn[:len("file://")], "file://") {
		return dsn[len("file://"):]
	}
	return dsn
}
