// Package runlock не даёт двум запускам одновременно работать с одним состоянием.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked возвращается, если блокировку держит другой процесс.
var ErrLocked = errors.New("runlock: lock is held by another process")

// Lock удерживает блокировку файла.
type Lock struct {
	path string
	f    *os.File
}

// Acquire открывает (создаёт) файл и берёт неблокирующую эксклюзивную блокировку.
// Если блокировка занята, возвращает ErrLocked сразу, без ожидания.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("runlock: path is empty")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlock: open %s: %w", path, err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("runlock: lock %s: %w", path, err)
	}
	if err := writePID(f); err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("runlock: write pid to %s: %w", path, err)
	}
	return &Lock{path: path, f: f}, nil
}

var writePID = func(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return err
}

// Path возвращает путь к файлу блокировки.
func (l *Lock) Path() string { return l.path }

// Release снимает блокировку. Файл не удаляется.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("runlock: unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}
