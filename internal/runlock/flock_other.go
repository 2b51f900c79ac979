//go:build !unix

package runlock

import (
	"errors"
	"os"
)

// Без flock блокировка держится на эксклюзивно созданном файле-метке.
func tryLock(f *os.File) error {
	marker, err := os.OpenFile(f.Name()+".held", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return ErrLocked
	}
	if err != nil {
		return err
	}
	return marker.Close()
}

func unlock(f *os.File) error {
	return os.Remove(f.Name() + ".held")
}
