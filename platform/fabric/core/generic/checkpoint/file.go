/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils"
	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"golang.org/x/sys/unix"
)

const lockRetryInterval = 10 * time.Millisecond

// filePersister writes the record to a single file.
// Exclusive access is guarded by an advisory lock on a sibling file, so that
// replacing the record file does not release it.
type filePersister struct {
	path string
	lock *os.File
}

// OpenFile returns a store backed by the file at path. The file is created if it does not exist.
// If another store holds the file, OpenFile waits up to lockTimeout and then fails with ErrLocked.
func OpenFile(path string, lockTimeout time.Duration) (Store, error) {
	if len(path) == 0 {
		return nil, errors.New("checkpoint file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed creating directory of [%s]", path)
	}
	lock, err := acquireLock(path+".lock", lockTimeout)
	if err != nil {
		return nil, err
	}
	s, err := newStore(&filePersister{path: path, lock: lock})
	if err != nil {
		releaseLock(lock)
		return nil, err
	}
	logger.Debugf("opened checkpoint file [%s] at block [%d]", path, s.BlockNumber())
	return s, nil
}

func (p *filePersister) load() (state, error) {
	raw, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		initial := newState(Unset, nil)
		if err := p.save(initial); err != nil {
			return state{}, errors.Wrapf(err, "failed writing initial checkpoint [%s]", p.path)
		}
		return initial, nil
	}
	if err != nil {
		return state{}, errors.Wrapf(err, "failed reading checkpoint [%s]", p.path)
	}
	s, err := decodeRecord(raw)
	if err != nil {
		return state{}, errors.WithMessagef(err, "checkpoint [%s]", p.path)
	}
	return s, nil
}

// save writes a temporary file, syncs it, renames it over the record and syncs the directory
func (p *filePersister) save(s state) error {
	raw, err := encodeRecord(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	tmp := utils.TempPath(p.path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed creating [%s]", tmp)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed writing [%s]", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed syncing [%s]", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed closing [%s]", tmp)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed replacing [%s]", p.path)
	}
	return syncDir(dir)
}

func (p *filePersister) close() error {
	return releaseLock(p.lock)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "failed opening directory [%s]", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrapf(err, "failed syncing directory [%s]", dir)
	}
	return nil
}

// acquireLock takes an exclusive flock on path, retrying until the timeout expires
func acquireLock(path string, timeout time.Duration) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening lock file [%s]", path)
	}
	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, errors.Wrapf(err, "failed locking [%s]", path)
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return nil, errors.Wrapf(ErrLocked, "[%s]", path)
		}
		time.Sleep(lockRetryInterval)
	}
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed unlocking [%s]", f.Name())
	}
	return f.Close()
}
