package retention

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parafs/pkg/plog"
)

// fileLease is a single-writer advisory lock backed by a lock file,
// letting multiple parafsd processes sharing a root dir agree on which
// one runs a given sweep without stepping on each other.
type fileLease struct {
	path string
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

// NewFileLease returns a lease backed by <lockDir>/retention.lock.
func NewFileLease(lockDir string) *fileLease {
	return &fileLease{path: filepath.Join(lockDir, "retention.lock")}
}

func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	exp := now.Add(ttl)
	lf := leaseFile{Owner: owner, Expires: exp.Format(time.RFC3339)}
	b, _ := json.Marshal(lf)
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		plog.Error("retention_lease_tmp_write_failed", "path", tmp, "error", err)
		return false, err
	}
	if err := os.Link(tmp, l.path); err == nil {
		os.Remove(tmp)
		plog.Info("retention_lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		os.Remove(tmp)
		return false, err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		os.Remove(tmp)
		return false, err
	}
	expT, _ := time.Parse(time.RFC3339, existing.Expires)
	if expT.Before(now) {
		if err := os.Rename(tmp, l.path); err != nil {
			plog.Error("retention_lease_replace_failed", "error", err)
			return false, err
		}
		plog.Info("retention_lease_acquired_replaced", "path", l.path, "owner", owner)
		return true, nil
	}
	os.Remove(tmp)
	plog.Info("retention_lease_currently_held", "path", l.path, "owner", existing.Owner)
	return false, nil
}

func (l *fileLease) Renew(owner string, ttl time.Duration) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	if existing.Owner != owner {
		return fmt.Errorf("not owner")
	}
	existing.Expires = time.Now().Add(ttl).Format(time.RFC3339)
	b, _ := json.Marshal(existing)
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *fileLease) Release(owner string) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	if existing.Owner != owner {
		return fmt.Errorf("not owner")
	}
	return os.Remove(l.path)
}
