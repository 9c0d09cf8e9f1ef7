package playtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PersistenceError wraps a failure to read or write the playtime file.
type PersistenceError struct {
	Err error
	Op  string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("playtime: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RecoveryPolicy decides what happens when the persisted mapping is
// unreadable at startup.
type RecoveryPolicy string

// Recovery policies. Quarantine is the default: the bad file is renamed
// aside so history can be recovered by hand, and accounting restarts empty.
const (
	PolicyReset      RecoveryPolicy = "reset"
	PolicyQuarantine RecoveryPolicy = "quarantine"
	PolicyFail       RecoveryPolicy = "fail"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (RecoveryPolicy, error) {
	switch RecoveryPolicy(s) {
	case PolicyReset, PolicyQuarantine, PolicyFail:
		return RecoveryPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown recovery policy %q (want reset, quarantine or fail)", s)
	}
}

// load reads the mapping file. A missing file is an empty mapping. A
// corrupt file is handled per policy; unless the policy is PolicyFail the
// returned error is a warning to report, alongside a usable empty mapping.
func load(path string, policy RecoveryPolicy) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return recover_(path, policy, &PersistenceError{Op: "read " + path, Err: err})
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return recover_(path, policy, &PersistenceError{Op: "decode " + path, Err: err})
	}
	if records == nil {
		records = map[string]Record{}
	}

	return records, nil
}

// recover_ applies the startup recovery policy to an unreadable file.
func recover_(path string, policy RecoveryPolicy, perr *PersistenceError) (map[string]Record, error) {
	switch policy {
	case PolicyFail:
		return nil, perr
	case PolicyQuarantine:
		quarantine := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405Z"))
		if err := os.Rename(path, quarantine); err != nil {
			return nil, &PersistenceError{Op: "quarantine " + path, Err: err}
		}
		perr.Op += " (quarantined to " + quarantine + ")"
	}

	return map[string]Record{}, perr
}

// save writes the full mapping durably: serialize to a temporary file in
// the same directory, fsync, then rename over the old file. A crash
// mid-write leaves the previous file intact.
func save(path string, records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".playtime-*.json")
	if err != nil {
		return &PersistenceError{Op: "create temp", Err: err}
	}

	if _, err := tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return &PersistenceError{Op: "write " + tmp.Name(), Err: err}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return &PersistenceError{Op: "replace " + path, Err: err}
	}

	return nil
}
