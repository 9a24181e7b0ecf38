package plog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitLevelWritesLogFileWithSpecifiedLevel(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "parafs.log")
	t.Setenv("PARAFS_LOG_SINK", "file:"+logPath)
	defer os.Unsetenv("PARAFS_LOG_SINK")

	InitLevel("debug")
	require.NotNil(t, Log)
	Debug("probe_debug_message")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "probe_debug_message")
}

func TestLogFuncsAreNoOpsBeforeInit(t *testing.T) {
	prev := Log
	Log = nil
	defer func() { Log = prev }()

	require.NotPanics(t, func() {
		Debug("x")
		Info("x")
		Warn("x")
		Error("x")
	})
}

func TestFacilityInitializesLogIfNil(t *testing.T) {
	prev := Log
	Log = nil
	t.Setenv("PARAFS_LOG_SINK", "")
	defer func() { Log = prev }()

	l := Facility("bytestream")
	require.NotNil(t, l)
	require.NotNil(t, Log)
}

func TestAttachAuditFileSinkRejectsPermissiveExistingDir(t *testing.T) {
	dir := t.TempDir()
	auditDir := filepath.Join(dir, "audit")
	require.NoError(t, os.MkdirAll(auditDir, 0o777))
	require.NoError(t, os.Chmod(auditDir, 0o777))

	err := AttachAuditFileSink(auditDir)
	require.Error(t, err)
}

func TestAttachAuditFileSinkCreatesAuditLog(t *testing.T) {
	dir := t.TempDir()
	auditDir := filepath.Join(dir, "audit")

	err := AttachAuditFileSink(auditDir)
	require.NoError(t, err)
	require.NotNil(t, Audit)
	Audit = nil

	data, err := os.ReadFile(filepath.Join(auditDir, "audit.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "audit_sink_attached")
}

func TestAttachAuditFileSinkRejectsEmptyDir(t *testing.T) {
	require.Error(t, AttachAuditFileSink(""))
}
