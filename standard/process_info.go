package standard

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// RunMode describes how the watcher process was launched.
type RunMode string

const (
	RunModeSystemd     RunMode = "systemd"
	RunModeDocker      RunMode = "docker"
	RunModeInteractive RunMode = "interactive"
)

// ProcessInfo is static information about the running watcher,
// captured once at startup.
type ProcessInfo struct {
	Name      string
	Version   string
	StartTime time.Time
	RunMode   RunMode
	Binary    string
	User      string
	GoVersion string
}

// DetectProcess captures ProcessInfo for the current process.
func DetectProcess(name, version string) *ProcessInfo {
	binary, _ := os.Executable()
	if binary != "" {
		if resolved, err := filepath.EvalSymlinks(binary); err == nil {
			binary = resolved
		}
	}

	userName := "unknown"
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}

	return &ProcessInfo{
		Name:      name,
		Version:   version,
		StartTime: time.Now().UTC(),
		RunMode:   detectRunMode(os.Getenv, os.ReadFile),
		Binary:    binary,
		User:      userName,
		GoVersion: runtime.Version(),
	}
}

// Uptime returns the time since StartTime.
func (p *ProcessInfo) Uptime() time.Duration {
	return time.Since(p.StartTime).Round(time.Second)
}

// GetData returns the info as plain data.
func (p *ProcessInfo) GetData() interface{} {
	return map[string]interface{}{
		"name":       p.Name,
		"version":    p.Version,
		"pid":        os.Getpid(),
		"start_time": p.StartTime.Format(time.RFC3339),
		"uptime":     p.Uptime().String(),
		"run_mode":   string(p.RunMode),
		"binary":     p.Binary,
		"user":       p.User,
		"go_version": p.GoVersion,
	}
}

// detectRunMode checks systemd first (INVOCATION_ID), then container markers.
func detectRunMode(getenv func(string) string, readFile func(string) ([]byte, error)) RunMode {
	if getenv("INVOCATION_ID") != "" {
		return RunModeSystemd
	}

	if _, err := readFile("/.dockerenv"); err == nil {
		return RunModeDocker
	}

	if data, err := readFile("/proc/self/cgroup"); err == nil {
		cgroup := string(data)
		if strings.Contains(cgroup, "docker") || strings.Contains(cgroup, "containerd") {
			return RunModeDocker
		}
	}

	return RunModeInteractive
}
