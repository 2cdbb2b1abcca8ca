// ABOUTME: Heartbeat state collection for the fleetward agent
// ABOUTME: Application state and apt-based OS update status

package agent

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const collectTimeout = 30 * time.Second

// AppState is the per-application state reported in heartbeats.
type AppState struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Health string `json:"health"`
}

// OSUpdate is the OS update status reported in heartbeats. The server
// treats it as opaque apart from the Upgrades count.
type OSUpdate struct {
	PkgManager string `json:"pkg_manager"`
	Upgrades   int    `json:"upgrades"`
	Status     string `json:"status"`
	SudoAptOK  bool   `json:"sudo_apt_ok"`
}

// collectAppsState builds the per-app state map from the configured app
// list. Probing real app health is not implemented yet; everything
// reports as unknown.
func collectAppsState(apps []AppConfig) map[string]AppState {
	state := make(map[string]AppState, len(apps))
	for _, app := range apps {
		name := app.Name
		if name == "" {
			name = "app"
		}
		state[name] = AppState{Type: app.Type, Status: "unknown", Health: "unknown"}
	}
	return state
}

// collectOSUpdate counts upgradable apt packages and probes whether apt
// runs under passwordless sudo. Hosts without apt report unknown.
func collectOSUpdate(ctx context.Context) OSUpdate {
	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", "apt list --upgradable 2>/dev/null").Output()
	if err != nil {
		return OSUpdate{PkgManager: "apt", Upgrades: -1, Status: "unknown"}
	}

	// The first line is the "Listing..." header.
	count := 0
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	if count > 0 {
		count--
	}

	status := "up_to_date"
	if count > 0 {
		status = "outdated"
	}

	sudoOK := exec.CommandContext(ctx, "sh", "-c", "sudo -n apt -v >/dev/null 2>&1").Run() == nil

	return OSUpdate{
		PkgManager: "apt",
		Upgrades:   count,
		Status:     status,
		SudoAptOK:  sudoOK,
	}
}
