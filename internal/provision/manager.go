package provision

import (
	"fmt"
	"strings"
)

// Manager describes how one OS package manager probes and installs packages.
// %s in Probe is replaced by a package name, in Install by the package list.
type Manager struct {
	Name    string
	Probe   string
	Update  string
	Install string
	Env     map[string]string
}

var managers = map[string]Manager{
	"apt": {
		Name:    "apt",
		Probe:   "apt-cache show %s >/dev/null 2>&1",
		Update:  "apt-get update -q",
		Install: "apt-get install -y -q --no-install-recommends %s",
		Env:     map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	},
	"apk": {
		Name:    "apk",
		Probe:   "apk info -e %s >/dev/null 2>&1 || apk search -qe %s | grep -q .",
		Update:  "apk update -q",
		Install: "apk add --no-cache %s",
	},
	"dnf": {
		Name:    "dnf",
		Probe:   "dnf info -q %s >/dev/null 2>&1",
		Install: "dnf install -y -q %s",
	},
	"brew": {
		Name:    "brew",
		Probe:   "brew info %s >/dev/null 2>&1",
		Install: "brew install %s",
	},
}

// LookupManager returns a known package manager by name
func LookupManager(name string) (Manager, error) {
	if name == "" {
		name = "apt"
	}
	m, ok := managers[name]
	if !ok {
		return Manager{}, fmt.Errorf("unknown package manager %q", name)
	}
	return m, nil
}

func (m Manager) ProbeScript(pkg string) string {
	return strings.ReplaceAll(m.Probe, "%s", pkg)
}

func (m Manager) InstallScript(pkgs []string, sudo bool) string {
	prefix := ""
	if sudo && m.Name != "brew" {
		prefix = "sudo "
	}
	install := prefix + strings.ReplaceAll(m.Install, "%s", strings.Join(pkgs, " "))
	if m.Update == "" {
		return install
	}
	return prefix + m.Update + " && " + install
}
