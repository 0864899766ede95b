package device

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Probe gathers host metadata. Every field is swappable so tests never
// touch the real machine.
type Probe struct {
	GOOS     string
	GOARCH   string
	Hostname func() (string, error)
	ReadFile func(name string) ([]byte, error)
	Exists   func(name string) bool
	Command  func(name string, args ...string) ([]byte, error)
	Getenv   func(key string) string
}

// HostProbe probes the running machine.
func HostProbe() Probe {
	return Probe{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		Hostname: os.Hostname,
		ReadFile: os.ReadFile,
		Exists: func(name string) bool {
			_, err := os.Stat(name)
			return err == nil
		},
		Command: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
		Getenv: os.Getenv,
	}
}

// Collect builds the registration payload for id. Values that cannot be
// determined are left nil.
func (p Probe) Collect(id string) Info {
	simulator := p.isVirtual()

	info := Info{
		DeviceID:    id,
		Type:        ptr(p.formFactor(simulator)),
		OS:          ptr(p.GOOS),
		Model:       ptr(p.GOARCH),
		IsSimulator: simulator,
	}
	if host, err := p.Hostname(); err == nil {
		info.Name = ptr(host)
	}
	info.OSVersion = ptr(p.osVersion())
	info.Brand = ptr(p.brand())
	return info
}

func (p Probe) osVersion() string {
	switch p.GOOS {
	case "linux":
		data, err := p.ReadFile("/etc/os-release")
		if err != nil {
			return ""
		}
		fields := parseOSRelease(data)
		if v := fields["PRETTY_NAME"]; v != "" {
			return v
		}
		return strings.TrimSpace(fields["NAME"] + " " + fields["VERSION_ID"])
	case "darwin":
		out, err := p.Command("sw_vers", "-productVersion")
		if err != nil {
			return ""
		}
		return "macOS " + strings.TrimSpace(string(out))
	case "windows":
		out, err := p.Command("cmd", "/c", "ver")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
	return ""
}

func (p Probe) brand() string {
	switch p.GOOS {
	case "darwin":
		return "Apple"
	case "linux":
		data, err := p.ReadFile("/sys/class/dmi/id/sys_vendor")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	return ""
}

var virtualProducts = []string{"virtualbox", "vmware", "kvm", "qemu", "hyper-v", "virtual machine", "parallels", "bochs"}

var containerCgroups = []string{"docker", "kubepods", "containerd", "lxc", "libpod"}

// isVirtual reports container or VM heuristics. It is a hint, not a
// security signal.
func (p Probe) isVirtual() bool {
	if p.Getenv("container") != "" || p.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}

	switch p.GOOS {
	case "linux":
		if p.Exists("/.dockerenv") || p.Exists("/run/.containerenv") {
			return true
		}
		if data, err := p.ReadFile("/proc/1/cgroup"); err == nil && containsAny(string(data), containerCgroups) {
			return true
		}
		if data, err := p.ReadFile("/sys/class/dmi/id/product_name"); err == nil && containsAny(string(data), virtualProducts) {
			return true
		}
	case "darwin":
		if out, err := p.Command("sysctl", "-n", "kern.hv_vmm_present"); err == nil && strings.TrimSpace(string(out)) == "1" {
			return true
		}
	}
	return false
}

func (p Probe) formFactor(virtual bool) string {
	switch {
	case virtual:
		return "virtual"
	case p.GOOS == "linux" && p.Getenv("DISPLAY") == "" && p.Getenv("WAYLAND_DISPLAY") == "":
		return "server"
	default:
		return "desktop"
	}
}

func parseOSRelease(data []byte) map[string]string {
	fields := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	return fields
}

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func ptr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
