// Package locator discovers the managed server process among all live OS
// processes. The control plane never holds on to a child handle: the server
// may have been started outside our control, so every operation re-discovers
// it by name scan.
package locator

import (
	"os/exec"
	"strconv"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessNames are the executable names recognized as the managed server.
var ProcessNames = []string{"cliproxyapi-plus", "cli-proxy-api"}

// Ref points at a discovered process. It is advisory: the process may exit
// between discovery and use, and callers must tolerate that.
// Degraded refs come from the pgrep fallback and carry no telemetry.
type Ref struct {
	PID      int32
	Name     string
	Degraded bool
}

// Scanner finds processes whose reported name contains one of Names.
type Scanner struct {
	Names []string
}

func New() *Scanner { return &Scanner{Names: ProcessNames} }

// Find scans all live processes and returns the first match, or (nil, nil)
// when no matching process exists. If rich process introspection fails
// entirely, it falls back to pgrep and returns a degraded ref.
func (s *Scanner) Find() (*Ref, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return s.findPgrep(), nil
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if matched, want := matchName(name, s.Names); matched {
			return &Ref{PID: p.Pid, Name: want}, nil
		}
	}
	return nil, nil
}

// Telemetry returns best-effort memory (resident MB) and start time for ref.
// Degraded refs and introspection failures yield nils, never errors.
func (s *Scanner) Telemetry(ref *Ref) (memMB *float64, startedAt *time.Time) {
	if ref == nil || ref.Degraded {
		return nil, nil
	}
	p, err := gopsproc.NewProcess(ref.PID)
	if err != nil {
		return nil, nil
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		mb := float64(int(float64(mi.RSS)/1024/1024*10+0.5)) / 10
		memMB = &mb
	}
	if unix := procStartUnix(int(ref.PID)); unix > 0 {
		t := time.Unix(unix, 0)
		startedAt = &t
	}
	return memMB, startedAt
}

// findPgrep shells out to pgrep -f and parses the first reported pid.
// This path yields no telemetry.
func (s *Scanner) findPgrep() *Ref {
	for _, name := range s.Names {
		out, err := exec.Command("pgrep", "-f", name).Output()
		if err != nil {
			continue
		}
		pid, ok := firstPID(string(out))
		if !ok {
			continue
		}
		return &Ref{PID: int32(pid), Name: name, Degraded: true}
	}
	return nil
}

// matchName reports whether the observed process name contains any of the
// wanted names, returning the wanted name that matched.
func matchName(observed string, wanted []string) (bool, string) {
	for _, w := range wanted {
		if strings.Contains(observed, w) {
			return true, w
		}
	}
	return false, ""
}

// firstPID parses the first whitespace-separated token of pgrep output.
func firstPID(out string) (int, bool) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
