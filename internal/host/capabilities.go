// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package host reads kernel/process state from procfs, the same way the
// teacher's host package reads /proc/meminfo and the BPF JIT sysctls.
package host

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Capability bit positions from include/uapi/linux/capability.h.
const (
	capNetAdmin = 12
	capBPF      = 39
)

// HasNetworkCapabilities reports whether the running process holds
// CAP_NET_ADMIN and CAP_BPF in its effective set, or is running as root
// (uid 0), which implies both on any kernel that predates CAP_BPF.
func HasNetworkCapabilities() (bool, error) {
	if os.Geteuid() == 0 {
		return true, nil
	}

	effective, err := effectiveCapabilities()
	if err != nil {
		return false, err
	}

	return hasBit(effective, capNetAdmin) && hasBit(effective, capBPF), nil
}

// effectiveCapabilities parses the CapEff line of /proc/self/status, the
// same procfs-scraping style host.GetMemoryInfo uses for /proc/meminfo.
func effectiveCapabilities() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, fmt.Errorf("read /proc/self/status: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed CapEff line: %q", line)
		}
		val, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("parse CapEff %q: %w", fields[1], err)
		}
		return val, nil
	}

	return 0, fmt.Errorf("CapEff not found in /proc/self/status")
}

func hasBit(mask uint64, bit uint) bool {
	return mask&(1<<bit) != 0
}

// tcxMinMajor/tcxMinMinor is the first kernel version exposing TCX
// (BPF_LINK_TYPE_TCX), per Linux 6.6's net/sched changes.
const (
	tcxMinMajor = 6
	tcxMinMinor = 6
)

// SupportsTCX reports whether the running kernel is new enough to accept a
// TCX attachment, read via uname(2) the same way the teacher's host package
// reads /proc rather than shelling out to `uname -r`.
func SupportsTCX() (bool, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false, fmt.Errorf("uname: %w", err)
	}

	major, minor, err := parseKernelRelease(unix.ByteSliceToString(uts.Release[:]))
	if err != nil {
		return false, err
	}

	if major != tcxMinMajor {
		return major > tcxMinMajor, nil
	}
	return minor >= tcxMinMinor, nil
}

func parseKernelRelease(release string) (major, minor int, err error) {
	fields := strings.SplitN(release, ".", 3)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed kernel release %q", release)
	}

	major, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse kernel major version %q: %w", fields[0], err)
	}

	minorField := fields[1]
	for i, r := range minorField {
		if r < '0' || r > '9' {
			minorField = minorField[:i]
			break
		}
	}
	minor, err = strconv.Atoi(minorField)
	if err != nil {
		return 0, 0, fmt.Errorf("parse kernel minor version %q: %w", fields[1], err)
	}

	return major, minor, nil
}

// MemoryInfo holds system memory statistics, used to decide whether the
// default ring and bus sizes should shrink on memory-constrained hosts.
type MemoryInfo struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// GetMemoryInfo reads and parses /proc/meminfo.
func GetMemoryInfo() (*MemoryInfo, error) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info := &MemoryInfo{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		val, _ := strconv.ParseUint(fields[1], 10, 64)
		valBytes := val * 1024

		switch fields[0] {
		case "MemTotal:":
			info.TotalBytes = valBytes
		case "MemAvailable:":
			info.AvailableBytes = valBytes
		}
	}

	return info, nil
}
