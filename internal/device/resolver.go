// Package device maps filesystem paths to the storage volume that
// contains them, using the OS mount table.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Type classifies a storage volume.
const (
	TypeNetwork     = "network"
	TypeInternalSSD = "internal_ssd"
	TypeInternalHDD = "internal_hdd"
	TypeExternal    = "external_drive"
	TypeUnknown     = "unknown"
)

// Info describes a resolved storage volume.
type Info struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	MountPoint string `json:"mount_point"`
	FSType     string `json:"fs_type"`
	Type       string `json:"type"`
	TotalSize  int64  `json:"total_size"`
	UsedSize   int64  `json:"used_size"`
	FreeSize   int64  `json:"free_size"`
}

// Virtual and pseudo filesystem types that never back user data.
var excludedFSTypes = map[string]bool{
	"proc": true, "sysfs": true, "devpts": true, "cgroup": true,
	"cgroup2": true, "tmpfs": true, "securityfs": true, "fusectl": true,
	"debugfs": true, "configfs": true, "hugetlbfs": true, "mqueue": true,
	"pstore": true, "efivarfs": true, "fuse.snapfuse": true,
	"fuse.gvfsd-fuse": true, "squashfs": true, "nsfs": true,
	"binfmt_misc": true, "rpc_pipefs": true, "devtmpfs": true,
	"autofs": true, "tracefs": true, "bpf": true, "ramfs": true,
	"overlay": true,
}

// Mount point prefixes that hold system mounts, not scannable volumes.
var excludedMountPrefixes = []string{
	"/proc", "/sys", "/dev", "/run", "/snap", "/boot", "/var/snap",
}

var networkIDPattern = regexp.MustCompile(`//([^/]+)|(\d+\.\d+\.\d+\.\d+)`)

// Resolver enumerates the mount table and resolves paths to volumes.
// The zero paths default to the live system; tests inject fixtures.
type Resolver struct {
	mountsPath   string
	sysBlockPath string
	statfs       func(path string) (total, free int64, err error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMountsPath overrides the mount table location (default /proc/mounts).
func WithMountsPath(path string) Option {
	return func(r *Resolver) { r.mountsPath = path }
}

// WithSysBlockPath overrides the sysfs block device root (default /sys/block).
func WithSysBlockPath(path string) Option {
	return func(r *Resolver) { r.sysBlockPath = path }
}

// WithStatfs overrides the filesystem usage probe.
func WithStatfs(fn func(path string) (total, free int64, err error)) Option {
	return func(r *Resolver) { r.statfs = fn }
}

// NewResolver returns a Resolver for the local system.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		mountsPath:   "/proc/mounts",
		sysBlockPath: "/sys/block",
		statfs:       statfsUsage,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type mountEntry struct {
	deviceID   string
	mountPoint string
	fsType     string
}

// Devices enumerates all real (non-virtual) mounted volumes.
func (r *Resolver) Devices() ([]*Info, error) {
	entries, err := r.readMounts()
	if err != nil {
		return nil, err
	}

	var devices []*Info
	for _, m := range entries {
		info := &Info{
			DeviceID:   m.deviceID,
			Name:       r.displayName(m),
			MountPoint: m.mountPoint,
			FSType:     m.fsType,
			Type:       r.classify(m.deviceID),
		}
		if total, free, err := r.statfs(m.mountPoint); err == nil {
			info.TotalSize = total
			info.FreeSize = free
			info.UsedSize = total - free
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// Resolve returns the most specific volume containing path, or (nil, nil)
// when no mount table entry matches.
func (r *Resolver) Resolve(path string) (*Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	devices, err := r.Devices()
	if err != nil {
		return nil, err
	}

	var best *Info
	for _, d := range devices {
		if !isPathAncestor(d.MountPoint, abs) {
			continue
		}
		if best == nil || len(d.MountPoint) > len(best.MountPoint) {
			best = d
		}
	}
	return best, nil
}

func (r *Resolver) readMounts() ([]mountEntry, error) {
	f, err := os.Open(r.mountsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	defer f.Close()

	var entries []mountEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		m := mountEntry{
			deviceID:   unescapeMount(fields[0]),
			mountPoint: unescapeMount(fields[1]),
			fsType:     fields[2],
		}
		if excludedFSTypes[m.fsType] {
			continue
		}
		if hasExcludedPrefix(m.mountPoint) {
			continue
		}
		// Loopback devices (snap images and the like) and the rootfs
		// duplicate never represent a scannable volume.
		if strings.Contains(m.deviceID, "loop") || m.deviceID == "rootfs" {
			continue
		}
		entries = append(entries, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	return entries, nil
}

func hasExcludedPrefix(mountPoint string) bool {
	for _, prefix := range excludedMountPrefixes {
		if isPathAncestor(prefix, mountPoint) {
			return true
		}
	}
	return false
}

// isPathAncestor reports whether ancestor is path itself or a parent
// directory of it, comparing whole path components so that /data does
// not match /data2.
func isPathAncestor(ancestor, path string) bool {
	if ancestor == "/" {
		return true
	}
	ancestor = strings.TrimSuffix(ancestor, "/")
	return path == ancestor || strings.HasPrefix(path, ancestor+"/")
}

// unescapeMount decodes the octal escapes /proc/mounts uses for spaces
// and other special characters (e.g. \040).
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, ok := octalByte(s[i+1 : i+4]); ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func octalByte(s string) (byte, bool) {
	var v int
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '7' {
			return 0, false
		}
		v = v*8 + int(s[i]-'0')
	}
	return byte(v), true
}

// classify derives a coarse device type from the device identifier.
func (r *Resolver) classify(deviceID string) string {
	switch {
	case strings.Contains(deviceID, "nfs"),
		strings.Contains(deviceID, "//"),
		networkIDPattern.MatchString(deviceID):
		return TypeNetwork
	case strings.Contains(deviceID, "nvme"):
		return TypeInternalSSD
	case strings.Contains(deviceID, "/dev/sd"):
		if r.isLikelyExternal(deviceID) {
			return TypeExternal
		}
		return TypeInternalHDD
	default:
		return TypeUnknown
	}
}

// displayName builds a human-readable volume name.
func (r *Resolver) displayName(m mountEntry) string {
	if t := r.classify(m.deviceID); t == TypeNetwork {
		if match := networkIDPattern.FindStringSubmatch(m.deviceID); match != nil {
			server := match[1]
			if server == "" {
				server = match[2]
			}
			return fmt.Sprintf("Network Share (%s) - %s", server, m.mountPoint)
		}
		return fmt.Sprintf("Network Share - %s", m.mountPoint)
	}

	if strings.HasPrefix(m.deviceID, "/dev/") {
		kind := "Storage"
		switch r.classify(m.deviceID) {
		case TypeInternalSSD:
			kind = "Internal SSD"
		case TypeInternalHDD:
			kind = "Internal HDD"
		case TypeExternal:
			kind = "External Drive"
		}
		return fmt.Sprintf("%s (%s) - %s", kind, m.fsType, displayMount(m.mountPoint))
	}

	switch m.mountPoint {
	case "/":
		return fmt.Sprintf("Root Filesystem (%s)", m.fsType)
	case "/home":
		return fmt.Sprintf("Home Directory (%s)", m.fsType)
	}
	return fmt.Sprintf("Storage - %s (%s)", m.mountPoint, m.fsType)
}

func displayMount(mountPoint string) string {
	switch mountPoint {
	case "/":
		return "Root"
	case "/home":
		return "Home"
	}
	return mountPoint
}

// isLikelyExternal checks whether a /dev/sdX device hangs off a removable
// bus by resolving its sysfs controller path.
func (r *Resolver) isLikelyExternal(deviceID string) bool {
	name := filepath.Base(deviceID)
	if !strings.HasPrefix(name, "sd") {
		return false
	}
	// Trim the partition number: sda1 -> sda.
	name = strings.TrimRight(name, "0123456789")

	link := filepath.Join(r.sysBlockPath, name, "device")
	real, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(real), "usb")
}
