package device

import (
	"os"
	"path/filepath"
	"testing"
)

const fixtureMounts = `sysfs /sys sysfs rw,nosuid 0 0
proc /proc proc rw,nosuid 0 0
udev /dev devtmpfs rw,nosuid 0 0
tmpfs /run tmpfs rw,nosuid 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/nvme0n1p1 /boot/efi vfat rw,relatime 0 0
/dev/sda1 /data ext4 rw,relatime 0 0
/dev/sdb1 /data2 ext4 rw,relatime 0 0
//192.168.1.50/share /mnt/nas cifs rw,relatime 0 0
/dev/loop3 /snap/core/1234 squashfs ro 0 0
overlay /var/lib/docker/overlay2/x/merged overlay rw 0 0
`

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	dir := t.TempDir()
	mounts := filepath.Join(dir, "mounts")
	if err := os.WriteFile(mounts, []byte(fixtureMounts), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewResolver(
		WithMountsPath(mounts),
		WithSysBlockPath(filepath.Join(dir, "sys", "block")),
		WithStatfs(func(string) (int64, int64, error) { return 1000, 400, nil }),
	)
}

func TestDevices_FiltersVirtualMounts(t *testing.T) {
	r := testResolver(t)
	devices, err := r.Devices()
	if err != nil {
		t.Fatal(err)
	}

	// sysfs, proc, devtmpfs, tmpfs, loop, overlay and /boot must all be gone.
	want := map[string]bool{"/": true, "/data": true, "/data2": true, "/mnt/nas": true}
	if len(devices) != len(want) {
		t.Fatalf("got %d devices, want %d: %+v", len(devices), len(want), devices)
	}
	for _, d := range devices {
		if !want[d.MountPoint] {
			t.Errorf("unexpected device at %s", d.MountPoint)
		}
		if d.TotalSize != 1000 || d.UsedSize != 600 || d.FreeSize != 400 {
			t.Errorf("usage not populated for %s: %+v", d.MountPoint, d)
		}
	}
}

func TestResolve_MostSpecificMount(t *testing.T) {
	r := testResolver(t)

	info, err := r.Resolve("/data/photos/2024")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.MountPoint != "/data" {
		t.Fatalf("Resolve(/data/photos/2024) = %+v, want mount /data", info)
	}
}

func TestResolve_ComponentMatchNotStringPrefix(t *testing.T) {
	r := testResolver(t)

	// /data2 must resolve to /data2, never to /data via raw prefixing.
	info, err := r.Resolve("/data2/backups")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.MountPoint != "/data2" {
		t.Fatalf("Resolve(/data2/backups) = %+v, want mount /data2", info)
	}

	// And a path like /database falls through to the root mount.
	info, err = r.Resolve("/database")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.MountPoint != "/" {
		t.Fatalf("Resolve(/database) = %+v, want mount /", info)
	}
}

func TestResolve_NoMountTable(t *testing.T) {
	r := NewResolver(WithMountsPath(filepath.Join(t.TempDir(), "missing")))
	info, err := r.Resolve("/anywhere")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expected nil info without a mount table, got %+v", info)
	}
}

func TestClassify(t *testing.T) {
	r := testResolver(t)
	tests := []struct {
		deviceID string
		want     string
	}{
		{"//192.168.1.50/share", TypeNetwork},
		{"server:/export/nfs", TypeNetwork},
		{"/dev/nvme0n1p2", TypeInternalSSD},
		{"/dev/sda1", TypeInternalHDD}, // no sysfs entry in fixture, so not external
		{"/dev/mapper/vg-root", TypeUnknown},
	}
	for _, tt := range tests {
		if got := r.classify(tt.deviceID); got != tt.want {
			t.Errorf("classify(%s) = %s, want %s", tt.deviceID, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	r := testResolver(t)

	m := mountEntry{deviceID: "//192.168.1.50/share", mountPoint: "/mnt/nas", fsType: "cifs"}
	if got := r.displayName(m); got != "Network Share (192.168.1.50) - /mnt/nas" {
		t.Errorf("network name = %q", got)
	}

	m = mountEntry{deviceID: "/dev/nvme0n1p2", mountPoint: "/", fsType: "ext4"}
	if got := r.displayName(m); got != "Internal SSD (ext4) - Root" {
		t.Errorf("ssd name = %q", got)
	}
}

func TestUnescapeMount(t *testing.T) {
	if got := unescapeMount(`/mnt/usb\040drive`); got != "/mnt/usb drive" {
		t.Errorf("unescapeMount = %q", got)
	}
	if got := unescapeMount("/plain"); got != "/plain" {
		t.Errorf("unescapeMount = %q", got)
	}
}
