package device

import (
	"strings"
	"testing"
)

const procMounts = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/sdb1 /media/user/GOLEM\040USB vfat rw,nosuid,nodev 0 0
/dev/sdb2 /media/user/rootfs ext4 rw 0 0
/dev/sdc1 /mnt/other ext4 rw 0 0
`

func TestParseMounts(t *testing.T) {
	entries, err := parseMounts(strings.NewReader(procMounts))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("parsed %d entries instead of 5", len(entries))
	}
	matched := mountsOn(entries, "/dev/sdb")
	if len(matched) != 2 {
		t.Fatalf("matched %d mounts on /dev/sdb instead of 2", len(matched))
	}
	if matched[0].MountPoint != "/media/user/GOLEM USB" {
		t.Errorf("mount point %q was not unescaped", matched[0].MountPoint)
	}
	if got := mountsOn(entries, "/dev/sdd"); len(got) != 0 {
		t.Errorf("unexpected mounts %v", got)
	}
}
