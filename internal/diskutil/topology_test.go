package diskutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptTopology(h *harness) {
	h.fake.
		On("lsblk -P -o NAME", 0, "NAME=\"sda\"\nNAME=\"sda1\"\nNAME=\"sdb\"\n").
		On("lsblk -P -o NAME /dev/sda", 0, "NAME=\"sda\"\nNAME=\"sda1\"\n").
		On("lsblk -P -o NAME /dev/sda1", 0, "NAME=\"sda1\"\n").
		On("lsblk -P -o NAME /dev/sdb", 0, "NAME=\"sdb\"\n")
}

func TestTopology(t *testing.T) {
	h := newHarness(t)
	scriptTopology(h)

	topo, err := h.d.Topology()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"/dev/sda":  "",
		"/dev/sda1": "/dev/sda",
		"/dev/sdb":  "",
	}, topo)
}

func TestTopology_NearestParentWins(t *testing.T) {
	h := newHarness(t)
	h.fake.
		On("lsblk -P -o NAME", 0, "NAME=\"sdc\"\nNAME=\"sdc1\"\nNAME=\"data\"\n").
		On("lsblk -P -o NAME /dev/sdc", 0, "NAME=\"sdc\"\nNAME=\"sdc1\"\nNAME=\"data\"\n").
		On("lsblk -P -o NAME /dev/sdc1", 0, "NAME=\"sdc1\"\nNAME=\"data\"\n").
		On("lsblk -P -o NAME /dev/data", 0, "NAME=\"data\"\n")

	topo, err := h.d.Topology()
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdc1", topo["/dev/data"])
	assert.Equal(t, "/dev/sdc", topo["/dev/sdc1"])
}

func TestTopology_ToolFailure(t *testing.T) {
	h := newHarness(t)
	scriptTopology(h)
	h.fake.On("lsblk -P -o NAME /dev/sdb", 1, "")

	topo, err := h.d.Topology()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolExecution))
	assert.Nil(t, topo)
}

func TestChildren_ExcludesParent(t *testing.T) {
	h := newHarness(t)
	scriptTopology(h)

	children, err := h.d.Children("/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/sda1"}, children)
}

func TestLsblkOutput_Native(t *testing.T) {
	h := newHarness(t)
	native := "PKNAME=\"\" NAME=\"/dev/sda\" FSTYPE=\"\" MOUNTPOINT=\"\"\n"
	h.fake.On("lsblk -p -P -o PKNAME,NAME,FSTYPE,MOUNTPOINT", 0, native)

	out, err := h.d.LsblkOutput()
	require.NoError(t, err)
	assert.Equal(t, native, out)
}

func TestLsblkOutput_FallsBackToSimulated(t *testing.T) {
	h := newHarness(t)
	scriptTopology(h)
	h.fake.
		On("lsblk -p -P -o PKNAME,NAME,FSTYPE,MOUNTPOINT", 1, "").
		On("lsblk -P -o NAME,FSTYPE,MOUNTPOINT", 0,
			"NAME=\"sda\" FSTYPE=\"\" MOUNTPOINT=\"\"\n"+
				"NAME=\"sda1\" FSTYPE=\"ext4\" MOUNTPOINT=\"/\"\n"+
				"NAME=\"sdb\" FSTYPE=\"\" MOUNTPOINT=\"\"\n")

	out, err := h.d.LsblkOutput()
	require.NoError(t, err)
	assert.Equal(t,
		"PKNAME=\"\" NAME=\"/dev/sda\" FSTYPE=\"\" MOUNTPOINT=\"\"\n"+
			"PKNAME=\"/dev/sda\" NAME=\"/dev/sda1\" FSTYPE=\"ext4\" MOUNTPOINT=\"/\"\n"+
			"PKNAME=\"\" NAME=\"/dev/sdb\" FSTYPE=\"\" MOUNTPOINT=\"\"\n",
		out)
}

func TestLsblkTree(t *testing.T) {
	h := newHarness(t)
	h.fake.On("lsblk -p -P -o PKNAME,NAME,FSTYPE,MOUNTPOINT", 0,
		"PKNAME=\"\" NAME=\"/dev/sda\" FSTYPE=\"\" MOUNTPOINT=\"\"\n"+
			"PKNAME=\"/dev/sda\" NAME=\"/dev/sda1\" FSTYPE=\"ext4\" MOUNTPOINT=\"/\"\n"+
			"PKNAME=\"\" NAME=\"/dev/sdb\" FSTYPE=\"crypto_LUKS\" MOUNTPOINT=\"\"\n")

	tree, err := h.d.LsblkTree()
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "/dev/sda", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "/dev/sda1", tree[0].Children[0].Name)
	require.NotNil(t, tree[0].Children[0].MountPoint)
	assert.Equal(t, "/", *tree[0].Children[0].MountPoint)
	assert.Nil(t, tree[1].MountPoint)
}
