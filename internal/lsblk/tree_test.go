package lsblk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	out := `PKNAME="" NAME="/dev/sda" FSTYPE="" MOUNTPOINT=""
PKNAME="/dev/sda" NAME="/dev/sda1" FSTYPE="ext4" MOUNTPOINT="/"
PKNAME="" NAME="/dev/sdc" FSTYPE="crypto_LUKS" MOUNTPOINT=""
PKNAME="/dev/sdc" NAME="/dev/mapper/data" FSTYPE="xfs" MOUNTPOINT="/data"
`
	records, err := Parse([]byte(out))
	require.NoError(t, err)

	roots := BuildTree(records)
	require.Len(t, roots, 2)

	assert.Equal(t, "/dev/sda", roots[0].Name)
	assert.Nil(t, roots[0].FSType)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "/dev/sda1", roots[0].Children[0].Name)
	assert.Equal(t, "/", *roots[0].Children[0].MountPoint)

	require.Len(t, roots[1].Children, 1)
	assert.Equal(t, "xfs", *roots[1].Children[0].FSType)
}

func TestBuildTree_JSONShape(t *testing.T) {
	records, err := Parse([]byte("PKNAME=\"\" NAME=\"/dev/sdb\" FSTYPE=\"\" MOUNTPOINT=\"\"\n"))
	require.NoError(t, err)

	b, err := json.Marshal(BuildTree(records))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"/dev/sdb","fstype":null,"mountpoint":null}]`, string(b))
}

func TestBuildTree_OrphanKeptAtTop(t *testing.T) {
	records, err := Parse([]byte(`PKNAME="/dev/missing" NAME="/dev/sdz1" FSTYPE="" MOUNTPOINT=""`))
	require.NoError(t, err)

	roots := BuildTree(records)
	require.Len(t, roots, 1)
	assert.Equal(t, "/dev/sdz1", roots[0].Name)
}
