// Package identify resolves any name a block device is known by, from a
// kernel name to an Azure LUN link or a registered mapper name, to the
// device itself.
package identify

import (
	"path"
	"strings"

	"github.com/sigreer/vmcrypt/internal/diskutil"
	"github.com/sigreer/vmcrypt/internal/registry"
)

// Sources is the snapshot an index is built from
type Sources struct {
	Devices    []diskutil.DeviceItem
	AzureLinks map[string]string // real device path -> /dev/disk/azure link
	CryptItems []registry.CryptItem

	// RealPath resolves symlinks in a registered device path
	RealPath func(string) string
}

// Index holds all devices with one lookup table per identifier
type Index struct {
	// device path -> entity
	Entities map[string]*Entity

	ByKernelName map[string]string
	ByFSUUID     map[string]string
	ByFSLabel    map[string]string
	ByMajMin     map[string]string
	ByDeviceID   map[string]string
	ByAzureLink  map[string]string
	ByMapperName map[string]string

	realPath func(string) string
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		Entities:     make(map[string]*Entity),
		ByKernelName: make(map[string]string),
		ByFSUUID:     make(map[string]string),
		ByFSLabel:    make(map[string]string),
		ByMajMin:     make(map[string]string),
		ByDeviceID:   make(map[string]string),
		ByAzureLink:  make(map[string]string),
		ByMapperName: make(map[string]string),
		realPath:     func(p string) string { return p },
	}
}

// Build indexes src. When two devices share an identifier, such as a
// filesystem label, the first one listed keeps it.
func Build(src Sources) *Index {
	idx := NewIndex()
	if src.RealPath != nil {
		idx.realPath = src.RealPath
	}

	for _, dev := range src.Devices {
		devPath := path.Join("/dev", dev.Name)
		idx.Entities[devPath] = &Entity{Device: dev, DevicePath: devPath}

		put(idx.ByKernelName, dev.Name, devPath)
		put(idx.ByFSUUID, strings.ToLower(dev.UUID), devPath)
		put(idx.ByFSLabel, dev.Label, devPath)
		put(idx.ByMajMin, dev.MajMin, devPath)
		put(idx.ByDeviceID, dev.DeviceID, devPath)
	}

	for real, link := range src.AzureLinks {
		if e, ok := idx.Entities[real]; ok {
			e.AzureLink = link
			put(idx.ByAzureLink, link, real)
		}
	}

	for _, ci := range src.CryptItems {
		devPath := idx.realPath(ci.DevPath)
		e, ok := idx.Entities[devPath]
		if !ok {
			continue
		}
		e.CryptItems = append(e.CryptItems, ci)
		put(idx.ByMapperName, ci.MapperName, devPath)
	}

	return idx
}

func put(table map[string]string, key, devPath string) {
	if key == "" {
		return
	}
	if _, taken := table[key]; !taken {
		table[key] = devPath
	}
}

// Lookup finds the device a query names
func (idx *Index) Lookup(query string) (*Entity, IdentifierType, error) {
	// 1. Direct device path
	if entity, ok := idx.Entities[query]; ok {
		return entity, IDDevicePath, nil
	}

	// 2. Azure links are checked before resolving so they report as such
	if devPath, ok := idx.ByAzureLink[query]; ok {
		return idx.Entities[devPath], IDAzureLink, nil
	}

	// 3. Any other symlink to a known device
	if strings.HasPrefix(query, "/") {
		if entity, ok := idx.Entities[idx.realPath(query)]; ok {
			return entity, IDSymlink, nil
		}
	}

	// 4. Each reverse index in order of specificity
	lookups := []struct {
		index  map[string]string
		idType IdentifierType
		key    string
	}{
		{idx.ByKernelName, IDKernelName, query},
		{idx.ByMapperName, IDMapperName, query},
		{idx.ByFSUUID, IDFSUUID, strings.ToLower(query)},
		{idx.ByDeviceID, IDDeviceID, query},
		{idx.ByMajMin, IDMajMin, query},
		{idx.ByFSLabel, IDFSLabel, query},
	}

	for _, lookup := range lookups {
		if devPath, ok := lookup.index[lookup.key]; ok {
			if entity, ok := idx.Entities[devPath]; ok {
				return entity, lookup.idType, nil
			}
		}
	}

	return nil, IDUnknown, ErrNotFound
}
