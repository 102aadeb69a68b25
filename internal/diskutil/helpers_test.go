package diskutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/executor/executortest"
	"github.com/sigreer/vmcrypt/internal/registry"
)

const (
	devicesCmd = "lsblk -b -n -P -o " + deviceColumns
	lvsCmd     = "lvs --noheadings --nameprefixes --unquoted -o lv_name,vg_name,lv_kernel_major,lv_kernel_minor"
	dmsetupCmd = "dmsetup table --target crypt"
	statusCmd  = "cryptsetup status osencrypt | grep device:"
)

type fakeMark struct {
	exists     bool
	volumeType string
}

func (m fakeMark) ConfigFileExists() bool { return m.exists }
func (m fakeMark) VolumeType() string     { return m.volumeType }

type event struct {
	eventType string
	mapper    string
	devPath   string
}

type memRecorder struct {
	events []event
}

func (r *memRecorder) RecordEvent(eventType, mapperName, devPath string, details map[string]interface{}) error {
	r.events = append(r.events, event{eventType, mapperName, devPath})
	return nil
}

func (r *memRecorder) ofType(eventType string) []event {
	var out []event
	for _, e := range r.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	d     *DiskUtil
	fake  *executortest.Fake
	fs    afero.Fs
	links map[string]string
	rec   *memRecorder
}

type harnessOption func(*Options)

func withPaths(p distro.Paths) harnessOption {
	return func(o *Options) { o.Paths = p }
}

func withMarks(enc, dec MarkReader) harnessOption {
	return func(o *Options) {
		o.EncryptionMark = enc
		o.DecryptionMark = dec
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		fake:  executortest.New(),
		fs:    afero.NewMemMapFs(),
		links: make(map[string]string),
		rec:   &memRecorder{},
	}

	o := Options{
		Executor: h.fake,
		Paths:    distro.Bare{},
		Fs:       h.fs,
		Registry: registry.NewStore(h.fs, registry.DefaultPath, nil),
		Env:      DefaultEnvironment(),
		Recorder: h.rec,
		RealPath: func(p string) string {
			if r, ok := h.links[p]; ok {
				return r
			}
			return p
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	h.d = New(o)
	return h
}

func (h *harness) writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, path, []byte(content), 0o644))
}

func (h *harness) mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, h.fs.MkdirAll(path, 0o755))
}

func (h *harness) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, path)
	require.NoError(t, err)
	return string(data)
}
