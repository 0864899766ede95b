package device

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

type fakeTransport struct {
	calls  int
	bodies [][]byte
	err    error
}

func (f *fakeTransport) Post(ctx context.Context, path string, body, out any) error {
	f.calls++
	data, _ := json.Marshal(body)
	f.bodies = append(f.bodies, data)
	return f.err
}

func fakeProbe(goos string, files map[string]string, env map[string]string) Probe {
	return Probe{
		GOOS:     goos,
		GOARCH:   "arm64",
		Hostname: func() (string, error) { return "espresso", nil },
		ReadFile: func(name string) ([]byte, error) {
			if v, ok := files[name]; ok {
				return []byte(v), nil
			}
			return nil, os.ErrNotExist
		},
		Exists: func(name string) bool {
			_, ok := files[name]
			return ok
		},
		Command: func(name string, args ...string) ([]byte, error) {
			if name == "sw_vers" {
				return []byte("15.1\n"), nil
			}
			return nil, errors.New("not found")
		},
		Getenv: func(key string) string { return env[key] },
	}
}

func newTestService(t *testing.T, api *fakeTransport) (*Service, *securestore.Keychain) {
	t.Helper()
	keys := securestore.NewKeychain(securestore.NewMemoryStore())
	svc := NewService(api, keys,
		WithProbe(fakeProbe("linux", nil, map[string]string{"DISPLAY": ":0"})),
		WithIDGenerator(func() string { return "install-1" }),
		WithLogger(log.Discard()),
	)
	return svc, keys
}

func TestRegisterIfNeededRegistersOnce(t *testing.T) {
	ctx := context.Background()
	api := &fakeTransport{}
	svc, keys := newTestService(t, api)

	sent, err := svc.RegisterIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = svc.RegisterIfNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Equal(t, 1, api.calls)
	registered, err := keys.DeviceRegistered(ctx)
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestRegisterIfNeededFailureLeavesFlagUnset(t *testing.T) {
	ctx := context.Background()
	api := &fakeTransport{err: errors.New("boom")}
	svc, keys := newTestService(t, api)

	sent, err := svc.RegisterIfNeeded(ctx)
	assert.Error(t, err)
	assert.True(t, sent)

	registered, err := keys.DeviceRegistered(ctx)
	require.NoError(t, err)
	assert.False(t, registered)

	// The next attempt tries again.
	api.err = nil
	sent, err = svc.RegisterIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 2, api.calls)
}

func TestRegisterPayload(t *testing.T) {
	api := &fakeTransport{}
	svc, _ := newTestService(t, api)

	require.NoError(t, svc.Register(context.Background()))
	require.Len(t, api.bodies, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal(api.bodies[0], &body))
	assert.Equal(t, "install-1", body["deviceId"])
	assert.Equal(t, "espresso", body["name"])
	assert.Equal(t, "linux", body["os"])
	assert.Equal(t, "arm64", body["model"])
	assert.Equal(t, "desktop", body["type"])
	assert.Equal(t, false, body["isSimulator"])

	// Unknown values are sent as null, never omitted.
	v, present := body["osVersion"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestIDIsGeneratedOnceAndCached(t *testing.T) {
	ctx := context.Background()
	keys := securestore.NewKeychain(securestore.NewMemoryStore())
	svc := NewService(&fakeTransport{}, keys, WithLogger(log.Discard()))

	first, err := svc.ID(ctx)
	require.NoError(t, err)
	second, err := svc.ID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = ksuid.Parse(first)
	assert.NoError(t, err)

	issued, ok := IssuedAt(first)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), issued, time.Minute)

	_, ok = IssuedAt("not-a-ksuid")
	assert.False(t, ok)
}

func TestResetKeepsID(t *testing.T) {
	ctx := context.Background()
	api := &fakeTransport{}
	svc, keys := newTestService(t, api)

	_, err := svc.RegisterIfNeeded(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))

	registered, err := svc.Registered(ctx)
	require.NoError(t, err)
	assert.False(t, registered)

	id, ok, err := keys.DeviceID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "install-1", id)

	sent, err := svc.RegisterIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 2, api.calls)
}

func TestProbeCollect(t *testing.T) {
	t.Run("linux with os-release", func(t *testing.T) {
		p := fakeProbe("linux", map[string]string{
			"/etc/os-release":              "NAME=\"Ubuntu\"\nVERSION_ID=\"24.04\"\nPRETTY_NAME=\"Ubuntu 24.04 LTS\"\n",
			"/sys/class/dmi/id/sys_vendor": "LENOVO\n",
		}, nil)

		info := p.Collect("id-1")
		require.NotNil(t, info.OSVersion)
		assert.Equal(t, "Ubuntu 24.04 LTS", *info.OSVersion)
		require.NotNil(t, info.Brand)
		assert.Equal(t, "LENOVO", *info.Brand)
		assert.Equal(t, "server", *info.Type)
		assert.False(t, info.IsSimulator)
	})

	t.Run("os-release without pretty name", func(t *testing.T) {
		p := fakeProbe("linux", map[string]string{
			"/etc/os-release": "# comment\nNAME=Alpine\nVERSION_ID=3.20\n",
		}, nil)
		assert.Equal(t, "Alpine 3.20", *p.Collect("id").OSVersion)
	})

	t.Run("docker container", func(t *testing.T) {
		p := fakeProbe("linux", map[string]string{"/.dockerenv": ""}, nil)
		info := p.Collect("id")
		assert.True(t, info.IsSimulator)
		assert.Equal(t, "virtual", *info.Type)
	})

	t.Run("kubernetes cgroup", func(t *testing.T) {
		p := fakeProbe("linux", map[string]string{"/proc/1/cgroup": "0::/kubepods/besteffort/pod1"}, nil)
		assert.True(t, p.Collect("id").IsSimulator)
	})

	t.Run("virtual machine", func(t *testing.T) {
		p := fakeProbe("linux", map[string]string{"/sys/class/dmi/id/product_name": "VirtualBox\n"}, nil)
		assert.True(t, p.Collect("id").IsSimulator)
	})

	t.Run("container env", func(t *testing.T) {
		p := fakeProbe("linux", nil, map[string]string{"container": "podman"})
		assert.True(t, p.Collect("id").IsSimulator)
	})

	t.Run("darwin", func(t *testing.T) {
		info := fakeProbe("darwin", nil, nil).Collect("id")
		assert.Equal(t, "macOS 15.1", *info.OSVersion)
		assert.Equal(t, "Apple", *info.Brand)
		assert.Equal(t, "desktop", *info.Type)
	})

	t.Run("windows without ver", func(t *testing.T) {
		info := fakeProbe("windows", nil, nil).Collect("id")
		assert.Nil(t, info.OSVersion)
		assert.Nil(t, info.Brand)
	})
}
