package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/coffeeclub/internal/auth"
	"github.com/felixgeelhaar/coffeeclub/internal/config"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/exitcode"
	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/loyaltytwin"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

const testPhone = "5551234567"

type cli struct {
	t    *testing.T
	twin *loyaltytwin.Twin
	url  string
	home string
}

// newCLI points every command at a fresh twin and one shared in-memory
// credential store.
func newCLI(t *testing.T) *cli {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvStoreBackend, "")
	t.Setenv(config.EnvStorePath, "")
	t.Setenv("CI", "true")
	t.Setenv("NO_COLOR", "1")

	twin, err := loyaltytwin.New(loyaltytwin.Options{FixedCode: "123456", Logger: log.Discard()})
	require.NoError(t, err)
	srv := httptest.NewServer(twin)
	t.Cleanup(srv.Close)

	store := securestore.NewMemoryStore()
	prev := openStore
	openStore = func(*config.Config) (securestore.Store, error) { return store, nil }
	t.Cleanup(func() { openStore = prev })

	return &cli{t: t, twin: twin, url: srv.URL, home: home}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--api-url", c.url}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, strings.Join(args, " "))
	return out
}

func (c *cli) login() {
	c.t.Helper()
	c.mustRun("auth", "login", "--phone", testPhone, "--code", "123456")
}

func errorCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	var coded *errors.Error
	require.True(t, stderrors.As(err, &coded), "got %v", err)
	return coded.Code
}

func TestLoginAndStatus(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("auth", "status")
	assert.Contains(t, out, "Not signed in")

	out = c.mustRun("auth", "login", "--phone", "(555) 123-4567", "--code", "123456")
	assert.Contains(t, out, "Signed in as "+testPhone)
	assert.Contains(t, out, "0/10")

	out = c.mustRun("--format", "json", "auth", "status")
	var status authStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, testPhone, status.Phone)
	assert.NotNil(t, status.ExpiresAt)

	assert.Equal(t, 1, c.twin.Requests().Count(http.MethodPost, "/devices"), "device registered on sign-in")
}

func TestRegisterThenVerify(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("auth", "register", "--phone", testPhone)
	assert.Contains(t, out, "Verification code sent to "+testPhone)

	_, err := c.run("auth", "verify", "--phone", testPhone, "--code", "000000")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthRejected, errorCode(t, err))

	out = c.mustRun("auth", "verify", "--phone", testPhone, "--code", "123456")
	assert.Contains(t, out, "Signed in")
}

func TestVerifyUnauthorizedIsRejected(t *testing.T) {
	c := newCLI(t)

	// A backend that answers a wrong code with 401 instead of 400.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/account/verify" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`["Invalid code"]`))
			return
		}
		c.twin.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	_, err := c.run("--api-url", srv.URL, "auth", "login", "--phone", testPhone, "--code", "654321")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthRejected, errorCode(t, err))

	_, err = c.run("--api-url", srv.URL, "auth", "verify", "--phone", testPhone, "--code", "654321")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthRejected, errorCode(t, err))
}

func TestLoginNeedsInputWithoutTerminal(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("auth", "login")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputRequired, errorCode(t, err))
	assert.Zero(t, c.twin.Requests().Count(http.MethodPost, "/account/register"))
}

func TestCommandsRequireSignIn(t *testing.T) {
	c := newCLI(t)

	for _, args := range [][]string{{"rewards"}, {"orders"}, {"qr"}, {"profile"}} {
		_, err := c.run(args...)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated, args[0])

		enhanced := Execute(context.Background(), append([]string{"--api-url", c.url}, args...))
		assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(enhanced), args[0])
	}
}

func TestRewardsAndOrders(t *testing.T) {
	c := newCLI(t)
	c.login()
	_, err := c.twin.AddOrder(testPhone, 12)
	require.NoError(t, err)

	out := c.mustRun("--format", "json", "rewards")
	var status rewardStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 12, status.Coffees)
	assert.Equal(t, 2, status.Progress)
	assert.Equal(t, 8, status.Remaining)
	assert.Equal(t, 1, status.FreeEarned)

	out = c.mustRun("rewards")
	assert.Contains(t, out, "2/10")
	assert.Contains(t, out, "1 free coffee ready to redeem")

	out = c.mustRun("--format", "json", "orders")
	var orders []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &orders))
	require.Len(t, orders, 1)
	assert.EqualValues(t, 12, orders[0]["coffeeCount"])

	out = c.mustRun("orders")
	assert.Contains(t, out, "Coffees")
}

func TestRewardsHonorsThreshold(t *testing.T) {
	c := newCLI(t)
	c.mustRun("config", "set", "rewards.threshold", "5")
	c.login()
	_, err := c.twin.AddOrder(testPhone, 7)
	require.NoError(t, err)

	out := c.mustRun("rewards")
	assert.Contains(t, out, "2/5")
}

func TestProfileUpdate(t *testing.T) {
	c := newCLI(t)
	c.login()

	c.mustRun("profile", "update", "--first-name", "Ada", "--email", "ada@example.com")
	c.mustRun("profile", "update", "--last-name", "Lovelace")

	out := c.mustRun("--format", "json", "profile", "show")
	var profile map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &profile))
	assert.Equal(t, "Ada", profile["firstName"], "unset flags keep their value")
	assert.Equal(t, "Lovelace", profile["lastName"])
	assert.Equal(t, "ada@example.com", profile["email"])

	out = c.mustRun("profile")
	assert.Contains(t, out, "Ada Lovelace")

	_, err := c.run("profile", "update", "--email", "nope")
	assert.Equal(t, errors.ErrCodeInputInvalid, errorCode(t, err))

	_, err = c.run("profile", "update")
	assert.Equal(t, errors.ErrCodeInputRequired, errorCode(t, err))
}

func TestQR(t *testing.T) {
	c := newCLI(t)
	c.login()

	out := c.mustRun("--format", "json", "qr")
	var qr qrOutput
	require.NoError(t, json.Unmarshal([]byte(out), &qr))
	assert.NotEmpty(t, qr.CustomerID)
	assert.NotEmpty(t, qr.Hash)
	assert.True(t, strings.HasPrefix(qr.Payload, qr.CustomerID+"|"))
}

func TestFeedback(t *testing.T) {
	c := newCLI(t)
	c.login()

	out := c.mustRun("feedback", "--subject", "Latte", "--message", "Lovely foam")
	assert.Contains(t, out, "feedback was sent")
	assert.Len(t, c.twin.Store().Snapshot().Feedbacks, 1)

	_, err := c.run("feedback", "--subject", "Latte")
	assert.Equal(t, errors.ErrCodeInputRequired, errorCode(t, err))
}

func TestDevice(t *testing.T) {
	c := newCLI(t)
	c.mustRun("config", "set", "device.auto_register", "false")

	out := c.mustRun("--format", "json", "device", "info")
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["deviceId"])
	assert.Equal(t, false, info["registered"])

	c.login()
	assert.Zero(t, c.twin.Requests().Count(http.MethodPost, "/devices"))

	assert.Contains(t, c.mustRun("device", "register"), "Device registered.")
	assert.Contains(t, c.mustRun("device", "register"), "already registered")
	assert.Contains(t, c.mustRun("device", "register", "--force"), "Device registered.")
	assert.Equal(t, 2, c.twin.Requests().Count(http.MethodPost, "/devices"))
}

func TestLogout(t *testing.T) {
	c := newCLI(t)
	c.login()

	assert.Contains(t, c.mustRun("auth", "logout", "--yes"), "Signed out")
	assert.Contains(t, c.mustRun("auth", "status"), "Not signed in")
}

func TestHealth(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("--format", "json", "health")
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "degraded", report.Status, "signed out")
	require.Len(t, report.Checks, 3)
	assert.Equal(t, "api", report.Checks[0].Name)
	assert.Equal(t, "healthy", report.Checks[0].Status)

	c.login()
	out = c.mustRun("health")
	assert.Contains(t, out, "Overall: healthy")

	c.twin.InjectFault("/health", loyaltytwin.Fault{StatusCode: http.StatusServiceUnavailable})
	_, err := c.run("health")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.home, "config.yaml")

	assert.Equal(t, path+"\n", c.mustRun("config", "path"))
	assert.Contains(t, c.mustRun("config", "init"), path)

	_, err := c.run("config", "init")
	assert.Equal(t, errors.ErrCodeConfigWrite, errorCode(t, err))
	c.mustRun("config", "init", "--force")

	c.mustRun("config", "set", "api.timeout", "5s")
	assert.Equal(t, "5s\n", c.mustRun("config", "get", "api.timeout"))

	_, err = c.run("config", "set", "nope", "1")
	assert.Equal(t, errors.ErrCodeInputInvalid, errorCode(t, err))

	_, err = c.run("config", "set", "rewards.threshold", "0")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errorCode(t, err))

	out := c.mustRun("config", "view")
	assert.Contains(t, out, "base_url: "+c.url, "flag overrides are shown")
	assert.Contains(t, out, "timeout: 5s")
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	assert.True(t, strings.HasPrefix(c.mustRun("version"), "coffeeclub "))

	out := c.mustRun("--format", "json", "version")
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "goVersion")
}

func TestMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.home, "coffeeclub.prom")
	c.mustRun("config", "set", "metrics.textfile", path)

	c.login()
	_, err := c.run("feedback", "--subject", " ", "--message", "hi")
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `coffeeclub_command_executions_total{command="coffeeclub feedback",success="false"} 1`)
	assert.Contains(t, text, `coffeeclub_errors_total{error_code="INPUT-001"} 1`)
	assert.Contains(t, text, `coffeeclub_api_requests_total`)
}
