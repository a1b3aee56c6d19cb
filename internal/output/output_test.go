package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestWarningAndErrorGoToErrOut(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "careful now")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("detail %d", 2)
	assert.Contains(t, out.String(), "detail 2")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRunMsg("would patch %s", "ticket")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("would patch %s", "ticket")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would patch ticket")
}

func TestStatusColor(t *testing.T) {
	assert.NotEmpty(t, StatusColor("open"))
	assert.NotEmpty(t, StatusColor("pending"))
	assert.NotEmpty(t, StatusColor("on-hold"))
	assert.NotEmpty(t, StatusColor("solved"))
	assert.NotEmpty(t, StatusColor("closed"))
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestAgeColor(t *testing.T) {
	assert.NotEmpty(t, AgeColor("Over 30 Days"))
	assert.NotEmpty(t, AgeColor("Over 20 Days"))
	assert.NotEmpty(t, AgeColor("Over 10 Days"))
	assert.NotEmpty(t, AgeColor("Under 10 Days"))
	assert.Equal(t, "", AgeColor(""))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"ID", "Subject"})
	require.NotNil(t, table)

	_ = table.Append([]string{"77", "printer on fire"})
	_ = table.Append([]string{"78", "vpn flaky"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "printer on fire"))
	assert.True(t, strings.Contains(result, "vpn flaky"))
}
