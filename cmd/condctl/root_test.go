package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EntryGate/internal/domain/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "defaults")
	require.NoError(t, err)
	good := writeFile(t, "good.json", out)

	out, err = run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "mode=CUSTOM")

	bad := writeFile(t, "bad.json", `{"mode":"CUSTOM","long":{"core":[],"pairs":[],"threshold":-3}}`)
	out, err = run(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "long.threshold")

	empty := writeFile(t, "empty.json", `{}`)
	out, err = run(t, "validate", empty)
	require.NoError(t, err)
	assert.Contains(t, out, "default rules")
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "defaults")
	require.NoError(t, err)
	conds := writeFile(t, "conds.json", out)
	snap := writeFile(t, "snap.json", `{"symbol":"BTCUSDT","ts":1704067200,"candle_closed":true,
		"states":{"macd_crossed":"bullish_cross","macd_hist_direction":"up","rsi_trend":"up","microtrend_5m":"bullish",
		"support_position":"near_support","microtrend_1m":"bullish","boll_bucket":"<=30","rsi_bucket":"<=30"}}`)

	out, err = run(t, "score", "--conditions", conds, "--snapshot", snap)
	require.NoError(t, err)
	var ev models.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, models.EngineCustom, ev.Engine)
	assert.Equal(t, models.DecisionLong, ev.Decision)
	assert.Equal(t, "BTCUSDT", ev.Symbol)

	out, err = run(t, "score", "--snapshot", snap)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, models.EngineDefault, ev.Engine)

	_, err = run(t, "score")
	assert.Error(t, err)
}

func TestDefaultsBuiltin(t *testing.T) {
	out, err := run(t, "defaults", "--builtin")
	require.NoError(t, err)
	doc, err := models.DecodeConditions([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, models.ModeDefault, doc.Mode)
}
