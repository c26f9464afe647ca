package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/config"
	"github.com/tbourn/support-router/internal/rules"
)

func runEvaluate(t *testing.T, args ...string) rules.Result {
	t.Helper()
	t.Setenv("RULES_PATH", "")
	t.Chdir(t.TempDir()) // no stray .env

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(append([]string{"evaluate"}, args...))
	require.NoError(t, root.ExecuteContext(context.Background()))

	var res rules.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res), out.String())
	return res
}

func TestEvaluate_DefaultLadder(t *testing.T) {
	res := runEvaluate(t, "Hello", "there")
	require.Equal(t, rules.ActionContinue, res.Action)
	require.Equal(t, rules.DefaultRuleID, res.RuleID)

	res = runEvaluate(t, "Can you guarantee approval?")
	require.Equal(t, rules.ActionHandoff, res.Action)
	require.Equal(t, rules.TierCompliance, res.Tier)

	res = runEvaluate(t, "--attachment", "What services do you offer?")
	require.Equal(t, rules.TierAttachment, res.Tier)
}

func TestEvaluate_ConfidenceFlag(t *testing.T) {
	res := runEvaluate(t, "--confidence", "0.45", "Tell me about labels")
	require.Equal(t, rules.ActionHandoff, res.Action)
	require.Equal(t, rules.ReasonLowConfidence, res.Reason)

	// Without the flag the confidence tier is skipped.
	res = runEvaluate(t, "Tell me about labels")
	require.Equal(t, rules.ActionContinue, res.Action)
}

func TestEvaluate_RequiresMessage(t *testing.T) {
	t.Chdir(t.TempDir())
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"evaluate"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestEvaluate_BadRulesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	bad := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("not: [valid"), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"evaluate", "--rules", bad, "hi"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestLoadRules(t *testing.T) {
	h, err := loadRules(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, h.Engine().Rules(), len(rules.DefaultRules(rules.DefaultThresholds)))

	_, err = loadRules(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.Error(t, err)
}

func TestBuildChannels(t *testing.T) {
	hub := channels.NewHub()

	names := buildChannels(config.ChannelsConfig{}, hub).Names()
	require.Equal(t, []string{channels.ChannelWeb}, names)

	names = buildChannels(config.ChannelsConfig{
		LineSecret:           "s",
		LineAccessToken:      "t",
		MessengerAppSecret:   "a",
		MessengerPageToken:   "p",
		MessengerVerifyToken: "v",
	}, hub).Names()
	sort.Strings(names)
	require.Equal(t, []string{channels.ChannelLine, channels.ChannelMessenger, channels.ChannelWeb}, names)
}

func TestBuildNotifier_FallsBackToLog(t *testing.T) {
	d, closeFn, err := buildNotifier(context.Background(), config.NotifyConfig{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	closeFn(context.Background())

	d, closeFn, err = buildNotifier(context.Background(), config.NotifyConfig{
		SlackURL:   "http://127.0.0.1:1/slack",
		DiscordURL: "http://127.0.0.1:1/discord",
	})
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	closeFn(context.Background())
}

func TestBuildGenerator_MissingKnowledgeStillServes(t *testing.T) {
	cfg := config.Config{
		DataPath: filepath.Join(t.TempDir(), "missing.md"),
		Generator: config.GeneratorConfig{
			Backend:          "retrieval",
			Timeout:          1e9,
			BreakerFailures:  3,
			BreakerCooldown:  1e9,
			RetrievalMinimum: 0.2,
		},
	}
	gen, err := buildGenerator(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, gen)

	cfg.Generator.Backend = "nope"
	_, err = buildGenerator(context.Background(), cfg)
	require.Error(t, err)
}
