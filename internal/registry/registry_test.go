package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

const coderDoc = `
name: coder
label: Coder
description: writes code
model:
  provider: mock
triggers:
  intents: [Code, Build]
  keywords: ["写代码", "bug"]
limits:
  timeout_seconds: 30
  mock_delay_ms: 5
`

const deployDoc = `
name: deploy
model: {provider: mock}
triggers:
  intents: build, ship
  keywords: 部署, deploy
`

const memoryJSON = `{
  "name": "memory",
  "model": {"provider": "mock"},
  "triggers": {"intents": ["remember"], "keywords": ["记住"]}
}`

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDoc(t, dir, "b-deploy.yml", deployDoc)
	writeDoc(t, dir, "a-coder.yaml", coderDoc)
	writeDoc(t, dir, "c-memory.json", memoryJSON)
	writeDoc(t, dir, "README.md", "ignored")
	return dir
}

func TestLoad(t *testing.T) {
	dir := seedDir(t)

	snap, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())

	agents := snap.Agents()
	assert.Equal(t, "coder", agents[0].Name)
	assert.Equal(t, "deploy", agents[1].Name)
	assert.Equal(t, "memory", agents[2].Name)

	coder := snap.Get("coder")
	require.NotNil(t, coder)
	assert.Equal(t, "Coder", coder.Label)
	assert.Equal(t, []string{"code", "build"}, coder.Triggers.Intents)
	assert.Equal(t, 30, coder.Limits.TimeoutSeconds)
	assert.Equal(t, 5, coder.Limits.MockDelayMs)
	assert.Equal(t, "mock", coder.Model["provider"])
	assert.Equal(t, filepath.Join(dir, "a-coder.yaml"), coder.SourcePath)

	deploy := snap.Get("deploy")
	require.NotNil(t, deploy)
	assert.Equal(t, "deploy", deploy.Label, "label defaults to name")
	assert.Equal(t, []string{"部署", "deploy"}, deploy.Triggers.Keywords)

	assert.Nil(t, snap.Get("missing"))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"missing name", "model: {}\ntriggers: {}\n", "name"},
		{"blank name", "name: '  '\nmodel: {}\ntriggers: {}\n", "name"},
		{"missing model", "name: x\ntriggers: {}\n", "model"},
		{"model not mapping", "name: x\nmodel: gpt\ntriggers: {}\n", "model"},
		{"missing triggers", "name: x\nmodel: {}\n", "triggers"},
		{"bad keywords", "name: x\nmodel: {}\ntriggers: {keywords: {a: b}}\n", "keywords"},
		{"negative timeout", "name: x\nmodel: {}\ntriggers: {}\nlimits: {timeout_seconds: -1}\n", "timeout_seconds"},
		{"unparsable", "name: [unclosed\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDoc(t, dir, "a.yaml", coderDoc)
			writeDoc(t, dir, "b.yaml", tt.content)

			snap, err := Load(dir)
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, errors.Is(err, ErrLoad))

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, filepath.Join(dir, "b.yaml"), le.Path)
			assert.Contains(t, le.Error(), tt.reason)
		})
	}
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.yaml", coderDoc)
	writeDoc(t, dir, "b.yaml", coderDoc)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent name")
}

func TestMatchByIntent(t *testing.T) {
	snap, err := Load(seedDir(t))
	require.NoError(t, err)

	// coder and deploy both declare "build"; coder comes first by filename.
	assert.Equal(t, "coder", snap.MatchByIntent("BUILD").Name)
	assert.Equal(t, "deploy", snap.MatchByIntent("ship").Name)
	assert.Nil(t, snap.MatchByIntent("unknown"))
}

func TestMatchByKeyword(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.yaml", `
name: alpha
model: {}
triggers:
  keywords: [report, weekly report]
`)
	writeDoc(t, dir, "b.yaml", `
name: beta
model: {}
triggers:
  keywords: [data, Report]
`)
	writeDoc(t, dir, "c.yaml", `
name: gamma
model: {}
triggers:
  keywords: [chart]
`)
	writeDoc(t, dir, "d.yaml", `
name: delta
model: {}
triggers:
  keywords: [xyz, chart]
`)
	snap, err := Load(dir)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact lowest declaration order", "  REPORT ", "alpha"},
		{"exact single match", "data", "beta"},
		{"longest substring wins", "please send the weekly report", "alpha"},
		{"substring tie by declaration order", "draw a chart", "gamma"},
		{"no match", "hello there", ""},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snap.MatchByKeyword(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestMatchByKeywordNameTieBreak(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.yaml", "name: zed\nmodel: {}\ntriggers: {keywords: [plan]}\n")
	writeDoc(t, dir, "b.yaml", "name: amy\nmodel: {}\ntriggers: {keywords: [plan]}\n")
	snap, err := Load(dir)
	require.NoError(t, err)

	// Exact match: equal declaration order, first in index order wins.
	assert.Equal(t, "zed", snap.MatchByKeyword("plan").Name)
	// Substring match: equal length and order, agent name decides.
	assert.Equal(t, "amy", snap.MatchByKeyword("make a plan").Name)
}

func TestMatchKeywordReportsKeyword(t *testing.T) {
	snap, err := Load(seedDir(t))
	require.NoError(t, err)

	e, ok := snap.MatchKeyword("帮我部署一下")
	require.True(t, ok)
	assert.Equal(t, "deploy", e.AgentName)
	assert.Equal(t, "部署", e.Keyword)
}

func TestDiscoverFingerprint(t *testing.T) {
	dir := seedDir(t)
	r := New(Options{})
	defer r.Close()

	first, err := r.Discover(context.Background(), dir, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Len())

	same, err := r.Discover(context.Background(), dir, DiscoverOptions{})
	require.NoError(t, err)
	assert.Same(t, first, same, "unchanged dir should not reload")

	forced, err := r.Discover(context.Background(), dir, DiscoverOptions{ForceReload: true})
	require.NoError(t, err)
	assert.NotSame(t, first, forced)

	writeDoc(t, dir, "d-extra.yaml", "name: extra\nmodel: {}\ntriggers: {}\n")
	changed, err := r.Discover(context.Background(), dir, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, changed.Len())
	assert.NotNil(t, r.GetAgent("extra"))
	assert.Len(t, r.ListAgents(), 4)
}

func TestDiscoverFailureKeepsSnapshot(t *testing.T) {
	dir := seedDir(t)
	r := New(Options{})
	defer r.Close()

	good, err := r.Discover(context.Background(), dir, DiscoverOptions{})
	require.NoError(t, err)

	writeDoc(t, dir, "z-bad.yaml", "name: broken\n")
	got, err := r.Discover(context.Background(), dir, DiscoverOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.Same(t, good, got)
	assert.Same(t, good, r.Snapshot())
	assert.Nil(t, r.GetAgent("broken"))
}

func TestDiscoverCancelledContext(t *testing.T) {
	r := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := r.Discover(ctx, seedDir(t), DiscoverOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, snap.Len())
}

func TestWatchReloads(t *testing.T) {
	dir := seedDir(t)
	r := New(Options{Debounce: 20 * time.Millisecond})
	defer r.Close()

	var reloads atomic.Int32
	r.OnReload(func(*Snapshot) { reloads.Add(1) })

	_, err := r.Discover(context.Background(), dir, DiscoverOptions{Watch: true})
	require.NoError(t, err)
	require.True(t, r.Watching())
	initial := reloads.Load()

	writeDoc(t, dir, "d-extra.yaml", "name: extra\nmodel: {}\ntriggers: {keywords: [extra]}\n")
	require.Eventually(t, func() bool {
		return r.GetAgent("extra") != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, reloads.Load(), initial)

	// An invalid document keeps the last good snapshot.
	time.Sleep(100 * time.Millisecond)
	good := r.Snapshot()
	writeDoc(t, dir, "e-bad.yaml", "name: broken\n")
	time.Sleep(150 * time.Millisecond)
	assert.Same(t, good, r.Snapshot())

	// Removing the bad document lets the next reload succeed.
	require.NoError(t, os.Remove(filepath.Join(dir, "e-bad.yaml")))
	require.NoError(t, os.Remove(filepath.Join(dir, "a-coder.yaml")))
	require.Eventually(t, func() bool {
		return r.GetAgent("coder") == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Close())
	assert.False(t, r.Watching())
	require.NoError(t, r.Close())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := seedDir(t)
	r := New(Options{Debounce: 10 * time.Millisecond})
	defer r.Close()

	_, err := r.Discover(context.Background(), dir, DiscoverOptions{Watch: true})
	require.NoError(t, err)
	before := r.Snapshot()

	writeDoc(t, dir, "notes.txt", "hello")
	time.Sleep(100 * time.Millisecond)
	assert.Same(t, before, r.Snapshot())
}
