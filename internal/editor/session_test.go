package editor

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
)

// fakeClient is an in-memory DataClient. When gate is set, Load and Save
// block until it is closed.
type fakeClient struct {
	mu      sync.Mutex
	data    map[string]string
	loadErr error
	saveErr error
	swapErr error
	gate    chan struct{}
	loads   int
	saves   []string
	swaps   []SwapRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{"example.com/hero.json": `{"title":"Hi"}`}}
}

func (f *fakeClient) wait() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeClient) Load(ctx context.Context, site, path string) (string, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return "", f.loadErr
	}
	return f.data[site+"/"+path], nil
}

func (f *fakeClient) Save(ctx context.Context, site, path, body string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, body)
	f.data[site+"/"+path] = body
	return nil
}

func (f *fakeClient) Swap(ctx context.Context, req SwapRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.swapErr != nil {
		return f.swapErr
	}
	f.swaps = append(f.swaps, req)
	return nil
}

var heroTarget = Target{ComponentID: "hero-0", Name: "Hero", DataPath: "hero.json", Site: "example.com"}

func TestSession_OpenEditSave(t *testing.T) {
	client := newFakeClient()
	reloads := 0
	var states []State
	session := NewSession(client, Options{
		Reload:   func() { reloads++ },
		OnChange: func(s Snapshot) { states = append(states, s.State) },
	}, logging.Discard())

	require.NoError(t, session.Open(context.Background(), heroTarget))
	snap := session.Snapshot()
	assert.Equal(t, StateViewing, snap.State)
	assert.Equal(t, `{"title":"Hi"}`, snap.Text)
	assert.False(t, snap.Dirty)
	assert.False(t, snap.CanSave)

	require.NoError(t, session.Edit(`{"a":}`))
	snap = session.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	require.NotNil(t, snap.ParseError)
	assert.False(t, snap.CanSave)
	assert.Error(t, session.Save(context.Background()))

	require.NoError(t, session.Edit(`{"a":1}`))
	snap = session.Snapshot()
	assert.Nil(t, snap.ParseError)
	assert.True(t, snap.CanSave)

	require.NoError(t, session.Save(context.Background()))
	assert.Equal(t, StateClosed, session.Snapshot().State)
	assert.Equal(t, []string{`{"a":1}`}, client.saves)
	assert.Equal(t, 1, reloads)
	assert.Equal(t, []State{StateLoading, StateViewing, StateEditing, StateEditing, StateSaving, StateClosed}, states)
}

func TestSession_OnDataReportsStoredPayloads(t *testing.T) {
	client := newFakeClient()
	var payloads []string
	session := NewSession(client, Options{
		Cache: NewCache(),
		OnData: func(target Target, text string) {
			assert.Equal(t, heroTarget, target)
			payloads = append(payloads, text)
		},
	}, logging.Discard())

	require.NoError(t, session.Open(context.Background(), heroTarget))
	require.NoError(t, session.Edit(`{"title":"Draft"}`))
	assert.Equal(t, []string{`{"title":"Hi"}`}, payloads)

	require.NoError(t, session.Edit(`{"title":"Saved"}`))
	require.NoError(t, session.Save(context.Background()))
	assert.Equal(t, []string{`{"title":"Hi"}`, `{"title":"Saved"}`}, payloads)

	require.NoError(t, session.Open(context.Background(), heroTarget))
	assert.Equal(t, 1, client.loads)
	assert.Equal(t, []string{`{"title":"Hi"}`, `{"title":"Saved"}`, `{"title":"Saved"}`}, payloads)

	require.NoError(t, session.Close(true))
	client.loadErr = stderrors.New("offline")
	session = NewSession(client, Options{
		OnData: func(Target, string) { t.Fatal("no payload on load failure") },
	}, logging.Discard())
	require.Error(t, session.Open(context.Background(), heroTarget))
}

func TestSession_LoadFailureShowsEmptyObject(t *testing.T) {
	client := newFakeClient()
	client.loadErr = errors.NewNetworkError(errors.ErrCodeRequestFailed, "boom", nil)
	session := NewSession(client, Options{}, logging.Discard())

	err := session.Open(context.Background(), heroTarget)
	require.Error(t, err)

	snap := session.Snapshot()
	assert.Equal(t, StateViewing, snap.State)
	assert.Equal(t, "{}", snap.Text)
	assert.Contains(t, snap.Error, "boom")
}

func TestSession_SaveFailureKeepsEdits(t *testing.T) {
	client := newFakeClient()
	session := NewSession(client, Options{}, logging.Discard())
	require.NoError(t, session.Open(context.Background(), heroTarget))
	require.NoError(t, session.Edit(`{"title":"Changed"}`))

	client.saveErr = stderrors.New("disk full")
	require.Error(t, session.Save(context.Background()))

	snap := session.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, `{"title":"Changed"}`, snap.Text)
	assert.Equal(t, "disk full", snap.Error)
	assert.True(t, snap.CanSave)

	client.saveErr = nil
	require.NoError(t, session.Save(context.Background()))
	assert.Equal(t, StateClosed, session.Snapshot().State)
}

func TestSession_SaveRequiresDirty(t *testing.T) {
	session := NewSession(newFakeClient(), Options{}, logging.Discard())
	require.NoError(t, session.Open(context.Background(), heroTarget))
	assert.Error(t, session.Save(context.Background()))

	require.NoError(t, session.Edit(`{"title":"Hi"}`))
	assert.False(t, session.Snapshot().CanSave)
}

func TestSession_Format(t *testing.T) {
	session := NewSession(newFakeClient(), Options{}, logging.Discard())
	require.NoError(t, session.Open(context.Background(), heroTarget))

	require.NoError(t, session.Format())
	snap := session.Snapshot()
	assert.Equal(t, "{\n  \"title\": \"Hi\"\n}", snap.Text)
	assert.Equal(t, StateEditing, snap.State)

	require.NoError(t, session.Edit(`{"a":}`))
	assert.Error(t, session.Format())
	assert.Equal(t, `{"a":}`, session.Snapshot().Text)
}

func TestSession_CloseConfirmsUnsavedChanges(t *testing.T) {
	session := NewSession(newFakeClient(), Options{}, logging.Discard())
	require.NoError(t, session.Open(context.Background(), heroTarget))
	require.NoError(t, session.Edit(`{"title":"Draft"}`))

	err := session.Close(false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, StateEditing, session.Snapshot().State)

	require.NoError(t, session.Close(true))
	assert.Equal(t, StateClosed, session.Snapshot().State)
	require.NoError(t, session.Close(false))
}

func TestSession_RequiresSite(t *testing.T) {
	session := NewSession(newFakeClient(), Options{}, logging.Discard())
	target := heroTarget
	target.Site = ""

	err := session.Open(context.Background(), target)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeResolution))
	assert.Equal(t, StateClosed, session.Snapshot().State)
}

func TestSession_CacheSkipsLoading(t *testing.T) {
	client := newFakeClient()
	cache := NewCache()
	first := NewSession(client, Options{Cache: cache}, logging.Discard())
	require.NoError(t, first.Open(context.Background(), heroTarget))
	require.NoError(t, first.Close(false))

	var states []State
	second := NewSession(client, Options{
		Cache:    cache,
		OnChange: func(s Snapshot) { states = append(states, s.State) },
	}, logging.Discard())
	require.NoError(t, second.Open(context.Background(), heroTarget))

	assert.Equal(t, 1, client.loads)
	assert.Equal(t, []State{StateViewing}, states)
}

func TestSession_LateLoadIsDiscarded(t *testing.T) {
	client := newFakeClient()
	client.gate = make(chan struct{})
	session := NewSession(client, Options{}, logging.Discard())

	done := make(chan error, 1)
	go func() { done <- session.Open(context.Background(), heroTarget) }()

	require.Eventually(t, func() bool {
		return session.Snapshot().State == StateLoading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Close(false))
	close(client.gate)
	require.NoError(t, <-done)

	assert.Equal(t, StateClosed, session.Snapshot().State)
	assert.Empty(t, session.Snapshot().Text)
}

func TestSession_LateSaveIsDiscarded(t *testing.T) {
	client := newFakeClient()
	reloads := 0
	session := NewSession(client, Options{Reload: func() { reloads++ }}, logging.Discard())
	require.NoError(t, session.Open(context.Background(), heroTarget))
	require.NoError(t, session.Edit(`{"title":"New"}`))

	gate := make(chan struct{})
	client.mu.Lock()
	client.gate = gate
	client.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- session.Save(context.Background()) }()
	require.Eventually(t, func() bool {
		return session.Snapshot().State == StateSaving
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Close(true))
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, 0, reloads)
	assert.Equal(t, StateClosed, session.Snapshot().State)
}
