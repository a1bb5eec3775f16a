package agentproc

import (
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notevault/vaultbridge/src/agentwire"
	"github.com/notevault/vaultbridge/src/chatstore"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCLIClientStreamsEvents(t *testing.T) {
	skipOnWindows(t)

	script := `cat >/dev/null
echo '{"type":"system","subtype":"init"}'
echo '{"type":"assistant-delta","delta":"Hi"}'
echo '{"type":"result","content":"Hi"}'`
	client := NewCLIClient("sh", []string{"-c", script}, nil)

	stream, err := client.Invoke(context.Background(), InvokeRequest{
		Messages: []chatstore.Message{
			{Role: chatstore.RoleUser, Parts: chatstore.PartList{{Type: chatstore.PartText, Text: "hello"}}},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Read()
	require.NoError(t, err)
	assert.Equal(t, agentwire.EventSystem, ev.Type)

	ev, err = stream.Read()
	require.NoError(t, err)
	assert.Equal(t, agentwire.EventAssistantDelta, ev.Type)
	assert.Equal(t, "Hi", ev.Delta)

	ev, err = stream.Read()
	require.NoError(t, err)
	assert.Equal(t, agentwire.EventResult, ev.Type)

	_, err = stream.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCLIClientSkipsMalformedLines(t *testing.T) {
	skipOnWindows(t)

	script := `cat >/dev/null
echo 'not json at all'
echo '{"type":"result","content":"ok"}'`
	client := NewCLIClient("sh", []string{"-c", script}, nil)

	stream, err := client.Invoke(context.Background(), InvokeRequest{})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Read()
	require.NoError(t, err)
	assert.Equal(t, agentwire.EventResult, ev.Type)
}

func TestCLIClientNonZeroExit(t *testing.T) {
	skipOnWindows(t)

	client := NewCLIClient("sh", []string{"-c", "cat >/dev/null; exit 3"}, nil)

	stream, err := client.Invoke(context.Background(), InvokeRequest{})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Read()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestCLIClientWorkingDirectoryValidation(t *testing.T) {
	client := NewCLIClient("sh", nil, nil)
	client.Fs = afero.NewMemMapFs()

	_, err := client.Invoke(context.Background(), InvokeRequest{WorkingDirectory: "/missing/vault"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "working directory")
}

func TestCLIClientSpawnFailure(t *testing.T) {
	client := NewCLIClient("/definitely/not/a/binary", nil, nil)

	_, err := client.Invoke(context.Background(), InvokeRequest{})
	require.Error(t, err)
}

func TestCLIClientCancellation(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewCLIClient("sh", []string{"-c", "cat >/dev/null; sleep 30"}, nil)

	stream, err := client.Invoke(ctx, InvokeRequest{})
	require.NoError(t, err)
	defer stream.Close()

	cancel()

	// The kill surfaces as a read failure, never a clean EOF.
	_, err = stream.Read()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
