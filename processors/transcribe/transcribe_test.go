package transcribe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hirak99/video-summarizer/flow"
)

func TestProcessReturnsEmptyTranscript(t *testing.T) {
	g := flow.NewProcessGraph()
	node, err := g.AddNode(1, NewFactory(), map[string]any{"path": "clip.mp4"})
	require.NoError(t, err)

	result, err := g.RunUpto(node)
	require.NoError(t, err)

	transcript, ok := result.(Transcript)
	require.True(t, ok)
	require.Equal(t, "clip.mp4", transcript.Path)
	require.Empty(t, transcript.Segments)
}

func TestMissingPathRejected(t *testing.T) {
	g := flow.NewProcessGraph()
	node, err := g.AddNode(1, NewFactory(), map[string]any{})
	require.NoError(t, err)

	_, err = g.RunUpto(node)
	require.Error(t, err)
}
