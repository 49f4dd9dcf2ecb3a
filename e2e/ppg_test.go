//go:build e2e

package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChrome_SyntheticPulseEstimates streams the page's 75 BPM synthetic
// pulse through the data channel and waits for the server's estimate to
// converge on the page and on the WebSocket feed.
func TestChrome_SyntheticPulseEstimates(t *testing.T) {
	srv, client := openPage(t)

	require.NoError(t, client.Click("#syntheticBtn"))
	require.NoError(t, client.WaitEval(`() => window.ppgState.connected === true`))
	t.Log("Data channel open, streaming synthetic frames")

	require.NoError(t, client.WaitEval(`() => window.ppgState.bpm === 75`))

	sent, err := client.Eval(`() => window.ppgState.framesSent`)
	require.NoError(t, err)
	t.Logf("Frames sent: %v", sent)

	text := client.Page().MustElement("#bpm").MustText()
	assert.Equal(t, "75", text)

	require.NoError(t, client.WaitEval(`() => window.ppgState.wsEstimates > 0`))
	assert.Equal(t, 1, srv.Hub().Len())

	require.NoError(t, client.Click("#stopBtn"))
	require.NoError(t, client.WaitEval(`() => window.ppgState.connected === false`))
}
