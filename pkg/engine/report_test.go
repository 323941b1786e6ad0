package engine

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	report := &Report{}
	report.add(StageResult{Stage: StageExtract, Duration: time.Millisecond})
	assert.False(t, report.Failed())
	require.NoError(t, report.Err())

	boom := errors.New("boom")
	report.add(StageResult{Stage: StageConnect, Err: boom})
	report.add(StageResult{Stage: StageTransfer, Skipped: true})

	assert.True(t, report.Failed())
	require.ErrorIs(t, report.Err(), boom)
	assert.EqualError(t, report.Err(), "connect: boom")

	result, ok := report.Result(StageTransfer)
	require.True(t, ok)
	assert.Equal(t, "skipped", result.Status())

	_, ok = report.Result(StageCleanup)
	assert.False(t, ok)

	buf := new(bytes.Buffer)
	logger := zerolog.New(buf)
	report.Log(&logger)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), `"status":"ok"`)
	assert.Contains(t, string(lines[1]), `"status":"failed"`)
	assert.Contains(t, string(lines[1]), `"error":"boom"`)
	assert.Contains(t, string(lines[2]), `"stage":"transfer"`)
}
