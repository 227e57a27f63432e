/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/log"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	logger := rec.With(log.String("request_id", "c1"))
	logger.Info("request served", log.Int("status", 200))
	logger.Warn("[metrics] reqs=1000")

	entry, found := rec.FindEntry("request served")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("request_id")
	require.True(t, found)
	require.Equal(t, "c1", string(field.Bytes))
	field, found = entry.FindField("status")
	require.True(t, found)
	require.EqualValues(t, 200, field.Int)

	summaries := rec.FindAllEntriesByPrefix("[metrics]")
	require.Len(t, summaries, 1)
	require.Equal(t, log.LevelWarn, summaries[0].Level)

	rec.Reset()
	require.Empty(t, rec.Entries())
}
