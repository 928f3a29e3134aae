package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageRank_FollowsPipelineOrder(t *testing.T) {
	for i, s := range Stages {
		assert.Equal(t, i, StageRank(s), "stage %s", s)
	}
	assert.Equal(t, -1, Stage("thumbnails").Rank())
	assert.False(t, Stage("").Valid())
}

func TestStage_Label(t *testing.T) {
	assert.Equal(t, "Uploading file", StageFileUpload.Label())
	assert.Equal(t, "Generating flashcards", StageFlashcards.Label())
	assert.Equal(t, "unknown", Stage("bogus").Label())
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		rank     int
	}{
		{StatusPending, false, 0},
		{StatusInProgress, false, 1},
		{StatusCompleted, true, 2},
		{StatusSkipped, true, 2},
		{StatusError, true, 2},
		{Status("paused"), false, -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.status))
			assert.Equal(t, tt.rank, tt.status.Rank())
		})
	}
}

func TestStatus_Done(t *testing.T) {
	assert.True(t, StatusCompleted.Done())
	assert.True(t, StatusSkipped.Done())
	assert.False(t, StatusError.Done())
	assert.False(t, StatusInProgress.Done())
}
