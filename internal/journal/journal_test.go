package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
)

func TestSummarize(t *testing.T) {
	admitted := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	req := media.FetchRequest{
		ID:         "r1",
		SourceURL:  "https://youtu.be/abc",
		Options:    media.Options{AudioOnly: true},
		AdmittedAt: admitted,
	}

	tests := []struct {
		name       string
		res        media.Result
		status     string
		code       string
		strategies []string
	}{
		{
			name: "all delivered",
			res: media.Result{Outcomes: []media.Outcome{
				{Status: media.StatusDelivered, Strategy: "direct"},
				{Status: media.StatusDelivered, Strategy: "reupload", Bytes: 10},
				{Status: media.StatusDelivered, Strategy: "direct"},
			}},
			status:     StatusDelivered,
			strategies: []string{"direct", "reupload"},
		},
		{
			name: "partial",
			res: media.Result{Outcomes: []media.Outcome{
				{Status: media.StatusDelivered, Strategy: "direct"},
				{Status: media.StatusSkipped},
			}},
			status:     StatusPartial,
			strategies: []string{"direct"},
		},
		{
			name:       "failed",
			res:        media.Result{Err: errors.NotFound("https://youtu.be/abc")},
			status:     StatusFailed,
			code:       "NOT_FOUND",
			strategies: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Summarize(req, tt.res)
			assert.Equal(t, "r1", e.RequestID)
			assert.Equal(t, "youtube", e.Provider)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.strategies, e.Strategies)
			assert.True(t, e.AudioOnly)
			assert.Equal(t, admitted, e.AdmittedAt)
		})
	}
}

func TestSummarizeUnknownProvider(t *testing.T) {
	e := Summarize(media.FetchRequest{SourceURL: "https://example.com"}, media.Result{})
	assert.Equal(t, "unknown", e.Provider)
	assert.False(t, e.AdmittedAt.IsZero())
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P01"})))
	assert.False(t, IsUndefinedTable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUndefinedTable(nil))
}
