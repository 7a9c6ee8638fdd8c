package ai

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int
		wantErr bool
	}{
		{
			name:   "plain json",
			output: `{"steps":[{"step":"Review labs","reasoning":"glucose trend"},{"step":"Check meds","reasoning":"insulin"}]}`,
			want:   2,
		},
		{
			name:   "fenced",
			output: "```json\n{\"steps\":[{\"step\":\"a\",\"reasoning\":\"b\"}]}\n```",
			want:   1,
		},
		{
			name:   "surrounded by prose",
			output: `Sure, here you go: {"steps":[{"step":"a","reasoning":"b"}]} hope this helps`,
			want:   1,
		},
		{
			name:   "zero steps",
			output: `{"steps":[]}`,
			want:   0,
		},
		{
			name:   "blank steps dropped",
			output: `{"steps":[{"step":"  ","reasoning":"x"},{"step":"a","reasoning":""}]}`,
			want:   1,
		},
		{
			name:    "missing field",
			output:  `{"answer":"x"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			output:  `I cannot help with that`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := parseSteps(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				var ue *appErr.UpstreamError
				require.ErrorAs(t, err, &ue)
				require.Equal(t, appErr.UpstreamBadResponse, ue.Kind)
				return
			}
			require.NoError(t, err)
			require.Len(t, steps, tt.want)
		})
	}
}

func TestParseAnswer(t *testing.T) {
	answer, err := parseAnswer(`{"answer":"Metformin 500mg","reasoning":"listed in discharge meds"}`)
	require.NoError(t, err)
	require.Equal(t, "Metformin 500mg", answer.Answer)
	require.Equal(t, "listed in discharge meds", answer.Reasoning)

	answer, err = parseAnswer(`{"answer":"only answer"}`)
	require.NoError(t, err)
	require.Empty(t, answer.Reasoning)

	_, err = parseAnswer(`{"reasoning":"no answer"}`)
	require.Error(t, err)

	_, err = parseAnswer(`{"answer":"   "}`)
	require.Error(t, err)
}
