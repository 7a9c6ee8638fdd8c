package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	num := 5.4
	text := "positive"
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{name: "numeric only", event: Event{Code: "LAB//glucose", NumericValue: &num}},
		{name: "text only", event: Event{Code: "LAB//culture", TextValue: &text}},
		{name: "no value", event: Event{Code: "ADMIT//er"}},
		{name: "both values", event: Event{Code: "LAB//glucose", NumericValue: &num, TextValue: &text}, wantErr: true},
		{name: "bad code", event: Event{Code: "glucose"}, wantErr: true},
		{name: "empty detail", event: Event{Code: "LAB//"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplitEventCode(t *testing.T) {
	typ, detail, ok := SplitEventCode("DIAGNOSIS//ICD10CM//E11.9")
	require.True(t, ok)
	require.Equal(t, "DIAGNOSIS", typ)
	require.Equal(t, "ICD10CM//E11.9", detail)
	require.Equal(t, "LAB//k", JoinEventCode("LAB", "k"))
}

func TestPageCloneIsDeep(t *testing.T) {
	pid := int64(7)
	page := &Page{
		ID: "p",
		QueryAnswers: []QueryAnswer{{
			Query:   Query{Query: "q", PatientID: &pid, Steps: []ReasoningStep{{Step: "s"}}},
			Answer:  &Answer{Answer: "a"},
			IsFirst: true,
		}},
	}
	clone := page.Clone()
	clone.QueryAnswers[0].Answer.Answer = "changed"
	*clone.QueryAnswers[0].Query.PatientID = 9
	clone.QueryAnswers[0].Query.Steps[0].Step = "x"
	require.Equal(t, "a", page.QueryAnswers[0].Answer.Answer)
	require.Equal(t, int64(7), *page.QueryAnswers[0].Query.PatientID)
	require.Equal(t, "s", page.QueryAnswers[0].Query.Steps[0].Step)
}
