package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectiveStatus_ZeroValueInvalid(t *testing.T) {
	var s CorrectiveStatus
	assert.False(t, s.Valid())
	_, err := s.MarshalText()
	assert.Error(t, err)
}

func TestCorrectiveStatus_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S CorrectiveStatus `json:"s"`
	}{StatusWorkCompleted})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"work_completed"}`, string(b))

	var out struct {
		S CorrectiveStatus `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"verified"}`), &out))
	assert.Equal(t, StatusVerified, out.S)

	assert.Error(t, json.Unmarshal([]byte(`{"s":"reopened"}`), &out))
}

func TestCorrectiveStatus_OnlyClosedIsTerminal(t *testing.T) {
	for _, s := range Statuses {
		assert.Equal(t, s == StatusClosed, s.Terminal(), s.String())
	}
}

func TestChecklist_Missing(t *testing.T) {
	c := Checklist{PhysicalInspectionDone: true, ConditionCorrected: true, NoNewDefectsFound: true}
	assert.Equal(t, []string{"surrounding area acceptable", "documentation complete"}, c.Missing())
	assert.False(t, c.Complete())

	c.SurroundingAreaAcceptable = true
	c.DocumentationComplete = true
	assert.True(t, c.Complete())
}

func TestDedupKey(t *testing.T) {
	a := CorrectableIssue{ID: "inspection:1", Category: "Plumbing", ItemKey: "P-12", Area: AreaInsideUnit}
	b := CorrectableIssue{ID: "inspection:2", Category: "Plumbing", ItemKey: "P-12", Area: AreaInsideUnit}
	c := CorrectableIssue{ID: "inspection:3", Category: "Plumbing", ItemKey: "P-12", Area: AreaOutside}
	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())

	m1 := CorrectableIssue{ID: "manual:1", Category: "Plumbing", Area: AreaOutside}
	m2 := CorrectableIssue{ID: "manual:2", Category: "Plumbing", Area: AreaOutside}
	assert.NotEqual(t, m1.DedupKey(), m2.DedupKey())
}
