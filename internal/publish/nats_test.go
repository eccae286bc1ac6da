package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knapsweep/internal/evo"
	"knapsweep/internal/experiment"
	"knapsweep/internal/model"
	"knapsweep/internal/score"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages []message
	flushed  int
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) Flush() error {
	p.flushed++
	return nil
}

func TestSinkPublishesPerGroupSubject(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := NewSink(pub, "lab.knapsack.")
	require.NoError(t, err)

	results := []experiment.RunResult{
		{SweepID: "s", Group: experiment.GroupBaseline, GenerationBudget: 50, BestScore: score.Feasible(12), BestGenome: evo.Bitstring{true}},
		{SweepID: "s", Group: experiment.GroupIncremental, GenerationBudget: 5, RunIndex: 1, BestScore: score.Infeasible(), BestGenome: evo.Bitstring{false}},
	}
	for _, r := range results {
		require.NoError(t, sink.Write(context.Background(), r))
	}
	require.NoError(t, sink.Close())

	require.Len(t, pub.messages, 2)
	assert.Equal(t, "lab.knapsack.baseline", pub.messages[0].subject)
	assert.Equal(t, "lab.knapsack.incremental", pub.messages[1].subject)
	assert.Equal(t, 1, pub.flushed)

	var rec model.RunRecord
	require.NoError(t, json.Unmarshal(pub.messages[1].data, &rec))
	assert.Equal(t, int64(-1), rec.BestScore)
	assert.False(t, rec.Feasible)
	assert.Equal(t, 1, rec.RunIndex)
	assert.Equal(t, "incremental", rec.Group)
}

func TestSinkDefaultsAndErrors(t *testing.T) {
	_, err := NewSink(nil, "x")
	assert.Error(t, err)

	pub := &fakePublisher{err: errors.New("no responders")}
	sink, err := NewSink(pub, " ")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject+".baseline", sink.Subject(experiment.GroupBaseline))

	err = sink.Write(context.Background(), experiment.RunResult{Group: experiment.GroupBaseline})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no responders")
}
