package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	name string
	log  *[]string
}

func (r recorder) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	*r.log = append(*r.log, r.name+":"+eventType)
}

func TestFanoutPublishesInOrder(t *testing.T) {
	var log []string
	f := NewFanout(recorder{"webhook", &log}, nil, recorder{"stats", &log})

	assert.Len(t, f, 2)
	f.Publish(context.Background(), "lead.created", nil)
	assert.Equal(t, []string{"webhook:lead.created", "stats:lead.created"}, log)
}

func TestEmptyFanout(t *testing.T) {
	assert.NotPanics(t, func() {
		NewFanout().Publish(context.Background(), "payment.created", map[string]interface{}{"id": 1})
	})
}
