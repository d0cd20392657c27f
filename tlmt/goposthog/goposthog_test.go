package goposthog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vector/vector-docparse/tlmt"
)

func TestSendRejectsInvalidEvents(t *testing.T) {
	svc, err := New("phc_test", "http://127.0.0.1:1")
	require.NoError(t, err)

	err = svc.Send(context.Background(), tlmt.Event{Name: tlmt.EventParseCompleted})
	assert.Error(t, err, "missing distinct id")

	err = svc.Send(context.Background(), tlmt.Event{AnonymousID: "abc"})
	assert.Error(t, err, "missing event name")

	assert.NoError(t, svc.Close())
}
