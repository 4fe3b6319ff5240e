// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher__publish(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := New(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer pub.Close()

	data := map[string]string{"username": "jdoe", "email": "jdoe@example.com"}
	require.NoError(t, pub.Publish(ctx, AccountRequestDenied, data))
	require.NoError(t, pub.Publish(ctx, ContactMessageReceived, data))

	entries, err := pub.client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, AccountRequestDenied, entries[0].Values["type"])

	var event Event
	raw, ok := entries[0].Values["event"].(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, AccountRequestDenied, event.Type)
	assert.False(t, event.Timestamp.IsZero())

	var got map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestPublisher__unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestPublisher__closedServer(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := New(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Ping(ctx))
	mr.Close()

	err = pub.Publish(ctx, AccountRequestAccepted, map[string]string{"username": "jdoe"})
	assert.Error(t, err)
}
