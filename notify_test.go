// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kit/kit/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moov-io/website/pkg/notify"
)

func TestNotify__redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ts := setupTestServer(t, settings{})
	router := setupRouter(log.NewNopLogger(), ts.db, ts.oauth, notify.NewPublisher(client, ""), settings{
		SendEmailWhenContactMessageIsReceived: true,
	})
	ts.router = router

	body := map[string]string{"name": "Jane", "email": "jane@example.com", "content": "hello"}
	w := ts.do(t, "POST", "/contact-messages/", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	entries, err := client.XRange(context.Background(), notify.DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, notify.ContactMessageReceived, entries[0].Values["type"])

	var event notify.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["event"].(string)), &event))

	var msg ContactMessage
	require.NoError(t, json.Unmarshal(event.Data, &msg))
	assert.Equal(t, "jane@example.com", msg.Email)
	assert.NotEmpty(t, msg.ID)
}

func TestNotify__redisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ts := setupTestServer(t, settings{})
	ts.router = setupRouter(log.NewNopLogger(), ts.db, ts.oauth, notify.NewPublisher(client, ""), settings{
		SendEmailWhenContactMessageIsReceived: true,
	})

	// the message is kept even though no one hears about it
	body := map[string]string{"name": "Jane", "email": "jane@example.com", "content": "hello"}
	w := ts.do(t, "POST", "/contact-messages/", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	msgs, err := ts.messages.getAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestNotify__publish(t *testing.T) {
	// nil notifiers are skipped
	publish(context.Background(), log.NewNopLogger(), nil, notify.AccountRequestAccepted, nil)

	events := &recordingNotifier{}
	publish(context.Background(), log.NewNopLogger(), events, notify.AccountRequestDenied, accountRequestEvent{Username: "jdoe"})
	assert.Equal(t, []string{notify.AccountRequestDenied}, events.types())
}
