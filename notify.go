// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
)

// notifier hands website events to whatever delivers emails.
// *notify.Publisher is the Redis backed implementation.
type notifier interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

type discardNotifier struct{}

func (discardNotifier) Publish(ctx context.Context, eventType string, data interface{}) error {
	return nil
}

// publish sends an event, logging failures instead of returning them. A lost
// notification must never fail the request which caused it.
func publish(ctx context.Context, logger log.Logger, events notifier, eventType string, data interface{}) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, eventType, data); err != nil {
		notificationFailures.With("type", eventType).Add(1)
		logger.Log("notify", fmt.Sprintf("problem publishing %s: %v", eventType, err))
		return
	}
	notificationsPublished.With("type", eventType).Add(1)
}
