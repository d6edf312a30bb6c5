// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"github.com/luxfi/metric"
)

type actorMetrics struct {
	commandsApplied  metric.Counter
	commandsRejected metric.Counter
	queueDepth       metric.Gauge
}

func newMetrics(registerer metric.Registerer) (*actorMetrics, error) {
	m := &actorMetrics{
		commandsApplied: metric.NewCounter(metric.CounterOpts{
			Name: "actor_commands_applied",
			Help: "Number of commands applied successfully",
		}),
		commandsRejected: metric.NewCounter(metric.CounterOpts{
			Name: "actor_commands_rejected",
			Help: "Number of commands that returned an error",
		}),
		queueDepth: metric.NewGauge(metric.GaugeOpts{
			Name: "actor_queue_depth",
			Help: "Number of commands waiting in the queue",
		}),
	}

	if registerer == nil {
		return m, nil
	}
	err := registerer.Register(metric.AsCollector(m.commandsApplied))
	if err != nil {
		return nil, err
	}
	err = registerer.Register(metric.AsCollector(m.commandsRejected))
	if err != nil {
		return nil, err
	}
	err = registerer.Register(metric.AsCollector(m.queueDepth))
	if err != nil {
		return nil, err
	}
	return m, nil
}
