/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"context"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/events"
	"golang.org/x/sync/errgroup"
)

// ChannelSource is a BlockSource fed by one channel per node.
// It gives no ordering guarantee across the channels.
type ChannelSource struct {
	inputs    []<-chan *driver.BlockNotification
	listeners *events.Registry[driver.BlockListener]
}

func NewChannelSource(inputs ...<-chan *driver.BlockNotification) *ChannelSource {
	return &ChannelSource{
		inputs:    inputs,
		listeners: events.NewRegistry[driver.BlockListener](),
	}
}

func (s *ChannelSource) AddBlockListener(listener driver.BlockListener) driver.ListenerHandle {
	return s.listeners.Add(listener)
}

func (s *ChannelSource) RemoveBlockListener(handle driver.ListenerHandle) {
	s.listeners.Remove(handle)
}

// Run pumps the channels concurrently until all of them are closed, returning nil,
// or until the context is done, returning its error.
func (s *ChannelSource) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, input := range s.inputs {
		input := input
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case block, ok := <-input:
					if !ok {
						return nil
					}
					s.publish(block)
				}
			}
		})
	}
	return g.Wait()
}

func (s *ChannelSource) publish(block *driver.BlockNotification) {
	s.listeners.Each(func(l driver.BlockListener) error {
		return l.OnBlock(block)
	}, func(handle driver.ListenerHandle, err error) {
		logger.Warnf("listener [%d] failed on block [%d]: %v", handle, block.Number, err)
	})
}
