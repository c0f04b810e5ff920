// Copyright 2017 luoji

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//    http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package store

import (
	"sync"

	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/consumer/common"
	"github.com/facebookgo/errgroup"
	"github.com/go-errors/errors"
)

// OffsetBroker 远程位点存储依赖的broker操作
type OffsetBroker interface {
	// 查询位点，broker无记录时返回(-1, nil)
	QueryConsumerOffset(mq *message.MessageQueue, group string, timeout int64) (int64, error)
	UpdateConsumerOffsetOneway(mq *message.MessageQueue, group string, offset int64) error
}

// RemoteBrokerOffsetStore 集群消费模式下的位点存储。权威数据在broker侧，
// 内存表为写穿缓存，由定时任务批量刷回。
type RemoteBrokerOffsetStore struct {
	groupName     string
	broker        OffsetBroker
	offsetTable   map[string]int64
	mqTable       map[string]*message.MessageQueue
	offsetTableMu sync.RWMutex
}

func NewRemoteBrokerOffsetStore(broker OffsetBroker, groupName string) *RemoteBrokerOffsetStore {
	return &RemoteBrokerOffsetStore{
		groupName:   groupName,
		broker:      broker,
		offsetTable: make(map[string]int64),
		mqTable:     make(map[string]*message.MessageQueue),
	}
}

// Load broker为权威存储，本地无需加载
func (store *RemoteBrokerOffsetStore) Load() {
}

func (store *RemoteBrokerOffsetStore) ReadOffset(mq *message.MessageQueue, rType ReadOffsetType) int64 {
	if mq == nil {
		return -1
	}

	switch rType {
	case READ_FROM_MEMORY:
		return store.readOffsetFromMemory(mq)
	case READ_FROM_STORE:
		return store.readOffsetFromBroker(mq)
	case MEMORY_FIRST_THEN_STORE:
		if offset := store.readOffsetFromMemory(mq); offset >= 0 {
			return offset
		}
		return store.readOffsetFromBroker(mq)
	default:
	}

	return -1
}

func (store *RemoteBrokerOffsetStore) readOffsetFromMemory(mq *message.MessageQueue) int64 {
	store.offsetTableMu.RLock()
	defer store.offsetTableMu.RUnlock()

	offset, ok := store.offsetTable[common.QueueKey(mq)]
	if !ok {
		return -1
	}

	return offset
}

func (store *RemoteBrokerOffsetStore) readOffsetFromBroker(mq *message.MessageQueue) int64 {
	offset, err := store.broker.QueryConsumerOffset(mq, store.groupName, 1000*3)
	if err != nil {
		logger.Warnf("query consumer offset err, group: %s mq: %s err: %s", store.groupName, common.QueueKey(mq), err)
		return -2
	}

	if offset >= 0 {
		store.UpdateOffset(mq, offset, false)
	}

	return offset
}

func (store *RemoteBrokerOffsetStore) UpdateOffset(mq *message.MessageQueue, offset int64, increaseOnly bool) {
	if mq == nil {
		return
	}

	key := common.QueueKey(mq)
	store.offsetTableMu.Lock()
	old, ok := store.offsetTable[key]
	if !ok || !increaseOnly || offset > old {
		store.offsetTable[key] = offset
		store.mqTable[key] = mq
	}
	store.offsetTableMu.Unlock()
}

func (store *RemoteBrokerOffsetStore) Persist(mq *message.MessageQueue) {
	if mq == nil {
		return
	}

	offset := store.readOffsetFromMemory(mq)
	if offset < 0 {
		return
	}

	err := store.broker.UpdateConsumerOffsetOneway(mq, store.groupName, offset)
	if err != nil {
		logger.Errorf("persist offset to broker err, group: %s mq: %s offset: %d err: %s",
			store.groupName, common.QueueKey(mq), offset, err)
		return
	}

	logger.Infof("persist offset to broker, group: %s mq: %s offset: %d", store.groupName, common.QueueKey(mq), offset)
}

// PersistAll 批量刷回，单个队列失败只记录，下个周期重试
func (store *RemoteBrokerOffsetStore) PersistAll(mqs []*message.MessageQueue) {
	if len(mqs) == 0 {
		return
	}

	owned := make(map[string]*message.MessageQueue, len(mqs))
	for _, mq := range mqs {
		if mq != nil {
			owned[common.QueueKey(mq)] = mq
		}
	}

	var g errgroup.Group
	store.offsetTableMu.RLock()
	offsets := make(map[string]int64, len(store.offsetTable))
	for key, offset := range store.offsetTable {
		offsets[key] = offset
	}
	store.offsetTableMu.RUnlock()

	for key, offset := range offsets {
		mq, ok := owned[key]
		if !ok {
			continue
		}

		err := store.broker.UpdateConsumerOffsetOneway(mq, store.groupName, offset)
		if err != nil {
			g.Error(errors.Errorf("persist offset of %s err: %s", key, err))
		}
	}

	if err := g.Wait(); err != nil {
		logger.Errorf("persist all offsets err, group: %s err: %s", store.groupName, err)
	}
}

func (store *RemoteBrokerOffsetStore) RemoveOffset(mq *message.MessageQueue) {
	if mq == nil {
		return
	}

	key := common.QueueKey(mq)
	store.offsetTableMu.Lock()
	delete(store.offsetTable, key)
	delete(store.mqTable, key)
	store.offsetTableMu.Unlock()

	logger.Infof("remove unnecessary offset, group: %s mq: %s", store.groupName, key)
}
