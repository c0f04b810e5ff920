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
	"testing"

	"github.com/boltmq/common/message"
	"github.com/boltmq/consumer/common"
	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
)

type fakeOffsetBroker struct {
	mu        sync.Mutex
	offsets   map[string]int64
	queryErr  error
	updateErr error
	updates   int
}

func newFakeOffsetBroker() *fakeOffsetBroker {
	return &fakeOffsetBroker{offsets: make(map[string]int64)}
}

func (broker *fakeOffsetBroker) QueryConsumerOffset(mq *message.MessageQueue, group string, timeout int64) (int64, error) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.queryErr != nil {
		return 0, broker.queryErr
	}

	offset, ok := broker.offsets[common.QueueKey(mq)]
	if !ok {
		return -1, nil
	}

	return offset, nil
}

func (broker *fakeOffsetBroker) UpdateConsumerOffsetOneway(mq *message.MessageQueue, group string, offset int64) error {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.updateErr != nil {
		return broker.updateErr
	}

	broker.offsets[common.QueueKey(mq)] = offset
	broker.updates++
	return nil
}

func TestRemoteStoreReadFromStore(t *testing.T) {
	broker := newFakeOffsetBroker()
	mq := testMQ(0)
	broker.offsets[common.QueueKey(mq)] = 42

	store := NewRemoteBrokerOffsetStore(broker, "group")
	store.Load()

	assert.Equal(t, int64(-1), store.ReadOffset(mq, READ_FROM_MEMORY))
	assert.Equal(t, int64(42), store.ReadOffset(mq, READ_FROM_STORE))
	// 查询结果写入内存缓存
	assert.Equal(t, int64(42), store.ReadOffset(mq, READ_FROM_MEMORY))
}

func TestRemoteStoreReadAbsentAndError(t *testing.T) {
	broker := newFakeOffsetBroker()
	store := NewRemoteBrokerOffsetStore(broker, "group")
	mq := testMQ(1)

	assert.Equal(t, int64(-1), store.ReadOffset(mq, READ_FROM_STORE))

	broker.queryErr = errors.New("broker unreachable")
	assert.Equal(t, int64(-2), store.ReadOffset(mq, READ_FROM_STORE))
}

func TestRemoteStoreMemoryFirst(t *testing.T) {
	broker := newFakeOffsetBroker()
	mq := testMQ(2)
	broker.offsets[common.QueueKey(mq)] = 9

	store := NewRemoteBrokerOffsetStore(broker, "group")
	store.UpdateOffset(mq, 100, false)
	assert.Equal(t, int64(100), store.ReadOffset(mq, MEMORY_FIRST_THEN_STORE))

	store.RemoveOffset(mq)
	assert.Equal(t, int64(9), store.ReadOffset(mq, MEMORY_FIRST_THEN_STORE))
}

func TestRemoteStorePersist(t *testing.T) {
	broker := newFakeOffsetBroker()
	store := NewRemoteBrokerOffsetStore(broker, "group")
	mq := testMQ(0)

	// 无记录不触发RPC
	store.Persist(mq)
	assert.Equal(t, 0, broker.updates)

	store.UpdateOffset(mq, 77, false)
	store.Persist(mq)
	assert.Equal(t, int64(77), broker.offsets[common.QueueKey(mq)])
}

func TestRemoteStorePersistAllOnlyOwned(t *testing.T) {
	broker := newFakeOffsetBroker()
	store := NewRemoteBrokerOffsetStore(broker, "group")

	owned := testMQ(0)
	dropped := testMQ(1)
	store.UpdateOffset(owned, 10, false)
	store.UpdateOffset(dropped, 20, false)

	store.PersistAll([]*message.MessageQueue{owned})
	assert.Equal(t, int64(10), broker.offsets[common.QueueKey(owned)])
	_, ok := broker.offsets[common.QueueKey(dropped)]
	assert.False(t, ok)
}

func TestRemoteStorePersistAllErrorKeepsMemory(t *testing.T) {
	broker := newFakeOffsetBroker()
	broker.updateErr = errors.New("flush failed")
	store := NewRemoteBrokerOffsetStore(broker, "group")
	mq := testMQ(0)

	store.UpdateOffset(mq, 5, false)
	store.PersistAll([]*message.MessageQueue{mq})

	// 失败后内存保留，等待下个周期重试
	assert.Equal(t, int64(5), store.ReadOffset(mq, READ_FROM_MEMORY))
}

func TestRemoteStoreIncreaseOnly(t *testing.T) {
	store := NewRemoteBrokerOffsetStore(newFakeOffsetBroker(), "group")
	mq := testMQ(0)

	store.UpdateOffset(mq, 10, true)
	store.UpdateOffset(mq, 8, true)
	assert.Equal(t, int64(10), store.ReadOffset(mq, READ_FROM_MEMORY))
}
