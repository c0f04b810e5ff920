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
package boltmq

import (
	"sync"
	"testing"

	"github.com/boltmq/common/basis"
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/consumer/client"
	"github.com/boltmq/consumer/common"
	"github.com/boltmq/consumer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offsetUpdate struct {
	key          string
	offset       int64
	increaseOnly bool
}

type fakeOffsetStore struct {
	mu           sync.Mutex
	offsets      map[string]int64 // 内存层
	storeOffsets map[string]int64 // 稳定存储层
	persisted    []string
	removed      []string
	updates      []offsetUpdate
	readStoreErr bool
}

func newFakeOffsetStore() *fakeOffsetStore {
	return &fakeOffsetStore{
		offsets:      make(map[string]int64),
		storeOffsets: make(map[string]int64),
	}
}

func (fake *fakeOffsetStore) Load() {}

func (fake *fakeOffsetStore) PersistAll(mqs []*message.MessageQueue) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, mq := range mqs {
		fake.persisted = append(fake.persisted, common.QueueKey(mq))
	}
}

func (fake *fakeOffsetStore) Persist(mq *message.MessageQueue) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.persisted = append(fake.persisted, common.QueueKey(mq))
}

func (fake *fakeOffsetStore) RemoveOffset(mq *message.MessageQueue) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	key := common.QueueKey(mq)
	delete(fake.offsets, key)
	fake.removed = append(fake.removed, key)
}

func (fake *fakeOffsetStore) ReadOffset(mq *message.MessageQueue, rType store.ReadOffsetType) int64 {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	key := common.QueueKey(mq)
	switch rType {
	case store.READ_FROM_MEMORY:
		if offset, ok := fake.offsets[key]; ok {
			return offset
		}
		return -1
	case store.READ_FROM_STORE:
		if fake.readStoreErr {
			return -2
		}
		if offset, ok := fake.storeOffsets[key]; ok {
			return offset
		}
		return -1
	default:
	}

	return -1
}

func (fake *fakeOffsetStore) UpdateOffset(mq *message.MessageQueue, offset int64, increaseOnly bool) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	key := common.QueueKey(mq)
	old, ok := fake.offsets[key]
	if !ok || !increaseOnly || offset > old {
		fake.offsets[key] = offset
	}
	fake.updates = append(fake.updates, offsetUpdate{key: key, offset: offset, increaseOnly: increaseOnly})
}

func (fake *fakeOffsetStore) updateCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return len(fake.updates)
}

func (fake *fakeOffsetStore) lastUpdate() offsetUpdate {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.updates[len(fake.updates)-1]
}

func newTestImpl(t *testing.T) (*pushConsumerImpl, *fakeOffsetStore) {
	cfg := NewPushConfig("test-group")
	impl := newPushConsumerImpl(cfg)
	fake := newFakeOffsetStore()
	impl.offsetStore = fake
	impl.status = common.RUNNING
	return impl, fake
}

func newTestMQ(queueId int) *message.MessageQueue {
	return &message.MessageQueue{Topic: "T", BrokerName: "b", QueueId: queueId}
}

func newOwnedPullRequest(impl *pushConsumerImpl, mq *message.MessageQueue, nextOffset int64) *client.PullRequest {
	pr := &client.PullRequest{
		ConsumerGroup: impl.cfg.ConsumerGroup,
		MessageQueue:  mq,
		ProcessQueue:  client.NewProcessQueue(),
		NextOffset:    nextOffset,
	}

	impl.processQueueTableMu.Lock()
	impl.processQueueTable[common.QueueKey(mq)] = pr
	impl.processQueueTableMu.Unlock()

	return pr
}

func TestPushConfigDefaults(t *testing.T) {
	cfg := NewPushConfig("group")

	assert.Equal(t, heartbeat.CLUSTERING, cfg.MessageModel)
	assert.Equal(t, heartbeat.CONSUME_FROM_LAST_OFFSET, cfg.ConsumeFromWhere)
	assert.Equal(t, int32(32), cfg.PullBatchSize)
	assert.Equal(t, int64(0), cfg.PullInterval)
	assert.Equal(t, int64(1000), cfg.PullThresholdForQueue)
	assert.Equal(t, int64(1000*15), cfg.BrokerSuspendMaxTimeMillis)
	assert.Equal(t, int64(1000*30), cfg.ConsumerTimeoutMillisWhenSuspend)
	assert.Equal(t, int64(3000), cfg.PullTimeDelayMillsWhenException)
	assert.True(t, cfg.PostSubscriptionWhenPull)
	assert.Equal(t, 1, cfg.ConsumeMessageBatchMaxSize)
	assert.Equal(t, int64(3000), cfg.ConsumeAckTimeoutMillis)
	assert.Equal(t, "AVG", cfg.AllocateStrategy.GetName())
	require.NoError(t, cfg.check())
}

func TestPushConfigCheck(t *testing.T) {
	cfg := NewPushConfig("")
	assert.Error(t, cfg.check())

	cfg = NewPushConfig("group")
	cfg.ConsumerTimeoutMillisWhenSuspend = cfg.BrokerSuspendMaxTimeMillis
	assert.Error(t, cfg.check())

	cfg = NewPushConfig("group")
	cfg.AllocateStrategy = nil
	assert.Error(t, cfg.check())

	cfg = NewPushConfig("group")
	cfg.ConsumeFromWhere = heartbeat.CONSUME_FROM_TIMESTAMP
	cfg.ConsumeTimestamp = "not-a-timestamp"
	assert.Error(t, cfg.check())

	cfg.ConsumeTimestamp = "20240601120000"
	assert.NoError(t, cfg.check())
}

func TestNewPushConsumerWithConfigRejectsBadConfig(t *testing.T) {
	_, err := NewPushConsumerWithConfig(nil)
	assert.Error(t, err)

	_, err = NewPushConsumerWithConfig(NewPushConfig(""))
	assert.Error(t, err)

	consumer, err := NewPushConsumer("good-group")
	require.NoError(t, err)
	assert.NotNil(t, consumer)
}

func TestSubscribeBeforeStart(t *testing.T) {
	impl := newPushConsumerImpl(NewPushConfig("group"))

	require.NoError(t, impl.Subscribe("TopicTest", "TagA||TagB"))

	subData := impl.subscription("TopicTest")
	require.NotNil(t, subData)
	assert.Equal(t, []string{"TagA", "TagB"}, subData.TagsSet)

	firstVersion := subData.SubVersion
	require.NoError(t, impl.Subscribe("TopicTest", "TagA"))
	assert.True(t, impl.subscription("TopicTest").SubVersion >= firstVersion)

	assert.Error(t, impl.Subscribe("", "TagA"))
	assert.Error(t, impl.Subscribe("TopicTest", "TagA|| ||TagB"))
}

func TestStartWithoutListener(t *testing.T) {
	impl := newPushConsumerImpl(NewPushConfig("group"))

	err := impl.Start()
	assert.Error(t, err)
	assert.Equal(t, common.START_FAILED, impl.status)
}

func TestConsumeMessagesAckAdvancesOffset(t *testing.T) {
	impl, fake := newTestImpl(t)
	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)

	impl.RegisterMessageListener(func(msgs []*message.MessageExt, ack func()) {
		ack()
	})

	msgs := []*message.MessageExt{{QueueOffset: 0}}
	pr.ProcessQueue.PutMessage(msgs)
	impl.consumeMessages(pr, msgs)

	require.Equal(t, 1, fake.updateCount())
	update := fake.lastUpdate()
	assert.Equal(t, "T@b@0", update.key)
	assert.Equal(t, int64(1), update.offset)
	assert.True(t, update.increaseOnly)
	assert.Equal(t, int64(0), pr.ProcessQueue.MsgCount())
}

func TestConsumeMessagesAckTimeoutDoesNotAdvance(t *testing.T) {
	impl, fake := newTestImpl(t)
	impl.cfg.ConsumeAckTimeoutMillis = 20
	impl.cfg.PullTimeDelayMillsWhenException = 1
	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)

	impl.RegisterMessageListener(func(msgs []*message.MessageExt, ack func()) {
		// 不ack
	})

	msgs := []*message.MessageExt{{QueueOffset: 0}}
	pr.ProcessQueue.PutMessage(msgs)
	impl.consumeMessages(pr, msgs)

	assert.Equal(t, 0, fake.updateCount())
	// 未ack消息留在队列里等待重投
	assert.Equal(t, int64(1), pr.ProcessQueue.MsgCount())
}

func TestConsumeMessagesBatchSplit(t *testing.T) {
	impl, fake := newTestImpl(t)
	impl.cfg.ConsumeMessageBatchMaxSize = 1
	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)

	var deliveries int
	var deliveriesMu sync.Mutex
	impl.RegisterMessageListener(func(msgs []*message.MessageExt, ack func()) {
		deliveriesMu.Lock()
		deliveries++
		deliveriesMu.Unlock()
		ack()
	})

	msgs := []*message.MessageExt{{QueueOffset: 0}, {QueueOffset: 1}, {QueueOffset: 2}}
	pr.ProcessQueue.PutMessage(msgs)
	impl.consumeMessages(pr, msgs)

	deliveriesMu.Lock()
	assert.Equal(t, 3, deliveries)
	deliveriesMu.Unlock()
	assert.Equal(t, int64(3), fake.lastUpdate().offset)
	assert.Equal(t, int64(0), pr.ProcessQueue.MsgCount())
}

func TestFilterMessages(t *testing.T) {
	impl, _ := newTestImpl(t)
	subData, err := common.BuildSubscriptionData("T", "TagA||TagB")
	require.NoError(t, err)

	msgs := []*message.MessageExt{
		{QueueOffset: 0, Message: message.Message{Properties: map[string]string{message.PROPERTY_TAGS: "TagA"}}},
		{QueueOffset: 1, Message: message.Message{Properties: map[string]string{message.PROPERTY_TAGS: "TagC"}}},
		{QueueOffset: 2, Message: message.Message{Properties: map[string]string{message.PROPERTY_TAGS: "TagB"}}},
	}

	filtered := impl.filterMessages(msgs, subData)
	require.Len(t, filtered, 2)
	assert.Equal(t, int64(0), filtered[0].QueueOffset)
	assert.Equal(t, int64(2), filtered[1].QueueOffset)

	all, err := common.BuildSubscriptionData("T", "*")
	require.NoError(t, err)
	assert.Len(t, impl.filterMessages(msgs, all), 3)
}

func TestPullMessageExitConditions(t *testing.T) {
	impl, _ := newTestImpl(t)
	mq := newTestMQ(0)

	// 队列不在表里
	orphan := &client.PullRequest{
		ConsumerGroup: impl.cfg.ConsumerGroup,
		MessageQueue:  mq,
		ProcessQueue:  client.NewProcessQueue(),
	}
	assert.False(t, impl.PullMessage(orphan))

	// dropped
	pr := newOwnedPullRequest(impl, mq, 0)
	pr.ProcessQueue.MarkDropped()
	assert.False(t, impl.PullMessage(pr))

	// 消费者已停止
	pr2 := newOwnedPullRequest(impl, newTestMQ(1), 0)
	impl.status = common.SHUTDOWN_ALREADY
	assert.False(t, impl.PullMessage(pr2))
}

// rebalance摘除队列：drop置位、位点持久化、集群模式下内存位点清除、表项删除
func TestUpdateProcessQueueTableRemove(t *testing.T) {
	impl, fake := newTestImpl(t)
	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)
	fake.offsets[common.QueueKey(mq)] = 33

	changed := impl.updateProcessQueueTable("T", nil)

	assert.True(t, changed)
	assert.True(t, pr.ProcessQueue.IsDropped())
	assert.Contains(t, fake.persisted, "T@b@0")
	assert.Contains(t, fake.removed, "T@b@0")

	impl.processQueueTableMu.RLock()
	assert.Empty(t, impl.processQueueTable)
	impl.processQueueTableMu.RUnlock()

	// worker在下一次检查即退出
	assert.False(t, impl.PullMessage(pr))
}

func TestUpdateProcessQueueTableRemoveBroadcast(t *testing.T) {
	impl, fake := newTestImpl(t)
	impl.cfg.MessageModel = heartbeat.BROADCASTING
	mq := newTestMQ(0)
	newOwnedPullRequest(impl, mq, 0)

	changed := impl.updateProcessQueueTable("T", nil)

	assert.True(t, changed)
	assert.Contains(t, fake.persisted, "T@b@0")
	// 广播模式本地位点保留
	assert.Empty(t, fake.removed)
}

func TestUpdateProcessQueueTableKeepsOtherTopics(t *testing.T) {
	impl, _ := newTestImpl(t)
	other := &message.MessageQueue{Topic: "Other", BrokerName: "b", QueueId: 0}
	pr := newOwnedPullRequest(impl, other, 0)

	changed := impl.updateProcessQueueTable("T", nil)

	assert.False(t, changed)
	assert.False(t, pr.ProcessQueue.IsDropped())
}

func TestUpdateProcessQueueTableAdd(t *testing.T) {
	impl, fake := newTestImpl(t)
	impl.mqClient = client.NewMQClient(impl.cfg.Client, 1, "test-client-id")
	mq := newTestMQ(0)
	fake.storeOffsets[common.QueueKey(mq)] = 5

	changed := impl.updateProcessQueueTable("T", []*message.MessageQueue{mq})
	require.True(t, changed)

	impl.processQueueTableMu.RLock()
	pr, ok := impl.processQueueTable[common.QueueKey(mq)]
	impl.processQueueTableMu.RUnlock()
	require.True(t, ok)
	assert.Equal(t, int64(5), pr.NextOffset)
	assert.False(t, pr.ProcessQueue.IsDropped())

	// 同一分配结果重复协调不再报变更
	assert.False(t, impl.updateProcessQueueTable("T", []*message.MessageQueue{mq}))
}

func TestUpdateProcessQueueTableSkipsOnSeedError(t *testing.T) {
	impl, fake := newTestImpl(t)
	fake.readStoreErr = true
	mq := newTestMQ(0)

	changed := impl.updateProcessQueueTable("T", []*message.MessageQueue{mq})

	assert.False(t, changed)
	impl.processQueueTableMu.RLock()
	assert.Empty(t, impl.processQueueTable)
	impl.processQueueTableMu.RUnlock()
}

func TestUpdateProcessQueueTableEvictsExpired(t *testing.T) {
	impl, fake := newTestImpl(t)
	fake.readStoreErr = true // 摘除后本轮不重建
	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)
	pr.ProcessQueue.PullMaxIdleTime = -1

	changed := impl.updateProcessQueueTable("T", []*message.MessageQueue{mq})

	assert.True(t, changed)
	assert.True(t, pr.ProcessQueue.IsDropped())
	assert.Contains(t, fake.persisted, "T@b@0")
}

// broker返回OFFSET_ILLEGAL：队列drop、位点写回并持久化、表项删除，
// 等待下一轮rebalance重新播种
func TestHandleIllegalOffset(t *testing.T) {
	impl, fake := newTestImpl(t)
	oldDelay := pullDelayTimeWhenIllegalOffset
	pullDelayTimeWhenIllegalOffset = 1
	defer func() { pullDelayTimeWhenIllegalOffset = oldDelay }()

	mq := newTestMQ(0)
	pr := newOwnedPullRequest(impl, mq, 0)
	pr.NextOffset = 100

	impl.handleIllegalOffset(pr, &common.PullResult{
		Status:          common.OFFSET_ILLEGAL,
		NextBeginOffset: 100,
	})

	assert.True(t, pr.ProcessQueue.IsDropped())
	update := fake.lastUpdate()
	assert.Equal(t, int64(100), update.offset)
	assert.False(t, update.increaseOnly)
	assert.Contains(t, fake.persisted, "T@b@0")

	impl.processQueueTableMu.RLock()
	assert.Empty(t, impl.processQueueTable)
	impl.processQueueTableMu.RUnlock()
}

func TestComputePullFromWhere(t *testing.T) {
	impl, fake := newTestImpl(t)
	mq := newTestMQ(0)
	key := common.QueueKey(mq)

	// 已有位点优先
	fake.storeOffsets[key] = 15
	assert.Equal(t, int64(15), impl.computePullFromWhere(mq))

	// 读取异常跳过本轮
	fake.readStoreErr = true
	assert.Equal(t, int64(-1), impl.computePullFromWhere(mq))
	fake.readStoreErr = false

	// 无记录：FIRST_OFFSET从头
	delete(fake.storeOffsets, key)
	impl.cfg.ConsumeFromWhere = heartbeat.CONSUME_FROM_FIRST_OFFSET
	assert.Equal(t, int64(0), impl.computePullFromWhere(mq))

	// 无记录：LAST_OFFSET的重试topic从头
	impl.cfg.ConsumeFromWhere = heartbeat.CONSUME_FROM_LAST_OFFSET
	retryMQ := &message.MessageQueue{
		Topic:      basis.RETRY_GROUP_TOPIC_PREFIX + impl.cfg.ConsumerGroup,
		BrokerName: "b",
		QueueId:    0,
	}
	assert.Equal(t, int64(0), impl.computePullFromWhere(retryMQ))
}

func TestSortMessageQueues(t *testing.T) {
	mqs := []*message.MessageQueue{
		{Topic: "T", BrokerName: "b", QueueId: 10},
		{Topic: "T", BrokerName: "a", QueueId: 2},
		{Topic: "S", BrokerName: "z", QueueId: 0},
		{Topic: "T", BrokerName: "b", QueueId: 2},
	}

	sortMessageQueues(mqs)

	assert.Equal(t, "S", mqs[0].Topic)
	assert.Equal(t, "a", mqs[1].BrokerName)
	assert.Equal(t, 2, mqs[2].QueueId)
	assert.Equal(t, 10, mqs[3].QueueId)
}

func TestEmitErrorToListener(t *testing.T) {
	impl, _ := newTestImpl(t)

	errCh := make(chan error, 1)
	impl.RegisterErrorListener(func(err error) {
		errCh <- err
	})

	impl.emitError(assert.AnError)
	assert.Equal(t, assert.AnError, <-errCh)
}
