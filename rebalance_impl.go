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
	"sort"
	"strings"

	"github.com/boltmq/common/basis"
	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/consumer/client"
	"github.com/boltmq/consumer/common"
	"github.com/boltmq/consumer/store"
)

// DoRebalance 逐topic协调本端持有的队列，由rebalanceService串行驱动
func (impl *pushConsumerImpl) DoRebalance() {
	if !impl.isRunning() {
		return
	}

	var topics []string
	impl.subscriptionTableMu.RLock()
	for topic := range impl.subscriptionTable {
		topics = append(topics, topic)
	}
	impl.subscriptionTableMu.RUnlock()

	for _, topic := range topics {
		impl.rebalanceByTopic(topic)
	}
}

func (impl *pushConsumerImpl) rebalanceByTopic(topic string) {
	mqSet := impl.topicSubscribeInfo(topic)
	if len(mqSet) == 0 {
		if !strings.HasPrefix(topic, basis.RETRY_GROUP_TOPIC_PREFIX) {
			logger.Warnf("do rebalance, group: %s, but the topic[%s] not exist.", impl.cfg.ConsumerGroup, topic)
		}
		return
	}

	switch impl.cfg.MessageModel {
	case heartbeat.BROADCASTING:
		// 广播模式每个实例消费全部队列
		if impl.updateProcessQueueTable(topic, mqSet) {
			impl.messageQueueChanged(topic)
		}
	case heartbeat.CLUSTERING:
		cidList, err := impl.mqClient.FindConsumerIdList(topic, impl.cfg.ConsumerGroup)
		if err != nil {
			impl.emitError(err)
			return
		}

		if len(cidList) == 0 {
			logger.Warnf("do rebalance, group: %s, but the consumer id list of topic[%s] is empty.",
				impl.cfg.ConsumerGroup, topic)
			return
		}

		sortMessageQueues(mqSet)
		sort.Strings(cidList)

		allocated := impl.cfg.AllocateStrategy.Allocate(impl.cfg.ConsumerGroup,
			impl.mqClient.ClientId(), mqSet, cidList)

		if impl.updateProcessQueueTable(topic, allocated) {
			logger.Infof("rebalance result changed, group: %s topic: %s clientId: %s strategy: %s mqSize: %d cidSize: %d allocated: %d",
				impl.cfg.ConsumerGroup, topic, impl.mqClient.ClientId(),
				impl.cfg.AllocateStrategy.GetName(), len(mqSet), len(cidList), len(allocated))
			impl.messageQueueChanged(topic)
		}
	default:
	}
}

// 分配结果变更后通知broker并回调注册方
func (impl *pushConsumerImpl) messageQueueChanged(topic string) {
	var mqDivided []*message.MessageQueue
	impl.processQueueTableMu.RLock()
	for _, pr := range impl.processQueueTable {
		if pr.MessageQueue.Topic == topic {
			mqDivided = append(mqDivided, pr.MessageQueue)
		}
	}
	impl.processQueueTableMu.RUnlock()

	impl.emitMessageQueueChanged(topic, mqDivided)
	impl.mqClient.SendHeartbeatToAllBrokerWithLock()
}

// updateProcessQueueTable 两趟协调：先摘除不再归属或拉取超时的队列，
// 再为新分到的队列计算起始位点并启动worker。返回是否有变更。
func (impl *pushConsumerImpl) updateProcessQueueTable(topic string, mqSet []*message.MessageQueue) bool {
	changed := false

	assigned := make(map[string]*message.MessageQueue, len(mqSet))
	for _, mq := range mqSet {
		assigned[common.QueueKey(mq)] = mq
	}

	impl.processQueueTableMu.RLock()
	snapshot := make(map[string]*client.PullRequest, len(impl.processQueueTable))
	for key, pr := range impl.processQueueTable {
		snapshot[key] = pr
	}
	impl.processQueueTableMu.RUnlock()

	for key, pr := range snapshot {
		if pr.MessageQueue.Topic != topic {
			continue
		}

		if _, ok := assigned[key]; !ok {
			pr.ProcessQueue.MarkDropped()
			if impl.removeUnnecessaryMessageQueue(pr.MessageQueue, pr.ProcessQueue) {
				impl.removeProcessQueue(key, pr)
				changed = true
				logger.Infof("do rebalance, group: %s, remove unnecessary mq: %s", impl.cfg.ConsumerGroup, key)
			}
		} else if pr.ProcessQueue.IsPullExpired() {
			// worker长时间未拉取，判定为卡死，摘除后下一轮重建
			pr.ProcessQueue.MarkDropped()
			if impl.removeUnnecessaryMessageQueue(pr.MessageQueue, pr.ProcessQueue) {
				impl.removeProcessQueue(key, pr)
				changed = true
				logger.Warnf("do rebalance, group: %s, remove expired mq: %s", impl.cfg.ConsumerGroup, key)
			}
		}
	}

	for _, mq := range mqSet {
		key := common.QueueKey(mq)
		impl.processQueueTableMu.RLock()
		_, owned := impl.processQueueTable[key]
		impl.processQueueTableMu.RUnlock()
		if owned {
			continue
		}

		nextOffset := impl.computePullFromWhere(mq)
		if nextOffset < 0 {
			logger.Warnf("do rebalance, group: %s, the new mq[%s] cannot work, because compute pull offset failed",
				impl.cfg.ConsumerGroup, key)
			continue
		}

		pr := &client.PullRequest{
			ConsumerGroup: impl.cfg.ConsumerGroup,
			MessageQueue:  mq,
			ProcessQueue:  client.NewProcessQueue(),
			NextOffset:    nextOffset,
		}

		// 并发防重：插入前再次确认
		impl.processQueueTableMu.Lock()
		if _, ok := impl.processQueueTable[key]; ok {
			impl.processQueueTableMu.Unlock()
			continue
		}
		impl.processQueueTable[key] = pr
		impl.processQueueTableMu.Unlock()

		changed = true
		impl.mqClient.ExecutePullRequestImmediately(pr)
		logger.Infof("do rebalance, group: %s, add a new mq: %s nextOffset: %d", impl.cfg.ConsumerGroup, key, nextOffset)
	}

	return changed
}

// 摘除队列前先落位点；集群模式下本端内存记录同时清掉，
// 避免队列转移后带着旧位点提交
func (impl *pushConsumerImpl) removeUnnecessaryMessageQueue(mq *message.MessageQueue, pq *client.ProcessQueue) bool {
	impl.offsetStore.Persist(mq)
	if impl.cfg.MessageModel == heartbeat.CLUSTERING {
		impl.offsetStore.RemoveOffset(mq)
	}

	return true
}

// computePullFromWhere 新队列的起始位点。位点读取异常时返回-1，
// 本轮跳过该队列，下一轮rebalance重试。
func (impl *pushConsumerImpl) computePullFromWhere(mq *message.MessageQueue) int64 {
	lastOffset := impl.offsetStore.ReadOffset(mq, store.READ_FROM_STORE)
	if lastOffset >= 0 {
		return lastOffset
	}

	if lastOffset < -1 {
		return -1
	}

	// 无位点记录，按启动消费位置策略播种
	isRetryTopic := strings.HasPrefix(mq.Topic, basis.RETRY_GROUP_TOPIC_PREFIX)
	policy := impl.cfg.ConsumeFromWhere
	if policy != heartbeat.CONSUME_FROM_FIRST_OFFSET && policy != heartbeat.CONSUME_FROM_TIMESTAMP {
		// 其余取值(旧别名)一律按CONSUME_FROM_LAST_OFFSET处理
		policy = heartbeat.CONSUME_FROM_LAST_OFFSET
	}
	switch policy {
	case heartbeat.CONSUME_FROM_LAST_OFFSET:
		if isRetryTopic {
			return 0
		}

		maxOffset, err := impl.mqClient.MaxOffset(mq)
		if err != nil {
			logger.Warnf("compute pull offset, get max offset of %s err: %s", common.QueueKey(mq), err)
			return -1
		}

		return maxOffset
	case heartbeat.CONSUME_FROM_FIRST_OFFSET:
		return 0
	case heartbeat.CONSUME_FROM_TIMESTAMP:
		if isRetryTopic {
			maxOffset, err := impl.mqClient.MaxOffset(mq)
			if err != nil {
				logger.Warnf("compute pull offset, get max offset of %s err: %s", common.QueueKey(mq), err)
				return -1
			}

			return maxOffset
		}

		timestamp, err := impl.cfg.consumeTimestampMillis()
		if err != nil {
			logger.Warnf("compute pull offset of %s err: %s", common.QueueKey(mq), err)
			return -1
		}

		offset, err := impl.mqClient.SearchOffset(mq, timestamp)
		if err != nil {
			logger.Warnf("compute pull offset, search offset of %s err: %s", common.QueueKey(mq), err)
			return -1
		}

		return offset
	default:
	}

	return -1
}

func (impl *pushConsumerImpl) topicSubscribeInfo(topic string) []*message.MessageQueue {
	impl.topicSubscribeInfoTableMu.RLock()
	defer impl.topicSubscribeInfoTableMu.RUnlock()

	info := impl.topicSubscribeInfoTable[topic]
	mqs := make([]*message.MessageQueue, len(info))
	copy(mqs, info)

	return mqs
}

// 队列按(topic, brokerName, queueId)排序，queueId数值比较
func sortMessageQueues(mqs []*message.MessageQueue) {
	sort.Slice(mqs, func(i, j int) bool {
		if mqs[i].Topic != mqs[j].Topic {
			return mqs[i].Topic < mqs[j].Topic
		}

		if mqs[i].BrokerName != mqs[j].BrokerName {
			return mqs[i].BrokerName < mqs[j].BrokerName
		}

		return mqs[i].QueueId < mqs[j].QueueId
	})
}
