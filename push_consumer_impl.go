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
	"time"

	"github.com/boltmq/common/basis"
	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/protocol/head"
	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/consumer/client"
	"github.com/boltmq/consumer/common"
	"github.com/boltmq/consumer/consume"
	"github.com/boltmq/consumer/store"
	"github.com/juju/errors"
)

var (
	// 流控暂停时间
	pullDelayTimeWhenFlowControl int64 = 50
	// broker返回位点非法后的等待时间
	pullDelayTimeWhenIllegalOffset int64 = 1000 * 10
)

// push消费者
type pushConsumerImpl struct {
	cfg                       *PushConfig
	mqClient                  *client.MQClient
	offsetStore               store.OffsetStore
	subscriptionTable         map[string]*heartbeat.SubscriptionData // key: topic
	subscriptionTableMu       sync.RWMutex                           //
	topicSubscribeInfoTable   map[string][]*message.MessageQueue     // key: topic
	topicSubscribeInfoTableMu sync.RWMutex                           //
	processQueueTable         map[string]*client.PullRequest         // key: topic@broker@id
	processQueueTableMu       sync.RWMutex                           //
	pullFromWhichNodeTable    map[string]int                         // key: topic@broker@id value: brokerId
	pullFromWhichNodeTableMu  sync.RWMutex                           //
	listener                  consume.MessageListener
	mqChangedListener         consume.MessageQueueChangedListener
	errorListener             consume.ErrorListener
	listenerMu                sync.RWMutex
	status                    common.SRVStatus
	statusMu                  sync.Mutex
}

func newPushConsumerImpl(cfg *PushConfig) *pushConsumerImpl {
	return &pushConsumerImpl{
		cfg:                     cfg,
		subscriptionTable:       make(map[string]*heartbeat.SubscriptionData),
		topicSubscribeInfoTable: make(map[string][]*message.MessageQueue),
		processQueueTable:       make(map[string]*client.PullRequest),
		pullFromWhichNodeTable:  make(map[string]int),
		status:                  common.CREATE_JUST,
	}
}

func (impl *pushConsumerImpl) NameSrvAddrs(addrs []string) {
	length := len(addrs)
	if length == 0 {
		return
	}

	nameSrvMap := make(map[string]struct{})
	for _, addr := range addrs {
		nameSrvMap[addr] = struct{}{}
	}
	for _, addr := range impl.cfg.Client.NameSrvAddrs {
		nameSrvMap[addr] = struct{}{}
	}
	impl.cfg.Client.NameSrvAddrs = nil

	for addr := range nameSrvMap {
		impl.cfg.Client.NameSrvAddrs = append(impl.cfg.Client.NameSrvAddrs, addr)
	}
}

func (impl *pushConsumerImpl) SetConsumeFromWhere(consumeFromWhere heartbeat.ConsumeFromWhere) {
	impl.cfg.ConsumeFromWhere = consumeFromWhere
}

func (impl *pushConsumerImpl) SetMessageModel(model heartbeat.MessageModel) {
	impl.cfg.MessageModel = model
}

func (impl *pushConsumerImpl) RegisterMessageListener(listener consume.MessageListener) {
	impl.listenerMu.Lock()
	impl.listener = listener
	impl.listenerMu.Unlock()
}

func (impl *pushConsumerImpl) RegisterMessageHandler(handler consume.MessageHandler) {
	impl.RegisterMessageListener(consume.WrapMessageHandler(handler))
}

func (impl *pushConsumerImpl) RegisterMessageQueueChangedListener(listener consume.MessageQueueChangedListener) {
	impl.listenerMu.Lock()
	impl.mqChangedListener = listener
	impl.listenerMu.Unlock()
}

func (impl *pushConsumerImpl) RegisterErrorListener(listener consume.ErrorListener) {
	impl.listenerMu.Lock()
	impl.errorListener = listener
	impl.listenerMu.Unlock()
}

// Subscribe 解析订阅表达式并注册，运行期订阅立即触发路由刷新与rebalance
func (impl *pushConsumerImpl) Subscribe(topic string, subExpression string) error {
	if err := common.CheckTopic(topic); err != nil {
		return errors.Annotate(err, "subscribe")
	}

	subData, err := common.BuildSubscriptionData(topic, subExpression)
	if err != nil {
		return errors.Annotate(err, "subscribe")
	}

	impl.subscriptionTableMu.Lock()
	impl.subscriptionTable[topic] = subData
	impl.subscriptionTableMu.Unlock()

	if impl.isRunning() {
		impl.mqClient.UpdateTopicRouteInfoFromNameServerByTopic(topic)
		impl.mqClient.SendHeartbeatToAllBrokerWithLock()
		impl.mqClient.RebalanceImmediately()
	}

	return nil
}

func (impl *pushConsumerImpl) FetchSubscribeMessageQueues(topic string) ([]*message.MessageQueue, error) {
	if !impl.isRunning() {
		return nil, errors.New("the consumer is not running")
	}

	return impl.mqClient.FetchSubscribeMessageQueues(topic)
}

func (impl *pushConsumerImpl) MaxOffset(mq *message.MessageQueue) (int64, error) {
	if !impl.isRunning() {
		return -1, errors.New("the consumer is not running")
	}

	return impl.mqClient.MaxOffset(mq)
}

func (impl *pushConsumerImpl) SearchOffset(mq *message.MessageQueue, timestampMillis int64) (int64, error) {
	if !impl.isRunning() {
		return -1, errors.New("the consumer is not running")
	}

	return impl.mqClient.SearchOffset(mq, timestampMillis)
}

func (impl *pushConsumerImpl) Start() error {
	impl.statusMu.Lock()
	defer impl.statusMu.Unlock()

	switch impl.status {
	case common.CREATE_JUST:
		impl.status = common.START_FAILED

		impl.listenerMu.RLock()
		hasListener := impl.listener != nil
		impl.listenerMu.RUnlock()
		if !hasListener {
			return errors.New("start push consumer: message listener is not registered")
		}

		impl.copyRetrySubscription()

		if impl.cfg.MessageModel == heartbeat.CLUSTERING {
			impl.cfg.Client.ChangeInstanceNameToPID()
		}

		impl.mqClient = client.GetAndCreateMQClient(&impl.cfg.Client)
		if !impl.mqClient.RegisterConsumer(impl.cfg.ConsumerGroup, impl) {
			impl.mqClient = nil
			return errors.Errorf("the consumer group[%s] has been created before", impl.cfg.ConsumerGroup)
		}

		switch impl.cfg.MessageModel {
		case heartbeat.BROADCASTING:
			impl.offsetStore = store.NewLocalFileOffsetStore(impl.mqClient.ClientId(), impl.cfg.ConsumerGroup)
		case heartbeat.CLUSTERING:
			impl.offsetStore = store.NewRemoteBrokerOffsetStore(impl.mqClient, impl.cfg.ConsumerGroup)
		default:
			impl.mqClient.UnRegisterConsumer(impl.cfg.ConsumerGroup)
			impl.mqClient = nil
			return errors.Errorf("message model[%d] is unknown", impl.cfg.MessageModel)
		}
		impl.offsetStore.Load()

		impl.mqClient.Start()
		impl.status = common.RUNNING
		logger.Infof("push consumer started, group: %s model: %v clientId: %s",
			impl.cfg.ConsumerGroup, impl.cfg.MessageModel, impl.mqClient.ClientId())
	case common.RUNNING, common.START_FAILED, common.SHUTDOWN_ALREADY:
		return errors.Errorf("the push consumer service state not OK, maybe started once, status: %s", impl.status)
	default:
	}

	impl.mqClient.SendHeartbeatToAllBrokerWithLock()
	impl.mqClient.RebalanceImmediately()
	return nil
}

// 集群模式下追加重试topic订阅
func (impl *pushConsumerImpl) copyRetrySubscription() {
	if impl.cfg.MessageModel != heartbeat.CLUSTERING {
		return
	}

	retryTopic := basis.RETRY_GROUP_TOPIC_PREFIX + impl.cfg.ConsumerGroup
	subData, err := common.BuildSubscriptionData(retryTopic, common.SUB_ALL)
	if err != nil {
		logger.Warnf("build retry topic subscription err: %s", err)
		return
	}

	impl.subscriptionTableMu.Lock()
	impl.subscriptionTable[retryTopic] = subData
	impl.subscriptionTableMu.Unlock()
}

func (impl *pushConsumerImpl) Stop() {
	impl.statusMu.Lock()
	if impl.status != common.RUNNING {
		impl.statusMu.Unlock()
		return
	}
	impl.status = common.SHUTDOWN_ALREADY
	impl.statusMu.Unlock()

	impl.PersistConsumerOffset()

	impl.processQueueTableMu.Lock()
	for key, pr := range impl.processQueueTable {
		pr.ProcessQueue.MarkDropped()
		delete(impl.processQueueTable, key)
	}
	impl.processQueueTableMu.Unlock()

	impl.subscriptionTableMu.Lock()
	impl.subscriptionTable = make(map[string]*heartbeat.SubscriptionData)
	impl.subscriptionTableMu.Unlock()

	impl.topicSubscribeInfoTableMu.Lock()
	impl.topicSubscribeInfoTable = make(map[string][]*message.MessageQueue)
	impl.topicSubscribeInfoTableMu.Unlock()

	impl.pullFromWhichNodeTableMu.Lock()
	impl.pullFromWhichNodeTable = make(map[string]int)
	impl.pullFromWhichNodeTableMu.Unlock()

	impl.mqClient.UnRegisterConsumer(impl.cfg.ConsumerGroup)
	impl.mqClient.Shutdown()

	impl.listenerMu.Lock()
	impl.listener = nil
	impl.mqChangedListener = nil
	impl.errorListener = nil
	impl.listenerMu.Unlock()

	logger.Infof("push consumer stopped, group: %s", impl.cfg.ConsumerGroup)
}

func (impl *pushConsumerImpl) isRunning() bool {
	impl.statusMu.Lock()
	defer impl.statusMu.Unlock()
	return impl.status == common.RUNNING
}

// ========== consumerInner ==========

func (impl *pushConsumerImpl) Subscriptions() []*heartbeat.SubscriptionData {
	var subscriptions []*heartbeat.SubscriptionData

	impl.subscriptionTableMu.RLock()
	for _, subData := range impl.subscriptionTable {
		subscriptions = append(subscriptions, subData)
	}
	impl.subscriptionTableMu.RUnlock()

	return subscriptions
}

func (impl *pushConsumerImpl) UpdateTopicSubscribeInfo(topic string, info []*message.MessageQueue) {
	impl.subscriptionTableMu.RLock()
	_, subscribed := impl.subscriptionTable[topic]
	impl.subscriptionTableMu.RUnlock()
	if !subscribed {
		return
	}

	impl.topicSubscribeInfoTableMu.Lock()
	impl.topicSubscribeInfoTable[topic] = info
	impl.topicSubscribeInfoTableMu.Unlock()
}

func (impl *pushConsumerImpl) GroupName() string {
	return impl.cfg.ConsumerGroup
}

func (impl *pushConsumerImpl) MessageModel() heartbeat.MessageModel {
	return impl.cfg.MessageModel
}

func (impl *pushConsumerImpl) ConsumeType() heartbeat.ConsumeType {
	return heartbeat.CONSUME_PASSIVELY
}

func (impl *pushConsumerImpl) ConsumeFromWhere() heartbeat.ConsumeFromWhere {
	return impl.cfg.ConsumeFromWhere
}

func (impl *pushConsumerImpl) IsUnitMode() bool {
	return impl.cfg.UnitMode
}

func (impl *pushConsumerImpl) IsSubscribeTopicNeedUpdate(topic string) bool {
	impl.subscriptionTableMu.RLock()
	_, subscribed := impl.subscriptionTable[topic]
	impl.subscriptionTableMu.RUnlock()
	if !subscribed {
		return false
	}

	impl.topicSubscribeInfoTableMu.RLock()
	_, ok := impl.topicSubscribeInfoTable[topic]
	impl.topicSubscribeInfoTableMu.RUnlock()

	return !ok
}

func (impl *pushConsumerImpl) PersistConsumerOffset() {
	if impl.offsetStore == nil {
		return
	}

	mqs := impl.allocatedMQs()
	if len(mqs) == 0 {
		return
	}

	impl.offsetStore.PersistAll(mqs)
}

// ========== pull worker ==========

// PullMessage 单次长轮询拉取，由pullMessageService的worker循环驱动。
// 返回false表示队列不再归属当前消费者，worker退出。
func (impl *pushConsumerImpl) PullMessage(pr *client.PullRequest) bool {
	pq := pr.ProcessQueue
	if pq.IsDropped() {
		return false
	}

	if !impl.isRunning() {
		return false
	}

	key := common.QueueKey(pr.MessageQueue)
	impl.processQueueTableMu.RLock()
	current := impl.processQueueTable[key]
	impl.processQueueTableMu.RUnlock()
	if current != pr {
		return false
	}

	pq.UpdateLastPullTimestamp()

	subData := impl.subscription(pr.MessageQueue.Topic)
	if subData == nil {
		logger.Warnf("find the consumer's subscription failed, group: %s topic: %s",
			impl.cfg.ConsumerGroup, pr.MessageQueue.Topic)
		impl.sleepMillis(impl.cfg.PullTimeDelayMillsWhenException)
		return true
	}

	// 流控：队列内未ack消息超过阈值时暂停拉取
	if pq.MsgCount() > impl.cfg.PullThresholdForQueue {
		impl.sleepMillis(pullDelayTimeWhenFlowControl)
		return true
	}

	var commitOffset int64
	if impl.cfg.MessageModel == heartbeat.CLUSTERING {
		offset := impl.offsetStore.ReadOffset(pr.MessageQueue, store.READ_FROM_MEMORY)
		if offset > 0 {
			commitOffset = offset
		}
	}

	brokerResult, err := impl.findPullBroker(pr.MessageQueue)
	if err != nil {
		impl.emitError(errors.Annotatef(err, "find broker addr of %s", key))
		impl.sleepMillis(impl.cfg.PullTimeDelayMillsWhenException)
		return true
	}

	sysFlag := common.BuildSysFlag(commitOffset > 0, true, impl.cfg.PostSubscriptionWhenPull, false)
	if brokerResult.Slave {
		sysFlag = common.ClearCommitOffsetFlag(sysFlag)
	}

	var subExpression string
	if impl.cfg.PostSubscriptionWhenPull && !subData.ClassFilterMode {
		subExpression = subData.SubString
	}

	header := &head.PullMessageRequestHeader{
		ConsumerGroup:        impl.cfg.ConsumerGroup,
		Topic:                pr.MessageQueue.Topic,
		QueueId:              int32(pr.MessageQueue.QueueId),
		QueueOffset:          pr.NextOffset,
		MaxMsgNums:           impl.cfg.PullBatchSize,
		SysFlag:              sysFlag,
		CommitOffset:         commitOffset,
		SuspendTimeoutMillis: impl.cfg.BrokerSuspendMaxTimeMillis,
		Subscription:         subExpression,
		SubVersion:           subData.SubVersion,
	}

	result, err := impl.mqClient.PullMessage(brokerResult.BrokerAddr, header, impl.cfg.ConsumerTimeoutMillisWhenSuspend)
	if err != nil {
		if !impl.isRunning() {
			return false
		}

		logger.Errorf("MQConsumerPullMessageError, group: %s %s err: %s", impl.cfg.ConsumerGroup, pr, err)
		impl.emitError(errors.Annotatef(err, "pull message of %s", key))
		impl.sleepMillis(impl.cfg.PullTimeDelayMillsWhenException)
		return true
	}

	// rebalance期间被移除的队列，结果直接丢弃，不推进位点
	if pq.IsDropped() {
		return false
	}

	impl.updatePullFromWhichNode(pr.MessageQueue, int(result.SuggestWhichBrokerId))
	pr.NextOffset = result.NextBeginOffset

	switch result.Status {
	case common.FOUND:
		msgs := impl.filterMessages(result.Msgs, subData)
		if len(msgs) == 0 {
			// 整批被tag精确过滤，位点照常推进
			impl.offsetStore.UpdateOffset(pr.MessageQueue, pr.NextOffset, true)
			break
		}

		pq.PutMessage(msgs)
		impl.consumeMessages(pr, msgs)
	case common.NO_NEW_MSG, common.NO_MATCHED_MSG:
		impl.offsetStore.UpdateOffset(pr.MessageQueue, pr.NextOffset, true)
	case common.OFFSET_ILLEGAL:
		impl.handleIllegalOffset(pr, result)
		return false
	default:
	}

	if impl.cfg.PullInterval > 0 {
		impl.sleepMillis(impl.cfg.PullInterval)
	}

	return true
}

// 按消费批次投递并等待ack，ack后移除消息并推进位点。
// ack超时停止本批投递，剩余消息留在队列里等待重投，位点不前移。
func (impl *pushConsumerImpl) consumeMessages(pr *client.PullRequest, msgs []*message.MessageExt) {
	batchSize := impl.cfg.ConsumeMessageBatchMaxSize
	for begin := 0; begin < len(msgs); begin += batchSize {
		if pr.ProcessQueue.IsDropped() {
			return
		}

		end := begin + batchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := msgs[begin:end]

		if !impl.deliverBatch(batch) {
			impl.emitError(errors.Errorf("consume message ack timeout, group: %s mq: %s offset: %d",
				impl.cfg.ConsumerGroup, common.QueueKey(pr.MessageQueue), batch[0].QueueOffset))
			impl.sleepMillis(impl.cfg.PullTimeDelayMillsWhenException)
			return
		}

		offset := pr.ProcessQueue.RemoveMessage(batch)
		if offset >= 0 && !pr.ProcessQueue.IsDropped() {
			impl.offsetStore.UpdateOffset(pr.MessageQueue, offset, true)
		}
	}
}

func (impl *pushConsumerImpl) deliverBatch(msgs []*message.MessageExt) bool {
	impl.listenerMu.RLock()
	listener := impl.listener
	impl.listenerMu.RUnlock()
	if listener == nil {
		return false
	}

	ackCh := make(chan struct{})
	var once sync.Once
	ack := func() {
		once.Do(func() { close(ackCh) })
	}

	go listener(msgs, ack)

	timer := time.NewTimer(time.Duration(impl.cfg.ConsumeAckTimeoutMillis) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ackCh:
		return true
	case <-timer.C:
		return false
	}
}

func (impl *pushConsumerImpl) handleIllegalOffset(pr *client.PullRequest, result *common.PullResult) {
	logger.Warnf("the pull request offset illegal, group: %s %s result: %s",
		impl.cfg.ConsumerGroup, pr, result)

	pr.ProcessQueue.MarkDropped()
	impl.sleepMillis(pullDelayTimeWhenIllegalOffset)

	impl.offsetStore.UpdateOffset(pr.MessageQueue, pr.NextOffset, false)
	impl.offsetStore.Persist(pr.MessageQueue)
	impl.removeProcessQueue(common.QueueKey(pr.MessageQueue), pr)

	logger.Warnf("fix the pull request offset and drop it, %s", pr)
}

func (impl *pushConsumerImpl) removeProcessQueue(key string, pr *client.PullRequest) {
	impl.processQueueTableMu.Lock()
	if current, ok := impl.processQueueTable[key]; ok && current == pr {
		delete(impl.processQueueTable, key)
	}
	impl.processQueueTableMu.Unlock()
}

func (impl *pushConsumerImpl) filterMessages(msgs []*message.MessageExt,
	subData *heartbeat.SubscriptionData) []*message.MessageExt {
	if len(msgs) == 0 {
		return nil
	}

	if subData.ClassFilterMode || len(subData.TagsSet) == 0 {
		return msgs
	}

	var filtered []*message.MessageExt
	for _, msg := range msgs {
		if common.IsTagMatched(subData, msg.Properties[message.PROPERTY_TAGS]) {
			filtered = append(filtered, msg)
		}
	}

	return filtered
}

// 优先按broker上次建议的副本拉取，地址缺失时刷新一次路由并重试
func (impl *pushConsumerImpl) findPullBroker(mq *message.MessageQueue) (*common.FindBrokerResult, error) {
	brokerId := impl.recalculatePullFromWhichNode(mq)
	result, err := impl.mqClient.FindBrokerAddressInSubscribe(mq.BrokerName, brokerId, false)
	if err != nil {
		impl.mqClient.UpdateTopicRouteInfoFromNameServerByTopic(mq.Topic)
		result, err = impl.mqClient.FindBrokerAddressInSubscribe(mq.BrokerName, brokerId, false)
	}

	return result, err
}

func (impl *pushConsumerImpl) recalculatePullFromWhichNode(mq *message.MessageQueue) int {
	impl.pullFromWhichNodeTableMu.RLock()
	defer impl.pullFromWhichNodeTableMu.RUnlock()

	brokerId, ok := impl.pullFromWhichNodeTable[common.QueueKey(mq)]
	if !ok {
		return basis.MASTER_ID
	}

	return brokerId
}

func (impl *pushConsumerImpl) updatePullFromWhichNode(mq *message.MessageQueue, brokerId int) {
	impl.pullFromWhichNodeTableMu.Lock()
	impl.pullFromWhichNodeTable[common.QueueKey(mq)] = brokerId
	impl.pullFromWhichNodeTableMu.Unlock()
}

func (impl *pushConsumerImpl) subscription(topic string) *heartbeat.SubscriptionData {
	impl.subscriptionTableMu.RLock()
	defer impl.subscriptionTableMu.RUnlock()
	return impl.subscriptionTable[topic]
}

func (impl *pushConsumerImpl) allocatedMQs() []*message.MessageQueue {
	var mqs []*message.MessageQueue

	impl.processQueueTableMu.RLock()
	for _, pr := range impl.processQueueTable {
		mqs = append(mqs, pr.MessageQueue)
	}
	impl.processQueueTableMu.RUnlock()

	return mqs
}

// 错误异步通知注册方，回调异常不影响内部循环
func (impl *pushConsumerImpl) emitError(err error) {
	impl.listenerMu.RLock()
	listener := impl.errorListener
	impl.listenerMu.RUnlock()

	if listener != nil {
		go listener(err)
		return
	}

	logger.Errorf("push consumer err, group: %s err: %s", impl.cfg.ConsumerGroup, err)
}

func (impl *pushConsumerImpl) emitMessageQueueChanged(topic string, mqDivided []*message.MessageQueue) {
	impl.listenerMu.RLock()
	listener := impl.mqChangedListener
	impl.listenerMu.RUnlock()

	if listener != nil {
		go listener(topic, mqDivided)
	}
}

func (impl *pushConsumerImpl) sleepMillis(millis int64) {
	if millis <= 0 {
		return
	}

	time.Sleep(time.Duration(millis) * time.Millisecond)
}
