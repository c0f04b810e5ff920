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
package client

import (
	"sort"
	"sync"
	"time"

	"github.com/boltmq/common/basis"
	"github.com/boltmq/common/constant"
	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/protocol/base"
	"github.com/boltmq/common/protocol/head"
	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/common/utils/system"
	"github.com/boltmq/consumer/common"
	"github.com/facebookgo/errgroup"
	"github.com/go-errors/errors"
)

type MQClient struct {
	index             int32
	clientId          string
	cfg               Config
	producerTable     map[string]producerInner        // key: group
	producerTableMu   sync.RWMutex                    //
	consumerTable     map[string]consumerInner        // key: group
	consumerTableMu   sync.RWMutex                    //
	clientAPI         *mqClientAPI                    //
	adminAPI          *mqAdminAPI                     //
	topicRouteTable   map[string]*base.TopicRouteData // key: topic
	topicRouteTableMu sync.RWMutex                    //
	brokerAddrTable   map[string]map[int]string       // key: brokername value: map[key: brokerId value: addr]
	brokerAddrTableMu sync.RWMutex                    //
	pullMsgService    *pullMessageService             //
	rblService        *rebalanceService               //
	status            common.SRVStatus                //
	statusMu          sync.Mutex                      //
	namesrvMu         sync.RWMutex                    //
	heartbeatMu       sync.RWMutex                    //
	timerTaskTable    map[string]*system.Ticker       //
}

// NewMQClient 初始化
func NewMQClient(cfg Config, index int32, clientId string) *MQClient {
	mqClient := &MQClient{
		cfg:             cfg,
		index:           index,
		clientId:        clientId,
		producerTable:   make(map[string]producerInner),
		consumerTable:   make(map[string]consumerInner),
		topicRouteTable: make(map[string]*base.TopicRouteData),
		brokerAddrTable: make(map[string]map[int]string),
		timerTaskTable:  make(map[string]*system.Ticker),
	}

	processor := newRemotingProcessor(mqClient)
	mqClient.clientAPI = newMQClientAPI(processor)
	if mqClient.cfg.NameSrvAddrs != nil && len(mqClient.cfg.NameSrvAddrs) > 0 {
		mqClient.clientAPI.updateNameServerAddressList(mqClient.cfg.NameSrvAddrs)
		logger.Infof("user specified name server address: %v", mqClient.cfg.NameSrvAddrs)
	}

	mqClient.adminAPI = newMQAdminAPI(mqClient)
	mqClient.pullMsgService = newPullMessageService(mqClient)
	mqClient.rblService = newRebalanceService(mqClient)

	return mqClient
}

func (mqClient *MQClient) ClientId() string {
	return mqClient.clientId
}

// Start
func (mqClient *MQClient) Start() {
	mqClient.statusMu.Lock()
	defer mqClient.statusMu.Unlock()

	switch mqClient.status {
	case common.CREATE_JUST:
		mqClient.status = common.START_FAILED
		mqClient.clientAPI.start()       // Start request-response channel
		mqClient.startScheduledTasks()   // Start various schedule tasks
		mqClient.pullMsgService.start()  // Start pull service
		mqClient.rblService.start()      // Start rebalance service
		mqClient.status = common.RUNNING // Set mqClient of status
	case common.RUNNING:
	case common.SHUTDOWN_ALREADY:
	case common.START_FAILED:
	default:
	}
}

// Ready 客户端是否处于运行状态
func (mqClient *MQClient) Ready() bool {
	mqClient.statusMu.Lock()
	defer mqClient.statusMu.Unlock()
	return mqClient.status == common.RUNNING
}

// Shutdown 最后一个注册者关闭时停掉共享客户端
func (mqClient *MQClient) Shutdown() {
	if len(mqClient.consumerTable) > 0 {
		return
	}

	if len(mqClient.producerTable) > 0 {
		return
	}

	mqClient.statusMu.Lock()
	defer mqClient.statusMu.Unlock()

	switch mqClient.status {
	case common.CREATE_JUST:
	case common.RUNNING:
		mqClient.status = common.SHUTDOWN_ALREADY
		mqClient.pullMsgService.shutdown()
		for name, timer := range mqClient.timerTaskTable {
			status := timer.Stop()
			logger.Infof("shutdown %s res: %t", name, status)
		}

		mqClient.clientAPI.shutdown()
		mqClient.rblService.shutdown()
		RemoveMQClient(mqClient.clientId)
	case common.SHUTDOWN_ALREADY:
	default:
	}
}

func (mqClient *MQClient) startScheduledTasks() {
	// 定时从nameserver更新topic route信息
	updateRouteTicker := system.NewTicker(true, 10*time.Millisecond,
		time.Duration(mqClient.cfg.PullNameServerInterval)*time.Millisecond, func() {
			mqClient.UpdateAllTopicRouterInfo()
		})
	updateRouteTicker.Start()
	mqClient.timerTaskTable["updateRouteTicker"] = updateRouteTicker

	// 定时清理离线的broker并发送心跳数据
	cleanAndHBTicker := system.NewTicker(true, 1000*time.Millisecond,
		time.Duration(mqClient.cfg.HeartbeatBrokerInterval)*time.Millisecond, func() {
			mqClient.cleanOfflineBroker()
			mqClient.SendHeartbeatToAllBrokerWithLock()
		})
	cleanAndHBTicker.Start()
	mqClient.timerTaskTable["cleanAndHBTicker"] = cleanAndHBTicker

	// 定时持久化consumer的offset
	persistOffsetTicker := system.NewTicker(true, 1000*10*time.Millisecond,
		time.Duration(mqClient.cfg.PersistConsumerOffsetInterval)*time.Millisecond, func() {
			mqClient.persistAllConsumerOffset()
		})
	persistOffsetTicker.Start()
	mqClient.timerTaskTable["persistOffsetTicker"] = persistOffsetTicker
}

// 查找broker的master地址
func (mqClient *MQClient) FindBrokerAddressInPublish(brokerName string) string {
	mqClient.brokerAddrTableMu.RLock()
	baMap, ok := mqClient.brokerAddrTable[brokerName]
	mqClient.brokerAddrTableMu.RUnlock()
	if !ok {
		return ""
	}

	if len(baMap) > 0 {
		return baMap[basis.MASTER_ID]
	}

	return ""
}

func (mqClient *MQClient) UpdateTopicRouteInfoFromNameServerByTopic(topic string) bool {
	mqClient.namesrvMu.Lock()
	defer mqClient.namesrvMu.Unlock()

	topicRouteData, err := mqClient.clientAPI.getTopicRouteInfoFromNameServer(topic, 3000)
	if err != nil {
		logger.Errorf("update topic routeInfo from name server err: %s", err)
		return false
	}

	if topicRouteData == nil {
		logger.Errorf("update topic routeInfo from name server err: topic route data is nil.")
		return false
	}

	var changed bool
	if old, ok := mqClient.topicRouteTable[topic]; ok {
		changed = topicRouteDataIsChange(old, topicRouteData)
	} else {
		changed = true
	}

	if !changed {
		changed = mqClient.isNeedUpdateTopicRouteInfo(topic)
	}

	if !changed {
		return false
	}

	clone := topicRouteData.CloneTopicRouteData()
	mqClient.brokerAddrTableMu.Lock()
	for _, data := range clone.BrokerDatas {
		mqClient.brokerAddrTable[data.BrokerName] = data.BrokerAddrs
	}
	mqClient.brokerAddrTableMu.Unlock()

	// update pub info
	publishInfo := mqClient.topicRouteData2TopicPublishInfo(topic, topicRouteData)
	publishInfo.HaveTopicRouterInfo = true

	var producers []producerInner
	mqClient.producerTableMu.RLock()
	for _, pi := range mqClient.producerTable {
		if pi != nil {
			producers = append(producers, pi)
		}
	}
	mqClient.producerTableMu.RUnlock()

	for _, pi := range producers {
		pi.UpdateTopicPublishInfo(topic, publishInfo)
	}

	// update sub info
	var consumers []consumerInner
	subscribeInfo := mqClient.topicRouteData2TopicSubscribeInfo(topic, topicRouteData)
	mqClient.consumerTableMu.RLock()
	for _, ci := range mqClient.consumerTable {
		if ci != nil {
			consumers = append(consumers, ci)
		}
	}
	mqClient.consumerTableMu.RUnlock()

	for _, ci := range consumers {
		ci.UpdateTopicSubscribeInfo(topic, subscribeInfo)
	}

	mqClient.topicRouteTableMu.Lock()
	mqClient.topicRouteTable[topic] = clone
	mqClient.topicRouteTableMu.Unlock()
	logger.Infof("put topic route data to table, topic[%s]", topic)

	return true
}

// 是否需要更新topic路由信息
func (mqClient *MQClient) isNeedUpdateTopicRouteInfo(topic string) bool {
	var result bool

	mqClient.producerTableMu.RLock()
	for _, pi := range mqClient.producerTable {
		if pi != nil && !result {
			result = pi.IsPublishTopicNeedUpdate(topic)
		}
	}
	mqClient.producerTableMu.RUnlock()

	mqClient.consumerTableMu.RLock()
	for _, ci := range mqClient.consumerTable {
		if ci != nil && !result {
			result = ci.IsSubscribeTopicNeedUpdate(topic)
		}
	}
	mqClient.consumerTableMu.RUnlock()

	return result
}

// topicRouteData2TopicPublishInfo 路由信息转发布信息
func (mqClient *MQClient) topicRouteData2TopicPublishInfo(topic string, topicRouteData *base.TopicRouteData) *TopicPublishInfo {
	info := &TopicPublishInfo{}

	qds := base.QueueDatas(topicRouteData.QueueDatas)
	sort.Sort(qds)

	for _, queueData := range qds {
		if constant.IsWriteable(queueData.Perm) {
			for _, bd := range topicRouteData.BrokerDatas {
				if queueData.BrokerName == bd.BrokerName {
					if _, ok := bd.BrokerAddrs[basis.MASTER_ID]; ok {
						for i := 0; i < int(queueData.WriteQueueNums); i++ {
							info.MessageQueues = append(info.MessageQueues,
								&message.MessageQueue{Topic: topic, BrokerName: bd.BrokerName, QueueId: i})
						}
					}
					break
				}
			}
		}
	}
	info.Order = false

	return info
}

// 路由信息转订阅信息
func (mqClient *MQClient) topicRouteData2TopicSubscribeInfo(topic string, topicRouteData *base.TopicRouteData) []*message.MessageQueue {
	mqs := []*message.MessageQueue{}
	for _, qd := range topicRouteData.QueueDatas {
		if constant.IsReadable(qd.Perm) {
			for i := 0; i < qd.ReadQueueNums; i++ {
				mq := &message.MessageQueue{Topic: topic, BrokerName: qd.BrokerName, QueueId: i}
				mqs = append(mqs, mq)
			}
		}
	}

	return mqs
}

// RebalanceImmediately 立即执行负载，已有待处理的唤醒信号时直接合并
func (mqClient *MQClient) RebalanceImmediately() {
	select {
	case mqClient.rblService.wakeup <- struct{}{}:
	default:
	}
}

// ExecutePullRequestImmediately 为新分配到的队列启动pull worker
func (mqClient *MQClient) ExecutePullRequestImmediately(pullRequest *PullRequest) {
	mqClient.pullMsgService.ExecutePullRequestImmediately(pullRequest)
}

// DoRebalance 触发所有消费者rebalance
func (mqClient *MQClient) DoRebalance() {
	mqClient.doRebalance()
}

func (mqClient *MQClient) doRebalance() {
	var consumers []consumerInner
	mqClient.consumerTableMu.RLock()
	for _, ci := range mqClient.consumerTable {
		if ci != nil {
			consumers = append(consumers, ci)
		}
	}
	mqClient.consumerTableMu.RUnlock()

	for _, ci := range consumers {
		ci.DoRebalance()
	}
}

func (mqClient *MQClient) selectConsumer(group string) consumerInner {
	mqClient.consumerTableMu.RLock()
	defer mqClient.consumerTableMu.RUnlock()

	ci, ok := mqClient.consumerTable[group]
	if !ok {
		return nil
	}

	return ci
}

// UpdateAllTopicRouterInfo 从nameserver更新全部已关注topic的路由信息
func (mqClient *MQClient) UpdateAllTopicRouterInfo() {
	var consumers []consumerInner
	mqClient.consumerTableMu.RLock()
	for _, ci := range mqClient.consumerTable {
		consumers = append(consumers, ci)
	}
	mqClient.consumerTableMu.RUnlock()

	for _, ci := range consumers {
		subscriptions := ci.Subscriptions()
		for _, subData := range subscriptions {
			mqClient.UpdateTopicRouteInfoFromNameServerByTopic(subData.Topic)
		}
	}

	var producers []producerInner
	mqClient.producerTableMu.RLock()
	for _, pi := range mqClient.producerTable {
		producers = append(producers, pi)
	}
	mqClient.producerTableMu.RUnlock()

	for _, pi := range producers {
		topics := pi.GetPublishTopicList()
		for _, topic := range topics {
			mqClient.UpdateTopicRouteInfoFromNameServerByTopic(topic)
		}
	}
}

// Remove offline broker
func (mqClient *MQClient) cleanOfflineBroker() {
	brokerAddrTable := make(map[string]map[int]string)

	mqClient.namesrvMu.Lock()
	mqClient.brokerAddrTableMu.RLock()
	for brokerName, baMap := range mqClient.brokerAddrTable {
		clone := make(map[int]string)
		for bid, addr := range baMap {
			clone[bid] = addr
		}
		brokerAddrTable[brokerName] = clone
	}
	mqClient.brokerAddrTableMu.RUnlock()

	for brokerName, baMap := range brokerAddrTable {
		for bid, addr := range baMap {
			if !mqClient.isBrokerAddrExistInTopicRouteTable(addr) {
				delete(baMap, bid)
				logger.Infof("the broker[%s] addr[%s] is offline, remove it", brokerName, addr)
			}
		}

		if len(baMap) == 0 {
			mqClient.brokerAddrTableMu.Lock()
			delete(mqClient.brokerAddrTable, brokerName)
			mqClient.brokerAddrTableMu.Unlock()
		} else {
			mqClient.brokerAddrTableMu.Lock()
			mqClient.brokerAddrTable[brokerName] = baMap
			mqClient.brokerAddrTableMu.Unlock()
		}
	}

	mqClient.namesrvMu.Unlock()
}

// 判断brokder地址在路由表中是否存在
func (mqClient *MQClient) isBrokerAddrExistInTopicRouteTable(addr string) bool {
	mqClient.topicRouteTableMu.RLock()
	defer mqClient.topicRouteTableMu.RUnlock()
	for _, routeData := range mqClient.topicRouteTable {
		for _, brokerData := range routeData.BrokerDatas {
			for _, brokerAddr := range brokerData.BrokerAddrs {
				if brokerAddr == addr {
					return true
				}
			}
		}
	}

	return false
}

// 向所有boker发送心跳
func (mqClient *MQClient) SendHeartbeatToAllBrokerWithLock() error {
	mqClient.heartbeatMu.Lock()
	defer mqClient.heartbeatMu.Unlock()

	return mqClient.sendHeartbeatToAllBroker()
}

// 向所有boker发送心跳
func (mqClient *MQClient) sendHeartbeatToAllBroker() error {
	heartbeatData := mqClient.prepareHeartbeatData()

	if len(heartbeatData.ProducerDatas) == 0 &&
		len(heartbeatData.ConsumerDatas) == 0 {
		return errors.Errorf("sending hearbeat, but no consumer and no producer")
	}

	brokerAddrTable := make(map[string]string)
	mqClient.brokerAddrTableMu.RLock()
	for brokerName, brokerData := range mqClient.brokerAddrTable {
		for bid, addr := range brokerData {
			if addr == "" {
				continue
			}

			if len(heartbeatData.ConsumerDatas) == 0 && bid != basis.MASTER_ID {
				continue
			}

			brokerAddrTable[addr] = brokerName
		}
	}
	mqClient.brokerAddrTableMu.RUnlock()

	// send msg to broker
	var g errgroup.Group
	for addr, brokerName := range brokerAddrTable {
		err := mqClient.clientAPI.sendHeartbeat(addr, heartbeatData, 3000)
		if err != nil {
			g.Error(errors.Errorf("send heartbeat to broker[%s, %s] fail, err: %s", brokerName, addr, err))
		} else {
			logger.Infof("send heartbeat to broker[%s, %s] success.", brokerName, addr)
		}
	}

	return g.Wait()
}

// 准备心跳数据
func (mqClient *MQClient) prepareHeartbeatData() *heartbeat.HeartbeatData {
	heartbeatData := &heartbeat.HeartbeatData{
		ClientID: mqClient.clientId,
	}

	mqClient.producerTableMu.RLock()
	for k, v := range mqClient.producerTable {
		if v != nil {
			producerData := heartbeat.ProducerData{GroupName: k}
			heartbeatData.ProducerDatas = append(heartbeatData.ProducerDatas, producerData)
		}
	}
	mqClient.producerTableMu.RUnlock()

	mqClient.consumerTableMu.RLock()
	for _, v := range mqClient.consumerTable {
		if v != nil {
			consumerData := heartbeat.ConsumerData{
				GroupName:        v.GroupName(),
				ConsumeType:      v.ConsumeType(),
				ConsumeFromWhere: v.ConsumeFromWhere(),
				MessageModel:     v.MessageModel(),
				UnitMode:         v.IsUnitMode(),
			}

			for _, subData := range v.Subscriptions() {
				consumerData.SubscriptionDatas = append(consumerData.SubscriptionDatas, *subData)
			}

			heartbeatData.ConsumerDatas = append(heartbeatData.ConsumerDatas, consumerData)
		}
	}
	mqClient.consumerTableMu.RUnlock()

	return heartbeatData
}

// 持久化所有consumer的offset
func (mqClient *MQClient) persistAllConsumerOffset() {
	var consumers []consumerInner

	mqClient.consumerTableMu.RLock()
	for _, ci := range mqClient.consumerTable {
		consumers = append(consumers, ci)
	}
	mqClient.consumerTableMu.RUnlock()

	for _, ci := range consumers {
		ci.PersistConsumerOffset()
	}
}

// topic路由信息是否改变
func topicRouteDataIsChange(old *base.TopicRouteData, new *base.TopicRouteData) bool {
	if old == nil || new == nil {
		return true
	}

	nold := old.CloneTopicRouteData()
	nnew := new.CloneTopicRouteData()

	oldBrokerDatas := base.BrokerDatas(nold.BrokerDatas)
	newBrokerDatas := base.BrokerDatas(nnew.BrokerDatas)
	oldQueueDatas := base.QueueDatas(nold.QueueDatas)
	newQueueDatas := base.QueueDatas(nnew.QueueDatas)

	sort.Sort(oldBrokerDatas)
	sort.Sort(newBrokerDatas)
	sort.Sort(oldQueueDatas)
	sort.Sort(newQueueDatas)

	return !nold.Equals(nnew)
}

// RegisterProducer 将生产者group和发送类保存到内存中
func (mqClient *MQClient) RegisterProducer(group string, producer producerInner) bool {
	var flag bool

	mqClient.producerTableMu.Lock()
	if _, ok := mqClient.producerTable[group]; !ok {
		mqClient.producerTable[group] = producer
		flag = true
	}
	mqClient.producerTableMu.Unlock()

	return flag
}

// UnRegisterProducer 注销生产者
func (mqClient *MQClient) UnRegisterProducer(group string) {
	mqClient.producerTableMu.Lock()
	delete(mqClient.producerTable, group)
	mqClient.producerTableMu.Unlock()

	mqClient.unRegisterClientWithLock(group, "")
}

// RegisterConsumer 将消费者group和处理类保存到内存中
func (mqClient *MQClient) RegisterConsumer(group string, consumer consumerInner) bool {
	var flag bool

	mqClient.consumerTableMu.Lock()
	if _, ok := mqClient.consumerTable[group]; !ok {
		mqClient.consumerTable[group] = consumer
		flag = true
	}
	mqClient.consumerTableMu.Unlock()

	return flag
}

// UnRegisterConsumer 注销消费者
func (mqClient *MQClient) UnRegisterConsumer(group string) {
	mqClient.consumerTableMu.Lock()
	delete(mqClient.consumerTable, group)
	mqClient.consumerTableMu.Unlock()

	mqClient.unRegisterClientWithLock("", group)
}

// 注销客户端
func (mqClient *MQClient) unRegisterClientWithLock(producerGroup, consumerGroup string) {
	mqClient.heartbeatMu.Lock()
	defer mqClient.heartbeatMu.Unlock()

	brokerAddrTable := make(map[string]string)
	mqClient.brokerAddrTableMu.RLock()
	for brokerName, brokerData := range mqClient.brokerAddrTable {
		if brokerData == nil {
			continue
		}

		for _, addr := range brokerData {
			if addr != "" {
				brokerAddrTable[addr] = brokerName
			}
		}
	}
	mqClient.brokerAddrTableMu.RUnlock()

	// unregister client
	for addr, brokerName := range brokerAddrTable {
		err := mqClient.clientAPI.unRegisterClient(addr, mqClient.clientId, producerGroup, consumerGroup, 3000)
		if err != nil {
			logger.Infof("unregister client [producerGroup: %s, consumerGroup: %s] from broker[%s, %s] failed: %s",
				producerGroup, consumerGroup, brokerName, addr, err)
		} else {
			logger.Infof("unregister client [producerGroup: %s, consumerGroup: %s] from broker[%s, %s] success",
				producerGroup, consumerGroup, brokerName, addr)
		}
	}
}

// FindConsumerIdList 查询消费组内所有客户端id
func (mqClient *MQClient) FindConsumerIdList(topic string, group string) ([]string, error) {
	brokerAddr := mqClient.findBrokerAddrByTopic(topic)
	if brokerAddr == "" {
		mqClient.UpdateTopicRouteInfoFromNameServerByTopic(topic)
		brokerAddr = mqClient.findBrokerAddrByTopic(topic)
	}

	if brokerAddr != "" {
		return mqClient.clientAPI.getConsumerIdListByGroup(brokerAddr, group, 3000)
	}

	return []string{}, nil
}

func (mqClient *MQClient) findBrokerAddrByTopic(topic string) string {
	mqClient.topicRouteTableMu.RLock()
	defer mqClient.topicRouteTableMu.RUnlock()

	if topicRouteData, ok := mqClient.topicRouteTable[topic]; ok {
		if topicRouteData != nil {
			if len(topicRouteData.BrokerDatas) > 0 {
				bd := topicRouteData.BrokerDatas[0]
				return bd.SelectBrokerAddr()
			}
		}
	}

	return ""
}

// FindBrokerAddressInSubscribe 按brokerId查找拉取地址，
// onlyThisBroker为false时允许降级到任一可用副本
func (mqClient *MQClient) FindBrokerAddressInSubscribe(brokerName string, brokerId int,
	onlyThisBroker bool) (*common.FindBrokerResult, error) {
	mqClient.brokerAddrTableMu.RLock()
	brokerMap, ok := mqClient.brokerAddrTable[brokerName]
	mqClient.brokerAddrTableMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("not found broker addr by %s,%d", brokerName, brokerId)
	}

	if brokerMap == nil || len(brokerMap) == 0 {
		return nil, errors.Errorf("not found broker addr by %s,%d", brokerName, brokerId)
	}

	baddr := brokerMap[brokerId]
	slave := (brokerId != basis.MASTER_ID)
	if baddr == "" && !onlyThisBroker {
		for bid, addr := range brokerMap {
			if addr == "" {
				continue
			}

			baddr = addr
			slave = (bid != basis.MASTER_ID)
			break
		}
	}

	if baddr == "" {
		return nil, errors.Errorf("not found broker addr by %s,%d", brokerName, brokerId)
	}

	return &common.FindBrokerResult{
		BrokerAddr: baddr,
		Slave:      slave,
	}, nil
}

// PullMessage 发起长轮询拉取
func (mqClient *MQClient) PullMessage(brokerAddr string, header *head.PullMessageRequestHeader,
	timeout int64) (*common.PullResult, error) {
	return mqClient.clientAPI.pullMessage(brokerAddr, header, timeout)
}

// MaxOffset 查询队列最大位点
func (mqClient *MQClient) MaxOffset(mq *message.MessageQueue) (int64, error) {
	return mqClient.adminAPI.maxOffset(mq)
}

// SearchOffset 按时间戳查询位点
func (mqClient *MQClient) SearchOffset(mq *message.MessageQueue, timestamp int64) (int64, error) {
	return mqClient.adminAPI.searchOffset(mq, timestamp)
}

// FetchSubscribeMessageQueues 查询topic下全部可读队列
func (mqClient *MQClient) FetchSubscribeMessageQueues(topic string) ([]*message.MessageQueue, error) {
	return mqClient.adminAPI.fetchSubscribeMessageQueues(topic)
}

// QueryConsumerOffset 查询消费位点，broker无记录返回(-1, nil)
func (mqClient *MQClient) QueryConsumerOffset(mq *message.MessageQueue, group string, timeout int64) (int64, error) {
	result, err := mqClient.findBrokerForOffsetRPC(mq)
	if err != nil {
		return -1, err
	}

	return mqClient.clientAPI.queryConsumerOffset(result.BrokerAddr, group, mq.Topic, mq.QueueId, timeout)
}

// UpdateConsumerOffsetOneway 提交消费位点
func (mqClient *MQClient) UpdateConsumerOffsetOneway(mq *message.MessageQueue, group string, offset int64) error {
	result, err := mqClient.findBrokerForOffsetRPC(mq)
	if err != nil {
		return err
	}

	return mqClient.clientAPI.updateConsumerOffsetOneway(result.BrokerAddr, group, mq.Topic, mq.QueueId, offset)
}

func (mqClient *MQClient) findBrokerForOffsetRPC(mq *message.MessageQueue) (*common.FindBrokerResult, error) {
	result, err := mqClient.FindBrokerAddressInSubscribe(mq.BrokerName, basis.MASTER_ID, true)
	if err != nil {
		mqClient.UpdateTopicRouteInfoFromNameServerByTopic(mq.Topic)
		result, err = mqClient.FindBrokerAddressInSubscribe(mq.BrokerName, basis.MASTER_ID, false)
	}

	return result, err
}
