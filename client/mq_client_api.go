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
	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/net/remoting"
	"github.com/boltmq/common/protocol"
	"github.com/boltmq/common/protocol/base"
	"github.com/boltmq/common/protocol/head"
	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/common/protocol/namesrv"
	"github.com/boltmq/consumer/common"
	"github.com/go-errors/errors"
)

type mqClientAPI struct {
	groupPrefix    string
	clientIP       string
	remotingClient remoting.RemotingClient
	processor      *remotingProcessor
}

func newMQClientAPI(processor *remotingProcessor) *mqClientAPI {
	remotingClient := remoting.NewRemotingClient()
	remotingClient.RegisterProcessor(protocol.NOTIFY_CONSUMER_IDS_CHANGED, processor)

	clientIP, err := common.LocalAddress()
	if err != nil {
		logger.Warnf("get local address err: %s", err)
	}

	return &mqClientAPI{
		clientIP:       clientIP,
		remotingClient: remotingClient,
		processor:      processor,
	}
}

// Start 调用romoting的start
func (api *mqClientAPI) start() {
	api.remotingClient.Start()
	value, err := api.getProjectGroupByIp(api.clientIP, 3000)
	if err == nil && value != "" {
		api.groupPrefix = value
	}
}

// 关闭
func (api *mqClientAPI) shutdown() {
	api.remotingClient.Shutdown()
}

func (api *mqClientAPI) updateNameServerAddressList(addrs []string) {
	api.remotingClient.UpdateNameServerAddressList(addrs)
}

func (api *mqClientAPI) getProjectGroupByIp(ip string, timeout int64) (string, error) {
	return api.getKVConfigValue(namesrv.NAMESPACE_PROJECT_CONFIG, ip, timeout)
}

// 获取配置信息
func (api *mqClientAPI) getKVConfigValue(namespace, key string, timeout int64) (string, error) {
	header := &head.GetKVConfigRequestHeader{Namespace: namespace, Key: key}
	request := protocol.CreateRequestCommand(protocol.GET_KV_CONFIG, header)

	response, err := api.remotingClient.InvokeSync("", request, timeout)
	if err != nil {
		return "", errors.Errorf("Get KVConfig Value err: %s, the request is %s", err, request)
	}

	if response == nil {
		return "", errors.Errorf("Get KVConfig Value response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return "", errors.Errorf("Get KVConfig Value failed, Code:%d.", response.Code)
	}

	respHeader := &head.GetKVConfigResponseHeader{}
	err = response.DecodeCommandCustomHeader(respHeader)
	if err != nil {
		return "", errors.Errorf("Decode Get KVConfig Response Header err: %s", err)
	}

	return respHeader.Value, nil
}

// 发送心跳到broker
func (api *mqClientAPI) sendHeartbeat(addr string, heartbeatData *heartbeat.HeartbeatData, timeout int64) error {
	if api.groupPrefix != "" {
		for _, cData := range heartbeatData.ConsumerDatas {
			cData.GroupName = common.BuildWithProjectGroup(cData.GroupName, api.groupPrefix)
			for _, subData := range cData.SubscriptionDatas {
				subData.Topic = common.BuildWithProjectGroup(subData.Topic, api.groupPrefix)
			}
		}

		for _, pData := range heartbeatData.ProducerDatas {
			pData.GroupName = common.BuildWithProjectGroup(pData.GroupName, api.groupPrefix)
		}
	}

	request := protocol.CreateRequestCommand(protocol.HEART_BEAT)
	request.Body = heartbeatData.Encode()
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return errors.Errorf("send heartbeat to broker err: %s", err)
	}

	if response == nil {
		return errors.Errorf("send heartbeat to broker err: response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return errors.Errorf("send heartbeat to broker failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	return nil
}

func (api *mqClientAPI) getTopicRouteInfoFromNameServer(topic string, timeout int64) (*base.TopicRouteData, error) {
	if api.groupPrefix != "" {
		topic = common.BuildWithProjectGroup(topic, api.groupPrefix)
	}

	header := &head.GetRouteInfoRequestHeader{Topic: topic}
	request := protocol.CreateRequestCommand(protocol.GET_ROUTEINTO_BY_TOPIC, header)
	response, err := api.remotingClient.InvokeSync("", request, timeout)
	if err != nil {
		return nil, errors.Errorf("get topic routeInfo from name server err: %s", err)
	}

	if response == nil {
		return nil, errors.Errorf("get topic routeInfo from name server err: response is nil")
	}

	switch response.Code {
	case protocol.TOPIC_NOT_EXIST:
		return nil, errors.Errorf("get topic routeInfo from name server err: topic[%s] is not exist value", topic)
	case protocol.SUCCESS:
		body := response.Body
		if body == nil || len(body) == 0 {
			return nil, errors.Errorf("get topic routeInfo from name server body is empty.")
		}

		topicRouteData := &base.TopicRouteData{}
		err := topicRouteData.Decode(body)
		if err != nil {
			return nil, errors.Errorf("get topic routeInfo from name server decode err: %s.", err)
		}

		return topicRouteData, nil
	}

	return nil, errors.Errorf("get topic routeInfo from name server failed, code:%d, remark:%s.", response.Code, response.Remark)
}

// 查询消费组内全部clientId
func (api *mqClientAPI) getConsumerIdListByGroup(addr string, group string, timeout int64) ([]string, error) {
	if api.groupPrefix != "" {
		group = common.BuildWithProjectGroup(group, api.groupPrefix)
	}

	header := &head.GetConsumerListByGroupRequestHeader{ConsumerGroup: group}
	request := protocol.CreateRequestCommand(protocol.GET_CONSUMER_LIST_BY_GROUP, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return nil, errors.Errorf("get consumer id list by group err: %s", err)
	}

	if response == nil {
		return nil, errors.Errorf("get consumer id list by group err: response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return nil, errors.Errorf("get consumer id list by group failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	if response.Body == nil || len(response.Body) == 0 {
		return nil, errors.Errorf("get consumer id list by group body is empty.")
	}

	respBody := &head.GetConsumerListByGroupResponseBody{}
	err = common.Decode(response.Body, respBody)
	if err != nil {
		return nil, errors.Errorf("get consumer id list by group decode err: %s.", err)
	}

	return respBody.ConsumerIdList, nil
}

func (api *mqClientAPI) getMaxOffset(addr string, topic string, queueId int, timeout int64) (int64, error) {
	if api.groupPrefix != "" {
		topic = common.BuildWithProjectGroup(topic, api.groupPrefix)
	}

	header := &head.GetMaxOffsetRequestHeader{Topic: topic, QueueId: int32(queueId)}
	request := protocol.CreateRequestCommand(protocol.GET_MAX_OFFSET, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return -1, errors.Errorf("get max offset err: %s", err)
	}

	if response == nil {
		return -1, errors.Errorf("get max offset err: response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return -1, errors.Errorf("get max offset failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	respHeader := &head.GetMaxOffsetResponseHeader{}
	err = response.DecodeCommandCustomHeader(respHeader)
	if err != nil {
		return -1, errors.Errorf("decode get max offset response header err: %s", err)
	}

	return respHeader.Offset, nil
}

// 按时间查询位点
func (api *mqClientAPI) searchOffset(addr string, topic string, queueId int, timestamp int64, timeout int64) (int64, error) {
	if api.groupPrefix != "" {
		topic = common.BuildWithProjectGroup(topic, api.groupPrefix)
	}

	header := &head.SearchOffsetRequestHeader{Topic: topic, QueueId: int32(queueId), Timestamp: timestamp}
	request := protocol.CreateRequestCommand(protocol.SEARCH_OFFSET_BY_TIMESTAMP, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return -1, errors.Errorf("search offset err: %s", err)
	}

	if response == nil {
		return -1, errors.Errorf("search offset err: response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return -1, errors.Errorf("search offset failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	respHeader := &head.SearchOffsetResponseHeader{}
	err = response.DecodeCommandCustomHeader(respHeader)
	if err != nil {
		return -1, errors.Errorf("decode search offset response header err: %s", err)
	}

	return respHeader.Offset, nil
}

// 查询消费位点，broker无记录返回(-1, nil)
func (api *mqClientAPI) queryConsumerOffset(addr string, group string, topic string, queueId int, timeout int64) (int64, error) {
	if api.groupPrefix != "" {
		topic = common.BuildWithProjectGroup(topic, api.groupPrefix)
		group = common.BuildWithProjectGroup(group, api.groupPrefix)
	}

	header := &head.QueryConsumerOffsetRequestHeader{
		ConsumerGroup: group,
		Topic:         topic,
		QueueId:       int32(queueId),
	}
	request := protocol.CreateRequestCommand(protocol.QUERY_CONSUMER_OFFSET, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return -1, errors.Errorf("query consumer offset err: %s", err)
	}

	if response == nil {
		return -1, errors.Errorf("query consumer offset err: response is nil")
	}

	switch response.Code {
	case protocol.QUERY_NOT_FOUND:
		return -1, nil
	case protocol.SUCCESS:
		respHeader := &head.QueryConsumerOffsetResponseHeader{}
		err = response.DecodeCommandCustomHeader(respHeader)
		if err != nil {
			return -1, errors.Errorf("decode query consumer offset response header err: %s", err)
		}

		return respHeader.Offset, nil
	}

	return -1, errors.Errorf("query consumer offset failed, code:%d, remark:%s.", response.Code, response.Remark)
}

// 提交消费位点，oneway不等待broker响应
func (api *mqClientAPI) updateConsumerOffsetOneway(addr string, group string, topic string, queueId int, offset int64) error {
	if api.groupPrefix != "" {
		topic = common.BuildWithProjectGroup(topic, api.groupPrefix)
		group = common.BuildWithProjectGroup(group, api.groupPrefix)
	}

	header := &head.UpdateConsumerOffsetRequestHeader{
		ConsumerGroup: group,
		Topic:         topic,
		QueueId:       int32(queueId),
		CommitOffset:  offset,
	}
	request := protocol.CreateRequestCommand(protocol.UPDATE_CONSUMER_OFFSET, header)
	request.MarkOnewayRPC()
	err := api.remotingClient.InvokeOneway(addr, request, 1000*3)
	if err != nil {
		return errors.Errorf("update consumer offset oneway err: %s", err)
	}

	return nil
}

// 长轮询拉取消息
func (api *mqClientAPI) pullMessage(addr string, header *head.PullMessageRequestHeader, timeout int64) (*common.PullResult, error) {
	if api.groupPrefix != "" {
		header.ConsumerGroup = common.BuildWithProjectGroup(header.ConsumerGroup, api.groupPrefix)
		header.Topic = common.BuildWithProjectGroup(header.Topic, api.groupPrefix)
	}

	request := protocol.CreateRequestCommand(protocol.PULL_MESSAGE, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return nil, errors.Errorf("pull message err: %s", err)
	}

	if response == nil {
		return nil, errors.Errorf("pull message err: response is nil")
	}

	return api.processPullResponse(response)
}

func (api *mqClientAPI) processPullResponse(response *protocol.RemotingCommand) (*common.PullResult, error) {
	var status common.PullStatus
	switch response.Code {
	case protocol.SUCCESS:
		status = common.FOUND
	case protocol.PULL_NOT_FOUND:
		status = common.NO_NEW_MSG
	case protocol.PULL_RETRY_IMMEDIATELY:
		status = common.NO_MATCHED_MSG
	case protocol.PULL_OFFSET_MOVED:
		status = common.OFFSET_ILLEGAL
	default:
		return nil, errors.Errorf("pull message failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	respHeader := &head.PullMessageResponseHeader{}
	err := response.DecodeCommandCustomHeader(respHeader)
	if err != nil {
		return nil, errors.Errorf("decode pull message response header err: %s", err)
	}

	result := &common.PullResult{
		Status:               status,
		NextBeginOffset:      respHeader.NextBeginOffset,
		MinOffset:            respHeader.MinOffset,
		MaxOffset:            respHeader.MaxOffset,
		SuggestWhichBrokerId: respHeader.SuggestWhichBrokerId,
	}

	if status == common.FOUND && response.Body != nil && len(response.Body) > 0 {
		msgs, err := message.DecodesMessageExt(response.Body, true, true)
		if err != nil {
			return nil, errors.Errorf("decode pulled messages err: %s", err)
		}

		result.Msgs = msgs
	}

	return result, nil
}

// 从broker注销客户端
func (api *mqClientAPI) unRegisterClient(addr string, clientId string, producerGroup string, consumerGroup string, timeout int64) error {
	if api.groupPrefix != "" {
		producerGroup = common.BuildWithProjectGroup(producerGroup, api.groupPrefix)
		consumerGroup = common.BuildWithProjectGroup(consumerGroup, api.groupPrefix)
	}

	header := &head.UnregisterClientRequestHeader{
		ClientID:      clientId,
		ProducerGroup: producerGroup,
		ConsumerGroup: consumerGroup,
	}
	request := protocol.CreateRequestCommand(protocol.UNREGISTER_CLIENT, header)
	response, err := api.remotingClient.InvokeSync(addr, request, timeout)
	if err != nil {
		return errors.Errorf("unregister client err: %s", err)
	}

	if response == nil {
		return errors.Errorf("unregister client err: response is nil")
	}

	if response.Code != protocol.SUCCESS {
		return errors.Errorf("unregister client failed, code:%d, remark:%s.", response.Code, response.Remark)
	}

	return nil
}
