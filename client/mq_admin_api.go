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
	"github.com/boltmq/common/message"
	"github.com/go-errors/errors"
)

type mqAdminAPI struct {
	mqClient *MQClient
}

func newMQAdminAPI(mqClient *MQClient) *mqAdminAPI {
	return &mqAdminAPI{mqClient: mqClient}
}

func (api *mqAdminAPI) maxOffset(mq *message.MessageQueue) (int64, error) {
	brokerAddr := api.mqClient.FindBrokerAddressInPublish(mq.BrokerName)
	if brokerAddr == "" {
		api.mqClient.UpdateTopicRouteInfoFromNameServerByTopic(mq.Topic)
		brokerAddr = api.mqClient.FindBrokerAddressInPublish(mq.BrokerName)
	}

	if brokerAddr == "" {
		return -1, errors.Errorf("the broker[%s] not exist", mq.BrokerName)
	}

	return api.mqClient.clientAPI.getMaxOffset(brokerAddr, mq.Topic, mq.QueueId, 1000*3)
}

func (api *mqAdminAPI) searchOffset(mq *message.MessageQueue, timestamp int64) (int64, error) {
	brokerAddr := api.mqClient.FindBrokerAddressInPublish(mq.BrokerName)
	if brokerAddr == "" {
		api.mqClient.UpdateTopicRouteInfoFromNameServerByTopic(mq.Topic)
		brokerAddr = api.mqClient.FindBrokerAddressInPublish(mq.BrokerName)
	}

	if brokerAddr == "" {
		return -1, errors.Errorf("the broker[%s] not exist", mq.BrokerName)
	}

	return api.mqClient.clientAPI.searchOffset(brokerAddr, mq.Topic, mq.QueueId, timestamp, 1000*3)
}

func (api *mqAdminAPI) fetchSubscribeMessageQueues(topic string) ([]*message.MessageQueue, error) {
	routeData, err := api.mqClient.clientAPI.getTopicRouteInfoFromNameServer(topic, 1000*3)
	if err != nil {
		return nil, err
	}

	if routeData == nil {
		return []*message.MessageQueue{}, nil
	}

	return api.mqClient.topicRouteData2TopicSubscribeInfo(topic, routeData), nil
}
