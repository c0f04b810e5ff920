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
	"fmt"
	"sync/atomic"

	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
)

type PullRequest struct {
	ConsumerGroup string
	NextOffset    int64
	MessageQueue  *message.MessageQueue
	ProcessQueue  *ProcessQueue
}

func (pr *PullRequest) String() string {
	return fmt.Sprintf("PullRequest[group=%s, mq=%s@%s@%d, nextOffset=%d]",
		pr.ConsumerGroup, pr.MessageQueue.Topic, pr.MessageQueue.BrokerName,
		pr.MessageQueue.QueueId, pr.NextOffset)
}

// pullRequestProcessor 由push消费者实现：执行一次长轮询拉取，
// 返回false表示该队列不再归属当前消费者，worker退出。
type pullRequestProcessor interface {
	PullMessage(pr *PullRequest) bool
}

// 每个被分配到的队列一个worker goroutine，worker在每次拉取前检查
// 队列归属，归属丢失即退出。
type pullMessageService struct {
	mqClient  *MQClient
	prCh      chan *PullRequest
	isStopped int32
}

func newPullMessageService(mqClient *MQClient) *pullMessageService {
	return &pullMessageService{
		mqClient: mqClient,
		prCh:     make(chan *PullRequest, 1024)}
}

func (service *pullMessageService) start() {
	go func() {
		service.run()
	}()
}

func (service *pullMessageService) shutdown() {
	atomic.StoreInt32(&service.isStopped, 1)
}

func (service *pullMessageService) stopped() bool {
	return atomic.LoadInt32(&service.isStopped) == 1
}

// 向通道中加入pullRequest，由run为其启动worker
func (service *pullMessageService) ExecutePullRequestImmediately(pullRequest *PullRequest) {
	service.prCh <- pullRequest
}

func (service *pullMessageService) run() {
	logger.Info("pull message service started")
	for !service.stopped() {
		request := <-service.prCh
		go service.pullLoop(request)
	}
}

func (service *pullMessageService) pullLoop(pullRequest *PullRequest) {
	mConsumer := service.mqClient.selectConsumer(pullRequest.ConsumerGroup)
	if mConsumer == nil {
		logger.Warnf("pull message service found no consumer of group %s, drop %s",
			pullRequest.ConsumerGroup, pullRequest)
		return
	}

	processor, ok := mConsumer.(pullRequestProcessor)
	if !ok {
		logger.Warnf("consumer of group %s can not process pull request, drop %s",
			pullRequest.ConsumerGroup, pullRequest)
		return
	}

	for !service.stopped() {
		if !processor.PullMessage(pullRequest) {
			break
		}
	}

	logger.Infof("pull worker exit, %s", pullRequest)
}
