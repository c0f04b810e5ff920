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
package consume

import (
	"github.com/boltmq/common/message"
	"github.com/boltmq/common/protocol/heartbeat"
)

// MessageListener 批量投递回调。一个队列同一时刻只有一批消息在投递中，
// 调用方必须在处理完成后调用ack，超时未ack按投递失败处理，位点不前移，
// 消息等待重投。
type MessageListener func(msgs []*message.MessageExt, ack func())

// MessageHandler 单参数回调，返回即视为ack
type MessageHandler func(msgs []*message.MessageExt)

// WrapMessageHandler 兼容单参数回调，自动ack
func WrapMessageHandler(handler MessageHandler) MessageListener {
	return func(msgs []*message.MessageExt, ack func()) {
		handler(msgs)
		ack()
	}
}

// MessageQueueChangedListener rebalance发生实际变更后回调，
// mqDivided为当前分配到的队列
type MessageQueueChangedListener func(topic string, mqDivided []*message.MessageQueue)

// ErrorListener 内部非致命错误的异步通知
type ErrorListener func(err error)

type PushConsumer interface {
	NameSrvAddrs(addrs []string)
	SetConsumeFromWhere(consumeFromWhere heartbeat.ConsumeFromWhere)
	SetMessageModel(model heartbeat.MessageModel)
	RegisterMessageListener(listener MessageListener)
	// RegisterMessageHandler 注册单参数回调，返回即ack
	RegisterMessageHandler(handler MessageHandler)
	RegisterMessageQueueChangedListener(listener MessageQueueChangedListener)
	RegisterErrorListener(listener ErrorListener)
	Subscribe(topic string, subExpression string) error
	FetchSubscribeMessageQueues(topic string) ([]*message.MessageQueue, error)
	MaxOffset(mq *message.MessageQueue) (int64, error)
	SearchOffset(mq *message.MessageQueue, timestampMillis int64) (int64, error)
	Start() error
	Stop()
}
