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
	"runtime"
	"time"

	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/consumer/client"
	"github.com/boltmq/consumer/common"
	"github.com/boltmq/consumer/consume"
	"github.com/boltmq/consumer/rebalance"
	"github.com/juju/errors"
)

// 消费时间戳格式 yyyyMMddHHmmss
const timestampFormat = "20060102150405"

type PushConfig struct {
	// Do the same thing for the same Group, the application must be set,and
	// guarantee Globally unique
	ConsumerGroup string
	// Consumption pattern,default is clustering
	MessageModel heartbeat.MessageModel
	// Consuming point on consumer booting
	ConsumeFromWhere heartbeat.ConsumeFromWhere
	// Backtracking consumption time with second precision.time format is
	// 20131223171201,default backtracking consumption time Half an hour ago
	ConsumeTimestamp string
	// The number of messages pulled per pull
	PullBatchSize int32
	// Message pull Interval
	PullInterval int64
	// Flow control threshold
	PullThresholdForQueue int64
	// Long polling mode, the Consumer connection max suspend time, it is not recommended to modify
	BrokerSuspendMaxTimeMillis int64
	// Long polling mode, the Consumer connection timeout(must greater than
	// BrokerSuspendMaxTimeMillis), it is not recommended to modify
	ConsumerTimeoutMillisWhenSuspend int64
	// Delay some time when pull exception
	PullTimeDelayMillsWhenException int64
	// Whether update subscription relationship when every pull
	PostSubscriptionWhenPull bool
	// Batch consumption size
	ConsumeMessageBatchMaxSize int
	// 投递后等待ack的超时时间
	ConsumeAckTimeoutMillis int64
	// Whether the unit of subscription group
	UnitMode bool
	// Queue allocation algorithm
	AllocateStrategy rebalance.MQAllocateStrategy
	// the client config
	Client client.Config
}

func NewPushConfig(consumerGroup string) *PushConfig {
	return &PushConfig{
		ConsumerGroup:                    consumerGroup,
		MessageModel:                     heartbeat.CLUSTERING,
		ConsumeFromWhere:                 heartbeat.CONSUME_FROM_LAST_OFFSET,
		ConsumeTimestamp:                 time.Now().Add(-30 * time.Minute).Format(timestampFormat),
		PullBatchSize:                    32,
		PullInterval:                     0,
		PullThresholdForQueue:            1000,
		BrokerSuspendMaxTimeMillis:       1000 * 15,
		ConsumerTimeoutMillisWhenSuspend: 1000 * 30,
		PullTimeDelayMillsWhenException:  3000,
		PostSubscriptionWhenPull:         true,
		ConsumeMessageBatchMaxSize:       1,
		ConsumeAckTimeoutMillis:          3000,
		AllocateStrategy:                 &rebalance.AllocateAveragely{},
		Client: client.Config{
			InstanceName:                  defaultInstanceName(),
			ClientIP:                      defaultLocalAddress(),
			ClientCallbackExecutorThreads: runtime.NumCPU(),
			PullNameServerInterval:        1000 * 30,
			HeartbeatBrokerInterval:       1000 * 30,
			PersistConsumerOffsetInterval: 1000 * 5,
		},
	}
}

func (cfg *PushConfig) check() error {
	if err := common.CheckGroup(cfg.ConsumerGroup); err != nil {
		return errors.Annotate(err, "check consumer group")
	}

	if cfg.ConsumerTimeoutMillisWhenSuspend <= cfg.BrokerSuspendMaxTimeMillis {
		return errors.Errorf("consumerTimeoutMillisWhenSuspend[%d] must greater than brokerSuspendMaxTimeMillis[%d]",
			cfg.ConsumerTimeoutMillisWhenSuspend, cfg.BrokerSuspendMaxTimeMillis)
	}

	if cfg.PullBatchSize <= 0 {
		return errors.Errorf("pullBatchSize[%d] must greater than 0", cfg.PullBatchSize)
	}

	if cfg.ConsumeMessageBatchMaxSize <= 0 {
		return errors.Errorf("consumeMessageBatchMaxSize[%d] must greater than 0", cfg.ConsumeMessageBatchMaxSize)
	}

	if cfg.AllocateStrategy == nil {
		return errors.New("allocateMessageQueueStrategy is nil")
	}

	if cfg.ConsumeFromWhere == heartbeat.CONSUME_FROM_TIMESTAMP {
		if _, err := time.ParseInLocation(timestampFormat, cfg.ConsumeTimestamp, time.Local); err != nil {
			return errors.Errorf("consumeTimestamp[%s] is not yyyyMMddHHmmss", cfg.ConsumeTimestamp)
		}
	}

	return nil
}

func (cfg *PushConfig) consumeTimestampMillis() (int64, error) {
	t, err := time.ParseInLocation(timestampFormat, cfg.ConsumeTimestamp, time.Local)
	if err != nil {
		return 0, errors.Annotate(err, "parse consume timestamp")
	}

	return t.UnixNano() / int64(time.Millisecond), nil
}

// NewPushConsumer 以默认配置构造push消费者
func NewPushConsumer(consumerGroup string) (consume.PushConsumer, error) {
	return NewPushConsumerWithConfig(NewPushConfig(consumerGroup))
}

// NewPushConsumerWithConfig 配置错误在构造期即返回
func NewPushConsumerWithConfig(cfg *PushConfig) (consume.PushConsumer, error) {
	if cfg == nil {
		return nil, errors.New("push config is nil")
	}

	if err := cfg.check(); err != nil {
		return nil, errors.Annotate(err, "create push consumer")
	}

	return newPushConsumerImpl(cfg), nil
}
