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
package rebalance

import "github.com/boltmq/common/message"

// MQAllocateStrategy 消费负载策略接口
type MQAllocateStrategy interface {
	// Allocating by consumer id
	// consumerGroup current consumer group
	// currentCID    current consumer id
	// mqs         message queue set in current topic
	// cids        consumer set in current consumer group
	Allocate(consumerGroup string, currentCID string, mqs []*message.MessageQueue, cids []string) []*message.MessageQueue
	// Algorithm name
	GetName() string
}

// AllocateAveragely 平均分配：每个consumer分到连续的一段队列，余数从头部起
// 依次多分一个。要求mqs与cids均已排序，各端输入一致时分配结果互不重叠。
type AllocateAveragely struct {
}

func (strategy *AllocateAveragely) Allocate(consumerGroup string, currentCID string,
	mqs []*message.MessageQueue, cids []string) []*message.MessageQueue {
	if currentCID == "" || len(mqs) == 0 || len(cids) == 0 {
		return nil
	}

	index := -1
	for i, cid := range cids {
		if cid == currentCID {
			index = i
			break
		}
	}

	if index == -1 {
		return nil
	}

	mod := len(mqs) % len(cids)
	avg := len(mqs) / len(cids)

	size := avg
	if index < mod {
		size++
	}

	start := index*avg + min(index, mod)
	var result []*message.MessageQueue
	for i := 0; i < size && start+i < len(mqs); i++ {
		result = append(result, mqs[start+i])
	}

	return result
}

func (strategy *AllocateAveragely) GetName() string {
	return "AVG"
}

// AllocateAveragelyByCircle 环形平均分配：按下标对consumer数取模轮转。
type AllocateAveragelyByCircle struct {
}

func (strategy *AllocateAveragelyByCircle) Allocate(consumerGroup string, currentCID string,
	mqs []*message.MessageQueue, cids []string) []*message.MessageQueue {
	if currentCID == "" || len(mqs) == 0 || len(cids) == 0 {
		return nil
	}

	index := -1
	for i, cid := range cids {
		if cid == currentCID {
			index = i
			break
		}
	}

	if index == -1 {
		return nil
	}

	var result []*message.MessageQueue
	for i := index; i < len(mqs); i += len(cids) {
		result = append(result, mqs[i])
	}

	return result
}

func (strategy *AllocateAveragelyByCircle) GetName() string {
	return "AVG_BY_CIRCLE"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
