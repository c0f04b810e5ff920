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
	"testing"

	"github.com/boltmq/common/message"
	"github.com/stretchr/testify/assert"
)

func buildMsgs(offsets ...int64) []*message.MessageExt {
	var msgs []*message.MessageExt
	for _, offset := range offsets {
		msgs = append(msgs, &message.MessageExt{QueueOffset: offset})
	}
	return msgs
}

func TestProcessQueuePutAndRemove(t *testing.T) {
	pq := NewProcessQueue()

	dispatch := pq.PutMessage(buildMsgs(0, 1, 2))
	assert.True(t, dispatch)
	assert.Equal(t, int64(3), pq.MsgCount())
	assert.Equal(t, int64(2), pq.QueueOffsetMax)

	// 移除部分消息后可提交位点为剩余最小位点
	offset := pq.RemoveMessage(buildMsgs(0))
	assert.Equal(t, int64(1), offset)
	assert.Equal(t, int64(2), pq.MsgCount())

	// 全部移除后可提交位点为最大位点+1
	offset = pq.RemoveMessage(buildMsgs(1, 2))
	assert.Equal(t, int64(3), offset)
	assert.Equal(t, int64(0), pq.MsgCount())
}

func TestProcessQueueRemoveEmpty(t *testing.T) {
	pq := NewProcessQueue()
	assert.Equal(t, int64(-1), pq.RemoveMessage(buildMsgs(5)))
}

func TestProcessQueuePutDuplicate(t *testing.T) {
	pq := NewProcessQueue()

	pq.PutMessage(buildMsgs(0))
	pq.PutMessage(buildMsgs(0))
	assert.Equal(t, int64(1), pq.MsgCount())
}

func TestProcessQueueDroppedIsSticky(t *testing.T) {
	pq := NewProcessQueue()
	assert.False(t, pq.IsDropped())

	pq.MarkDropped()
	assert.True(t, pq.IsDropped())

	pq.MarkDropped()
	assert.True(t, pq.IsDropped())
}

func TestProcessQueuePullExpired(t *testing.T) {
	pq := NewProcessQueue()
	assert.False(t, pq.IsPullExpired())

	pq.PullMaxIdleTime = -1
	assert.True(t, pq.IsPullExpired())

	pq.PullMaxIdleTime = 120000
	pq.UpdateLastPullTimestamp()
	assert.False(t, pq.IsPullExpired())
}

func TestProcessQueueMaxSpan(t *testing.T) {
	pq := NewProcessQueue()
	assert.Equal(t, int64(0), pq.GetMaxSpan())

	pq.PutMessage(buildMsgs(3, 9))
	assert.Equal(t, int64(6), pq.GetMaxSpan())
}
