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
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/boltmq/common/message"
	"github.com/boltmq/common/utils/system"
)

// ProcessQueue 消费端队列运行时状态。dropped一旦置位不再复位，
// rebalance与pull worker并发读写的字段走atomic。
type ProcessQueue struct {
	msgTreeMap        *treeMap
	msgTreeMapMu      sync.RWMutex
	dropped           int32
	lastPullTimestamp int64
	PullMaxIdleTime   int64
	msgCount          int64
	QueueOffsetMax    int64
	Consuming         bool
	MsgAccCnt         int64
}

type treeMap struct {
	sync.RWMutex
	keys     []int
	innerMap map[int]*message.MessageExt
}

func newTreeMap() *treeMap {
	return &treeMap{
		innerMap: make(map[int]*message.MessageExt)}
}

func (tmap *treeMap) put(offset int, msg *message.MessageExt) *message.MessageExt {
	old := tmap.innerMap[offset]
	tmap.innerMap[offset] = msg
	tmap.keys = append(tmap.keys, offset)
	sort.Ints(tmap.keys)
	return old
}

func (tmap *treeMap) get(offset int) *message.MessageExt {
	return tmap.innerMap[offset]
}

func (tmap *treeMap) firstKey() int {
	return tmap.keys[0]
}

func (tmap *treeMap) lastKey() int {
	return tmap.keys[len(tmap.keys)-1]
}

func (tmap *treeMap) remove(offset int) *message.MessageExt {
	tmap.Lock()
	defer tmap.Unlock()
	msg, ok := tmap.innerMap[offset]
	if !ok {
		return nil
	}

	newKeys := []int{}
	for _, key := range tmap.keys {
		if key != offset {
			newKeys = append(newKeys, key)
		}
	}
	sort.Ints(newKeys)
	tmap.keys = newKeys
	delete(tmap.innerMap, offset)
	return msg
}

func NewProcessQueue() *ProcessQueue {
	return &ProcessQueue{
		PullMaxIdleTime:   120000,
		lastPullTimestamp: system.CurrentTimeMillis(),
		msgTreeMap:        newTreeMap(),
	}
}

func (pq *ProcessQueue) IsDropped() bool {
	return atomic.LoadInt32(&pq.dropped) == 1
}

// MarkDropped 只允许false->true
func (pq *ProcessQueue) MarkDropped() {
	atomic.StoreInt32(&pq.dropped, 1)
}

func (pq *ProcessQueue) UpdateLastPullTimestamp() {
	atomic.StoreInt64(&pq.lastPullTimestamp, system.CurrentTimeMillis())
}

func (pq *ProcessQueue) LastPullTimestamp() int64 {
	return atomic.LoadInt64(&pq.lastPullTimestamp)
}

func (pq *ProcessQueue) IsPullExpired() bool {
	return (system.CurrentTimeMillis() - pq.LastPullTimestamp()) > pq.PullMaxIdleTime
}

func (pq *ProcessQueue) MsgCount() int64 {
	return atomic.LoadInt64(&pq.msgCount)
}

func (pq *ProcessQueue) PutMessage(msgs []*message.MessageExt) bool {
	pq.msgTreeMapMu.Lock()
	defer pq.msgTreeMapMu.Unlock()
	dispatchToConsume := false
	var validMsgCnt int64 = 0
	for _, msg := range msgs {
		old := pq.msgTreeMap.put(int(msg.QueueOffset), msg)
		if old == nil {
			validMsgCnt++
			pq.QueueOffsetMax = msg.QueueOffset
		}

	}
	atomic.AddInt64(&pq.msgCount, validMsgCnt)
	if len(pq.msgTreeMap.innerMap) > 0 && !pq.Consuming {
		dispatchToConsume = true
		pq.Consuming = true
	}
	if len(msgs) > 0 {
		messageExt := msgs[len(msgs)-1]
		property := messageExt.Properties[message.PROPERTY_MAX_OFFSET]
		if !strings.EqualFold(property, "") {
			maxOffset, _ := strconv.ParseInt(property, 10, 64)
			accTotal := maxOffset - messageExt.QueueOffset
			if accTotal > 0 {
				pq.MsgAccCnt = accTotal
			}
		}
	}
	return dispatchToConsume
}

// RemoveMessage 消费完成后移除，返回下一个可提交的位点；树空时为
// QueueOffsetMax+1，否则为剩余最小位点。无消息返回-1。
func (pq *ProcessQueue) RemoveMessage(msgs []*message.MessageExt) int64 {
	pq.msgTreeMapMu.Lock()
	defer pq.msgTreeMapMu.Unlock()
	var result int64 = -1
	if len(pq.msgTreeMap.innerMap) > 0 {
		result = pq.QueueOffsetMax + 1
		var removedCnt int64 = 0
		for _, msg := range msgs {
			prev := pq.msgTreeMap.remove(int(msg.QueueOffset))
			if prev != nil {
				removedCnt--
			}
		}
		atomic.AddInt64(&pq.msgCount, removedCnt)
		if len(pq.msgTreeMap.innerMap) > 0 {
			result = int64(pq.msgTreeMap.firstKey())
		}
	}

	return result
}

func (pq *ProcessQueue) GetMaxSpan() int64 {
	defer pq.msgTreeMapMu.Unlock()
	pq.msgTreeMapMu.Lock()
	if len(pq.msgTreeMap.innerMap) > 0 {
		return int64(pq.msgTreeMap.lastKey() - pq.msgTreeMap.firstKey())
	}
	return 0
}

func (pq *ProcessQueue) String() string {
	return fmt.Sprintf("[Dropped=%t,LastPullTimestamp=%v,MsgCount=%v,MsgAccCnt=%v]",
		pq.IsDropped(), pq.LastPullTimestamp(), pq.MsgCount(), pq.MsgAccCnt)
}
