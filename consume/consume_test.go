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
	"testing"
	"time"

	"github.com/boltmq/common/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapMessageHandlerAutoAck(t *testing.T) {
	var got []*message.MessageExt
	listener := WrapMessageHandler(func(msgs []*message.MessageExt) {
		got = msgs
	})

	msgs := []*message.MessageExt{{QueueOffset: 7}}
	acked := make(chan struct{}, 1)
	listener(msgs, func() { acked <- struct{}{} })

	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].QueueOffset)

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("wrapped handler did not auto ack")
	}
}
