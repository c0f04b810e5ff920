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
package common

import (
	"testing"

	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSubscriptionDataSubAll(t *testing.T) {
	for _, expr := range []string{"", "*"} {
		subData, err := BuildSubscriptionData("TopicTest", expr)
		require.NoError(t, err)
		assert.Equal(t, "TopicTest", subData.Topic)
		assert.Equal(t, SUB_ALL, subData.SubString)
		assert.Empty(t, subData.TagsSet)
		assert.Empty(t, subData.CodeSet)
		assert.True(t, subData.SubVersion > 0)
	}
}

func TestBuildSubscriptionDataTags(t *testing.T) {
	subData, err := BuildSubscriptionData("TopicTest", "TagA || TagB||TagA")
	require.NoError(t, err)
	assert.Equal(t, []string{"TagA", "TagB"}, subData.TagsSet)
	require.Len(t, subData.CodeSet, 2)
	assert.Equal(t, JavaStringHash("TagA"), subData.CodeSet[0])
	assert.Equal(t, JavaStringHash("TagB"), subData.CodeSet[1])
}

func TestBuildSubscriptionDataBlankTag(t *testing.T) {
	_, err := BuildSubscriptionData("TopicTest", "TagA|| ||TagB")
	assert.Error(t, err)
}

func TestBuildSubscriptionDataVersionBumps(t *testing.T) {
	first, err := BuildSubscriptionData("TopicTest", "TagA")
	require.NoError(t, err)
	second, err := BuildSubscriptionData("TopicTest", "TagA")
	require.NoError(t, err)
	assert.True(t, second.SubVersion >= first.SubVersion)
}

func TestJavaStringHash(t *testing.T) {
	// 与java String.hashCode对齐
	assert.Equal(t, int32(0), JavaStringHash(""))
	assert.Equal(t, int32(96354), JavaStringHash("abc"))
	assert.Equal(t, int32(99162322), JavaStringHash("hello"))
	assert.Equal(t, int32(2598919), JavaStringHash("TagA"))
}

func TestIsTagMatched(t *testing.T) {
	subData, err := BuildSubscriptionData("TopicTest", "TagA||TagB")
	require.NoError(t, err)

	assert.True(t, IsTagMatched(subData, "TagA"))
	assert.True(t, IsTagMatched(subData, "TagB"))
	assert.False(t, IsTagMatched(subData, "TagC"))
	assert.False(t, IsTagMatched(subData, ""))

	all, err := BuildSubscriptionData("TopicTest", "*")
	require.NoError(t, err)
	assert.True(t, IsTagMatched(all, "anything"))
	assert.True(t, IsTagMatched(all, ""))

	classFilter := &heartbeat.SubscriptionData{Topic: "TopicTest", ClassFilterMode: true}
	assert.True(t, IsTagMatched(classFilter, "whatever"))
}
