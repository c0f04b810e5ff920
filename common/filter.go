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
	"strings"
	"unicode/utf16"

	"github.com/boltmq/common/protocol/heartbeat"
	"github.com/boltmq/common/utils/system"
	"github.com/go-errors/errors"
)

const (
	// 订阅全部tag
	SUB_ALL = "*"
	// tag分隔符
	subSeparator = "||"
)

// BuildSubscriptionData 解析订阅表达式。表达式为空或"*"表示订阅全部，
// 否则为"||"分隔的tag列表。
func BuildSubscriptionData(topic string, subString string) (*heartbeat.SubscriptionData, error) {
	subData := &heartbeat.SubscriptionData{
		Topic:      topic,
		SubString:  subString,
		SubVersion: system.CurrentTimeMillis(),
	}

	if subString == "" || subString == SUB_ALL {
		subData.SubString = SUB_ALL
		return subData, nil
	}

	tags := strings.Split(subString, subSeparator)
	if len(tags) == 0 {
		return nil, errors.Errorf("subString split error, topic: %s subString: %s", topic, subString)
	}

	seen := make(map[string]struct{})
	for _, tag := range tags {
		trimTag := strings.TrimSpace(tag)
		if trimTag == "" {
			return nil, errors.Errorf("the subscription expression contains a blank tag, topic: %s subString: %s", topic, subString)
		}

		if _, ok := seen[trimTag]; ok {
			continue
		}

		seen[trimTag] = struct{}{}
		subData.TagsSet = append(subData.TagsSet, trimTag)
		subData.CodeSet = append(subData.CodeSet, JavaStringHash(trimTag))
	}

	return subData, nil
}

// JavaStringHash 与broker端tag过滤一致的hash算法，即java String.hashCode：
// 按UTF-16编码单元滚动乘31。
func JavaStringHash(s string) int32 {
	var h int32
	for _, cu := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(cu)
	}

	return h
}

// IsTagMatched tag客户端精确过滤
func IsTagMatched(subData *heartbeat.SubscriptionData, tag string) bool {
	if subData.ClassFilterMode {
		return true
	}

	if len(subData.TagsSet) == 0 {
		return true
	}

	if tag == "" {
		return false
	}

	for _, t := range subData.TagsSet {
		if t == tag {
			return true
		}
	}

	return false
}
