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

	"github.com/stretchr/testify/assert"
)

func TestBuildSysFlag(t *testing.T) {
	flag := BuildSysFlag(true, true, true, true)
	assert.Equal(t, int32(0xF), flag)

	flag = BuildSysFlag(false, true, false, false)
	assert.Equal(t, FLAG_SUSPEND, flag)
	assert.False(t, HasCommitOffsetFlag(flag))
	assert.True(t, HasSuspendFlag(flag))
	assert.False(t, HasSubscriptionFlag(flag))
	assert.False(t, HasClassFilterFlag(flag))
}

func TestClearCommitOffsetFlag(t *testing.T) {
	flag := BuildSysFlag(true, true, true, false)
	cleared := ClearCommitOffsetFlag(flag)
	assert.False(t, HasCommitOffsetFlag(cleared))
	assert.True(t, HasSuspendFlag(cleared))
	assert.True(t, HasSubscriptionFlag(cleared))
}
